package staging

import (
	"io"
	"strings"

	"github.com/samber/lo"

	"github.com/fheroes2/webstage/metrics"
)

// Default validation parameters for the fheroes2 data set.
const DefaultMaxFiles = 3000

var (
	DefaultRequiredFiles = []string{"data/HEROES2.AGG", "data/HEROES2X.AGG"}
	DefaultAllowedDirs   = []string{"data", "heroes2", "maps", "music"}
)

// User-facing messages.
const (
	MsgArchive         = "Zip archives are not supported yet, sorry"
	MsgTooLarge        = "Wrong directory, or your maps collection is really awesome."
	MsgMissingRequired = "Wrong directory - missing required game files"
	MsgSyncFailed      = "Failed to sync file system"
	WipePrompt         = "Are you sure you want to delete all game files?"
)

// Reason identifies why a selection was rejected.
type Reason string

const (
	ReasonArchive         Reason = "archives unsupported"
	ReasonTooLarge        Reason = "selection too large"
	ReasonMissingRequired Reason = "missing required files"
)

// Rejection is a user-input error: the selection as a whole was refused
// and nothing was staged.
type Rejection struct {
	Reason  Reason
	Message string
}

func (r *Rejection) Error() string {
	return string(r.Reason) + ": " + r.Message
}

func reject(reason Reason, msg string) *Rejection {
	metrics.RecordRejection(string(reason))
	sub("validate").Info("selection rejected", "reason", reason)
	return &Rejection{Reason: reason, Message: msg}
}

// OpenFunc opens a picked file's content.
type OpenFunc func() (io.ReadCloser, error)

// PickedFile is one entry of a directory-picker selection. RelativePath
// starts with the picked folder's own name, '/'-separated.
type PickedFile struct {
	RelativePath string
	Size         int64 // hint only; 0 if unknown
	Open         OpenFunc
}

// Rules parameterize Validate.
type Rules struct {
	MaxFiles      int
	RequiredFiles []string
	AllowedDirs   []string
}

// DefaultRules returns the fheroes2 rules.
func DefaultRules() Rules {
	return Rules{
		MaxFiles:      DefaultMaxFiles,
		RequiredFiles: append([]string(nil), DefaultRequiredFiles...),
		AllowedDirs:   append([]string(nil), DefaultAllowedDirs...),
	}
}

// Validate accepts or rejects a selection and returns the files worth
// staging. Rules run in order: a lone file is taken for an archive; more
// than MaxFiles is refused; exactly one file per required suffix must be
// present; then hidden files and files outside the allowed folders are
// dropped.
func Validate(files []PickedFile, rules Rules) ([]PickedFile, error) {
	if len(files) == 1 {
		return nil, reject(ReasonArchive, MsgArchive)
	}
	if len(files) > rules.MaxFiles {
		return nil, reject(ReasonTooLarge, MsgTooLarge)
	}
	if !hasRequired(files, rules.RequiredFiles) {
		return nil, reject(ReasonMissingRequired, MsgMissingRequired)
	}

	accepted := lo.Filter(files, func(f PickedFile, _ int) bool {
		return keep(f.RelativePath, rules.AllowedDirs)
	})
	if len(accepted) == 0 {
		return nil, reject(ReasonMissingRequired, MsgMissingRequired)
	}
	sub("validate").Info("selection accepted", "picked", len(files), "accepted", len(accepted))
	return accepted, nil
}

// hasRequired reports whether the matching count equals the number of
// required suffixes and each suffix is matched.
func hasRequired(files []PickedFile, required []string) bool {
	matched := lo.Filter(files, func(f PickedFile, _ int) bool {
		return lo.SomeBy(required, func(rq string) bool { return hasSuffixFold(f.RelativePath, rq) })
	})
	if len(matched) != len(required) {
		return false
	}
	return lo.EveryBy(required, func(rq string) bool {
		return lo.SomeBy(matched, func(f PickedFile) bool { return hasSuffixFold(f.RelativePath, rq) })
	})
}

// hasSuffixFold reports whether p ends with suffix, ignoring case.
func hasSuffixFold(p, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(p), strings.ToLower(suffix))
}

func keep(rel string, allowed []string) bool {
	leaf, ancestors := SplitRelative(rel)
	if leaf == "" || strings.HasPrefix(leaf, ".") {
		return false
	}
	return lo.SomeBy(ancestors, func(dir string) bool {
		return lo.SomeBy(allowed, func(a string) bool { return strings.EqualFold(dir, a) })
	})
}
