package staging

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Progress is a (current, total) snapshot, 0 <= Current <= Total.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Percent returns the rounded percentage, clamped to 0..100.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	pct := int(math.Round(float64(p.Current) / float64(p.Total) * 100))
	return max(0, min(100, pct))
}

// Phase classifies a runtime status line.
type Phase string

const (
	PhaseProgress    Phase = "progress"    // carries done/total
	PhaseDownloading Phase = "downloading" // download started, no numbers yet
	PhaseMessage     Phase = "message"     // anything else
)

// StatusEvent is a runtime status line normalized at the boundary.
type StatusEvent struct {
	Phase    Phase    `json:"phase"`
	Progress Progress `json:"progress"`
	Text     string   `json:"text"`
}

var statusProgressRE = regexp.MustCompile(`(\d+)/(\d+)`)

const downloadingPrefix = "Downloading data"

// ParseStatus turns the runtime's free-text status into a StatusEvent.
// Only the first "done/total" pair counts, and total must be positive.
func ParseStatus(text string) StatusEvent {
	ev := StatusEvent{Phase: PhaseMessage, Text: text}
	if m := statusProgressRE.FindStringSubmatch(text); m != nil {
		cur, errC := strconv.Atoi(m[1])
		tot, errT := strconv.Atoi(m[2])
		if errC == nil && errT == nil && tot > 0 {
			ev.Phase = PhaseProgress
			ev.Progress = Progress{Current: min(cur, tot), Total: tot}
			return ev
		}
	}
	if strings.HasPrefix(text, downloadingPrefix) {
		ev.Phase = PhaseDownloading
	}
	return ev
}

// Indicator is the visual progress element.
type Indicator interface {
	Show()
	Hide()
	Set(percent int)
}

type nopIndicator struct{}

func (nopIndicator) Show()   {}
func (nopIndicator) Hide()   {}
func (nopIndicator) Set(int) {}

// ProgressReporter drives an Indicator from upload progress and runtime
// status, and mirrors every update onto the event bus.
type ProgressReporter struct {
	ind Indicator
	bus *EventBus
}

// NewProgressReporter creates a reporter. A nil indicator or bus is
// allowed.
func NewProgressReporter(ind Indicator, bus *EventBus) *ProgressReporter {
	if ind == nil {
		ind = nopIndicator{}
	}
	return &ProgressReporter{ind: ind, bus: bus}
}

// Upload reports orchestrator progress; the indicator stays visible.
func (r *ProgressReporter) Upload(p Progress) {
	pct := p.Percent()
	r.ind.Show()
	r.ind.Set(pct)
	r.publish(Event{Type: EventProgress, Current: p.Current, Total: p.Total, Percent: pct})
}

// Status reports a runtime status event. Reaching 100% hides the
// indicator; the start of a download shows it.
func (r *ProgressReporter) Status(ev StatusEvent) {
	switch ev.Phase {
	case PhaseProgress:
		pct := ev.Progress.Percent()
		r.ind.Set(pct)
		if pct == 100 {
			r.ind.Hide()
		}
		r.publish(Event{Type: EventStatus, Current: ev.Progress.Current, Total: ev.Progress.Total, Percent: pct, Message: ev.Text})
	case PhaseDownloading:
		r.ind.Show()
		r.publish(Event{Type: EventStatus, Message: ev.Text})
	default:
		r.publish(Event{Type: EventStatus, Message: ev.Text})
	}
}

// Hide hides the indicator.
func (r *ProgressReporter) Hide() {
	r.ind.Hide()
}

func (r *ProgressReporter) publish(e Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}
