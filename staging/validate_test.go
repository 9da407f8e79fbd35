package staging

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rejectionReason(t *testing.T, err error) Reason {
	t.Helper()
	var rej *Rejection
	require.True(t, errors.As(err, &rej), "expected *Rejection, got %v", err)
	return rej.Reason
}

func paths(files []PickedFile) []string {
	return lo.Map(files, func(f PickedFile, _ int) string { return f.RelativePath })
}

func TestValidate_SingleFileIsArchive(t *testing.T) {
	_, err := Validate([]PickedFile{picked("root/data/HEROES2.AGG", "x")}, DefaultRules())
	assert.Equal(t, ReasonArchive, rejectionReason(t, err))

	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, MsgArchive, rej.Message)
}

func TestValidate_CountCeiling(t *testing.T) {
	_, err := Validate(manyFiles(3001), DefaultRules())
	assert.Equal(t, ReasonTooLarge, rejectionReason(t, err))

	accepted, err := Validate(manyFiles(3000), DefaultRules())
	require.NoError(t, err)
	assert.Len(t, accepted, 3000)
}

func TestValidate_RequiredFiles(t *testing.T) {
	tests := []struct {
		name  string
		files []PickedFile
		ok    bool
	}{
		{"both present", gameSelection(), true},
		{"case insensitive", []PickedFile{picked("Root/DATA/heroes2.agg", "a"), picked("Root/Data/Heroes2x.Agg", "b")}, true},
		{"missing expansion", []PickedFile{picked("root/data/HEROES2.AGG", "a"), picked("root/data/OTHER.AGG", "b")}, false},
		{"duplicate base file", []PickedFile{picked("root/data/HEROES2.AGG", "a"), picked("root/copy/data/HEROES2.AGG", "b"), picked("root/music/a.ogg", "c")}, false},
		{"three matches", gameSelection(picked("root/old/data/HEROES2.AGG", "c")), false},
		{"plain suffix match", []PickedFile{picked("root/mydata/HEROES2.AGG", "a"), picked("root/data/HEROES2X.AGG", "b")}, true},
		{"suffix match counts toward the total", []PickedFile{picked("root/xdata/HEROES2.AGG", "a"), picked("root/data/HEROES2X.AGG", "b"), picked("root/data/HEROES2.AGG", "c")}, false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.files, DefaultRules())
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, ReasonMissingRequired, rejectionReason(t, err))
		})
	}
}

func TestValidate_FiltersHiddenAndUnlisted(t *testing.T) {
	files := gameSelection(
		picked("root/maps/x/file.dat", "k"),
		picked("root/readme/file.dat", "d"),
		picked("root/data/.DS_Store", "h"),
		picked("root/MUSIC/track01.ogg", "m"),
		picked("root/notes.txt", "n"),
	)
	accepted, err := Validate(files, DefaultRules())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"root/data/HEROES2.AGG",
		"root/data/HEROES2X.AGG",
		"root/maps/x/file.dat",
		"root/MUSIC/track01.ogg",
	}, paths(accepted))
}

func TestValidate_CustomRules(t *testing.T) {
	rules := Rules{MaxFiles: 3, RequiredFiles: []string{"game/core.pak"}, AllowedDirs: []string{"game"}}
	accepted, err := Validate([]PickedFile{picked("r/game/core.pak", "a"), picked("r/game/extra.pak", "b")}, rules)
	require.NoError(t, err)
	assert.Len(t, accepted, 2)

	files := make([]PickedFile, 4)
	for i := range files {
		files[i] = picked(fmt.Sprintf("r/game/%d.pak", i), "x")
	}
	_, err = Validate(files, rules)
	assert.Equal(t, ReasonTooLarge, rejectionReason(t, err))
}
