package staging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress_Percent(t *testing.T) {
	assert.Equal(t, 25, Progress{50, 200}.Percent())
	assert.Equal(t, 100, Progress{200, 200}.Percent())
	assert.Equal(t, 33, Progress{1, 3}.Percent())
	assert.Equal(t, 67, Progress{2, 3}.Percent())
	assert.Equal(t, 0, Progress{0, 0}.Percent())
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		text  string
		phase Phase
		want  Progress
	}{
		{"Downloading data... (50/200)", PhaseProgress, Progress{50, 200}},
		{"Downloading data... (200/200)", PhaseProgress, Progress{200, 200}},
		{"1/2 then 3/4", PhaseProgress, Progress{1, 2}},
		{"Downloading data...", PhaseDownloading, Progress{}},
		{"Running...", PhaseMessage, Progress{}},
		{"broken 5/0", PhaseMessage, Progress{}},
		{"", PhaseMessage, Progress{}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			ev := ParseStatus(tt.text)
			assert.Equal(t, tt.phase, ev.Phase)
			assert.Equal(t, tt.want, ev.Progress)
			assert.Equal(t, tt.text, ev.Text)
		})
	}
}

func TestProgressReporter_RuntimeStatus(t *testing.T) {
	ind := &recordingIndicator{}
	bus := NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)
	r := NewProgressReporter(ind, bus)

	r.Status(ParseStatus("Downloading data..."))
	assert.True(t, ind.visible)

	r.Status(ParseStatus("Downloading data... (50/200)"))
	assert.Equal(t, 25, ind.percent)
	assert.True(t, ind.visible)

	r.Status(ParseStatus("Downloading data... (200/200)"))
	assert.Equal(t, 100, ind.percent)
	assert.False(t, ind.visible)

	assert.Equal(t, []string{"show", "set:25", "set:100", "hide"}, ind.calls)

	<-ch
	ev := <-ch
	assert.Equal(t, EventStatus, ev.Type)
	assert.Equal(t, 25, ev.Percent)
}

func TestProgressReporter_UploadAlwaysShows(t *testing.T) {
	ind := &recordingIndicator{}
	r := NewProgressReporter(ind, nil)

	r.Upload(Progress{Current: 2, Total: 2})
	assert.True(t, ind.visible)
	assert.Equal(t, 100, ind.percent)
}

func TestEventBus_FanOutAndDrop(t *testing.T) {
	bus := NewEventBus()
	a, b := bus.Subscribe(), bus.Subscribe()

	bus.Publish(Event{Type: EventState, State: "ready"})
	assert.Equal(t, "ready", (<-a).State)
	assert.Equal(t, "ready", (<-b).State)

	bus.Unsubscribe(a)
	bus.Unsubscribe(a) // second call is a no-op
	_, open := <-a
	assert.False(t, open)

	// A full subscriber does not block Publish.
	for i := 0; i < 200; i++ {
		bus.Publish(Event{Type: EventProgress, Current: i})
	}
	assert.Len(t, b, cap(b))
	bus.Unsubscribe(b)
}
