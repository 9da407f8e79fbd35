package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/fheroes2/webstage/metrics"
	"github.com/fheroes2/webstage/vfs"
)

// State is a lifecycle state of the Controller.
type State int

const (
	Bootstrapping State = iota
	AwaitingSelection
	Uploading
	Ready
	Running
	Wiping
)

var stateNames = [...]string{
	Bootstrapping:     "bootstrapping",
	AwaitingSelection: "awaiting_selection",
	Uploading:         "uploading",
	Ready:             "ready",
	Running:           "running",
	Wiping:            "wiping",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateNames lists every state name.
func StateNames() []string {
	return append([]string(nil), stateNames[:]...)
}

// A replaced or failed batch falls back from Uploading to
// AwaitingSelection before the next one starts.
var transitions = map[State][]State{
	Bootstrapping:     {AwaitingSelection, Ready},
	AwaitingSelection: {Uploading},
	Uploading:         {Ready, AwaitingSelection},
	Ready:             {Running, Wiping},
	Wiping:            {AwaitingSelection},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SyncDependency is the run dependency held until the user starts the
// game.
const SyncDependency = "syncfs"

// RunDependencies gates the game runtime's startup.
type RunDependencies interface {
	Add(id string)
	Remove(id string)
}

// Confirmer asks the user a yes/no question.
type Confirmer func(prompt string) bool

// Env is the explicit context every lifecycle step works against,
// constructed once and handed to NewController.
type Env struct {
	FS      MountableFS
	Backend vfs.Backend
	Deps    RunDependencies // optional
	Bus     *EventBus       // optional; one is created if nil

	Indicator Indicator // optional

	MountPoint  string // e.g. /fheroes2
	DataDir     string // staging root, e.g. /fheroes2/data
	Rules       Rules
	Concurrency int
}

// Controller sequences bootstrap, selection, upload, start and wipe.
type Controller struct {
	env      Env
	reporter *ProgressReporter
	uploader *Uploader

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController creates a controller in the Bootstrapping state.
func NewController(env Env) *Controller {
	if env.Bus == nil {
		env.Bus = NewEventBus()
	}
	if env.Rules.MaxFiles == 0 {
		env.Rules = DefaultRules()
	}
	c := &Controller{
		env:      env,
		reporter: NewProgressReporter(env.Indicator, env.Bus),
		uploader: NewUploader(env.FS, env.DataDir, env.Concurrency),
		state:    Bootstrapping,
	}
	metrics.SetState(c.state.String(), StateNames())
	return c
}

// Bus returns the event bus updates are published on.
func (c *Controller) Bus() *EventBus { return c.env.Bus }

// DataDir returns the staging root.
func (c *Controller) DataDir() string { return c.env.DataDir }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transition must be called with c.mu held.
func (c *Controller) transition(to State) {
	l := sub("lifecycle")
	from := c.state
	if !CanTransition(from, to) {
		l.Error("illegal transition", "from", from, "to", to)
		return
	}
	c.state = to
	metrics.SetState(to.String(), StateNames())
	l.Info("state changed", "from", from, "to", to)
	c.env.Bus.Publish(Event{Type: EventState, State: to.String()})
}

func (c *Controller) publishError(msg string) {
	c.env.Bus.Publish(Event{Type: EventError, Message: msg})
}

// Bootstrap mounts durable storage at the mount point and pulls its
// state into memory. A data directory with entries goes straight to
// Ready; otherwise an empty one is created and the controller awaits a
// selection. Bootstrap holds the sync run dependency until Start.
func (c *Controller) Bootstrap(ctx context.Context) error {
	l := sub("lifecycle")
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Bootstrapping {
		return ErrInvalidState
	}
	if c.env.Deps != nil {
		c.env.Deps.Add(SyncDependency)
	}

	if err := c.env.FS.Mkdir(c.env.MountPoint); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("create mount point: %w", err)
	}
	if err := c.env.FS.Mount(c.env.Backend, c.env.MountPoint); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("mount: %w", err)
	}
	if err := c.env.FS.Sync(ctx, true); err != nil {
		c.publishError(MsgSyncFailed)
		return fmt.Errorf("%w: %w", ErrFlush, err)
	}

	// A failed lookup means "not there yet".
	names, err := c.env.FS.Readdir(c.env.DataDir)
	if err == nil && len(names) > 0 {
		l.Info("staged data found", "dataDir", c.env.DataDir, "entries", len(names))
		c.transition(Ready)
		return nil
	}
	if err := Materialize(c.env.FS, c.env.DataDir); err != nil {
		return err
	}
	c.transition(AwaitingSelection)
	return nil
}

// Select validates a picker selection and uploads it. An accepted
// selection cancels and rolls back a batch already in flight; a rejected
// one leaves it running. Rejections come back as *Rejection; on any
// upload or flush failure the data directory is emptied again and the
// controller returns to AwaitingSelection.
func (c *Controller) Select(ctx context.Context, files []PickedFile) (UploadResult, error) {
	l := sub("lifecycle")

	c.mu.Lock()
	if c.state != AwaitingSelection && c.state != Uploading {
		st := c.state
		c.mu.Unlock()
		return UploadResult{}, fmt.Errorf("select in %s: %w", st, ErrInvalidState)
	}

	accepted, err := Validate(files, c.env.Rules)
	if err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			c.publishError(rej.Message)
		}
		if c.state == AwaitingSelection {
			c.env.Bus.Publish(Event{Type: EventReset})
		}
		c.mu.Unlock()
		return UploadResult{}, err
	}

	for c.state == Uploading {
		cancel, done := c.cancel, c.done
		c.mu.Unlock()
		l.Info("cancelling in-flight batch for new selection")
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return UploadResult{}, ctx.Err()
		}
		c.mu.Lock()
	}

	if c.state != AwaitingSelection {
		st := c.state
		c.mu.Unlock()
		return UploadResult{}, fmt.Errorf("select in %s: %w", st, ErrInvalidState)
	}

	bctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	c.transition(Uploading)
	c.mu.Unlock()

	res, err := c.uploader.Upload(bctx, accepted, c.reporter.Upload)
	replaced := bctx.Err() != nil && ctx.Err() == nil

	c.mu.Lock()
	cancel()
	if err != nil {
		c.rollback(ctx, err)
		c.transition(AwaitingSelection)
		switch {
		case replaced:
			l.Info("batch replaced by a newer selection")
		case errors.Is(err, ErrFlush):
			c.publishError(MsgSyncFailed)
		default:
			c.publishError(err.Error())
		}
		c.env.Bus.Publish(Event{Type: EventReset})
	} else {
		c.transition(Ready)
	}
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	close(done)

	return res, err
}

// rollback empties the data directory after a failed batch. When the
// flush itself failed, the backend may hold part of the batch, so a
// best-effort persist of the empty tree follows. Must be called with c.mu
// held.
func (c *Controller) rollback(ctx context.Context, cause error) {
	l := sub("lifecycle")
	res := Purge(c.env.FS, c.env.DataDir)
	if err := Materialize(c.env.FS, c.env.DataDir); err != nil {
		l.Error("rollback: recreate data dir", "err", err)
	}
	if errors.Is(cause, ErrFlush) {
		if err := c.env.FS.Sync(context.WithoutCancel(ctx), false); err != nil {
			l.Warn("rollback: persist failed", "err", err)
		}
	}
	l.Warn("batch rolled back", "cause", cause, "removed", len(res.Removed), "purge", res.Status())
}

// Start releases the runtime: Ready → Running.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Ready {
		return fmt.Errorf("start in %s: %w", c.state, ErrInvalidState)
	}
	if c.env.Deps != nil {
		c.env.Deps.Remove(SyncDependency)
	}
	c.reporter.Hide()
	c.transition(Running)
	return nil
}

// Wipe deletes every staged file after confirmation and returns to
// AwaitingSelection. A nil confirm skips the question. The flush after
// the purge is best-effort: a failure is reported but does not block.
func (c *Controller) Wipe(ctx context.Context, confirm Confirmer) (PurgeResult, error) {
	l := sub("lifecycle")
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Ready {
		return PurgeResult{}, fmt.Errorf("wipe in %s: %w", c.state, ErrInvalidState)
	}
	if confirm != nil && !confirm(WipePrompt) {
		return PurgeResult{}, ErrNotConfirmed
	}

	c.transition(Wiping)
	res := Purge(c.env.FS, c.env.DataDir)
	if err := Materialize(c.env.FS, c.env.DataDir); err != nil {
		l.Error("wipe: recreate data dir", "err", err)
	}
	if err := c.env.FS.Sync(ctx, false); err != nil {
		l.Warn("wipe: flush failed", "err", err)
		c.publishError(MsgSyncFailed)
	}
	c.env.Bus.Publish(Event{Type: EventReset})
	c.transition(AwaitingSelection)
	return res, nil
}

// SetStatus is the runtime's status callback.
func (c *Controller) SetStatus(text string) {
	c.reporter.Status(ParseStatus(text))
}

// Inventory lists what is currently staged.
func (c *Controller) Inventory() ([]InventoryEntry, error) {
	return Inventory(c.env.FS, c.env.DataDir)
}
