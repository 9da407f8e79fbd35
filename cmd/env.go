package cmd

import (
	"context"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/fheroes2/webstage/gamehost"
	"github.com/fheroes2/webstage/staging"
	"github.com/fheroes2/webstage/store"
	"github.com/fheroes2/webstage/vfs"
)

// app is everything a command needs, built from cfg.
type app struct {
	fs      *vfs.FS
	backend vfs.Backend
	ctrl    *staging.Controller
	deps    *gamehost.Dependencies
	close   func() error
}

// createApp opens the configured store and wires a controller to it. The
// controller is not bootstrapped yet.
func createApp(ctx context.Context, ind staging.Indicator) (*app, error) {
	backend, closeFn, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, err
	}
	fsys := vfs.New()
	deps := gamehost.NewDependencies()
	ctrl := staging.NewController(staging.Env{
		FS:          fsys,
		Backend:     backend,
		Deps:        deps,
		Indicator:   ind,
		MountPoint:  cfg.MountPoint,
		DataDir:     cfg.DataPath(),
		Rules:       cfg.Rules(),
		Concurrency: cfg.Concurrency,
	})
	return &app{fs: fsys, backend: backend, ctrl: ctrl, deps: deps, close: closeFn}, nil
}

// barIndicator renders progress on stderr.
type barIndicator struct {
	bar *progressbar.ProgressBar
}

func newBarIndicator(description string) *barIndicator {
	return &barIndicator{
		bar: progressbar.NewOptions(100,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(50),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionSetRenderBlankState(false),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionSetPredictTime(false),
		),
	}
}

func (b *barIndicator) Show() {}

func (b *barIndicator) Hide() {
	b.bar.Finish() //nolint:errcheck
}

func (b *barIndicator) Set(percent int) {
	b.bar.Set(percent) //nolint:errcheck
}
