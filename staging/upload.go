package staging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marusama/semaphore/v2"
	"golang.org/x/sync/errgroup"

	"github.com/fheroes2/webstage/logging"
	"github.com/fheroes2/webstage/metrics"
)

// DefaultConcurrency bounds simultaneous file reads.
const DefaultConcurrency = 8

// UploadResult describes a finished batch.
type UploadResult struct {
	Files   int
	Bytes   int64
	Elapsed time.Duration
}

// Uploader writes an accepted selection into the virtual filesystem under
// root and flushes once, from the task that lands the last file.
type Uploader struct {
	fsys        FileSystem
	root        string
	concurrency int
}

// NewUploader creates an Uploader. concurrency <= 0 uses
// DefaultConcurrency.
func NewUploader(fsys FileSystem, root string, concurrency int) *Uploader {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Uploader{fsys: fsys, root: root, concurrency: concurrency}
}

// Upload stages every file. Reads run concurrently, bounded by the
// uploader's concurrency; directory creation, writes and the completion
// counter are serialized. The first error cancels the remaining tasks and
// no flush happens. onProgress, if set, sees each completion in order.
func (u *Uploader) Upload(ctx context.Context, files []PickedFile, onProgress func(Progress)) (UploadResult, error) {
	l := sub("upload")
	start := time.Now()
	total := len(files)
	l.Info("batch start", "files", total, "root", u.root, "concurrency", u.concurrency)

	if total == 0 {
		if err := u.flush(ctx); err != nil {
			return UploadResult{}, err
		}
		return UploadResult{Elapsed: time.Since(start)}, nil
	}

	var (
		mu    sync.Mutex
		done  int
		bytes int64
	)
	sem := semaphore.New(u.concurrency)
	g, gctx := errgroup.WithContext(ctx)

	for _, f := range files {
		g.Go(func() error {
			dir, dst, err := Destination(u.root, f.RelativePath)
			if err != nil {
				return err
			}

			mu.Lock()
			err = Materialize(u.fsys, dir)
			mu.Unlock()
			if err != nil {
				return err
			}

			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			data, err := readAll(gctx, f)
			sem.Release(1)
			if err != nil {
				l.Error("read failed", "path", f.RelativePath, "err", err)
				return err
			}

			mu.Lock()
			if err := gctx.Err(); err != nil {
				mu.Unlock()
				return err
			}
			if err := u.fsys.WriteFile(dst, data); err != nil {
				mu.Unlock()
				l.Error("write failed", "path", dst, "err", err)
				return fmt.Errorf("write %s: %w", dst, err)
			}
			done++
			bytes += int64(len(data))
			n := done
			metrics.RecordFileStaged(len(data))
			if logging.Enabled(slog.LevelDebug) {
				l.Debug("staged", "path", dst, "size", len(data), "done", n, "total", total)
			}
			if onProgress != nil {
				onProgress(Progress{Current: n, Total: total})
			}
			mu.Unlock()

			if n == total {
				return u.flush(gctx)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		result := "failed"
		if ctx.Err() != nil {
			result = "cancelled"
		}
		metrics.RecordBatch(result)
		l.Warn("batch aborted", "result", result, "done", done, "total", total, "err", err)
		return UploadResult{Files: done, Bytes: bytes, Elapsed: time.Since(start)}, err
	}

	metrics.RecordBatch("ok")
	res := UploadResult{Files: done, Bytes: bytes, Elapsed: time.Since(start)}
	l.Info("batch complete", "files", res.Files, "bytes", res.Bytes, "elapsed", res.Elapsed)
	return res, nil
}

func (u *Uploader) flush(ctx context.Context) error {
	if err := u.fsys.Sync(ctx, false); err != nil {
		return fmt.Errorf("%w: %w", ErrFlush, err)
	}
	return nil
}
