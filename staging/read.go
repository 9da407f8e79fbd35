package staging

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

const readChunkSize = 256 * 1024 // 256KB per chunk

// readAll reads a picked file in chunks, checking ctx between chunks so a
// cancelled batch stops promptly even on large assets.
func readAll(ctx context.Context, f PickedFile) ([]byte, error) {
	if f.Open == nil {
		return nil, fmt.Errorf("open %s: no content source", f.RelativePath)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.RelativePath, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if f.Size > 0 {
		buf.Grow(int(f.Size))
	}
	chunk := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, readErr := rc.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("read %s: %w", f.RelativePath, readErr)
		}
	}
	return buf.Bytes(), nil
}
