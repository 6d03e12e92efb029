package scanner

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vbonduro/calscan/internal/domain"
)

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// EncodeImage reads img once and returns it as standard base64 together with
// its declared media type. Any read failure is wrapped in ErrEncoding.
func EncodeImage(ctx context.Context, img *domain.SelectedImage) (*domain.EncodedPayload, error) {
	if img == nil {
		return nil, ErrNoImageSelected
	}

	rc, err := img.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			slog.Error("failed to close image source", "name", img.Name, "error", err)
		}
	}()

	var sb strings.Builder
	if img.Size > 0 {
		sb.Grow(base64.StdEncoding.EncodedLen(int(img.Size)))
	}
	enc := base64.NewEncoder(base64.StdEncoding, &sb)
	if _, err := io.Copy(enc, ctxReader{ctx: ctx, r: rc}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	return &domain.EncodedPayload{MimeType: img.MimeType, Data: sb.String()}, nil
}
