// internal/sink/interface.go
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrExists is returned by Place when the destination exists and overwriting
// is not allowed.
var ErrExists = errors.New("destination already exists")

// Sink places a finished local file at its destination.
type Sink interface {
	// Place moves the file at src to dest and returns the final location.
	// On error src is left untouched.
	Place(ctx context.Context, src, dest string, overwrite bool) (string, error)

	// Exists checks if something is already at dest
	Exists(ctx context.Context, dest string) (bool, error)
}

// Mux routes s3:// destinations to S3 and everything else to Local.
type Mux struct {
	Local Sink
	S3    Sink
}

func (m *Mux) route(dest string) (Sink, error) {
	if IsS3(dest) {
		if m.S3 == nil {
			return nil, fmt.Errorf("no S3 output configured for %s", dest)
		}
		return m.S3, nil
	}
	return m.Local, nil
}

func (m *Mux) Place(ctx context.Context, src, dest string, overwrite bool) (string, error) {
	s, err := m.route(dest)
	if err != nil {
		return "", err
	}
	return s.Place(ctx, src, dest, overwrite)
}

func (m *Mux) Exists(ctx context.Context, dest string) (bool, error) {
	s, err := m.route(dest)
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, dest)
}

// IsS3 reports whether dest is an s3://bucket/key URL.
func IsS3(dest string) bool {
	return strings.HasPrefix(dest, "s3://")
}
