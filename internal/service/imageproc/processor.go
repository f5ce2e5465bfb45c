// Package imageproc decodes, normalizes and downsamples captured frames.
//
// The default backend is pure Go (disintegration/imaging). Building with
// -tags opencv switches to gocv, which needs a local OpenCV 4 install.
package imageproc

import (
	"errors"
	"fmt"
)

const (
	// TargetWidth and TargetHeight bound optimized images; smaller images are not enlarged.
	TargetWidth  = 800
	TargetHeight = 600
	// JPEGQuality is used whenever an image is re-encoded.
	JPEGQuality = 80
)

// ErrEmptyImage is returned for zero-length payloads.
var ErrEmptyImage = errors.New("empty image payload")

// Result is a decoded (and possibly re-encoded) image.
type Result struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

// backend is implemented once per build flavor.
type backend interface {
	name() string
	prepare(data []byte, optimize bool) (Result, error)
	rawPixels(data []byte, width, height int) ([]byte, error)
}

// Processor is safe for concurrent use.
type Processor struct {
	impl backend
}

func NewProcessor() *Processor {
	return &Processor{impl: newBackend()}
}

// Backend names the active implementation ("imaging" or "opencv").
func (p *Processor) Backend() string {
	return p.impl.name()
}

// Prepare decodes data and, when optimize is set, fits it inside TargetWidth x TargetHeight
// and re-encodes it as JPEG at JPEGQuality. Without optimize the original bytes are kept.
func (p *Processor) Prepare(data []byte, optimize bool) (Result, error) {
	if len(data) == 0 {
		return Result{}, ErrEmptyImage
	}
	res, err := p.impl.prepare(data, optimize)
	if err != nil {
		return Result{}, fmt.Errorf("failed to prepare image: %w", err)
	}
	return res, nil
}

// RawPixels resizes data to exactly width x height and returns the interleaved
// 8-bit color channels (3 bytes per pixel, no alpha).
func (p *Processor) RawPixels(data []byte, width, height int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	pixels, err := p.impl.rawPixels(data, width, height)
	if err != nil {
		return nil, fmt.Errorf("failed to downsample image: %w", err)
	}
	return pixels, nil
}
