//go:build !opencv

package imageproc

import (
	"bytes"
	"image"
	"net/http"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

type imagingBackend struct{}

func newBackend() backend {
	return imagingBackend{}
}

func (imagingBackend) name() string { return "imaging" }

func (imagingBackend) prepare(data []byte, optimize bool) (Result, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, err
	}

	if !optimize {
		bounds := img.Bounds()
		return Result{
			Data:     data,
			MimeType: http.DetectContentType(data),
			Width:    bounds.Dx(),
			Height:   bounds.Dy(),
		}, nil
	}

	fitted := imaging.Fit(img, TargetWidth, TargetHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return Result{}, err
	}

	bounds := fitted.Bounds()
	return Result{
		Data:     buf.Bytes(),
		MimeType: "image/jpeg",
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}, nil
}

func (imagingBackend) rawPixels(data []byte, width, height int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	small := imaging.Resize(img, width, height, imaging.Box)
	return dropAlpha(small), nil
}

// dropAlpha flattens NRGBA pixels into RGB triplets.
func dropAlpha(img *image.NRGBA) []byte {
	bounds := img.Bounds()
	out := make([]byte, 0, bounds.Dx()*bounds.Dy()*3)
	for y := 0; y < bounds.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+bounds.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			out = append(out, row[x], row[x+1], row[x+2])
		}
	}
	return out
}
