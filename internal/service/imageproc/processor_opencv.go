//go:build opencv

package imageproc

import (
	"errors"
	"image"
	"net/http"

	"gocv.io/x/gocv"
)

type opencvBackend struct{}

func newBackend() backend {
	return opencvBackend{}
}

func (opencvBackend) name() string { return "opencv" }

func (opencvBackend) prepare(data []byte, optimize bool) (Result, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return Result{}, err
	}
	defer mat.Close()

	if mat.Empty() {
		return Result{}, errors.New("decoded image is empty")
	}

	if !optimize {
		return Result{
			Data:     data,
			MimeType: http.DetectContentType(data),
			Width:    mat.Cols(),
			Height:   mat.Rows(),
		}, nil
	}

	width, height := fitSize(mat.Cols(), mat.Rows(), TargetWidth, TargetHeight)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationArea)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, resized, []int{gocv.IMWriteJpegQuality, JPEGQuality})
	if err != nil {
		return Result{}, err
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())

	return Result{
		Data:     out,
		MimeType: "image/jpeg",
		Width:    resized.Cols(),
		Height:   resized.Rows(),
	}, nil
}

func (opencvBackend) rawPixels(data []byte, width, height int) ([]byte, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, errors.New("decoded image is empty")
	}

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(mat, &small, image.Pt(width, height), 0, 0, gocv.InterpolationArea)

	// BGR order; the histogram does not separate channels so the order is irrelevant.
	return small.ToBytes(), nil
}

// fitSize scales w x h down to fit inside maxW x maxH, keeping aspect ratio.
func fitSize(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scaleW := float64(maxW) / float64(w)
	scaleH := float64(maxH) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	nw, nh := int(float64(w)*scale+0.5), int(float64(h)*scale+0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
