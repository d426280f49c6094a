package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"minicap/pkg/models"
)

const (
	MinQuality     = 1
	MaxQuality     = 100
	DefaultQuality = 100

	bytesPerPixel = 4
)

var (
	// ErrInvalidDimensions is returned when the target does not fit in the raw frame
	ErrInvalidDimensions = errors.New("invalid dimensions")

	// ErrUnsupportedFormat is returned for raw frames that are not RGBA_8888
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
)

// Encoder turns raw RGBA frames into JPEG stills of an exact target size.
//
// An Encoder keeps scratch rasters between calls and is not safe for
// concurrent use. Callers must serialize Encode.
type Encoder struct {
	raster   *image.RGBA // raw frame without row padding
	rotated  *image.RGBA // raster turned 90 degrees clockwise
	sizeHint int         // capacity hint for the output buffer
}

// New creates a new encoder
func New() *Encoder {
	return &Encoder{}
}

// ClampQuality limits q to the JPEG quality range
func ClampQuality(q int) int {
	if q < MinQuality {
		return MinQuality
	}
	if q > MaxQuality {
		return MaxQuality
	}
	return q
}

// Encode compresses raw into a JPEG of exactly target size.
//
// Row padding is dropped. When raw and target disagree on orientation the
// raster is turned 90 degrees clockwise first, then cropped from the origin.
// The returned frame owns a fresh byte slice.
func (e *Encoder) Encode(raw *models.RawFrame, quality int, target models.Size) (models.EncodedFrame, error) {
	if err := validate(raw, target); err != nil {
		return models.EncodedFrame{}, err
	}

	src := e.unpad(raw)
	if landscape := src.Rect.Dx() > src.Rect.Dy(); landscape != target.Landscape() {
		src = e.rotate90(src)
	}

	if target.Width > src.Rect.Dx() || target.Height > src.Rect.Dy() {
		return models.EncodedFrame{}, fmt.Errorf("%w: target %s exceeds frame %dx%d",
			ErrInvalidDimensions, target, src.Rect.Dx(), src.Rect.Dy())
	}

	cropped := src.SubImage(target.Rect()).(*image.RGBA)

	var buf bytes.Buffer
	buf.Grow(e.sizeHint)
	if err := jpeg.Encode(&buf, cropped, &jpeg.Options{Quality: ClampQuality(quality)}); err != nil {
		return models.EncodedFrame{}, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	e.sizeHint = buf.Len() + buf.Len()/4

	return models.EncodedFrame{
		Data:       buf.Bytes(),
		Width:      target.Width,
		Height:     target.Height,
		CapturedAt: raw.Timestamp,
	}, nil
}

func validate(raw *models.RawFrame, target models.Size) error {
	if raw == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidDimensions)
	}
	if raw.Format != models.PixelFormatRGBA8888 || raw.PixelStride != bytesPerPixel {
		return fmt.Errorf("%w: %s with pixel stride %d", ErrUnsupportedFormat, raw.Format, raw.PixelStride)
	}
	if target.Empty() {
		return fmt.Errorf("%w: target %s", ErrInvalidDimensions, target)
	}
	if raw.Width <= 0 || raw.Height <= 0 || raw.RowPadding() < 0 {
		return fmt.Errorf("%w: frame %dx%d row stride %d", ErrInvalidDimensions, raw.Width, raw.Height, raw.RowStride)
	}
	if need := raw.RowStride*(raw.Height-1) + raw.Width*bytesPerPixel; len(raw.Pix) < need {
		return fmt.Errorf("%w: buffer holds %d bytes, need %d", ErrInvalidDimensions, len(raw.Pix), need)
	}
	return nil
}

// unpad copies the visible pixels of raw into the scratch raster
func (e *Encoder) unpad(raw *models.RawFrame) *image.RGBA {
	e.raster = ensure(e.raster, raw.Width, raw.Height)

	rowBytes := raw.Width * bytesPerPixel
	for y := 0; y < raw.Height; y++ {
		copy(e.raster.Pix[y*e.raster.Stride:y*e.raster.Stride+rowBytes], raw.Pix[y*raw.RowStride:])
	}
	return e.raster
}

// rotate90 turns src 90 degrees clockwise into the second scratch raster
func (e *Encoder) rotate90(src *image.RGBA) *image.RGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	e.rotated = ensure(e.rotated, h, w)

	dst := e.rotated
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		dx := (h - 1 - y) * bytesPerPixel
		for x := 0; x < w; x++ {
			copy(dst.Pix[x*dst.Stride+dx:x*dst.Stride+dx+bytesPerPixel], row[x*bytesPerPixel:])
		}
	}
	return dst
}

// ensure returns an RGBA of exactly w x h, reusing img's storage when possible
func ensure(img *image.RGBA, w, h int) *image.RGBA {
	n := w * h * bytesPerPixel
	if img != nil && cap(img.Pix) >= n {
		return &image.RGBA{Pix: img.Pix[:n], Stride: w * bytesPerPixel, Rect: image.Rect(0, 0, w, h)}
	}
	return image.NewRGBA(image.Rect(0, 0, w, h))
}
