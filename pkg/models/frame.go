package models

import (
	"fmt"
	"image"
	"time"
)

// Rotation is the display orientation in quarter turns (0, 90, 180, 270 degrees)
type Rotation int

const (
	Rotation0   Rotation = 0
	Rotation90  Rotation = 1
	Rotation180 Rotation = 2
	Rotation270 Rotation = 3
)

// Valid reports whether r is one of the four quarter turns
func (r Rotation) Valid() bool {
	return r >= Rotation0 && r <= Rotation270
}

// Odd reports whether width and height are swapped relative to the natural orientation
func (r Rotation) Odd() bool {
	return r%2 != 0
}

// Degrees returns the rotation in degrees
func (r Rotation) Degrees() int {
	return int(r) * 90
}

// Size is a raster size in pixels
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// ForRotation returns the size as seen with rotation r applied.
// Odd rotations swap width and height.
func (s Size) ForRotation(r Rotation) Size {
	if r.Odd() {
		return Size{Width: s.Height, Height: s.Width}
	}
	return s
}

// Landscape reports whether the size is wider than it is tall
func (s Size) Landscape() bool {
	return s.Width > s.Height
}

// Empty reports whether either dimension is not positive
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Rect returns the rectangle (0,0)-(Width,Height)
func (s Size) Rect() image.Rectangle {
	return image.Rect(0, 0, s.Width, s.Height)
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// PixelFormat identifies the memory layout of a raw frame
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatRGBA8888
)

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatRGBA8888:
		return "RGBA_8888"
	default:
		return "unknown"
	}
}

// RawFrame is a pixel buffer borrowed from a capture target for the
// duration of one frame-available callback. It must not be retained after
// Release is called.
type RawFrame struct {
	Pix         []byte      // Pixel data, RowStride bytes per row
	Width       int         // Visible width in pixels
	Height      int         // Visible height in pixels
	PixelStride int         // Bytes per pixel
	RowStride   int         // Bytes per row, including padding
	Format      PixelFormat // Always RGBA_8888 for now
	Timestamp   time.Time   // When the display produced the frame

	release func()
}

// NewRawFrame builds a RawFrame whose Release calls release (may be nil)
func NewRawFrame(pix []byte, width, height, pixelStride, rowStride int, format PixelFormat, release func()) *RawFrame {
	return &RawFrame{
		Pix:         pix,
		Width:       width,
		Height:      height,
		PixelStride: pixelStride,
		RowStride:   rowStride,
		Format:      format,
		Timestamp:   time.Now(),
		release:     release,
	}
}

// RowPadding returns the number of padding bytes at the end of each row
func (f *RawFrame) RowPadding() int {
	return f.RowStride - f.PixelStride*f.Width
}

// Size returns the visible size of the frame
func (f *RawFrame) Size() Size {
	return Size{Width: f.Width, Height: f.Height}
}

// Release hands the buffer back to its owner. Safe to call more than once.
func (f *RawFrame) Release() {
	if f.release != nil {
		f.release()
		f.release = nil
	}
	f.Pix = nil
}

// EncodedFrame is a compressed still image. Data must not be modified once
// the frame has been stored in a cache.
type EncodedFrame struct {
	Data       []byte    // JPEG bytes
	Width      int       // Decoded width
	Height     int       // Decoded height
	Seq        uint64    // Assigned by the cache on store
	CapturedAt time.Time // Timestamp of the raw frame it was encoded from
}

// Size returns the decoded dimensions
func (f EncodedFrame) Size() Size {
	return Size{Width: f.Width, Height: f.Height}
}

// Len returns the payload length in bytes
func (f EncodedFrame) Len() int {
	return len(f.Data)
}
