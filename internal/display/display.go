// Package display is the boundary to whatever produces raw screen pixels.
//
// A Source owns the display binding. The capture pipeline asks it for a
// CaptureTarget of the wanted size, binds the target to the display and
// registers a listener that the source calls, one frame at a time, whenever
// the target has a new frame.
package display

import (
	"context"
	"errors"
	"image"

	"minicap/pkg/models"
)

//go:generate mockgen -destination=mock_display/mock_display.go -package=mock_display minicap/internal/display Source,CaptureTarget

var (
	// ErrForeignTarget is returned when binding a target created by another source
	ErrForeignTarget = errors.New("capture target was not created by this source")

	// ErrNoDisplay is returned when no display can be found
	ErrNoDisplay = errors.New("no display available")
)

// Source supplies raw frames and orientation/size queries for one display
type Source interface {
	// CurrentSize returns the display size in its natural orientation
	CurrentSize() models.Size

	// CurrentRotation returns the live display rotation
	CurrentRotation() models.Rotation

	// CreateCaptureTarget allocates a target that receives frames of size
	CreateCaptureTarget(size models.Size, format models.PixelFormat) (CaptureTarget, error)

	// BindCaptureToDisplay projects the src rectangle of the display onto
	// the dst rectangle of target on the given layer stack
	BindCaptureToDisplay(target CaptureTarget, src, dst image.Rectangle, layer int) error

	// SetFrameListener registers the function called once per available
	// frame. Calls are never concurrent with each other.
	SetFrameListener(fn func())

	// Run produces frames until ctx is done
	Run(ctx context.Context) error
}

// CaptureTarget receives frames from a Source
type CaptureTarget interface {
	// Size returns the size frames are delivered at
	Size() models.Size

	// AcquireLatest returns the newest pending frame, if any. The frame
	// must be released before the next call.
	AcquireLatest() (*models.RawFrame, bool)

	// Close releases the target; pending frames are discarded
	Close() error
}
