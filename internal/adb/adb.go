package adb

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"minicap/pkg/models"
)

// Raw screencap pixel formats (android.graphics.PixelFormat)
const (
	formatRGBA8888 = 1
	formatRGBX8888 = 2
	formatBGRA8888 = 5
)

var (
	// ErrNoADB is returned when the adb binary cannot be run
	ErrNoADB = errors.New("adb not found (install it and add it to PATH)")

	sizeRe        = regexp.MustCompile(`(Physical|Override) size:\s*(\d+)x(\d+)`)
	orientationRe = regexp.MustCompile(`SurfaceOrientation:\s*(\d)`)
)

// Client runs adb commands against one device
type Client struct {
	Path   string // adb binary, "adb" if empty
	Serial string // device serial, any single device if empty
}

func (c *Client) command(ctx context.Context, args ...string) *exec.Cmd {
	path := c.Path
	if path == "" {
		path = "adb"
	}
	if c.Serial != "" {
		args = append([]string{"-s", c.Serial}, args...)
	}
	return exec.CommandContext(ctx, path, args...)
}

func (c *Client) output(ctx context.Context, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := c.command(ctx, args...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, msg)
		}
		return nil, fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

// CheckADB verifies that adb can be executed
func (c *Client) CheckADB(ctx context.Context) error {
	if err := c.command(ctx, "version").Run(); err != nil {
		return ErrNoADB
	}
	return nil
}

// WaitDevice waits up to timeout for the device to come online
func (c *Client) WaitDevice(ctx context.Context, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.command(tctx, "wait-for-device").Run()
}

// DeviceList returns the serials of online devices
func (c *Client) DeviceList(ctx context.Context) ([]string, error) {
	out, err := (&Client{Path: c.Path}).output(ctx, "devices")
	if err != nil {
		return nil, err
	}
	return ParseDevices(out), nil
}

// Screencap grabs the current screen as RGBA, in the current orientation
func (c *Client) Screencap(ctx context.Context) (*image.RGBA, error) {
	out, err := c.output(ctx, "exec-out", "screencap")
	if err != nil {
		return nil, err
	}
	return ParseScreencap(out)
}

// DisplaySize returns the display size in its natural orientation
func (c *Client) DisplaySize(ctx context.Context) (models.Size, error) {
	out, err := c.output(ctx, "shell", "wm", "size")
	if err != nil {
		return models.Size{}, err
	}
	return ParseSize(out)
}

// Rotation returns the current display rotation
func (c *Client) Rotation(ctx context.Context) (models.Rotation, error) {
	out, err := c.output(ctx, "shell", "dumpsys", "input")
	if err != nil {
		return 0, err
	}
	return ParseRotation(out)
}

// ParseDevices extracts online serials from `adb devices` output
func ParseDevices(out []byte) []string {
	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasSuffix(line, "\tdevice") {
			ids = append(ids, strings.Split(line, "\t")[0])
		}
	}
	return ids
}

// ParseScreencap decodes raw `screencap` output: a little-endian header of
// width, height, format (and a color space on newer devices) followed by
// width*height*4 pixel bytes.
func ParseScreencap(data []byte) (*image.RGBA, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("screencap output too short: %d bytes", len(data))
	}

	w := int(binary.LittleEndian.Uint32(data[0:4]))
	h := int(binary.LittleEndian.Uint32(data[4:8]))
	format := binary.LittleEndian.Uint32(data[8:12])
	if w <= 0 || h <= 0 || w > 1<<15 || h > 1<<15 {
		return nil, fmt.Errorf("screencap reports invalid size %dx%d", w, h)
	}

	pixels := w * h * 4
	var header int
	switch len(data) - pixels {
	case 12:
		header = 12
	case 16:
		header = 16
	default:
		return nil, fmt.Errorf("screencap output is %d bytes, expected header + %d for %dx%d", len(data), pixels, w, h)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, data[header:])

	switch format {
	case formatRGBA8888:
	case formatRGBX8888:
		for i := 3; i < len(img.Pix); i += 4 {
			img.Pix[i] = 0xff
		}
	case formatBGRA8888:
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
		}
	default:
		return nil, fmt.Errorf("unsupported screencap pixel format %d", format)
	}
	return img, nil
}

// ParseSize extracts the display size from `wm size` output. An override
// size wins over the physical one.
func ParseSize(out []byte) (models.Size, error) {
	var size models.Size
	for _, m := range sizeRe.FindAllSubmatch(out, -1) {
		w, _ := strconv.Atoi(string(m[2]))
		h, _ := strconv.Atoi(string(m[3]))
		if size.Empty() || string(m[1]) == "Override" {
			size = models.Size{Width: w, Height: h}
		}
	}
	if size.Empty() {
		return models.Size{}, fmt.Errorf("no display size in %q", strings.TrimSpace(string(out)))
	}
	return size, nil
}

// ParseRotation extracts SurfaceOrientation from `dumpsys input` output
func ParseRotation(out []byte) (models.Rotation, error) {
	m := orientationRe.FindSubmatch(out)
	if m == nil {
		return 0, errors.New("no SurfaceOrientation in dumpsys input output")
	}
	r := models.Rotation(m[1][0] - '0')
	if !r.Valid() {
		return 0, fmt.Errorf("invalid SurfaceOrientation %d", r)
	}
	return r, nil
}
