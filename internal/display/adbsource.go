package display

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"minicap/internal/adb"
	"minicap/pkg/models"
)

const rotationRefresh = time.Second

// ADBSource polls an Android device over adb
type ADBSource struct {
	producer

	client   *adb.Client
	natural  models.Size
	interval time.Duration

	rotation    atomic.Int32
	lastRefresh time.Time
}

// NewADBSource connects to the device and reads its size and rotation
func NewADBSource(ctx context.Context, client *adb.Client, interval time.Duration) (*ADBSource, error) {
	if err := client.CheckADB(ctx); err != nil {
		return nil, err
	}
	if client.Serial == "" {
		devices, err := client.DeviceList(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list devices: %w", err)
		}
		if len(devices) > 1 {
			return nil, fmt.Errorf("%d devices attached (%s), select one by serial", len(devices), strings.Join(devices, ", "))
		}
	}
	if err := client.WaitDevice(ctx, 8*time.Second); err != nil {
		return nil, fmt.Errorf("device not available: %w", err)
	}

	natural, err := client.DisplaySize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read display size: %w", err)
	}
	rotation, err := client.Rotation(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read rotation: %w", err)
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	s := &ADBSource{
		producer:    producer{name: "adb"},
		client:      client,
		natural:     natural,
		interval:    interval,
		lastRefresh: time.Now(),
	}
	s.rotation.Store(int32(rotation))
	return s, nil
}

// CurrentSize returns the natural display size
func (s *ADBSource) CurrentSize() models.Size {
	return s.natural
}

// CurrentRotation returns the last rotation read from the device
func (s *ADBSource) CurrentRotation() models.Rotation {
	return models.Rotation(s.rotation.Load())
}

// Run polls the device until ctx is done
func (s *ADBSource) Run(ctx context.Context) error {
	return s.loop(ctx, s.interval, s.grab)
}

func (s *ADBSource) grab(ctx context.Context) (*image.RGBA, error) {
	if time.Since(s.lastRefresh) >= rotationRefresh {
		s.lastRefresh = time.Now()
		if r, err := s.client.Rotation(ctx); err != nil {
			log.WithError(err).Debug("Failed to refresh rotation")
		} else {
			s.rotation.Store(int32(r))
		}
	}
	return s.client.Screencap(ctx)
}
