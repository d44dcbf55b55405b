package vision

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/HansolSon1113/MakerProject/internal/latest"
)

// SyntheticCamera renders frames with a bright vertical band that sweeps
// left, center, right. It stands in for the camera in -dev runs.
type SyntheticCamera struct {
	width, height int
	dwell         time.Duration
	frames        latest.Cell[image.Image]
}

// NewSyntheticCamera returns a camera whose band stays in each zone for dwell.
func NewSyntheticCamera(width, height int, dwell time.Duration) *SyntheticCamera {
	return &SyntheticCamera{width: width, height: height, dwell: dwell}
}

// Start renders the first frame so the scorer has one immediately.
func (s *SyntheticCamera) Start(context.Context) error {
	s.frames.Store(s.Render(0))
	return nil
}

// Run produces frames at roughly 20 fps until ctx is done.
func (s *SyntheticCamera) Run(ctx context.Context) error {
	start := time.Now()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		zone := int(time.Since(start)/s.dwell) % 3
		s.frames.Store(s.Render(zone))
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Render draws a frame with the band in zone (0 left, 1 center, 2 right).
func (s *SyntheticCamera) Render(zone int) image.Image {
	img := image.NewGray(image.Rect(0, 0, s.width, s.height))
	bounds := ZoneBounds(img.Bounds())
	band := bounds[zone%3]
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			v := uint8(30)
			if (image.Point{X: x, Y: y}).In(band) {
				v = 230
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func (s *SyntheticCamera) Latest() (image.Image, error) {
	img, ok := s.frames.Load()
	if !ok {
		return nil, ErrNoFrame
	}
	return img, nil
}
