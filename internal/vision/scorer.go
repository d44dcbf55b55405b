package vision

import (
	"context"
	"image"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/HansolSon1113/MakerProject/internal/monitoring"
	"github.com/HansolSon1113/MakerProject/internal/nav"
)

// Frame geometry produced by the camera command.
const (
	FrameWidth  = 640
	FrameHeight = 240
)

// DefaultThreshold is the minimum confidence for a direction.
const DefaultThreshold = 0.4

// Result is one scoring pass.
type Result struct {
	Scores nav.ZoneScores
	Best   nav.Direction
	// Frame is the scored frame, or a blank frame when none was available.
	Frame image.Image
	// HasFrame is false when the source had no frame yet.
	HasFrame bool
}

// Scorer turns frames into zone scores and a best direction.
type Scorer struct {
	classifier Classifier
	threshold  float64
	timeout    time.Duration
	blank      image.Image
}

// NewScorer returns a scorer. Zones whose classification takes longer than
// timeout score 0.
func NewScorer(c Classifier, threshold float64, timeout time.Duration) *Scorer {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Scorer{
		classifier: c,
		threshold:  threshold,
		timeout:    timeout,
		blank:      image.NewRGBA(image.Rect(0, 0, FrameWidth, FrameHeight)),
	}
}

// Threshold returns the confidence threshold.
func (s *Scorer) Threshold() float64 { return s.threshold }

// ZoneBounds splits r into left, center and right zones of width
// r.Dx()/3. The right zone absorbs the remainder.
func ZoneBounds(r image.Rectangle) [3]image.Rectangle {
	w := r.Dx() / 3
	return [3]image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y),
		image.Rect(r.Min.X+w, r.Min.Y, r.Min.X+2*w, r.Max.Y),
		image.Rect(r.Min.X+2*w, r.Min.Y, r.Max.X, r.Max.Y),
	}
}

// BestDirection picks the highest zone, leftmost on ties, and returns None
// unless that score is strictly above threshold.
func BestDirection(scores nav.ZoneScores, threshold float64) nav.Direction {
	s := scores.Slice()
	i := floats.MaxIdx(s[:])
	if s[i] > threshold {
		return nav.Zones[i]
	}
	return nav.None
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// crop returns the zone r of img, copying only when img cannot share pixels.
func crop(img image.Image, r image.Rectangle) image.Image {
	if si, ok := img.(subImager); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.Set(x-r.Min.X, y-r.Min.Y, img.At(x, y))
		}
	}
	return dst
}

// Score classifies the three zones of frame. A zone whose classification
// fails scores 0.
func (s *Scorer) Score(ctx context.Context, frame image.Image) (nav.ZoneScores, nav.Direction) {
	var scores nav.ZoneScores
	for i, r := range ZoneBounds(frame.Bounds()) {
		if r.Empty() {
			continue
		}
		zctx, cancel := context.WithTimeout(ctx, s.timeout)
		v, err := s.classifier.Classify(zctx, crop(frame, r))
		cancel()
		if err != nil {
			monitoring.Debugf("vision: %v zone: %v", nav.Zones[i], err)
			continue
		}
		if math.IsNaN(v) {
			v = 0
		}
		scores.Set(nav.Zones[i], math.Max(0, math.Min(1, v)))
	}
	return scores, BestDirection(scores, s.threshold)
}

// ScoreLatest scores the newest frame from src. Without a frame the result
// is zero scores, None and a blank frame.
func (s *Scorer) ScoreLatest(ctx context.Context, src FrameSource) Result {
	frame, err := src.Latest()
	if err != nil || frame == nil {
		return Result{Best: nav.None, Frame: s.blank}
	}
	scores, best := s.Score(ctx, frame)
	return Result{Scores: scores, Best: best, Frame: frame, HasFrame: true}
}
