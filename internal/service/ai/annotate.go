package ai

import (
	"fmt"
	"image"
	"image/color"
	"watchtower/internal/frame"

	"gocv.io/x/gocv"
)

var (
	Red   = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	Green = color.RGBA{R: 0, G: 255, B: 0, A: 0}
)

// AnomalyBanner is drawn on frames that raised an anomaly alert.
const AnomalyBanner = "Anomaly Detected"

// Mark is a labeled box to draw on a frame.
type Mark struct {
	Box   image.Rectangle
	Label string
	Color color.RGBA
}

// MarkFor builds the mark for a detection.
func MarkFor(d Detection, c color.RGBA) Mark {
	return Mark{Box: d.Box, Label: fmt.Sprintf("%s %.2f", d.Label, d.Confidence), Color: c}
}

// Overlay is everything drawn on one frame.
type Overlay struct {
	Marks  []Mark
	Banner string
}

// Empty reports whether there is nothing to draw.
func (o Overlay) Empty() bool {
	return len(o.Marks) == 0 && o.Banner == ""
}

// Annotate draws o onto a copy of f in one pass and returns the copy.
func Annotate(f *frame.Frame, o Overlay) (*frame.Frame, error) {
	if o.Empty() {
		return f.Clone(), nil
	}

	mat, err := f.Mat()
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	for _, m := range o.Marks {
		if err := gocv.Rectangle(&mat, m.Box, m.Color, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}
		pt := image.Pt(m.Box.Min.X, max(m.Box.Min.Y-10, 10))
		if err := gocv.PutText(&mat, m.Label, pt, gocv.FontHersheySimplex, 0.5, m.Color, 2); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	if o.Banner != "" {
		if err := gocv.PutText(&mat, o.Banner, image.Pt(10, 30), gocv.FontHersheySimplex, 1, Red, 2); err != nil {
			return nil, fmt.Errorf("failed to draw banner: %w", err)
		}
	}

	annotated, err := frame.FromMat(mat)
	if err != nil {
		return nil, err
	}
	annotated.CapturedAt = f.CapturedAt
	return annotated, nil
}
