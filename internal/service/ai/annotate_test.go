package ai

import (
	"image"
	"testing"
	"watchtower/internal/frame"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnotateEmptyOverlayCopies(t *testing.T) {
	src := frame.New(50, 40)

	out, err := Annotate(src, Overlay{})
	require.NoError(t, err)
	assert.Equal(t, src.Data, out.Data)
	assert.NotSame(t, src, out)
}

func TestAnnotateDrawsOnCopy(t *testing.T) {
	src := frame.New(120, 80)
	det := Detection{Label: "knife", Confidence: 0.91, Box: image.Rect(20, 20, 60, 60)}

	out, err := Annotate(src, Overlay{Marks: []Mark{MarkFor(det, Red)}})
	require.NoError(t, err)

	assert.Equal(t, src.Width, out.Width)
	assert.Equal(t, src.Height, out.Height)
	assert.Equal(t, src.CapturedAt, out.CapturedAt)

	b, g, r := out.Pixel(20, 40)
	assert.Equal(t, [3]uint8{0, 0, 255}, [3]uint8{b, g, r}, "box edge is red in BGR")

	b, g, r = src.Pixel(20, 40)
	assert.Equal(t, [3]uint8{0, 0, 0}, [3]uint8{b, g, r}, "source is untouched")
}

func TestAnnotateBanner(t *testing.T) {
	src := frame.New(300, 60)

	out, err := Annotate(src, Overlay{Banner: AnomalyBanner})
	require.NoError(t, err)
	assert.NotEqual(t, src.Data, out.Data)
}

func TestMarkFor(t *testing.T) {
	m := MarkFor(Detection{Label: "person", Confidence: 0.734, Box: image.Rect(1, 2, 3, 4)}, Green)
	assert.Equal(t, "person 0.73", m.Label)
	assert.Equal(t, image.Rect(1, 2, 3, 4), m.Box)
	assert.Equal(t, Green, m.Color)
}
