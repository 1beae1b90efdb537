package frame

import (
	"errors"
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"
)

// Channels is the number of interleaved bytes per pixel (BGR).
const Channels = 3

// ErrEmptyFrame is returned when a frame or image has no pixels.
var ErrEmptyFrame = errors.New("frame is empty")

// Frame is a BGR8 pixel buffer. Frames stored in a Buffer are treated as
// immutable; callers that want to draw on a frame work on a Clone.
type Frame struct {
	Width      int
	Height     int
	Data       []byte
	CapturedAt time.Time
}

// New allocates a black frame of the given size.
func New(width, height int) *Frame {
	return &Frame{
		Width:      width,
		Height:     height,
		Data:       make([]byte, width*height*Channels),
		CapturedAt: time.Now(),
	}
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &Frame{
		Width:      f.Width,
		Height:     f.Height,
		Data:       data,
		CapturedAt: f.CapturedAt,
	}
}

// Empty reports whether the frame carries no pixels.
func (f *Frame) Empty() bool {
	return f == nil || f.Width <= 0 || f.Height <= 0 || len(f.Data) < f.Width*f.Height*Channels
}

// Bounds returns the pixel rectangle of the frame.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// SetPixel writes a BGR value at (x, y). Out of range coordinates are ignored.
func (f *Frame) SetPixel(x, y int, b, g, r uint8) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	i := (y*f.Width + x) * Channels
	f.Data[i] = b
	f.Data[i+1] = g
	f.Data[i+2] = r
}

// Pixel returns the BGR value at (x, y).
func (f *Frame) Pixel(x, y int) (b, g, r uint8) {
	i := (y*f.Width + x) * Channels
	return f.Data[i], f.Data[i+1], f.Data[i+2]
}

// Fill paints rect (clipped to the frame) with a single BGR value.
func (f *Frame) Fill(rect image.Rectangle, b, g, r uint8) {
	rect = rect.Intersect(f.Bounds())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			f.SetPixel(x, y, b, g, r)
		}
	}
}

// Mat copies the frame into a new BGR gocv.Mat owned by the caller. On error
// the Mat is the zero value and must not be used or closed.
func (f *Frame) Mat() (gocv.Mat, error) {
	if f.Empty() {
		return gocv.Mat{}, ErrEmptyFrame
	}
	// NewMatFromBytes may alias Go memory; clone so the Mat owns its pixels.
	view, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data[:f.Width*f.Height*Channels])
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to wrap frame: %w", err)
	}
	defer view.Close()
	return view.Clone(), nil
}

// GrayMat returns the single channel grayscale version of the frame.
func (f *Frame) GrayMat() (gocv.Mat, error) {
	color, err := f.Mat()
	if err != nil {
		return color, err
	}
	defer color.Close()

	gray := gocv.NewMat()
	if err := gocv.CvtColor(color, &gray, gocv.ColorBGRToGray); err != nil {
		gray.Close()
		return gocv.Mat{}, fmt.Errorf("failed to convert image to grayscale: %w", err)
	}
	return gray, nil
}

// FromMat copies a gocv.Mat into a new Frame. Grayscale and BGRA inputs are
// converted to BGR.
func FromMat(mat gocv.Mat) (*Frame, error) {
	if mat.Empty() {
		return nil, ErrEmptyFrame
	}

	src := mat
	switch mat.Channels() {
	case Channels:
	case 1, 4:
		code := gocv.ColorGrayToBGR
		if mat.Channels() == 4 {
			code = gocv.ColorBGRAToBGR
		}
		converted := gocv.NewMat()
		defer converted.Close()
		if err := gocv.CvtColor(mat, &converted, code); err != nil {
			return nil, fmt.Errorf("failed to convert image to BGR: %w", err)
		}
		src = converted
	default:
		return nil, fmt.Errorf("unsupported channel count: %d", mat.Channels())
	}

	return &Frame{
		Width:      src.Cols(),
		Height:     src.Rows(),
		Data:       src.ToBytes(),
		CapturedAt: time.Now(),
	}, nil
}

// EncodeJPEG encodes the frame as a JPEG image.
func (f *Frame) EncodeJPEG() ([]byte, error) {
	mat, err := f.Mat()
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	encoded := make([]byte, len(buf.GetBytes()))
	copy(encoded, buf.GetBytes())
	return encoded, nil
}

// DecodeJPEG decodes a JPEG (or any format OpenCV understands) into a Frame.
func DecodeJPEG(data []byte) (*Frame, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty: %w", ErrEmptyFrame)
	}
	return FromMat(mat)
}
