package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
	"watchtower/internal/frame"

	"gocv.io/x/gocv"
)

// FrameReader yields one frame per Read. Read failures wrap ErrReadFailure.
type FrameReader interface {
	Read(ctx context.Context) (*frame.Frame, error)
	Close() error
}

// Opener opens a FrameReader for a locator.
type Opener func(locator string) (FrameReader, error)

const udpScheme = "udp://"

// OpenReader picks a reader for the locator: udp://host:port listens for
// JPEG datagrams, anything else (device index, file, stream URL) goes to
// OpenCV.
func OpenReader(locator string) (FrameReader, error) {
	if addr, ok := strings.CutPrefix(locator, udpScheme); ok {
		return ListenUDP(addr, time.Second)
	}
	return OpenCapture(locator)
}

type captureReader struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// OpenCapture opens a device index, video file or network stream.
func OpenCapture(locator string) (FrameReader, error) {
	vc, err := gocv.OpenVideoCapture(locator)
	if err != nil {
		return nil, err
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("capture %q did not open", locator)
	}
	return &captureReader{vc: vc, mat: gocv.NewMat()}, nil
}

func (r *captureReader) Read(context.Context) (*frame.Frame, error) {
	if ok := r.vc.Read(&r.mat); !ok || r.mat.Empty() {
		return nil, fmt.Errorf("%w: capture returned no frame", ErrReadFailure)
	}
	f, err := frame.FromMat(r.mat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadFailure, err)
	}
	return f, nil
}

func (r *captureReader) Close() error {
	return errors.Join(r.mat.Close(), r.vc.Close())
}

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

// maxFrameBytes caps a reassembled frame so a lost footer cannot grow the
// buffer without bound.
const maxFrameBytes = 8 << 20

// UDPReader reassembles JPEG frames sent as a series of datagrams. A packet
// starting with the SOI marker starts a new frame, one ending with the EOI
// marker completes it.
type UDPReader struct {
	conn        *net.UDPConn
	packet      []byte
	frame       bytes.Buffer
	readTimeout time.Duration
}

// ListenUDP binds addr (host:port, host optional). readTimeout bounds how
// long one Read waits for a complete frame.
func ListenUDP(addr string, readTimeout time.Duration) (*UDPReader, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP %s: %w", addr, err)
	}
	return &UDPReader{
		conn:        conn,
		packet:      make([]byte, 65535),
		readTimeout: readTimeout,
	}, nil
}

// LocalAddr returns the bound address.
func (r *UDPReader) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

func (r *UDPReader) Read(ctx context.Context) (*frame.Frame, error) {
	deadline := time.Now().Add(r.readTimeout)
	if err := r.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadFailure, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, _, err := r.conn.ReadFromUDP(r.packet)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReadFailure, err)
		}
		data := r.packet[:n]

		if bytes.HasPrefix(data, jpegHeader) {
			r.frame.Reset()
		}
		r.frame.Write(data)
		if r.frame.Len() > maxFrameBytes {
			r.frame.Reset()
			return nil, fmt.Errorf("%w: frame exceeds %d bytes", ErrReadFailure, maxFrameBytes)
		}

		if bytes.HasSuffix(data, jpegFooter) {
			f, err := frame.DecodeJPEG(r.frame.Bytes())
			r.frame.Reset()
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrReadFailure, err)
			}
			return f, nil
		}
	}
}

func (r *UDPReader) Close() error {
	return r.conn.Close()
}
