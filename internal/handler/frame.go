package handler

import (
	"fmt"
	"io"
	"net/http"
	"time"
	"watchtower/internal/dto"
	"watchtower/internal/frame"

	"github.com/gin-gonic/gin"
)

const mjpegBoundary = "frame"

// FrameHandler serves the newest annotated frame as a JPEG.
func FrameHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := s.Annotated.Get()
		if !ok {
			c.JSON(http.StatusNotFound, dto.MessageResponse{Message: "No frame available"})
			return
		}

		jpeg, err := f.EncodeJPEG()
		if err != nil {
			s.Logger.Error("Failed to encode frame: %v", err)
			c.JSON(http.StatusInternalServerError, dto.MessageResponse{Message: "Failed to encode frame"})
			return
		}
		c.Header("Cache-Control", "no-cache")
		c.Data(http.StatusOK, "image/jpeg", jpeg)
	}
}

// MJPEGHandler streams annotated frames as multipart/x-mixed-replace until
// the client goes away. A frame is sent only when the buffer has a new one.
func MJPEGHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("Pragma", "no-cache")
		c.Header("X-Accel-Buffering", "no")

		ticker := time.NewTicker(s.Config.StreamInterval)
		defer ticker.Stop()

		var lastSeq uint64
		c.Stream(func(w io.Writer) bool {
			select {
			case <-c.Request.Context().Done():
				return false
			case <-ticker.C:
			}

			f, seq, ok := s.Annotated.Latest()
			if !ok || seq == lastSeq {
				return true
			}
			lastSeq = seq

			if err := writePart(w, f); err != nil {
				s.Logger.Debug("MJPEG client dropped: %v", err)
				return false
			}
			return true
		})
	}
}

func writePart(w io.Writer, f *frame.Frame) error {
	jpeg, err := f.EncodeJPEG()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\r\n")
	return err
}
