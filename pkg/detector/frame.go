// Package detector carries the per-frame output of an external eye
// landmark detector into the tracker. The detector itself runs in another
// process; frames arrive over a WebSocket or from a recording.
package detector

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// ErrClosed is returned by operations on a closed source.
var ErrClosed = errors.New("detector: source closed")

// Frame is one frame of detector output. It implements gaze.Detector.
type Frame struct {
	protocol.FrameData
}

var _ gaze.Detector = Frame{}

// NewFrame returns a located frame with both ratios set.
func NewFrame(seq int64, h, v, iris float64) Frame {
	return Frame{protocol.FrameData{Seq: seq, Located: true, H: &h, V: &v, Iris: iris}}
}

// Lost returns a frame in which the pupils were not located.
func Lost(seq int64) Frame {
	return Frame{protocol.FrameData{Seq: seq}}
}

// PupilsLocated implements gaze.Detector.
func (f Frame) PupilsLocated() bool { return f.Located }

// HorizontalRatio implements gaze.Detector.
func (f Frame) HorizontalRatio() (float64, bool) { return ratio(f.H) }

// VerticalRatio implements gaze.Detector.
func (f Frame) VerticalRatio() (float64, bool) { return ratio(f.V) }

// MeasureIrisDiameter implements gaze.Detector. The detector measures the
// iris on every frame; zero means no measurement.
func (f Frame) MeasureIrisDiameter() float64 { return f.Iris }

func ratio(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) {
		return 0, false
	}
	return *p, true
}

// Validate rejects ratios outside [0,1] and negative iris sizes.
func (f Frame) Validate() error {
	for name, p := range map[string]*float64{"hr": f.H, "vr": f.V} {
		if p != nil && (*p < 0 || *p > 1) {
			return fmt.Errorf("detector: frame %d: %s %v outside [0,1]", f.Seq, name, *p)
		}
	}
	if f.Iris < 0 {
		return fmt.Errorf("detector: frame %d: negative iris %v", f.Seq, f.Iris)
	}
	return nil
}

// Bytes returns the frame wrapped in a protocol message.
func (f Frame) Bytes() ([]byte, error) {
	msg, err := protocol.NewFrameMessage(f.FrameData)
	if err != nil {
		return nil, err
	}
	return msg.Bytes()
}

// ParseFrame decodes a frame from either a protocol message of type
// "frame" or a bare frame object.
func ParseFrame(data []byte) (Frame, error) {
	data = bytes.TrimSpace(data)
	var probe struct {
		Type protocol.MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Frame{}, fmt.Errorf("detector: parse frame: %w", err)
	}

	var f Frame
	if probe.Type == "" {
		if err := json.Unmarshal(data, &f.FrameData); err != nil {
			return Frame{}, fmt.Errorf("detector: parse frame: %w", err)
		}
	} else {
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			return Frame{}, err
		}
		fd, err := msg.GetFrameData()
		if err != nil {
			return Frame{}, err
		}
		f.FrameData = *fd
	}
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Source delivers frames in capture order. The channel is closed when the
// source ends or is closed.
type Source interface {
	Frames() <-chan Frame
	Close() error
}
