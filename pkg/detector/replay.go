package detector

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ReplaySource plays back a recorded session: one frame per line, either
// protocol messages or bare frame objects. Blank lines are skipped.
type ReplaySource struct {
	frames chan Frame
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// Replay starts reading frames from r. A positive interval paces playback
// at one frame per interval; zero plays back as fast as the consumer reads.
// A malformed line ends the replay; Err reports it.
func Replay(r io.Reader, interval time.Duration, logger *slog.Logger) *ReplaySource {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ReplaySource{
		frames: make(chan Frame),
		done:   make(chan struct{}),
	}
	go s.run(r, interval, logger.With("component", "replay"))
	return s
}

func (s *ReplaySource) run(r io.Reader, interval time.Duration, logger *slog.Logger) {
	defer close(s.frames)

	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line, n := 0, 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		f, err := ParseFrame(sc.Bytes())
		if err != nil {
			s.setErr(fmt.Errorf("detector: replay line %d: %w", line, err))
			return
		}
		if tick != nil {
			select {
			case <-tick:
			case <-s.done:
				return
			}
		}
		select {
		case s.frames <- f:
			n++
		case <-s.done:
			return
		}
	}
	if err := sc.Err(); err != nil {
		s.setErr(fmt.Errorf("detector: replay: %w", err))
		return
	}
	logger.Info("replay finished", "frames", n)
}

func (s *ReplaySource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Err returns the error that ended the replay, if any. It is only
// meaningful once Frames is closed.
func (s *ReplaySource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Frames implements Source.
func (s *ReplaySource) Frames() <-chan Frame {
	return s.frames
}

// Close stops playback.
func (s *ReplaySource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// Recorder writes frames in the format Replay reads.
type Recorder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewRecorder returns a recorder writing one bare frame per line to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: json.NewEncoder(w)}
}

// Record appends f.
func (r *Recorder) Record(f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc.Encode(f.FrameData)
}
