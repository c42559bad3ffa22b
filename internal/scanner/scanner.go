// Package scanner drives a camera stream, samples frames and hands the first
// decoded payload of each run to a handler.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/baharkarakas/insider-wallet/internal/metrics"
	"github.com/baharkarakas/insider-wallet/internal/notify"
)

type State string
const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting-camera"
	StateStreaming  State = "streaming"
	StateDecoded    State = "decoded"
	StateError      State = "error"
)

var ErrCameraUnavailable = errors.New("camera unavailable")

// CameraError wraps the reason a stream could not be acquired.
type CameraError struct{ Err error }

func (e *CameraError) Error() string { return ErrCameraUnavailable.Error() + ": " + e.Err.Error() }
func (e *CameraError) Unwrap() error { return e.Err }
func (e *CameraError) Is(target error) bool {
	return target == ErrCameraUnavailable || target == notify.ErrCapability
}

// Frame is one off-screen bitmap copied from the video stream.
type Frame struct {
	Width, Height int
	Data          []byte
}

type Camera interface {
	// Open requests the rear-facing camera.
	Open(ctx context.Context) (Stream, error)
}

type Stream interface {
	// Ready reports whether the frame buffer holds enough data to sample.
	Ready() bool
	Frame() (Frame, error)
	// Close stops every track of the stream.
	Close() error
}

type Decoder interface {
	Decode(Frame) (payload string, ok bool)
}

// Scanner is the capability set a page drives; decode backends sit behind it.
type Scanner interface {
	Start(ctx context.Context) error
	Stop()
	OnDecode(func(payload string))
}

type Options struct {
	// Interval between frame samples; 100ms matches 10 fps.
	Interval time.Duration
	// Dispatch runs the decode handler off the sampling loop. Defaults to a goroutine.
	Dispatch func(func()) bool
	Log      *slog.Logger
}

type Controller struct {
	cam      Camera
	dec      Decoder
	interval time.Duration
	dispatch func(func()) bool
	log      *slog.Logger

	openMu sync.Mutex // serializes camera acquisition

	mu      sync.Mutex
	state   State
	stream  Stream
	cancel  context.CancelFunc
	gen     uint64
	session string
	last    string
	handler func(string)
}

var _ Scanner = (*Controller)(nil)

func New(cam Camera, dec Decoder, opts Options) *Controller {
	c := &Controller{
		cam:      cam,
		dec:      dec,
		interval: opts.Interval,
		dispatch: opts.Dispatch,
		log:      opts.Log,
		state:    StateIdle,
	}
	if c.interval <= 0 {
		c.interval = 100 * time.Millisecond
	}
	if c.dispatch == nil {
		c.dispatch = func(f func()) bool { go f(); return true }
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

func (c *Controller) OnDecode(fn func(payload string)) {
	c.mu.Lock(); defer c.mu.Unlock()
	c.handler = fn
}

func (c *Controller) State() State {
	c.mu.Lock(); defer c.mu.Unlock()
	return c.state
}

// Session identifies the current scanning session for logs.
func (c *Controller) Session() string {
	c.mu.Lock(); defer c.mu.Unlock()
	return c.session
}

// Start opens a new scanning session. It is a no-op while a stream is being
// requested or is already streaming.
func (c *Controller) Start(ctx context.Context) error { return c.start(ctx, true) }

// Resume restarts sampling within the current session, so the payload that
// was just handled is still suppressed if the code stays in view.
func (c *Controller) Resume(ctx context.Context) error { return c.start(ctx, false) }

func (c *Controller) start(ctx context.Context, fresh bool) error {
	c.mu.Lock()
	if c.state == StateStreaming || c.state == StateRequesting {
		c.mu.Unlock()
		return nil
	}
	if fresh || c.session == "" {
		c.session = uuid.NewString()
		c.last = ""
	}
	c.state = StateRequesting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.openMu.Lock()
	defer c.openMu.Unlock()
	stream, err := c.cam.Open(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.state != StateRequesting {
		// stopped while the camera prompt was pending
		if stream != nil {
			c.closeStream(stream)
		}
		return nil
	}
	if err != nil {
		c.state = StateError
		metrics.Scans.WithLabelValues("camera_error").Inc()
		c.log.Warn("camera open failed", "session", c.session, "err", err)
		return &CameraError{Err: err}
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.stream, c.cancel = stream, cancel
	c.state = StateStreaming
	c.log.Debug("scanner streaming", "session", c.session)
	go c.loop(loopCtx, gen, stream)
	return nil
}

// Stop releases the camera unconditionally and returns to idle. Safe to call
// any number of times, from any state.
func (c *Controller) Stop() {
	c.mu.Lock(); defer c.mu.Unlock()
	c.gen++
	c.releaseLocked()
	c.state = StateIdle
}

func (c *Controller) releaseLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.stream != nil {
		c.closeStream(c.stream)
		c.stream = nil
	}
}

func (c *Controller) closeStream(s Stream) {
	if err := s.Close(); err != nil {
		c.log.Debug("camera close", "err", err)
	}
}

func (c *Controller) loop(ctx context.Context, gen uint64, stream Stream) {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			if c.gen == gen && c.state == StateStreaming {
				c.releaseLocked()
				c.state = StateIdle
			}
			c.mu.Unlock()
			return
		case <-t.C:
		}
		payload, handler, exit := c.sample(gen, stream)
		if !exit {
			continue
		}
		if handler != nil {
			if !c.dispatch(func() { handler(payload) }) {
				c.log.Warn("decoded payload dropped", "reason", "dispatcher stopped")
			}
		}
		return
	}
}

// sample runs one iteration under the lock so it never overlaps Stop or the
// next sample.
func (c *Controller) sample(gen uint64, stream Stream) (payload string, handler func(string), exit bool) {
	c.mu.Lock(); defer c.mu.Unlock()
	if c.gen != gen || c.state != StateStreaming {
		return "", nil, true
	}
	if !stream.Ready() {
		return "", nil, false
	}
	f, err := stream.Frame()
	if err != nil {
		c.log.Debug("frame grab", "err", err)
		return "", nil, false
	}
	p, ok := c.dec.Decode(f)
	if !ok {
		return "", nil, false
	}
	if p == c.last {
		metrics.Scans.WithLabelValues("duplicate").Inc()
		return "", nil, false
	}
	c.last = p
	c.releaseLocked()
	c.state = StateDecoded
	metrics.Scans.WithLabelValues("decoded").Inc()
	c.log.Debug("payload decoded", "session", c.session)
	return p, c.handler, true
}
