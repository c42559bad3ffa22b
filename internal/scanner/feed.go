package scanner

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrBusy = errors.New("camera already in use")

// Feed is a camera whose frames are pushed by the host: a keyboard-wedge
// barcode reader, a terminal, or a test. Each pushed line is one frame.
type Feed struct {
	mu      sync.Mutex
	stream  *feedStream
	denyErr error
	opens   int
}

func NewFeed() *Feed { return &Feed{} }

// Deny makes subsequent Open calls fail with err; nil re-enables the camera.
func (f *Feed) Deny(err error) {
	f.mu.Lock(); defer f.mu.Unlock()
	f.denyErr = err
}

func (f *Feed) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock(); defer f.mu.Unlock()
	if f.denyErr != nil {
		return nil, f.denyErr
	}
	if f.stream != nil {
		return nil, ErrBusy
	}
	f.opens++
	f.stream = &feedStream{feed: f}
	return f.stream, nil
}

// Push queues text as the next frame; false when no stream is open.
func (f *Feed) Push(text string) bool {
	f.mu.Lock(); defer f.mu.Unlock()
	if f.stream == nil {
		return false
	}
	f.stream.pending = append(f.stream.pending, Frame{Width: len(text), Height: 1, Data: []byte(text)})
	return true
}

// IsOpen reports whether a stream is currently held.
func (f *Feed) IsOpen() bool {
	f.mu.Lock(); defer f.mu.Unlock()
	return f.stream != nil
}

// Opens counts successful acquisitions.
func (f *Feed) Opens() int {
	f.mu.Lock(); defer f.mu.Unlock()
	return f.opens
}

type feedStream struct {
	feed    *Feed
	pending []Frame
}

func (s *feedStream) Ready() bool {
	s.feed.mu.Lock(); defer s.feed.mu.Unlock()
	return len(s.pending) > 0
}

func (s *feedStream) Frame() (Frame, error) {
	s.feed.mu.Lock(); defer s.feed.mu.Unlock()
	if len(s.pending) == 0 {
		return Frame{}, errors.New("no frame")
	}
	f := s.pending[0]
	s.pending = s.pending[1:]
	return f, nil
}

func (s *feedStream) Close() error {
	s.feed.mu.Lock(); defer s.feed.mu.Unlock()
	if s.feed.stream == s {
		s.feed.stream = nil
	}
	s.pending = nil
	return nil
}

// TextDecoder treats a frame's bytes as an already-decoded text payload.
type TextDecoder struct{}

func (TextDecoder) Decode(f Frame) (string, bool) {
	s := strings.TrimSpace(string(f.Data))
	return s, s != ""
}
