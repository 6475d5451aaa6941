package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Chunk is one read from the response body. The last chunk of a stream
// has Done set; its Err is nil on clean end of stream.
type Chunk struct {
	Data []byte
	Err  error
	Done bool
}

// Stream reads a response body on its own goroutine.
type Stream struct {
	StatusCode int

	body        io.ReadCloser
	cancel      context.CancelFunc
	chunks      chan Chunk
	closed      chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
	bufSize     int
	idleTimeout time.Duration
	idled       atomic.Bool
	read        atomic.Int64
}

func newStream(body io.ReadCloser, cancel context.CancelFunc, bufSize int, idle time.Duration) *Stream {
	if bufSize <= 0 {
		bufSize = defaultReadBuffer
	}
	return &Stream{
		body:        body,
		cancel:      cancel,
		chunks:      make(chan Chunk, 16),
		closed:      make(chan struct{}),
		done:        make(chan struct{}),
		bufSize:     bufSize,
		idleTimeout: idle,
	}
}

// Chunks yields the body in read order. The channel is closed after the
// Done chunk, or without one if the stream was closed first.
func (s *Stream) Chunks() <-chan Chunk {
	return s.chunks
}

// BytesRead returns the number of body bytes read so far.
func (s *Stream) BytesRead() int64 {
	return s.read.Load()
}

// Close cancels the pending read, releases the body and waits for the
// reader goroutine to exit. No chunk is delivered after Close returns.
// Safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
	})
	<-s.done
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.chunks)
	defer s.body.Close()
	defer s.cancel()

	var timer *time.Timer
	if s.idleTimeout > 0 {
		timer = time.AfterFunc(s.idleTimeout, func() {
			s.idled.Store(true)
			s.cancel()
		})
		defer timer.Stop()
	}

	buf := make([]byte, s.bufSize)
	for {
		n, err := s.body.Read(buf)
		if n > 0 {
			// The idle window only covers time spent waiting on the server,
			// not time blocked on a slow consumer.
			if timer != nil {
				timer.Stop()
			}
			s.read.Add(int64(n))
			data := make([]byte, n)
			copy(data, buf[:n])
			if !s.send(Chunk{Data: data}) {
				return
			}
			if timer != nil {
				timer.Reset(s.idleTimeout)
			}
		}

		switch {
		case err == nil:
			// Zero-length reads are not an end of stream.
			continue
		case errors.Is(err, io.EOF):
			s.send(Chunk{Done: true})
			return
		}

		if s.isClosed() {
			return
		}
		if s.idled.Load() {
			err = ErrIdleTimeout
		} else if ctx.Err() != nil {
			err = ctx.Err()
		}
		s.send(Chunk{Done: true, Err: &Error{Op: "read", Err: err}})
		return
	}
}

func (s *Stream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// send delivers c unless the stream is closed first.
func (s *Stream) send(c Chunk) bool {
	if s.isClosed() {
		return false
	}
	select {
	case s.chunks <- c:
		return true
	case <-s.closed:
		return false
	}
}
