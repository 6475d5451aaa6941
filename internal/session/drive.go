package session

import (
	"context"

	"github.com/abelbrown/refcheck/internal/transport"
)

// Drive consumes stream into s until the run ends, one chunk at a time.
// onUpdate, if set, is called after every chunk that changed the view
// model and once more when the run ends.
//
// Drive returns as soon as an end or error event finishes the run,
// without waiting for the server to close the connection.
//
// Cancelling ctx cancels the run and returns ctx.Err(). A transport
// failure is returned after it has been recorded in s. The stream is
// always closed on return.
func Drive(ctx context.Context, s *Session, stream *transport.Stream, onUpdate func(*Session)) error {
	defer stream.Close()

	notify := func() {
		if onUpdate != nil {
			onUpdate(s)
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.Cancel()
			notify()
			return ctx.Err()

		case c, ok := <-stream.Chunks():
			if ctx.Err() != nil {
				// The read failed because ctx was cancelled.
				s.Cancel()
				notify()
				return ctx.Err()
			}
			if !ok {
				s.Close(nil)
				notify()
				return nil
			}
			if s.Feed(c.Data) {
				notify()
			}
			if s.Done() {
				// end or error arrived; the server may keep the connection open.
				notify()
				return nil
			}
			if c.Done {
				s.Close(c.Err)
				notify()
				return c.Err
			}
		}
	}
}
