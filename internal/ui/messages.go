// Package ui provides the Bubble Tea TUI for refcheck.
package ui

import "github.com/abelbrown/refcheck/internal/transport"

// Every message that belongs to a run carries its RunID. Update drops
// messages whose RunID is not the active run, so a late chunk from an
// abandoned transfer never reaches the current view model.

// UploadOpened is sent when the upload request returns.
type UploadOpened struct {
	RunID  string
	Stream *transport.Stream // nil when Err is set
	Err    error
}

// ChunkReceived is sent for every chunk read from the response body.
type ChunkReceived struct {
	RunID string
	Chunk transport.Chunk
}

// StreamClosed is sent when the chunk channel closes without a Done chunk.
type StreamClosed struct {
	RunID string
}

// RunSaved is sent when a finished run has been written to history.
type RunSaved struct {
	RunID string
	Err   error
}
