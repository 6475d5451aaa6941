package sse

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// textDecoder turns a byte stream into UTF-8 text incrementally.
// An incomplete rune at the tail of a chunk is held back until the next
// chunk completes it. Ill-formed bytes are replaced with U+FFFD.
type textDecoder struct {
	t       transform.Transformer
	pending []byte
}

func newTextDecoder() *textDecoder {
	return &textDecoder{t: unicode.UTF8.NewDecoder()}
}

// decode returns the text that can be produced from pending+chunk.
func (d *textDecoder) decode(chunk []byte) string {
	if len(chunk) == 0 {
		return ""
	}
	src := make([]byte, 0, len(d.pending)+len(chunk))
	src = append(src, d.pending...)
	src = append(src, chunk...)

	// Every ill-formed byte expands to the 3-byte replacement rune, so dst
	// can never be short.
	dst := make([]byte, 3*len(src)+utf8.UTFMax)
	nDst, nSrc, _ := d.t.Transform(dst, src, false)

	d.pending = append(d.pending[:0], src[nSrc:]...)
	return string(dst[:nDst])
}

// pendingLen is the number of bytes held back as an incomplete rune.
func (d *textDecoder) pendingLen() int {
	return len(d.pending)
}

func (d *textDecoder) reset() {
	d.pending = d.pending[:0]
	d.t.Reset()
}
