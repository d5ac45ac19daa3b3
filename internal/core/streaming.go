package core

// streaming.go cleans CSV input on the fly without buffering the whole file:
// a leading UTF-8 BOM is dropped and invalid UTF-8 bytes become '?'.
// Spreadsheet exports from Windows tools routinely carry both.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CleanCSVReader wraps r with BOM stripping and UTF-8 sanitizing.
func CleanCSVReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return &utf8Sanitizer{src: br}
}

// utf8Sanitizer decodes runes from src and replaces every invalid byte with
// a single '?'. A rune that does not fit in the caller's buffer is held in
// pending for the next Read.
type utf8Sanitizer struct {
	src     *bufio.Reader
	pending []byte
	err     error
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	n := copy(p, s.pending)
	s.pending = s.pending[n:]

	var buf [utf8.UTFMax]byte
	for n < len(p) && s.err == nil {
		r, size, err := s.src.ReadRune()
		if err != nil {
			s.err = err
			break
		}
		enc := buf[:0]
		if r == utf8.RuneError && size == 1 {
			enc = append(enc, '?')
		} else {
			enc = utf8.AppendRune(enc, r)
		}
		c := copy(p[n:], enc)
		n += c
		if c < len(enc) {
			s.pending = append(s.pending[:0], enc[c:]...)
		}
	}
	if n > 0 || len(p) == 0 {
		return n, nil
	}
	return 0, s.err
}
