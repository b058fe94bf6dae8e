package sheet

// reader.go cleans up csv byte streams before encoding/csv sees them.
//
// Sheets exported from office tools on Windows often start with a UTF-8 BOM
// and can contain bytes from legacy code pages. The readers below fix both
// on the fly:
//
//   - bomSkipper drops a leading UTF-8 BOM (0xEF 0xBB 0xBF)
//   - utf8Sanitizer replaces invalid UTF-8 bytes with '?'
//   - sizeLimiter fails with ErrFileTooLarge past a byte limit
//
// Use wrapCSV to apply them in the correct order.

import (
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// wrapCSV strips the BOM, sanitizes UTF-8 and enforces maxSize (0 = no limit).
func wrapCSV(r io.Reader, maxSize int64) io.Reader {
	if maxSize > 0 {
		r = &sizeLimiter{r: r, remaining: maxSize}
	}
	return newUTF8Sanitizer(&bomSkipper{r: r})
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?'. A multi-byte rune
// split across two reads is held back until the next read completes it.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := copy(p, s.pending)
	if offset < len(s.pending) {
		s.pending = append(s.pending[:0], s.pending[offset:]...)
		return offset, nil
	}
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}
	if isASCII(p[:n]) {
		return n, err
	}
	return s.sanitize(p[:n], err == io.EOF), err
}

// sanitize rewrites data in place and returns the number of bytes to hand out.
// '?' is used instead of U+FFFD so the data never grows.
func (s *utf8Sanitizer) sanitize(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		if !atEOF && incompleteRune(data[read:]) {
			s.pending = append(s.pending, data[read:]...)
			return write
		}

		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// incompleteRune reports whether data is the valid start of a rune that
// needs more bytes than data holds.
func incompleteRune(data []byte) bool {
	want := runeLen(data[0])
	if want <= 1 || want <= len(data) {
		return false
	}
	for _, b := range data[1:] {
		if b&0xC0 != 0x80 {
			return false
		}
	}
	return true
}

// runeLen is the sequence length announced by a leading byte, 0 for a
// continuation byte.
func runeLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// bomSkipper drops a UTF-8 BOM at the start of the stream.
type bomSkipper struct {
	r       io.Reader
	checked bool
	head    []byte
}

func (b *bomSkipper) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		buf := make([]byte, len(utf8BOM))
		n, err := io.ReadFull(b.r, buf)
		switch {
		case err == io.ErrUnexpectedEOF || err == io.EOF:
			// short stream, keep whatever was read
		case err != nil:
			return 0, err
		}
		if !bytes.Equal(buf[:n], utf8BOM) {
			b.head = buf[:n]
		}
	}

	if len(b.head) > 0 {
		n := copy(p, b.head)
		b.head = b.head[n:]
		return n, nil
	}
	return b.r.Read(p)
}

// sizeLimiter fails once more than remaining bytes have been read.
type sizeLimiter struct {
	r         io.Reader
	remaining int64
}

func (l *sizeLimiter) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrFileTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return 0, ErrFileTooLarge
	}
	return n, err
}
