package callpath

import (
	"bufio"
	"io"
	"iter"
	"strings"
)

// maxLineSize is the longest line a LineReader accepts.
const maxLineSize = 1 << 20

// LineReader splits a byte stream into trimmed lines. Partial lines are
// buffered across reads, so a line split over several chunks is yielded
// once it is complete. A final line without a terminator is yielded at
// end of stream.
type LineReader struct {
	scanner   *bufio.Scanner
	keepBlank bool
	used      bool
}

// LineOption configures a LineReader.
type LineOption func(*LineReader)

// KeepBlank makes the reader yield blank lines as "" instead of skipping
// them.
func KeepBlank() LineOption {
	return func(lr *LineReader) { lr.keepBlank = true }
}

// NewLineReader reads lines from r. Both LF and CRLF terminate a line.
func NewLineReader(r io.Reader, opts ...LineOption) *LineReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lr := &LineReader{scanner: s}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Lines returns the line sequence. It can be ranged over once; later
// iterations yield nothing.
func (lr *LineReader) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		if lr.used {
			return
		}
		lr.used = true
		for lr.scanner.Scan() {
			line := strings.TrimSpace(lr.scanner.Text())
			if line == "" && !lr.keepBlank {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}
}

// Err returns the first non-EOF read error.
func (lr *LineReader) Err() error {
	return lr.scanner.Err()
}
