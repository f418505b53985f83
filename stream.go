package callpath

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"

	"github.com/broady/callpath/schema"
)

// Chunk is one element of a decoded stream: [Event], [JSONItem],
// [BinaryChunk] or [ParseError].
type Chunk interface {
	isChunk()
}

// Event is a dispatched Server-Sent Event.
type Event struct {
	Name string
	Data any
	ID   string
	// Raw is the joined data lines as received.
	Raw string
}

// JSONItem is one validated NDJSON line.
type JSONItem struct {
	Data any
	Raw  string
}

// BinaryChunk is one read from a binary stream. Data is owned by the
// receiver.
type BinaryChunk struct {
	Data []byte
}

// ParseError is a malformed chunk inside an otherwise healthy stream.
// The stream continues after it.
type ParseError struct {
	Err error
	Raw string
}

func (e *ParseError) Error() string { return "parse error: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

func (Event) isChunk()       {}
func (JSONItem) isChunk()    {}
func (BinaryChunk) isChunk() {}
func (*ParseError) isChunk() {}

// binaryReadSize is the buffer size of binary stream reads.
const binaryReadSize = 32 * 1024

// Stream decodes a streaming response body incrementally. Reading is
// driven by the consumer: nothing is read until [Stream.Chunks] is ranged
// over, and each chunk is read only when the previous one was accepted.
//
// A Stream can be iterated once. The body is closed when iteration ends
// for any reason, including an early break, or by [Stream.Close].
type Stream struct {
	body  io.ReadCloser
	shape Response

	mu      sync.Mutex
	started bool
	closed  bool
	err     error
}

// NewStream returns a decoder for body using the stream grammar of shape.
func NewStream(body io.ReadCloser, shape Response) *Stream {
	return &Stream{body: body, shape: shape}
}

// Kind returns the stream grammar.
func (s *Stream) Kind() ResponseKind { return s.shape.Kind }

// Chunks returns the chunk sequence.
func (s *Stream) Chunks() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		s.mu.Lock()
		if s.started || s.closed {
			s.mu.Unlock()
			return
		}
		s.started = true
		s.mu.Unlock()
		defer s.Close()

		var err error
		switch s.shape.Kind {
		case KindSSE:
			err = decodeSSE(s.body, s.shape.Events, yield)
		case KindNDJSON:
			err = decodeNDJSON(s.body, s.shape.Schema, yield)
		case KindBinary:
			err = decodeBinary(s.body, yield)
		default:
			err = fmt.Errorf("%s responses are not streams", s.shape.Kind)
		}

		// A read failing because Close was called meanwhile is not an error.
		s.mu.Lock()
		if !s.closed {
			s.err = err
		}
		s.mu.Unlock()
	}
}

// Err returns the read error that ended iteration, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the body. It is safe to call more than once.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.body.Close()
}

// sseState accumulates the fields of the event being received.
type sseState struct {
	name string
	data []string
	id   string
}

func newSSEState() sseState { return sseState{name: "message"} }

// dispatch turns the accumulated fields into a chunk and resets the
// state. It returns false when there was no data.
func (st *sseState) dispatch(events map[string]EventSchema) (Chunk, bool) {
	name, data, id := st.name, st.data, st.id
	*st = newSSEState()
	if len(data) == 0 {
		return nil, false
	}

	raw := strings.Join(data, "\n")
	es, ok := events[name]
	if !ok {
		return &ParseError{Err: fmt.Errorf("unknown event %q", name), Raw: raw}, true
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		if !es.Text {
			return &ParseError{Err: fmt.Errorf("event %q: %w", name, err), Raw: raw}, true
		}
		v = raw
	} else if _, isString := v.(string); es.Text && !isString {
		v = raw
	}

	out, err := schema.Run(es.Schema, v)
	if err != nil {
		return &ParseError{Err: fmt.Errorf("event %q: %w", name, err), Raw: raw}, true
	}
	return Event{Name: name, Data: out, ID: id, Raw: raw}, true
}

// decodeSSE reads the text/event-stream grammar: "field: value" lines,
// ":" comments, and a blank line as the dispatch boundary. A pending
// event is dispatched at end of stream.
func decodeSSE(r io.Reader, events map[string]EventSchema, yield func(Chunk) bool) error {
	lr := NewLineReader(r, KeepBlank())
	st := newSSEState()
	for line := range lr.Lines() {
		if line == "" {
			if c, ok := st.dispatch(events); ok && !yield(c) {
				return nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			st.name = value
			if st.name == "" {
				st.name = "message"
			}
		case "data":
			st.data = append(st.data, value)
		case "id":
			st.id = value
		}
	}
	if err := lr.Err(); err != nil {
		return err
	}
	if c, ok := st.dispatch(events); ok {
		yield(c)
	}
	return nil
}

// decodeNDJSON reads one JSON value per line.
func decodeNDJSON(r io.Reader, item schema.Validator, yield func(Chunk) bool) error {
	lr := NewLineReader(r)
	for line := range lr.Lines() {
		var c Chunk
		var v any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			c = &ParseError{Err: err, Raw: line}
		} else if out, err := schema.Run(item, v); err != nil {
			c = &ParseError{Err: err, Raw: line}
		} else {
			c = JSONItem{Data: out, Raw: line}
		}
		if !yield(c) {
			return nil
		}
	}
	return lr.Err()
}

// decodeBinary yields every read unchanged.
func decodeBinary(r io.Reader, yield func(Chunk) bool) error {
	buf := make([]byte, binaryReadSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if !yield(BinaryChunk{Data: bytes.Clone(buf[:n])}) {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
