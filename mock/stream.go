package mock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/elnormous/contenttype"

	"github.com/broady/callpath"
)

// ErrStreamClosed is returned by Emitter.Send when the client has disconnected
// or the stream has been closed. Handlers should return when they receive this error.
var ErrStreamClosed = errors.New("stream closed")

// ErrWriteTimeout is returned by Emitter.Send when a write to the client timed out.
// This typically indicates a slow or unresponsive client.
var ErrWriteTimeout = errors.New("write timeout")

// Event is one SSE event. Other stream kinds use only Data.
type Event struct {
	// Name is the SSE event name. Empty means "message".
	Name string
	// ID is sent as the "id:" field when set.
	ID   string
	Data any
}

// Emitter sends items to a streaming client. Items are written in the
// endpoint's declared framing: SSE events, NDJSON lines or raw bytes.
// Send accepts an [Event], which carries SSE name and ID, or a bare value
// sent as the "message" event.
type Emitter interface {
	// Send writes one item and flushes it.
	// All disconnect-related errors satisfy errors.Is(err, [ErrStreamClosed]).
	Send(item any) error

	// LastEventID returns the client's Last-Event-ID header value.
	LastEventID() string
}

// StreamFunc serves a streaming endpoint. Any error returned, except
// [ErrStreamClosed], is reported to the client: as an HTTP error when
// nothing was sent yet, in-band otherwise.
type StreamFunc func(ctx context.Context, req *Request, e Emitter) error

// FixtureStream returns a stream handler that sends items in order.
func FixtureStream(items ...any) StreamFunc {
	return func(_ context.Context, _ *Request, e Emitter) error {
		for _, item := range items {
			if err := e.Send(item); err != nil {
				return err
			}
		}
		return nil
	}
}

// emitter writes one stream response. Writes from the handler and from
// the heartbeat goroutine are serialized by mu.
type emitter struct {
	ctx      context.Context
	w        http.ResponseWriter
	rc       *http.ResponseController
	shape    callpath.Response
	endpoint string
	logger   *slog.Logger

	writeTimeout time.Duration
	heartbeat    time.Duration
	lastEventID  string

	mu      sync.Mutex
	started bool
	closed  bool
	stop    chan struct{}
}

func (e *emitter) LastEventID() string { return e.lastEventID }

func (e *emitter) Send(item any) error {
	select {
	case <-e.ctx.Done():
		return fmt.Errorf("%w: %w", ErrStreamClosed, e.ctx.Err())
	default:
	}

	frame, err := e.frame(item)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrStreamClosed
	}
	e.startLocked()
	return e.writeLocked(frame)
}

// startLocked writes the stream headers on first use and starts the
// heartbeat.
func (e *emitter) startLocked() {
	if e.started {
		return
	}
	e.started = true

	h := e.w.Header()
	switch e.shape.Kind {
	case callpath.KindSSE:
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	case callpath.KindNDJSON:
		h.Set("Content-Type", "application/x-ndjson")
	case callpath.KindBinary:
		h.Set("Content-Type", e.shape.ContentType)
	}
	e.w.WriteHeader(http.StatusOK)
	_ = e.rc.Flush()

	if e.heartbeat > 0 && e.shape.Kind != callpath.KindBinary {
		go e.heartbeatLoop()
	}
}

// heartbeatLoop keeps idle connections alive through proxies. SSE gets a
// comment, NDJSON a blank line; both are ignored by the client decoders.
func (e *emitter) heartbeatLoop() {
	beat := []byte(": heartbeat\n\n")
	if e.shape.Kind == callpath.KindNDJSON {
		beat = []byte("\n")
	}

	ticker := time.NewTicker(e.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.closed {
				e.mu.Unlock()
				return
			}
			err := e.writeLocked(beat)
			e.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// writeLocked writes and flushes one frame under the write deadline.
// A failed write closes the stream.
func (e *emitter) writeLocked(frame []byte) error {
	if e.writeTimeout > 0 {
		if err := e.rc.SetWriteDeadline(time.Now().Add(e.writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			e.logger.Warn("write deadline not supported",
				slog.String("endpoint", e.endpoint),
				slog.Any("error", err))
		}
	}

	_, err := e.w.Write(frame)
	if err == nil {
		err = e.rc.Flush()
	}
	if e.writeTimeout > 0 {
		_ = e.rc.SetWriteDeadline(time.Time{})
	}
	if err == nil {
		return nil
	}

	e.closed = true
	if errors.Is(err, os.ErrDeadlineExceeded) {
		e.logger.Warn("stream write timed out", slog.String("endpoint", e.endpoint))
		return fmt.Errorf("%w: %w", ErrWriteTimeout, err)
	}
	if isClientDisconnect(err) {
		e.logger.Debug("client disconnected during write", slog.String("endpoint", e.endpoint))
	} else {
		e.logger.Error("failed to write stream item",
			slog.String("endpoint", e.endpoint),
			slog.Any("error", err))
	}
	return fmt.Errorf("%w: %w", ErrStreamClosed, err)
}

// frame encodes item in the endpoint's wire framing.
func (e *emitter) frame(item any) ([]byte, error) {
	switch e.shape.Kind {
	case callpath.KindSSE:
		ev, ok := item.(Event)
		if !ok {
			ev = Event{Data: item}
		}
		return e.sseFrame(ev)

	case callpath.KindNDJSON:
		if ev, ok := item.(Event); ok {
			item = ev.Data
		}
		data, err := marshalJSON(item)
		if err != nil {
			return nil, err
		}
		if bytes.ContainsAny(data, "\r\n") {
			// Re-encode compactly so the value stays on one line.
			var buf bytes.Buffer
			if err := json.Compact(&buf, data); err != nil {
				return nil, fmt.Errorf("compact item: %w", err)
			}
			data = buf.Bytes()
		}
		return append(data, '\n'), nil

	case callpath.KindBinary:
		if ev, ok := item.(Event); ok {
			item = ev.Data
		}
		switch v := item.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
		return nil, fmt.Errorf("binary stream item must be []byte or string, got %T", item)
	}
	return nil, fmt.Errorf("%s is not a stream kind", e.shape.Kind)
}

// sseFrame writes event:, id: and data: fields. Data of a text event is
// sent as is; everything else is JSON.
func (e *emitter) sseFrame(ev Event) ([]byte, error) {
	name := ev.Name
	if name == "" {
		name = "message"
	}

	var data string
	if s, ok := ev.Data.(string); ok && e.shape.Events[name].Text {
		data = s
	} else {
		raw, err := marshalJSON(ev.Data)
		if err != nil {
			return nil, err
		}
		data = string(raw)
	}

	var buf bytes.Buffer
	if name != "message" {
		fmt.Fprintf(&buf, "event: %s\n", name)
	}
	if ev.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", ev.ID)
	}
	for _, line := range strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n") {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// finish stops the heartbeat and reports a handler error. Before the
// first send the error becomes the HTTP response; afterwards SSE gets an
// "error" event and NDJSON an error line. Binary streams just end.
func (e *emitter) finish(svcErr *Error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	close(e.stop)

	if svcErr == nil || e.closed {
		e.closed = true
		return
	}
	if !e.started {
		e.closed = true
		writeError(e.w, svcErr, e.logger)
		return
	}

	data, err := json.Marshal(errorResponse{Error: svcErr})
	if err != nil {
		e.logger.Error("failed to marshal stream error", slog.Any("error", err))
		e.closed = true
		return
	}
	switch e.shape.Kind {
	case callpath.KindSSE:
		_ = e.writeLocked([]byte("event: error\ndata: " + string(data) + "\n\n"))
	case callpath.KindNDJSON:
		_ = e.writeLocked(append(data, '\n'))
	}
	e.closed = true
}

// isClientDisconnect checks if an error indicates the client has disconnected.
func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, io.ErrClosedPipe) ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "client disconnected")
}

// serveStream runs the setup interceptors and then the stream handler.
func (rt *route) serveStream(ctx context.Context, w http.ResponseWriter, r *http.Request, req *Request) {
	s := rt.server
	shape := rt.route.Endpoint.Response

	offered := contenttype.NewMediaType(acceptFor(shape))
	if _, _, err := contenttype.GetAcceptableMediaType(r, []contenttype.MediaType{offered}); err != nil {
		writeError(w, Errorf(callpath.CodeInvalidArgument, "client must accept %s", offered.String()), s.log())
		return
	}

	// Setup interceptors only see the request; they can reject the stream.
	setup := chainInterceptors(s.interceptors, func(context.Context, *Request) (any, error) { return nil, nil })
	if _, err := setup(ctx, req); err != nil {
		writeError(w, s.transformError(err), s.log())
		return
	}

	fn, ok := s.streamHandler(rt.route.Key)
	if !ok {
		writeError(w, s.transformError(Errorf(callpath.CodeNotImplemented, "no handler for %s", req.Call.Key)), s.log())
		return
	}

	e := &emitter{
		ctx:          ctx,
		w:            w,
		rc:           http.NewResponseController(w),
		shape:        shape,
		endpoint:     req.Call.String(),
		logger:       s.log(),
		writeTimeout: s.getStreamWriteTimeout(),
		heartbeat:    s.getStreamHeartbeat(),
		lastEventID:  r.Header.Get("Last-Event-ID"),
		stop:         make(chan struct{}),
	}

	var svcErr *Error
	if err := fn(ctx, req, e); err != nil && !errors.Is(err, ErrStreamClosed) {
		svcErr = s.transformError(err)
	}
	e.finish(svcErr)
}

// acceptFor is the media type a client must accept for a stream kind.
func acceptFor(shape callpath.Response) string {
	switch shape.Kind {
	case callpath.KindSSE:
		return "text/event-stream"
	case callpath.KindNDJSON:
		return "application/x-ndjson"
	}
	return shape.ContentType
}
