package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Close codes the dashboard cares about.
const (
	CloseNormal          = websocket.CloseNormalClosure
	ClosePolicyViolation = websocket.ClosePolicyViolation // auth rejected by the backend
	CloseAbnormal        = websocket.CloseAbnormalClosure // no close frame / dial failure
)

// EventKind tags a StreamEvent.
type EventKind int

const (
	EventMessage EventKind = iota
	EventError
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// StreamEvent is one thing that happened on an open push stream.
type StreamEvent struct {
	Kind   EventKind
	Data   []byte // EventMessage
	Err    error  // EventError
	Code   int    // EventClose
	Reason string // EventClose
}

// Stream is an open push connection. Run blocks delivering events until the
// connection ends; its last event is always an EventClose.
type Stream interface {
	Run(handle func(StreamEvent))
	Close() error
}

// Dialer opens push streams authenticated with a bearer token.
type Dialer interface {
	Open(ctx context.Context, token string) (Stream, error)
}

// Connector dials the backend dashboard WebSocket.
type Connector struct {
	wsURL  string
	dialer *websocket.Dialer
	logger *zap.Logger
}

func NewConnector(wsURL string, logger *zap.Logger) *Connector {
	return &Connector{
		wsURL: wsURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  10 * time.Second,
			EnableCompression: true,
		},
		logger: logger.With(zap.String("component", "push-connector")),
	}
}

// Open dials the stream with the token as a query parameter. Reading starts only
// once the caller invokes Run.
func (c *Connector) Open(ctx context.Context, token string) (Stream, error) {
	endpoint, err := c.endpoint(token)
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c.logger.Info("Push stream connected", zap.String("url", redact(endpoint)))
	return &session{conn: conn, logger: c.logger, closed: make(chan struct{})}, nil
}

func (c *Connector) endpoint(token string) (string, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return "", fmt.Errorf("invalid ws url %q: %w", c.wsURL, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// session is one dialled connection.
type session struct {
	conn   *websocket.Conn
	logger *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Run reads messages until the connection ends.
func (s *session) Run(handle func(StreamEvent)) {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			handle(s.terminalEvent(err, handle))
			return
		}
		handle(StreamEvent{Kind: EventMessage, Data: message})
	}
}

// terminalEvent maps a read error to the closing event. Transport failures are
// reported as an EventError first, then as an abnormal close.
func (s *session) terminalEvent(err error, handle func(StreamEvent)) StreamEvent {
	// gorilla reports a dropped TCP connection as a 1006 CloseError
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code != CloseAbnormal {
		s.logger.Info("Push stream closed by server",
			zap.Int("code", closeErr.Code), zap.String("reason", closeErr.Text))
		return StreamEvent{Kind: EventClose, Code: closeErr.Code, Reason: closeErr.Text}
	}

	select {
	case <-s.closed:
		// closed locally, nothing to report as an error
	default:
		s.logger.Warn("Push stream read error", zap.Error(err))
		handle(StreamEvent{Kind: EventError, Err: err})
	}
	return StreamEvent{Kind: EventClose, Code: CloseAbnormal, Reason: err.Error()}
}

// Close sends a normal close frame and tears the connection down. Safe to call more
// than once.
func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
	})
	return err
}

func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
