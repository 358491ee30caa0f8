package libemit

import (
	"context"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fasthttp/websocket"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

type (
	// SourceEvents are the channels a WsSource emits on.
	SourceEvents struct {
		Connected   Signal
		Reconnected Signal
		Closed      Event[error]
		Frames      Event[Message]
	}

	BackoffCalculator func(attempts int) time.Duration

	// WsSource reads a websocket feed and emits every data frame it receives,
	// together with connection lifecycle events. Dropped connections are
	// re-dialed with backoff until the source is closed.
	WsSource struct {
		emitter *Emitter
		events  SourceEvents
		url     string
		header  http.Header
		dialer  *websocket.Dialer
		backoff BackoffCalculator
		clock   clock.Clock
		logger  Logger

		connMu sync.Mutex
		conn   *websocket.Conn

		closeC    chan struct{}
		closeOnce sync.Once
		closeErr  error
		done      chan struct{}
	}

	SourceOption func(*WsSource)
)

// NewSourceEvents lays the source channels out on consecutive ids starting at base.
func NewSourceEvents(base EventID) SourceEvents {
	return SourceEvents{
		Connected:   NewSignal(base),
		Reconnected: NewSignal(base + 1),
		Closed:      NewEvent[error](base + 2),
		Frames:      NewEvent[Message](base + 3),
	}
}

func WithHeader(h http.Header) SourceOption {
	return func(s *WsSource) {
		s.header = h
	}
}

func WithDialer(d *websocket.Dialer) SourceOption {
	return func(s *WsSource) {
		if d != nil {
			s.dialer = d
		}
	}
}

func WithBackoff(b BackoffCalculator) SourceOption {
	return func(s *WsSource) {
		if b != nil {
			s.backoff = b
		}
	}
}

// WithSourceClock replaces the clock the reconnect backoff waits on.
func WithSourceClock(c clock.Clock) SourceOption {
	return func(s *WsSource) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithSourceLogger(l Logger) SourceOption {
	return func(s *WsSource) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewWsSource(emitter *Emitter, url string, events SourceEvents, opts ...SourceOption) *WsSource {
	s := &WsSource{
		emitter: emitter,
		events:  events,
		url:     url,
		dialer:  websocket.DefaultDialer,
		backoff: ExponentialBackoffSeconds,
		clock:   clock.New(),
		logger:  NopLogger(),
		closeC:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("net", "ws_source")
	return s
}

// Open dials the first connection and returns once it is established or
// has failed. Reading and reconnecting continue in the background.
func (s *WsSource) Open(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		close(s.done)
		return err
	}

	s.setConn(conn)
	s.emitLifecycle(s.events.Connected)

	go s.run(ctx, conn)

	return nil
}

// Send writes m to the current connection.
func (s *WsSource) Send(m Message) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return ErrSourceClosed
	}

	s.logger.Debugf("=> %s", m)
	if err := s.conn.WriteMessage(int(m.Type()), m.Data()); err != nil {
		return errors.Wrap(err, "cannot write message")
	}
	return nil
}

// Close terminates the connection and stops reconnecting. It only
// executes once, later calls return the first result.
func (s *WsSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeC)

		s.connMu.Lock()
		conn := s.conn
		s.conn = nil
		s.connMu.Unlock()

		if conn == nil {
			return
		}

		var result error
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil &&
			!errors.Is(err, websocket.ErrCloseSent) {
			result = multierror.Append(result, err)
		}
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		s.closeErr = result
	})

	return s.closeErr
}

// Done is closed once the source stopped reading for good.
func (s *WsSource) Done() <-chan struct{} {
	return s.done
}

func (s *WsSource) closed() bool {
	select {
	case <-s.closeC:
		return true
	default:
		return false
	}
}

func (s *WsSource) setConn(conn *websocket.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.closed() {
		_ = conn.Close()
		return false
	}
	if s.conn != nil && s.conn != conn {
		_ = s.conn.Close()
	}
	s.conn = conn
	return true
}

func (s *WsSource) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err = s.handleDialError(resp, err); err != nil {
		s.logger.Errorf("connection err to %s: %s", s.url, err)
		return nil, err
	}

	s.logger.Debugf("success opening connection to %s", s.url)
	return conn, nil
}

func (s *WsSource) handleDialError(resp *http.Response, err error) error {
	if err == nil {
		return nil
	}

	var msg string
	if resp != nil && resp.Body != nil {
		if bts, readErr := io.ReadAll(resp.Body); readErr == nil {
			msg = string(bts)
		}
		_ = resp.Body.Close()
	}
	if msg != "" {
		return errors.Wrapf(ErrCannotConnect, "%s: %s", err, msg)
	}
	return errors.Wrap(ErrCannotConnect, err.Error())
}

func (s *WsSource) run(ctx context.Context, conn *websocket.Conn) {
	defer close(s.done)

	for {
		err := s.read(conn)
		_ = conn.Close()

		if s.closed() {
			s.emitClosed(ErrSourceClosed)
			return
		}
		s.emitClosed(err)

		if conn = s.reconnect(ctx); conn == nil {
			return
		}
		s.emitLifecycle(s.events.Reconnected)
	}
}

// read forwards frames until the connection fails.
func (s *WsSource) read(conn *websocket.Conn) error {
	for {
		messageType, bts, err := conn.ReadMessage()
		if err != nil {
			if !s.closed() {
				s.logger.Errorf("error occurred on websocket read: %s", err)
			}
			return errors.Wrap(err, "websocket read")
		}

		m := NewMessage(MessageType(messageType), bts)
		if !m.Type().IsData() {
			continue
		}

		if err := s.events.Frames.Emit(s.emitter, m); err != nil {
			if errors.Is(err, ErrEmitterClosed) {
				_ = s.Close()
				return err
			}
			s.logger.Warnf("frame listener failed: %s", err)
		}
	}
}

func (s *WsSource) reconnect(ctx context.Context) *websocket.Conn {
	for attempts := 1; ; attempts++ {
		ttw := s.backoff(attempts)
		s.logger.Infof("retrying to connect after %s", ttw)

		timer := s.clock.Timer(ttw)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-s.closeC:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := s.dial(ctx)
		if err != nil {
			continue
		}
		if !s.setConn(conn) {
			return nil
		}
		return conn
	}
}

func (s *WsSource) emitLifecycle(sig Signal) {
	if err := sig.Emit(s.emitter); err != nil {
		s.logger.Warnf("lifecycle listener failed: %s", err)
	}
}

func (s *WsSource) emitClosed(reason error) {
	if err := s.events.Closed.Emit(s.emitter, reason); err != nil {
		s.logger.Warnf("close listener failed: %s", err)
	}
}

func ExponentialBackoff(attempts int) float64 {
	return (math.Pow(2.0, float64(attempts)) - 1) / 2
}

func ExponentialBackoffSeconds(attempts int) time.Duration {
	return time.Duration(ExponentialBackoff(attempts) * float64(time.Second))
}
