// Package stream implements the long-lived server-sent-event
// subscription: connect, parse line-framed JSON, dispatch typed
// callbacks, and auto-reconnect with backoff. A single goroutine owns
// the session end to end — connecting, reading, dispatching, and
// backing off — so callback registration never races with delivery.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/vegather/Disruptive-sub002/config"
	apierrors "github.com/vegather/Disruptive-sub002/errors"
	"github.com/vegather/Disruptive-sub002/events"
	"github.com/vegather/Disruptive-sub002/request"
	"github.com/vegather/Disruptive-sub002/retry"
)

// State is one position in the stream's connection lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateBackoff
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Authenticator is the stream-facing slice of auth.Authenticator.
type Authenticator interface {
	GetActive(ctx context.Context) (string, error)
}

// Callbacks is the full set of per-event-variant handlers plus
// onError. A nil field means "no handler": that
// event variant is decoded and silently dropped.
type Callbacks struct {
	OnTouch              func(deviceID string, e events.TouchEvent)
	OnTemperature        func(deviceID string, e events.TemperatureEvent)
	OnObjectPresent      func(deviceID string, e events.ObjectPresentEvent)
	OnHumidity           func(deviceID string, e events.HumidityEvent)
	OnObjectPresentCount func(deviceID string, e events.ObjectPresentCountEvent)
	OnTouchCount         func(deviceID string, e events.TouchCountEvent)
	OnWaterPresent       func(deviceID string, e events.WaterPresentEvent)
	OnNetworkStatus      func(deviceID string, e events.NetworkStatusEvent)
	OnBatteryStatus      func(deviceID string, e events.BatteryStatusEvent)
	OnLabelsChanged      func(deviceID string, e events.LabelsChangedEvent)
	OnConnectionStatus   func(deviceID string, e events.ConnectionStatusEvent)
	OnEthernetStatus     func(deviceID string, e events.EthernetStatusEvent)
	OnCellularStatus     func(deviceID string, e events.CellularStatusEvent)
	OnError              func(err error)
}

// Stream is a single subscription. It owns its HTTP session, its retry
// cursor, and its callback table exclusively; it only reads from the
// Authenticator it was given.
type Stream struct {
	req        request.Request
	auth       Authenticator
	httpClient *http.Client
	log        zerolog.Logger
	retry      *retry.Scheme

	state atomic.Int32

	// control serializes every mutation of callbacks with event
	// dispatch: both run only inside run(), the stream's single
	// delivery context.
	control chan func()

	callbacks Callbacks

	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// Option customizes a Stream at construction time.
type Option func(*Stream)

// WithLogger overrides the zerolog.Logger used for diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Stream) { s.log = l }
}

// WithHTTPClient overrides the *http.Client used for the stream
// session, primarily for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Stream) { s.httpClient = hc }
}

// WithCallbacks installs the initial callback table.
func WithCallbacks(cb Callbacks) Option {
	return func(s *Stream) { s.callbacks = cb }
}

// New constructs a Stream against req (which must already carry any
// project/device/event-type filter query params the caller wants) and
// immediately begins connecting: the stream has no separate Start
// method.
func New(ctx context.Context, req request.Request, auth Authenticator, opts ...Option) *Stream {
	s := &Stream{
		req:        req,
		auth:       auth,
		httpClient: config.NewHTTPClient(config.StreamTimeout),
		log:        zerolog.Nop(),
		retry:      retry.New(),
		control:    make(chan func()),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(runCtx)
	return s
}

// State reports the stream's current lifecycle position.
func (s *Stream) State() State {
	return State(s.state.Load())
}

func (s *Stream) setState(st State) {
	s.state.Store(int32(st))
}

// SetCallbacks replaces the callback table. The replacement is
// serialized with in-flight event dispatch via the stream's control
// channel, so it is safe to call from any goroutine at any time.
func (s *Stream) SetCallbacks(cb Callbacks) {
	done := make(chan struct{})
	select {
	case s.control <- func() { s.callbacks = cb; close(done) }:
		<-done
	case <-s.done:
	}
}

// Close is idempotent: the first call cancels the in-flight session
// and transitions to Closed; later calls are no-ops. A closed Stream
// cannot be reopened.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		s.cancel()
	})
	<-s.done
	// run may have stored another state after the first store above.
	s.setState(StateClosed)
}

type lineOrErr struct {
	line []byte
	err  error
}

// run is the stream's single delivery context: it owns connection
// attempts, retry backoff, callback dispatch, and callback-table
// mutation, for the Stream's entire lifetime.
func (s *Stream) run(ctx context.Context) {
	defer close(s.done)
	for {
		if ctx.Err() != nil {
			s.setState(StateClosed)
			return
		}

		s.setState(StateConnecting)
		lines, sessionClose, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.dispatchError(apierrors.ServerUnavailable(err))
			if !s.backoff(ctx) {
				return
			}
			continue
		}

		streamedCleanly := s.consume(ctx, lines)
		sessionClose()

		if ctx.Err() != nil {
			return
		}
		if !streamedCleanly {
			s.dispatchError(apierrors.ServerUnavailable(fmt.Errorf("stream: connection terminated")))
		}
		if !s.backoff(ctx) {
			return
		}
	}
}

// backoff waits the retry scheme's Next() delay, returning false if the
// stream was closed while waiting.
func (s *Stream) backoff(ctx context.Context) bool {
	s.setState(StateBackoff)
	wait := s.retry.Next()
	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

// connect acquires a token, opens the streaming HTTP request, and
// returns a channel of raw lines plus a cleanup function. A non-2xx
// response is treated as an immediate, terminal session failure: its
// body is read and returned as part of connect's error.
func (s *Stream) connect(ctx context.Context) (<-chan lineOrErr, func(), error) {
	token, err := s.auth.GetActive(ctx)
	if err != nil {
		return nil, nil, err
	}

	attempt := s.req.Clone()
	attempt.SetHeader("Authorization", token)
	attempt.SetHeader("Accept", "application/json")
	attempt.SetHeader("Cache-Control", "no-cache")

	httpReq, err := attempt.HTTPRequest()
	if err != nil {
		return nil, nil, err
	}
	httpReq = httpReq.WithContext(ctx)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, nil, fmt.Errorf("stream: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	out := make(chan lineOrErr)
	readerCtx, cancelReader := context.WithCancel(ctx)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case out <- lineOrErr{line: line}:
			case <-readerCtx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case out <- lineOrErr{err: err}:
			case <-readerCtx.Done():
			}
		}
	}()

	cleanup := func() {
		cancelReader()
		resp.Body.Close()
	}
	return out, cleanup, nil
}

// consume drains lines until the session ends, dispatching each
// decoded message, and interleaves control-channel commands (callback
// table mutations) so they never race with dispatch. It returns true
// if the session ended via a clean EOF rather than a read error.
func (s *Stream) consume(ctx context.Context, lines <-chan lineOrErr) bool {
	for {
		select {
		case <-ctx.Done():
			return true

		case cmd := <-s.control:
			cmd()

		case item, ok := <-lines:
			if !ok {
				return true
			}
			if item.err != nil {
				return false
			}
			s.setState(StateStreaming)
			s.handleLine(item.line)
		}
	}
}

type wireLine struct {
	Result *struct {
		Event json.RawMessage `json:"event"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Help string `json:"help"`
		} `json:"details"`
	} `json:"error"`
}

func (s *Stream) handleLine(line []byte) {
	if len(bufTrim(line)) == 0 {
		return
	}

	var wl wireLine
	if err := json.Unmarshal(line, &wl); err != nil {
		s.log.Debug().Err(err).Msg("stream: discarding unparseable line")
		return
	}

	switch {
	case wl.Result != nil:
		s.retry.Reset()
		env, ok, err := events.Decode(wl.Result.Event)
		if err != nil {
			s.log.Debug().Err(err).Msg("stream: discarding undecodable event")
			return
		}
		if !ok {
			s.log.Debug().Str("eventType", string(env.Type)).Msg("stream: dropping unknown event type")
			return
		}
		s.dispatchEvent(env)

	case wl.Error != nil:
		help := ""
		if len(wl.Error.Details) > 0 {
			help = wl.Error.Details[0].Help
		}
		apiErr, ok := apierrors.FromStreamCode(wl.Error.Code, wl.Error.Message, help)
		if !ok {
			// session-timeout code: benign, the stream will restart.
			return
		}
		s.log.Warn().Str("kind", string(apiErr.Kind)).Str("help", help).Msg("stream: error frame")
		s.dispatchError(apiErr)

	default:
		s.log.Debug().Msg("stream: discarding line with neither result nor error")
	}
}

func bufTrim(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t' || b[0] == '\r') {
		b = b[1:]
	}
	for len(b) > 0 {
		last := b[len(b)-1]
		if last == ' ' || last == '\t' || last == '\r' {
			b = b[:len(b)-1]
			continue
		}
		break
	}
	return b
}

func (s *Stream) dispatchEvent(env events.Envelope) {
	cb := s.callbacks
	switch env.Type {
	case events.TypeTouch:
		if cb.OnTouch != nil && env.Touch != nil {
			cb.OnTouch(env.DeviceID, *env.Touch)
		}
	case events.TypeTemperature:
		if cb.OnTemperature != nil && env.Temperature != nil {
			cb.OnTemperature(env.DeviceID, *env.Temperature)
		}
	case events.TypeObjectPresent:
		if cb.OnObjectPresent != nil && env.ObjectPresent != nil {
			cb.OnObjectPresent(env.DeviceID, *env.ObjectPresent)
		}
	case events.TypeHumidity:
		if cb.OnHumidity != nil && env.Humidity != nil {
			cb.OnHumidity(env.DeviceID, *env.Humidity)
		}
	case events.TypeObjectPresentCount:
		if cb.OnObjectPresentCount != nil && env.ObjectPresentCount != nil {
			cb.OnObjectPresentCount(env.DeviceID, *env.ObjectPresentCount)
		}
	case events.TypeTouchCount:
		if cb.OnTouchCount != nil && env.TouchCount != nil {
			cb.OnTouchCount(env.DeviceID, *env.TouchCount)
		}
	case events.TypeWaterPresent:
		if cb.OnWaterPresent != nil && env.WaterPresent != nil {
			cb.OnWaterPresent(env.DeviceID, *env.WaterPresent)
		}
	case events.TypeNetworkStatus:
		if cb.OnNetworkStatus != nil && env.NetworkStatus != nil {
			cb.OnNetworkStatus(env.DeviceID, *env.NetworkStatus)
		}
	case events.TypeBatteryStatus:
		if cb.OnBatteryStatus != nil && env.BatteryStatus != nil {
			cb.OnBatteryStatus(env.DeviceID, *env.BatteryStatus)
		}
	case events.TypeLabelsChanged:
		if cb.OnLabelsChanged != nil && env.LabelsChanged != nil {
			cb.OnLabelsChanged(env.DeviceID, *env.LabelsChanged)
		}
	case events.TypeConnectionStatus:
		if cb.OnConnectionStatus != nil && env.ConnectionStatus != nil {
			cb.OnConnectionStatus(env.DeviceID, *env.ConnectionStatus)
		}
	case events.TypeEthernetStatus:
		if cb.OnEthernetStatus != nil && env.EthernetStatus != nil {
			cb.OnEthernetStatus(env.DeviceID, *env.EthernetStatus)
		}
	case events.TypeCellularStatus:
		if cb.OnCellularStatus != nil && env.CellularStatus != nil {
			cb.OnCellularStatus(env.DeviceID, *env.CellularStatus)
		}
	}
}

func (s *Stream) dispatchError(err error) {
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(err)
	}
}
