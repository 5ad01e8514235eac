// Package session runs one WebSocket conversation.
//
// Each connection gets an Actor. A reader goroutine decodes inbound frames,
// every audio_blob is processed concurrently as a numbered turn, and the run
// loop releases finished turns strictly in submission order through a single
// writer goroutine. The optional greeting occupies delivery slot zero so it
// always reaches the client before the first turn's answer.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nadzzz/voicegate/internal/history"
	"github.com/nadzzz/voicegate/internal/message"
	"github.com/nadzzz/voicegate/internal/metrics"
	"github.com/nadzzz/voicegate/internal/pipeline"
)

// Conn is the subset of *websocket.Conn an Actor uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// TurnProcessor turns one utterance into speech.
type TurnProcessor interface {
	Process(ctx context.Context, turn *pipeline.Turn, ctxEntries []history.Entry) pipeline.Result[pipeline.Speech]
}

// Greeter returns the greeting clip.
type Greeter interface {
	Get(ctx context.Context) (pipeline.Speech, error)
}

// State is the lifecycle phase of an Actor.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Close reasons reported to metrics.
const (
	ReasonClientClosed = "client_closed"
	ReasonServerClosed = "server_closed"
	ReasonReadError    = "read_error"
	ReasonWriteError   = "write_error"
)

// Config holds per-connection limits.
type Config struct {
	ContextTurns      int
	GreetingDelay     time.Duration
	MaxMessageBytes   int64
	PingInterval      time.Duration
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	OutboundQueueSize int
}

// Dependencies wires an Actor to its collaborators. Greeting may be nil.
type Dependencies struct {
	ID        string
	Conn      Conn
	Processor TurnProcessor
	Greeting  Greeter
	Config    Config
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Actor owns one client connection for its whole lifetime.
type Actor struct {
	id        string
	conn      Conn
	processor TurnProcessor
	greeting  Greeter
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger

	history  *history.Window
	outbound chan []byte
	results  chan delivery

	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32
	done   chan struct{}
	start  time.Time
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

// delivery is a finished unit of work waiting for its slot.
type delivery struct {
	seq      uint64
	greeting bool
	turn     *pipeline.Turn
	result   pipeline.Result[pipeline.Speech]
}

var errBadDependencies = errors.New("session: conn and processor are required")

// Accept starts an Actor on conn and returns immediately. The actor runs
// until the client disconnects, a write fails, or Close is called.
func Accept(parent context.Context, deps Dependencies) (*Actor, error) {
	if deps.Conn == nil || deps.Processor == nil {
		return nil, errBadDependencies
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg.OutboundQueueSize <= 0 {
		cfg.OutboundQueueSize = 64
	}

	ctx, cancel := context.WithCancel(parent)
	a := &Actor{
		id:        deps.ID,
		conn:      deps.Conn,
		processor: deps.Processor,
		greeting:  deps.Greeting,
		cfg:       cfg,
		metrics:   deps.Metrics,
		logger:    logger.With("session_id", deps.ID),
		history:   history.NewWindow(cfg.ContextTurns),
		outbound:  make(chan []byte, cfg.OutboundQueueSize),
		results:   make(chan delivery, cfg.OutboundQueueSize),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		start:     time.Now(),
	}
	a.state.Store(int32(StateConnecting))

	go a.run()
	return a, nil
}

// ID returns the session identifier.
func (a *Actor) ID() string { return a.id }

// State returns the current lifecycle phase.
func (a *Actor) State() State { return State(a.state.Load()) }

// Done is closed once the connection is closed and the actor has stopped.
func (a *Actor) Done() <-chan struct{} { return a.done }

// Close asks the actor to stop. In-flight turns run to completion but their
// results are discarded; frames already queued are flushed before the close
// frame. Close does not wait; use Done.
func (a *Actor) Close() {
	a.state.CompareAndSwap(int32(StateActive), int32(StateClosing))
	a.cancel()
}

// ForceClose drops the underlying connection without a close handshake.
func (a *Actor) ForceClose() {
	a.Close()
	_ = a.conn.Close()
}

func (a *Actor) run() {
	defer close(a.done)

	a.configureConn()

	reads := make(chan inboundFrame, 16)
	go a.readLoop(reads)

	writerErr := make(chan error, 1)
	writer := &outboundWriter{
		ws:           a.conn,
		ctx:          a.ctx,
		queue:        a.outbound,
		pingInterval: a.cfg.PingInterval,
		writeTimeout: a.cfg.WriteTimeout,
	}
	go func() { writerErr <- writer.Run() }()

	seq := newSequencer[delivery](1)
	if a.greeting != nil {
		seq = newSequencer[delivery](0)
		go a.greet()
	}

	a.state.Store(int32(StateActive))
	a.metrics.RecordSessionStart()
	a.logger.Info("session started", "greeting", a.greeting != nil, "context_turns", a.history.Cap())

	reason := a.loop(reads, writerErr, seq)

	a.state.Store(int32(StateClosing))
	a.cancel()
	if reason != ReasonWriteError {
		a.awaitWriter(writerErr)
	}
	_ = a.conn.Close()

	a.state.Store(int32(StateClosed))
	lifetime := time.Since(a.start)
	a.metrics.RecordSessionEnd(reason, lifetime)
	a.logger.Info("session closed",
		"reason", reason,
		"lifetime_ms", lifetime.Milliseconds(),
		"undelivered", seq.waiting(),
	)
}

func (a *Actor) configureConn() {
	if a.cfg.MaxMessageBytes > 0 {
		a.conn.SetReadLimit(a.cfg.MaxMessageBytes)
	}
	if a.cfg.ReadTimeout > 0 {
		_ = a.conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
		a.conn.SetPongHandler(func(string) error {
			return a.conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
		})
	}
}

func (a *Actor) loop(reads <-chan inboundFrame, writerErr <-chan error, seq *sequencer[delivery]) string {
	next := uint64(1)
	for {
		select {
		case <-a.ctx.Done():
			return ReasonServerClosed

		case err := <-writerErr:
			a.logger.Warn("websocket write failed", "error", err)
			return ReasonWriteError

		case frame, ok := <-reads:
			if !ok {
				return ReasonReadError
			}
			if frame.err != nil {
				return a.classifyReadError(frame.err)
			}
			if a.handleFrame(frame, next) {
				next++
			}

		case d := <-a.results:
			for _, ready := range seq.push(d.seq, d) {
				if !a.deliver(ready) {
					return ReasonServerClosed
				}
			}
		}
	}
}

func (a *Actor) classifyReadError(err error) string {
	if a.ctx.Err() != nil {
		return ReasonServerClosed
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		a.logger.Debug("client closed connection", "error", err)
		return ReasonClientClosed
	}
	a.logger.Warn("websocket read failed", "error", err)
	return ReasonReadError
}

// handleFrame starts a turn for audio_blob frames and reports whether it
// consumed sequence number seq.
func (a *Actor) handleFrame(frame inboundFrame, seq uint64) bool {
	if frame.messageType != websocket.TextMessage {
		a.logger.Debug("ignoring non-text frame", "message_type", frame.messageType)
		return false
	}
	in, err := message.DecodeInbound(frame.data)
	if err != nil {
		a.logger.Warn("ignoring malformed frame", "error", err)
		return false
	}
	if in.Type != message.TypeAudioBlob {
		a.logger.Debug("ignoring frame", "type", in.Type)
		return false
	}

	raw, err := in.Audio()
	if err != nil {
		// Undecodable payloads still take a slot so the client hears the apology.
		a.logger.Warn("audio payload is not valid base64", "seq", seq, "error", err)
		raw = nil
	}

	turn := &pipeline.Turn{Seq: seq, Audio: raw, Format: in.Format}
	ctxEntries := a.history.Snapshot()
	a.logger.Debug("turn received", "seq", seq, "audio_bytes", len(raw), "format", in.Format)

	go func() {
		// Closing the session does not abort started provider calls; the
		// stage timeout bounds them and post drops their result.
		res := a.processor.Process(context.WithoutCancel(a.ctx), turn, ctxEntries)
		a.post(delivery{seq: seq, turn: turn, result: res})
	}()
	return true
}

func (a *Actor) greet() {
	if a.cfg.GreetingDelay > 0 {
		t := time.NewTimer(a.cfg.GreetingDelay)
		select {
		case <-a.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	speech, err := a.greeting.Get(a.ctx)
	res := pipeline.Ok(speech)
	if err != nil {
		res = pipeline.Fail[pipeline.Speech](pipeline.KindSynthesis, err)
	}
	a.post(delivery{seq: 0, greeting: true, result: res})
}

func (a *Actor) post(d delivery) {
	select {
	case a.results <- d:
	case <-a.ctx.Done():
	}
}

// deliver emits one released unit. It returns false when the session is
// shutting down and nothing more can be queued.
func (a *Actor) deliver(d delivery) bool {
	if d.greeting {
		if !d.result.OK() {
			if !errors.Is(d.result.Err, pipeline.ErrNoGreeting) {
				a.logger.Warn("greeting unavailable", "error", d.result.Err)
			}
			return true
		}
		return a.send(message.NewAudioResponse(d.result.Value.Audio, d.result.Value.Format))
	}

	turn := d.turn
	if user, assistant, ok := turn.Exchange(); ok {
		a.history.Append(user, assistant)
	}

	if !d.result.OK() {
		if d.result.Err.Kind == pipeline.KindTransport {
			return a.ctx.Err() == nil
		}
		a.metrics.RecordTurn(turn.Outcome())
		return a.send(message.NewError(fmt.Sprintf("TTS generation failed: %v", d.result.Err.Err)))
	}

	a.metrics.RecordTurn(turn.Outcome())
	a.logger.Debug("turn delivered", "seq", turn.Seq, "outcome", turn.Outcome(), "audio_bytes", len(d.result.Value.Audio))
	return a.send(message.NewAudioResponse(d.result.Value.Audio, d.result.Value.Format))
}

// send queues v for the writer, blocking while the queue is full.
func (a *Actor) send(v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		a.logger.Error("encoding outbound frame", "error", err)
		return true
	}
	select {
	case a.outbound <- payload:
		return true
	case <-a.ctx.Done():
		return false
	}
}

func (a *Actor) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		mt, data, err := a.conn.ReadMessage()
		if err == nil && a.cfg.ReadTimeout > 0 {
			_ = a.conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
		}
		frame := inboundFrame{messageType: mt, data: data, err: err}
		select {
		case out <- frame:
		case <-a.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// awaitWriter gives the writer time to flush and send the close frame.
func (a *Actor) awaitWriter(writerErr <-chan error) {
	timeout := a.cfg.WriteTimeout
	if timeout <= 0 || timeout > time.Second {
		timeout = time.Second
	}
	select {
	case <-writerErr:
	case <-time.After(timeout):
		a.logger.Debug("writer did not stop in time")
	}
}
