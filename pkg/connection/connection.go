package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	resocklog "github.com/resock/resock-go/pkg/log"
	"github.com/resock/resock-go/pkg/middleware"
	"github.com/resock/resock-go/pkg/plugin"
	"github.com/resock/resock-go/pkg/transport"
	"github.com/resock/resock-go/pkg/wire"
)

// Connection is a client WebSocket connection that reconnects according to
// its policy and buffers outbound messages while disconnected.
//
// All state lives on a single event-loop goroutine started by New. Public
// methods post work to the loop and wait for it. The loop exits once the
// connection reaches Closed or Terminated; Done is closed after the last
// callback ran.
type Connection struct {
	id       string
	target   transport.Target
	policy   Policy
	maxQueue int

	dialer      transport.Dialer
	codec       wire.Codec
	pipeline    *middleware.Pipeline
	broadcaster *plugin.Broadcaster
	rng         Rand
	handlers    Handlers

	logger *slog.Logger
	plog   resocklog.Logger

	ops      chan func()
	loopDone chan struct{}
	notifier *notifier

	ctx    context.Context
	cancel context.CancelFunc

	started   atomic.Bool
	firstOpen chan struct{}
	stateV    atomic.Uint32
	attemptV  atomic.Int64

	// Owned by the loop goroutine.
	state    State
	attempt  int
	gen      uint64
	tr       transport.Transport
	early    []func()
	timer    *time.Timer
	chain    middleware.Chain
	queue    *Queue
	opened   bool
	finalErr error
}

// New creates a connection in state None. It does not dial; call Connect.
func New(cfg Config, opts ...Option) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialer == nil {
		o.dialer = &transport.GorillaDialer{Options: transport.GorillaOptions{Logger: cfg.Logger}}
	}
	if o.codec == nil {
		o.codec = wire.CBORCodec{}
	}
	if o.rng == nil {
		o.rng = globalRand{}
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = discardLogger()
	}
	logger = logger.With("conn_id", o.id)

	plog := cfg.ProtocolLogger
	if plog == nil {
		plog = resocklog.NoopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:          o.id,
		target:      cfg.Target(),
		policy:      cfg.Reconnect.Resolve(),
		maxQueue:    cfg.MaxQueued,
		dialer:      o.dialer,
		codec:       o.codec,
		pipeline:    o.pipeline,
		broadcaster: o.broadcaster,
		rng:         o.rng,
		handlers:    o.handlers,
		logger:      logger,
		plog:        plog,
		ops:         make(chan func()),
		loopDone:    make(chan struct{}),
		notifier:    newNotifier(logger),
		ctx:         ctx,
		cancel:      cancel,
		firstOpen:   make(chan struct{}),
		queue:       NewQueue(),
	}
	go c.loop()
	return c, nil
}

// ID returns the connection ID.
func (c *Connection) ID() string {
	return c.id
}

// State returns the current state.
func (c *Connection) State() State {
	return State(c.stateV.Load())
}

// Attempt returns the number of reconnect attempts since the last time the
// connection was Connected.
func (c *Connection) Attempt() int {
	return int(c.attemptV.Load())
}

// QueueLen returns the number of queued outbound messages.
func (c *Connection) QueueLen() int {
	return c.queue.Len()
}

// Policy returns the reconnect policy in use.
func (c *Connection) Policy() Policy {
	return c.policy
}

// Done is closed once the connection is terminal and every callback ran.
func (c *Connection) Done() <-chan struct{} {
	return c.notifier.done
}

// Err returns why the connection ended: ErrConnectionClosed or
// ErrTerminated. It returns nil while the connection is live.
func (c *Connection) Err() error {
	select {
	case <-c.loopDone:
		return c.finalErr
	default:
		return nil
	}
}

// Connect starts the first dial and waits until the connection is Connected
// for the first time. When ctx expires first, Connect returns ctx.Err() and
// the connection keeps retrying in the background.
func (c *Connection) Connect(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	var err error
	if !c.do(ctx, func() { err = c.connect() }) {
		c.started.Store(false)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return c.Err()
	}
	if err != nil {
		return err
	}

	select {
	case <-c.firstOpen:
		return nil
	case <-c.loopDone:
		return c.finalErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send transmits payload. While Connected the outgoing middleware chain runs
// and the frame is written before Send returns. Otherwise the payload is
// queued and sent in order after the next open; the OnAck and OnFail send
// options report the outcome.
func (c *Connection) Send(ctx context.Context, payload []byte, opts ...SendOption) error {
	msg := &QueuedMessage{Payload: payload}
	for _, opt := range opts {
		opt(msg)
	}

	var err error
	if !c.do(ctx, func() { err = c.send(ctx, msg) }) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return c.Err()
	}
	return err
}

// Close closes the connection with code 1000.
func (c *Connection) Close() error {
	return c.CloseWithCode(wire.CloseNormalClosure, "")
}

// CloseWithCode closes the connection with the given code. The connection
// ends in Closed regardless of the code; codes that cannot be put on the
// wire are reported locally and sent as 1000. Closing a terminal connection
// is a no-op.
func (c *Connection) CloseWithCode(code wire.CloseCode, reason string) error {
	// Abort in-flight dials and sends before queuing behind them.
	c.cancel()

	var err error
	c.do(context.Background(), func() { err = c.close(code, reason) })
	return err
}

// loop runs posted work until the connection is terminal.
func (c *Connection) loop() {
	defer func() {
		close(c.loopDone)
		c.notifier.close()
	}()
	for op := range c.ops {
		op()
		if c.state.IsTerminal() {
			return
		}
	}
}

// do runs fn on the loop and waits for it. It returns false if the loop
// has exited or ctx expired before fn started.
func (c *Connection) do(ctx context.Context, fn func()) bool {
	ran := make(chan struct{})
	select {
	case c.ops <- func() { fn(); close(ran) }:
	case <-c.loopDone:
		return false
	case <-ctx.Done():
		return false
	}
	<-ran
	return true
}

// post schedules fn on the loop without waiting for it to run.
func (c *Connection) post(fn func()) bool {
	select {
	case c.ops <- fn:
		return true
	case <-c.loopDone:
		return false
	}
}

// notify runs fn on the notifier goroutine.
func (c *Connection) notify(fn func()) {
	c.notifier.push(fn)
}

func (c *Connection) setState(to State, reason string) bool {
	from := c.state
	if from == to {
		return true
	}
	if !canTransition(from, to) {
		c.logger.Error("invalid state transition", "from", from, "to", to, "reason", reason)
		return false
	}
	c.state = to
	c.stateV.Store(uint32(to))

	c.logger.Debug("state change", "from", from, "to", to, "reason", reason, "attempt", c.attempt)
	c.plog.Log(resocklog.StateRec(c.id, resocklog.RoleClient, from.String(), to.String(), reason, c.attempt))

	if h := c.handlers.OnStateChange; h != nil {
		ev := StateEvent{OldState: from, NewState: to, Reason: reason}
		c.notify(func() { h(ev) })
	}
	return true
}

func (c *Connection) setAttempt(n int) {
	c.attempt = n
	c.attemptV.Store(int64(n))
}

// emit records ev and hands it to the broadcaster.
func (c *Connection) emit(typ wire.EventType, code wire.CloseCode, reason string, payload []byte) {
	ev := wire.NewEvent(typ, code, reason).WithConn(c.id).WithPayload(payload)
	c.plog.Log(resocklog.EventRec(resocklog.RoleClient, ev))

	b := c.broadcaster
	if b == nil {
		return
	}
	c.notify(func() {
		if failed := b.Emit(ev); failed > 0 {
			warn := wire.NewEvent(wire.EventWarning, wire.CodeObserverFault,
				fmt.Sprintf("%d observers failed on %s", failed, ev.Type)).WithConn(c.id)
			c.plog.Log(resocklog.EventRec(resocklog.RoleClient, warn))
		}
	})
}

func (c *Connection) reportError(err error) {
	if h := c.handlers.OnError; h != nil {
		c.notify(func() { h(err) })
	}
}

func (c *Connection) connect() error {
	switch c.state {
	case StateNone:
		c.dial("connect")
		return nil
	case StateClosed:
		return ErrConnectionClosed
	case StateTerminated:
		return ErrTerminated
	default:
		return ErrAlreadyStarted
	}
}

// dial starts a dial for a new generation. Results and transport events of
// older generations are discarded.
func (c *Connection) dial(reason string) {
	if !c.setState(StateConnecting, reason) {
		return
	}
	c.gen++
	gen := c.gen
	c.tr = nil
	c.early = nil

	ctx := c.ctx
	l := &genListener{c: c, gen: gen}
	go func() {
		tr, err := c.dialer.Dial(ctx, c.target, l)
		if !c.post(func() { c.dialed(gen, tr, err) }) && tr != nil {
			_ = tr.Close(wire.CloseGoingAway, "connection closed")
		}
	}()
}

func (c *Connection) dialed(gen uint64, tr transport.Transport, err error) {
	if gen != c.gen || c.state != StateConnecting {
		if tr != nil {
			_ = tr.Close(wire.CloseGoingAway, "superseded")
		}
		return
	}
	if err != nil {
		if c.ctx.Err() != nil {
			// Close is queued behind us.
			return
		}
		c.logger.Warn("dial failed", "url", c.target.URL, "attempt", c.attempt, "error", err)
		c.plog.Log(resocklog.ErrorRec(c.id, resocklog.RoleClient, err, wire.CloseAbnormalClosure, "dial"))
		c.reportError(newFault(FaultTransport, wire.CloseAbnormalClosure, err))
		c.reconnectOrTerminate(wire.CloseAbnormalClosure, err.Error())
		return
	}

	c.tr = tr
	c.open()
}

func (c *Connection) open() {
	reconnected := c.attempt > 0
	c.setAttempt(0)
	if !c.setState(StateConnected, "open") {
		return
	}
	c.logger.Info("connected", "url", c.target.URL, "reconnected", reconnected)

	if c.chain == nil && c.pipeline != nil {
		c.pipeline.Freeze()
		c.chain = c.pipeline.Compose()
	}
	if !c.opened {
		c.opened = true
		close(c.firstOpen)
	}

	c.emit(wire.EventNewConnection, wire.CodeNone, "", nil)
	if reconnected {
		c.emit(wire.EventInfo, wire.CodeReconnected, "", nil)
	}
	if h := c.handlers.OnOpen; h != nil {
		c.notify(h)
	}

	c.drain()

	early := c.early
	c.early = nil
	for _, fn := range early {
		fn()
	}
}

// drain delivers queued messages in order. A transport failure leaves the
// remaining messages queued for the next open.
func (c *Connection) drain() {
	if c.queue.Len() == 0 {
		return
	}
	n, err := c.queue.Drain(c.ctx, func(ctx context.Context, msg *QueuedMessage) error {
		data, err := c.outgoing(ctx, msg.Payload)
		if err != nil {
			return Discard(err)
		}
		if err := c.tr.Send(ctx, data); err != nil {
			return newFault(FaultTransport, wire.CodeNone, err)
		}
		c.plog.Log(resocklog.FrameRec(c.id, resocklog.RoleClient, resocklog.DirectionOut, data))
		return nil
	})
	if n > 0 {
		c.logger.Debug("queue drained", "sent", n, "remaining", c.queue.Len())
		c.emit(wire.EventInfo, wire.CodeQueueDrained, fmt.Sprintf("%d messages", n), nil)
	}
	if err != nil && c.ctx.Err() == nil {
		c.logger.Warn("drain interrupted", "remaining", c.queue.Len(), "error", err)
	}
}

// outgoing runs the outgoing chain and encodes the result.
func (c *Connection) outgoing(ctx context.Context, payload []byte) ([]byte, error) {
	if c.chain != nil {
		pc, err := c.chain(middleware.NewContext(ctx, middleware.Outgoing, c.id, payload))
		if err != nil {
			c.logger.Warn("outgoing middleware failed", "error", err)
			c.emit(wire.EventWarning, wire.CodePipelineFault, err.Error(), nil)
			return nil, newFault(FaultPipeline, wire.CodePipelineFault, err)
		}
		if pc.Dropped() {
			return nil, ErrMessageDropped
		}
		payload = pc.Message
	}
	data, err := c.codec.Encode(wire.DataFrame(payload))
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return data, nil
}

func (c *Connection) send(ctx context.Context, msg *QueuedMessage) error {
	c.deferCallbacks(msg)

	switch c.state {
	case StateClosed:
		return ErrConnectionClosed
	case StateTerminated:
		return ErrTerminated
	case StateConnected:
		if c.queue.Len() > 0 {
			// Earlier messages are still pending; keep enqueue order.
			if err := c.enqueue(msg); err != nil {
				return err
			}
			c.drain()
			return nil
		}
		sendCtx, cancel := context.WithCancel(ctx)
		stop := context.AfterFunc(c.ctx, cancel)
		defer stop()
		defer cancel()

		data, err := c.outgoing(sendCtx, msg.Payload)
		if err == nil {
			err = c.tr.Send(sendCtx, data)
			if err != nil {
				err = newFault(FaultTransport, wire.CodeNone, err)
			}
		}
		if err != nil {
			msg.fail(err)
			return err
		}
		c.plog.Log(resocklog.FrameRec(c.id, resocklog.RoleClient, resocklog.DirectionOut, data))
		msg.ack()
		return nil
	default:
		return c.enqueue(msg)
	}
}

func (c *Connection) enqueue(msg *QueuedMessage) error {
	if c.maxQueue > 0 && c.queue.Len() >= c.maxQueue {
		return newFault(FaultQueue, wire.CodeNone, ErrQueueFull)
	}
	c.queue.Enqueue(msg)
	c.logger.Debug("message queued", "state", c.state, "queued", c.queue.Len())
	return nil
}

// deferCallbacks moves the message callbacks onto the notifier so they may
// call Send.
func (c *Connection) deferCallbacks(msg *QueuedMessage) {
	ack, fail := msg.OnAck, msg.OnFail
	msg.OnAck, msg.OnFail = nil, nil
	if ack != nil {
		msg.OnAck = func() { c.notify(ack) }
	}
	if fail != nil {
		msg.OnFail = func(err error) { c.notify(func() { fail(err) }) }
	}
}

func (c *Connection) inbound(data []byte) {
	if c.state != StateConnected {
		return
	}
	c.plog.Log(resocklog.FrameRec(c.id, resocklog.RoleClient, resocklog.DirectionIn, data))

	frame, err := c.codec.Decode(data)
	if err != nil {
		c.malformed(err)
		return
	}

	switch frame.Kind {
	case wire.FrameEvent:
		ev := *frame.Event
		c.plog.Log(resocklog.EventRec(resocklog.RoleClient, ev))
		if h := c.handlers.OnServerEvent; h != nil {
			c.notify(func() { h(ev) })
		}
	case wire.FrameData:
		payload := frame.Payload
		if c.chain != nil {
			pc, err := c.chain(middleware.NewContext(c.ctx, middleware.Incoming, c.id, payload))
			if err != nil {
				c.logger.Warn("incoming middleware failed", "error", err)
				c.emit(wire.EventWarning, wire.CodePipelineFault, err.Error(), nil)
				c.reportError(newFault(FaultPipeline, wire.CodePipelineFault, err))
				return
			}
			if pc.Dropped() {
				return
			}
			payload = pc.Message
		}
		c.emit(wire.EventMessage, wire.CodeNone, "", payload)
		if h := c.handlers.OnMessage; h != nil {
			c.notify(func() { h(payload) })
		}
	}
}

// malformed handles an undecodable inbound frame: Error, then Terminated.
func (c *Connection) malformed(err error) {
	c.logger.Error("malformed inbound frame", "error", err)
	c.setState(StateError, "malformed frame")
	c.plog.Log(resocklog.ErrorRec(c.id, resocklog.RoleClient, err, wire.CloseUnsupportedData, "decode"))
	c.emit(wire.EventError, wire.CloseUnsupportedData, err.Error(), nil)
	c.reportError(newFault(FaultInternal, wire.CloseUnsupportedData, err))

	if tr := c.detach(); tr != nil {
		if cerr := tr.Close(wire.CloseUnsupportedData, "malformed frame"); cerr != nil {
			c.logger.Debug("close after malformed frame", "error", cerr)
		}
	}
	c.terminate("malformed frame")
}

func (c *Connection) transportClosed(code wire.CloseCode, reason string) {
	if c.state != StateConnected {
		return
	}
	c.tr = nil
	c.logger.Info("transport closed", "code", code, "reason", reason)
	c.setState(StateDisconnected, code.String())
	c.emit(wire.EventClose, code, reason, nil)
	if h := c.handlers.OnClose; h != nil {
		c.notify(func() { h(code, reason) })
	}
	c.reconnectOrTerminate(code, reason)
}

func (c *Connection) transportError(err error) {
	if c.state != StateConnected {
		return
	}
	c.logger.Debug("transport error", "error", err)
	c.emit(wire.EventWarning, wire.CodeNone, err.Error(), nil)
	c.reportError(newFault(FaultTransport, wire.CodeNone, err))
}

// reconnectOrTerminate consults the classifier and the policy.
func (c *Connection) reconnectOrTerminate(code wire.CloseCode, reason string) {
	if !IsReconnectEligible(code) {
		c.terminate(fmt.Sprintf("close code %s is not retryable", code))
		return
	}

	delay, ok := c.policy.NextDelay(c.attempt, c.rng)
	if !ok {
		c.logger.Warn("giving up", "attempts", c.attempt, "last_code", code)
		c.emit(wire.EventError, wire.CodeRetriesExhausted, reason, nil)
		c.reportError(newFault(FaultPolicy, code, ErrRetriesExhausted))
		c.terminate("retries exhausted")
		return
	}

	c.setAttempt(c.attempt + 1)
	if !c.setState(StateReconnecting, code.String()) {
		return
	}
	c.logger.Info("reconnecting", "attempt", c.attempt, "delay", delay)
	c.emit(wire.EventInfo, wire.CodeReconnecting, fmt.Sprintf("attempt %d in %s", c.attempt, delay), nil)

	gen := c.gen
	c.timer = time.AfterFunc(delay, func() {
		c.post(func() {
			if gen != c.gen || c.state != StateReconnecting {
				return
			}
			c.timer = nil
			c.dial("retry")
		})
	})
}

// detach forgets the current transport and invalidates its generation.
func (c *Connection) detach() transport.Transport {
	tr := c.tr
	c.tr = nil
	c.early = nil
	c.gen++
	return tr
}

func (c *Connection) close(code wire.CloseCode, reason string) error {
	if c.state.IsTerminal() {
		return nil
	}
	wasConnected := c.state == StateConnected

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	tr := c.detach()
	if !c.setState(StateClosed, "closed by owner") {
		return fmt.Errorf("cannot close from %s", c.state)
	}

	if tr != nil {
		wireCode := code
		if !wireCode.Sendable() {
			wireCode = wire.CloseNormalClosure
		}
		if err := tr.Close(wireCode, reason); err != nil {
			c.logger.Debug("transport close", "error", err)
		}
	}
	if wasConnected {
		c.emit(wire.EventClose, code, reason, nil)
		if h := c.handlers.OnClose; h != nil {
			c.notify(func() { h(code, reason) })
		}
	}
	c.logger.Info("closed", "code", code)
	c.finish(ErrConnectionClosed)
	return nil
}

func (c *Connection) terminate(reason string) {
	if tr := c.detach(); tr != nil {
		_ = tr.Close(wire.CloseGoingAway, reason)
	}
	c.setState(StateTerminated, reason)
	c.logger.Info("terminated", "reason", reason)
	c.finish(ErrTerminated)
}

// finish releases resources once a terminal state was entered.
func (c *Connection) finish(reason error) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.cancel()
	c.finalErr = reason
	if n := c.queue.FailAll(newFault(FaultQueue, wire.CodeNone, reason)); n > 0 {
		c.logger.Info("failed queued messages", "count", n)
	}
}

// genListener tags transport callbacks with the generation that created
// them.
type genListener struct {
	c   *Connection
	gen uint64
}

// OnOpen is ignored; a successful Dial is the open signal.
func (l *genListener) OnOpen() {}

func (l *genListener) OnMessage(data []byte) {
	l.forward(func() { l.c.inbound(data) })
}

func (l *genListener) OnClose(code wire.CloseCode, reason string) {
	l.forward(func() { l.c.transportClosed(code, reason) })
}

func (l *genListener) OnError(err error) {
	l.forward(func() { l.c.transportError(err) })
}

// forward runs fn on the loop if the generation is current. Events that
// arrive before the dial result are held until the connection opened.
func (l *genListener) forward(fn func()) {
	c := l.c
	c.post(func() {
		if l.gen != c.gen {
			return
		}
		if c.tr == nil && c.state == StateConnecting {
			c.early = append(c.early, fn)
			return
		}
		fn()
	})
}

var _ transport.Listener = (*genListener)(nil)
