package vtserver

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/signalsfoundry/vtsim/internal/logging"
	"github.com/signalsfoundry/vtsim/timectrl"
)

// pendingCall tracks an in-flight Call's timeout handle so a late-arriving
// reply can cancel it, or the cancellation itself can fire first.
type pendingCall struct {
	timeout timectrl.Handle
}

// Server is a VirtualTimeServer: a Callbacks implementation bound to a name,
// a TimeBackend, and a Router, giving it init/handle_call/handle_cast/
// handle_info/terminate semantics over whatever clock it was constructed
// with (spec.md §4.3). Grounded on internal/sbi/agent.SimAgent's shape:
// identity + injected dependencies + a mutex-guarded pending-work map.
type Server struct {
	name      string
	clock     timectrl.TimeBackend
	router    Router
	callbacks Callbacks
	logger    logging.Logger

	mu        sync.Mutex
	state     any
	pending   map[string]*pendingCall
	selfTimer timectrl.Handle // handle of this server's own outstanding self-scheduled timer (actor tick or Sleep wake), spec.md §3 "self_timer_handle"

	stats         *Stats
	statsOn       bool
	traceSink     func(atMs int64, from, to string, msg any, kind MessageKind)
	callTimeoutMs int64
}

// Option configures a Server at construction.
type Option func(*Server)

// WithStats enables Stats collection (disabled by default to keep the hot
// dispatch path allocation-free when the engine isn't asking for counters).
func WithStats() Option {
	return func(s *Server) { s.statsOn = true }
}

// WithTraceSink attaches a callback invoked once per message send, used by
// engine.SimulationEngine to build its trace (spec.md §4.5, §8).
func WithTraceSink(fn func(atMs int64, from, to string, msg any, kind MessageKind)) Option {
	return func(s *Server) { s.traceSink = fn }
}

// WithLogger attaches a structured logger. Defaults to a no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithCallTimeout sets the default timeout, in virtual milliseconds, for
// calls made via Call. Defaults to 5000ms.
func WithCallTimeout(ms int64) Option {
	return func(s *Server) { s.callTimeoutMs = ms }
}

// New constructs a Server bound to name, backed by clock for all time
// primitives and router for name resolution, running callbacks. Init is
// invoked immediately with args.
func New(name string, clock timectrl.TimeBackend, router Router, callbacks Callbacks, args any, opts ...Option) (*Server, error) {
	s := &Server{
		name:          name,
		clock:         clock,
		router:        router,
		callbacks:     callbacks,
		logger:        logging.Noop(),
		pending:       make(map[string]*pendingCall),
		stats:         newStats(),
		callTimeoutMs: 5000,
	}
	for _, opt := range opts {
		opt(s)
	}

	state, err := callbacks.Init(args)
	if err != nil {
		return nil, err
	}
	s.state = state
	return s, nil
}

// Name returns the server's registry name.
func (s *Server) Name() string { return s.name }

// Stats returns a snapshot of this server's send/receive counters. The
// snapshot is always available but only populated when WithStats was
// passed at construction.
func (s *Server) Stats() Snapshot { return s.stats.Snapshot() }

// Now returns the current time of the bound TimeBackend, in milliseconds.
func (s *Server) Now() int64 { return s.clock.Now() }

// Send delivers msg to target as a fire-and-forget message, at now (delay
// 0). Target is resolved through the bound Router.
func (s *Server) Send(ctx context.Context, target string, msg any) error {
	_, err := s.sendAfter(ctx, 0, target, envSend, msg, "")
	return err
}

// Cast is delivered exactly like Send, to the target's HandleCast; the only
// difference is that its trace event is recorded with KindCast instead of
// KindSend (spec.md §4.3).
func (s *Server) Cast(ctx context.Context, target string, msg any) error {
	_, err := s.sendAfter(ctx, 0, target, envCast, msg, "")
	return err
}

// SendAfter delivers msg to target after delay virtual milliseconds. The
// returned Handle lets a self-directed caller cancel the timer directly
// instead of waiting for Stop.
func (s *Server) SendAfter(ctx context.Context, delay int64, target string, msg any) (timectrl.Handle, error) {
	return s.sendAfter(ctx, delay, target, envSend, msg, "")
}

// ScheduleSelf schedules msg for delivery to this server's own HandleCast
// after delay virtual milliseconds, for a caller's internal control loop
// (e.g. actorsim.Actor's send-pattern tick chain). Unlike SendAfter/Send/
// Cast, it never touches sent_count/received_count or the trace: a tick
// reschedule is plumbing that drives this server's own state machine, not
// a message exchanged between actors (spec.md §6.3/§6.4, §4.4 "realised by
// scheduling a self-message").
func (s *Server) ScheduleSelf(ctx context.Context, delay int64, msg any) (timectrl.Handle, error) {
	env := &Envelope{Kind: envSend, Payload: msg, From: s.name, Internal: true}
	handle, err := s.clock.ScheduleAfter(ctx, delay, s, env)
	if err != nil {
		return timectrl.Handle{}, err
	}
	s.mu.Lock()
	s.selfTimer = handle
	s.mu.Unlock()
	return handle, nil
}

// Call sends msg to target as a request expecting a reply, without
// blocking: the engine is single-threaded and synchronous, so a blocking
// call would deadlock the advance loop it runs on. Instead Call schedules
// the send plus a one-shot cancelable timeout timer; whichever of
// reply/timeout occurs first delivers a CallResult to this server's own
// HandleInfo, correlated by CallID (spec.md §4.3, §9).
func (s *Server) Call(ctx context.Context, target string, msg any) error {
	callID := uuid.NewString()

	timeoutHandle, err := s.clock.ScheduleAfter(ctx, s.callTimeoutMs, s, &Envelope{
		Kind:     envCallTimeout,
		CallID:   callID,
		Internal: true,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pending[callID] = &pendingCall{timeout: timeoutHandle}
	s.mu.Unlock()

	_, err = s.sendAfter(ctx, 0, target, envCall, msg, callID)
	return err
}

// Sleep schedules a WakeSignal delivered to this server's own HandleInfo
// after delay virtual milliseconds. There is no coroutine to suspend in a
// synchronous single-threaded engine, so "sleeping" is modelled as handing
// control back and resuming via the normal message-dispatch path
// (spec.md §4.3).
func (s *Server) Sleep(ctx context.Context, delay int64) (timectrl.Handle, error) {
	handle, err := s.clock.ScheduleAfter(ctx, delay, s, &Envelope{
		Kind:     envInfo,
		Payload:  WakeSignal{},
		From:     s.name,
		Internal: true,
	})
	if err != nil {
		return timectrl.Handle{}, err
	}
	s.mu.Lock()
	s.selfTimer = handle
	s.mu.Unlock()
	return handle, nil
}

// CancelTimer cancels a previously returned SendAfter/Sleep Handle directly,
// for callers (e.g. Actor.Terminate) that want to release their own timer
// without waiting for Stop. Cancelling an already-fired or already-cancelled
// handle is a harmless no-op.
func (s *Server) CancelTimer(h timectrl.Handle) error {
	return s.clock.Cancel(h)
}

func (s *Server) sendAfter(ctx context.Context, delay int64, target string, kind envelopeKind, msg any, callID string) (timectrl.Handle, error) {
	dst, ok := s.router.Resolve(target)
	if !ok {
		return timectrl.Handle{}, ErrUnknownTarget
	}

	env := &Envelope{Kind: kind, Payload: msg, From: s.name, CallID: callID}
	handle, err := s.clock.ScheduleAfter(ctx, delay, dst, env)
	if err != nil {
		return timectrl.Handle{}, err
	}

	if dst == s {
		s.mu.Lock()
		s.selfTimer = handle
		s.mu.Unlock()
	}

	if s.statsOn {
		s.stats.recordSend(s.clock.Now() + delay)
	}
	if s.traceSink != nil {
		s.traceSink(s.clock.Now()+delay, s.name, target, msg, messageKindFor(kind))
	}
	return handle, nil
}

func messageKindFor(k envelopeKind) MessageKind {
	switch k {
	case envCast:
		return KindCast
	case envCall, envCallReply, envCallTimeout:
		return KindCall
	default:
		return KindSend
	}
}

// Dispatch implements timectrl.Dispatchable. It is invoked by the bound
// TimeBackend when a scheduled message for this server is due.
func (s *Server) Dispatch(ctx context.Context, message any) {
	env, ok := message.(*Envelope)
	if !ok {
		// A foreign sender delivered a raw payload: treat it as handle_info
		// so non-vtserver Dispatchables can still drive this server
		// (spec.md §6.5).
		env = &Envelope{Kind: envInfo, Payload: message}
	}

	if s.statsOn && !env.Internal {
		s.stats.recordReceive(s.clock.Now())
	}

	var result CallbackResult
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch env.Kind {
	case envSend, envCast:
		result = s.callbacks.HandleCast(ctx, env.Payload, state)
	case envCall:
		result = s.handleIncomingCall(ctx, env, state)
	case envCallReply:
		result = s.handleCallReply(ctx, env, state)
	case envCallTimeout:
		result = s.handleCallTimeout(ctx, env, state)
	default:
		result = s.callbacks.HandleInfo(ctx, env.Payload, state)
	}

	s.apply(ctx, result)
}

// handleIncomingCall invokes HandleCall and, if it replied, routes the
// reply back to env.From tagged with env.CallID.
func (s *Server) handleIncomingCall(ctx context.Context, env *Envelope, state any) CallbackResult {
	result := s.callbacks.HandleCall(ctx, env.Payload, env.From, state)
	if result.Kind == ResultReply {
		if dst, ok := s.router.Resolve(env.From); ok {
			reply := &Envelope{Kind: envCallReply, Payload: result.Reply, From: s.name, CallID: env.CallID}
			_, _ = s.clock.ScheduleAfter(ctx, 0, dst, reply)
		}
	}
	return result
}

// handleCallReply cancels the matching timeout and forwards a successful
// CallResult to HandleInfo. A reply that arrives after the timeout already
// resolved the call is dropped.
func (s *Server) handleCallReply(ctx context.Context, env *Envelope, state any) CallbackResult {
	s.mu.Lock()
	pc, ok := s.pending[env.CallID]
	if ok {
		delete(s.pending, env.CallID)
	}
	s.mu.Unlock()

	if !ok {
		return OK(state)
	}
	_ = s.clock.Cancel(pc.timeout)

	return s.callbacks.HandleInfo(ctx, CallResult{CallID: env.CallID, Value: env.Payload}, state)
}

// handleCallTimeout fires only if the call is still pending (it may have
// already been resolved by a reply that raced the timer and lost).
func (s *Server) handleCallTimeout(ctx context.Context, env *Envelope, state any) CallbackResult {
	s.mu.Lock()
	_, ok := s.pending[env.CallID]
	if ok {
		delete(s.pending, env.CallID)
	}
	s.mu.Unlock()

	if !ok {
		return OK(state)
	}

	return s.callbacks.HandleInfo(ctx, CallResult{CallID: env.CallID, Err: ErrCallTimeout}, state)
}

// apply commits a CallbackResult's state and performs any requested sends,
// logging (but never raising) handler errors so one misbehaving server
// can't abort dispatch for the rest of the graph (spec.md §7).
func (s *Server) apply(ctx context.Context, result CallbackResult) {
	s.mu.Lock()
	s.state = result.State
	s.mu.Unlock()

	switch result.Kind {
	case ResultSend:
		for _, out := range result.Messages {
			if _, err := s.sendAfter(ctx, 0, out.Target, envSend, out.Message, ""); err != nil {
				s.logger.Warn(ctx, "vtserver: outbound send failed",
					logging.String("server", s.name),
					logging.String("target", out.Target),
					logging.Any("error", err),
				)
			}
		}
	case ResultSendAfter:
		for _, out := range result.Messages {
			if _, err := s.sendAfter(ctx, result.Delay, out.Target, envSend, out.Message, ""); err != nil {
				s.logger.Warn(ctx, "vtserver: outbound send_after failed",
					logging.String("server", s.name),
					logging.String("target", out.Target),
					logging.Any("error", err),
				)
			}
		}
	case ResultError:
		s.logger.Error(ctx, "vtserver: callback returned error",
			logging.String("server", s.name),
			logging.Any("error", result.Err),
		)
	}
}

// Stop invokes Terminate with reason and cancels the timers this server
// tracks: every pending call timeout, and the most recently scheduled
// self-directed timer (tick, Sleep wake or self-send). Only that last
// self-directed handle is kept, so an earlier self-directed timer that is
// still outstanding is not cancelled, nor are messages already scheduled
// for other servers (spec.md §3 "pending_timers").
func (s *Server) Stop(ctx context.Context, reason error) {
	s.mu.Lock()
	state := s.state
	pending := s.pending
	s.pending = make(map[string]*pendingCall)
	selfTimer := s.selfTimer
	s.selfTimer = timectrl.Handle{}
	s.mu.Unlock()

	for _, pc := range pending {
		_ = s.clock.Cancel(pc.timeout)
	}
	if !selfTimer.IsZero() {
		_ = s.clock.Cancel(selfTimer)
	}
	s.callbacks.Terminate(ctx, reason, state)
}

var _ timectrl.Dispatchable = (*Server)(nil)
