// Package supervisor owns the transport child process: it spawns it, speaks
// the framed protocol over its standard streams, tracks the connection state
// machine, and restarts the child with capped exponential backoff when the
// link drops. Everything else in the program observes the connection through
// the supervisor; nothing else writes connection state.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/metanoia-oss/wingman/internal/ipc"
)

var (
	ErrNotConnected = errors.New("supervisor: transport is not connected")
	ErrClosed       = errors.New("supervisor: closed")
)

const (
	defaultBackoffBase   = 1 * time.Second
	defaultBackoffCap    = 30 * time.Second
	defaultMaxReconnects = 10
	defaultQuiescent     = 5 * time.Second
	defaultPingTimeout   = 10 * time.Second
	defaultShutdownGrace = 5 * time.Second
	defaultEventBuffer   = 64
)

type Options struct {
	NewChild ChildFactory
	Logger   *slog.Logger

	// StatePath points to the durable last-disconnect record. Empty disables
	// persistence; the quiescent floor then only applies within one process.
	StatePath string

	Now func() time.Time

	BackoffBase          time.Duration
	BackoffCap           time.Duration
	MaxReconnectAttempts int
	QuiescentFloor       time.Duration

	// PingInterval of zero disables liveness probing.
	PingInterval time.Duration
	PingTimeout  time.Duration

	ShutdownGrace time.Duration
	EventBuffer   int
}

func (o *Options) fillDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = defaultBackoffBase
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = defaultBackoffCap
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = defaultMaxReconnects
	}
	if o.QuiescentFloor < 0 {
		o.QuiescentFloor = 0
	} else if o.QuiescentFloor == 0 {
		o.QuiescentFloor = defaultQuiescent
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = defaultPingTimeout
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = defaultShutdownGrace
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = defaultEventBuffer
	}
}

// Supervisor runs the transport child and surfaces its events.
type Supervisor struct {
	opts Options
	log  *slog.Logger

	events chan ipc.Event

	// wmu serializes frame writes to the child's stdin. Frames can exceed
	// the pipe's atomic write size, so concurrent senders (pipeline, pinger,
	// shutdown) must not interleave.
	wmu sync.Mutex

	mu       sync.Mutex
	state    State
	attempt  int
	selfJID  string
	selfName string
	started  bool
	child    Child
	stdin    io.WriteCloser
	pending  map[string]time.Time
	pongWarn *time.Timer

	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	lastDisconnect time.Time
}

func New(opts Options) (*Supervisor, error) {
	if opts.NewChild == nil {
		return nil, fmt.Errorf("supervisor: child factory is required")
	}
	opts.fillDefaults()

	last, err := loadLastDisconnect(opts.StatePath)
	if err != nil {
		opts.Logger.Warn("disconnect_record_unreadable", "path", opts.StatePath, "error", err)
		last = time.Time{}
	}

	return &Supervisor{
		opts:           opts,
		log:            opts.Logger,
		events:         make(chan ipc.Event, opts.EventBuffer),
		state:          StateIdle,
		pending:        map[string]time.Time{},
		closing:        make(chan struct{}),
		done:           make(chan struct{}),
		lastDisconnect: last,
	}, nil
}

// Events delivers decoded transport events in arrival order. The channel is
// closed when the supervisor stops, after a terminal event if the stop was a
// failure.
func (s *Supervisor) Events() <-chan ipc.Event { return s.events }

func (s *Supervisor) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SelfJID is the authenticated account identifier, empty before the first
// successful connect.
func (s *Supervisor) SelfJID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfJID
}

func (s *Supervisor) SelfName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfName
}

// Start launches the run loop. It returns immediately; connection progress
// arrives on Events. A start while one is already running is a no-op: the
// existing attempt keeps its state and no second child is spawned.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	select {
	case <-s.closing:
		s.mu.Unlock()
		return ErrClosed
	default:
	}
	if s.started {
		state := s.state
		s.mu.Unlock()
		s.log.Debug("start_ignored", "state", string(state))
		return nil
	}
	s.started = true
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// SendMessage queues a text for delivery and returns the correlation
// identifier that the eventual send_result event will carry. It never blocks
// on the network; failure to deliver surfaces as a send_result with
// success=false or no result at all.
func (s *Supervisor) SendMessage(jid, text string) (string, error) {
	s.mu.Lock()
	if s.state != StateOpen || s.stdin == nil {
		s.mu.Unlock()
		return "", ErrNotConnected
	}
	stdin := s.stdin
	id := uuid.NewString()
	s.pending[id] = s.opts.Now()
	s.mu.Unlock()

	frame, err := ipc.EncodeCommand(ipc.SendMessage(jid, text, id))
	if err != nil {
		s.forgetPending(id)
		return "", err
	}
	if err := s.writeFrame(stdin, frame); err != nil {
		s.forgetPending(id)
		return "", fmt.Errorf("write send_message frame: %w", err)
	}
	return id, nil
}

// writeFrame writes one frame as a unit. Pipe writes beyond PIPE_BUF are not
// atomic, so all stdin writers go through here.
func (s *Supervisor) writeFrame(stdin io.WriteCloser, frame []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err := stdin.Write(frame)
	return err
}

// Ping probes transport liveness. A missing pong within the configured
// timeout logs a warning; it never tears the connection down.
func (s *Supervisor) Ping() error {
	s.mu.Lock()
	if s.state != StateOpen || s.stdin == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	stdin := s.stdin
	if s.pongWarn != nil {
		s.pongWarn.Stop()
	}
	s.pongWarn = time.AfterFunc(s.opts.PingTimeout, func() {
		s.log.Warn("pong_timeout", "timeout", s.opts.PingTimeout)
	})
	s.mu.Unlock()

	frame, err := ipc.EncodeCommand(ipc.Ping())
	if err != nil {
		return err
	}
	if err := s.writeFrame(stdin, frame); err != nil {
		return fmt.Errorf("write ping frame: %w", err)
	}
	return nil
}

// Shutdown asks the child to exit cleanly, escalating to signal and then kill
// when it does not comply within the grace period. It is safe to call more
// than once and from any goroutine.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.state != StateIdle && s.state != StateFailed {
			s.state = StateClosing
		}
		stdin := s.stdin
		started := s.started
		close(s.closing)
		s.mu.Unlock()

		if stdin != nil {
			if frame, err := ipc.EncodeCommand(ipc.Shutdown()); err == nil {
				if werr := s.writeFrame(stdin, frame); werr != nil {
					s.log.Debug("shutdown_frame_write_failed", "error", werr)
				}
			}
		}
		if !started {
			close(s.done)
		}
	})

	grace := time.NewTimer(s.opts.ShutdownGrace)
	defer grace.Stop()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-grace.C:
	}

	s.mu.Lock()
	child := s.child
	s.mu.Unlock()
	if child != nil {
		if err := child.Terminate(); err != nil {
			s.log.Debug("terminate_failed", "error", err)
		}
	}

	kill := time.NewTimer(s.opts.ShutdownGrace)
	defer kill.Stop()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-kill.C:
	}
	if child != nil {
		if err := child.Kill(); err != nil {
			s.log.Warn("kill_failed", "error", err)
		}
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type epochOutcome int

const (
	outcomeDisconnected epochOutcome = iota // transient loss, back off and retry
	outcomeLoggedOut                        // credentials invalid, re-auth without backoff
	outcomeChildFailed                      // child reported its own reconnect ceiling
	outcomeShutdown                         // deliberate stop
)

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)

	for {
		if s.stopRequested(ctx) {
			s.setState(StateIdle)
			return
		}

		s.waitQuiescentFloor(ctx)
		if s.stopRequested(ctx) {
			s.setState(StateIdle)
			return
		}

		outcome := s.runEpoch(ctx)
		s.noteDisconnect()

		switch outcome {
		case outcomeShutdown:
			s.setState(StateIdle)
			return
		case outcomeChildFailed:
			s.fail("transport_reported_failure")
			return
		case outcomeLoggedOut:
			// A fresh child presents a new QR challenge; no backoff applies
			// because the link itself was fine.
			s.setState(StateAuthenticating)
			s.mu.Lock()
			s.attempt = 0
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		s.attempt++
		attempt := s.attempt
		s.mu.Unlock()

		if attempt > s.opts.MaxReconnectAttempts {
			s.fail("reconnect_attempts_exhausted")
			return
		}

		delay := backoffDelay(attempt, s.opts.BackoffBase, s.opts.BackoffCap)
		s.setState(StateReconnecting)
		s.log.Info("reconnect_scheduled", "attempt", attempt, "delay", delay)
		if !s.sleep(ctx, delay) {
			s.setState(StateIdle)
			return
		}
	}
}

// runEpoch drives one child from spawn to exit.
func (s *Supervisor) runEpoch(ctx context.Context) epochOutcome {
	s.setState(StateStarting)

	child, err := s.opts.NewChild()
	if err != nil {
		s.log.Error("child_spawn_failed", "error", err)
		return outcomeDisconnected
	}
	if err := child.Start(); err != nil {
		s.log.Error("child_start_failed", "error", err)
		return outcomeDisconnected
	}

	s.mu.Lock()
	s.child = child
	s.stdin = child.Stdin()
	s.mu.Unlock()
	s.setState(StateConnecting)

	stopPinger := s.startPinger()
	go s.forwardStderr(child.Stderr())

	flags := s.readEvents(child.Stdout())

	stopPinger()
	s.mu.Lock()
	s.stdin = nil
	if s.pongWarn != nil {
		s.pongWarn.Stop()
		s.pongWarn = nil
	}
	s.mu.Unlock()

	if err := child.Wait(); err != nil {
		s.log.Info("child_exited", "error", err)
	} else {
		s.log.Info("child_exited")
	}
	s.mu.Lock()
	s.child = nil
	s.mu.Unlock()

	switch {
	case s.stopRequested(ctx):
		return outcomeShutdown
	case flags.childFailed:
		return outcomeChildFailed
	case flags.loggedOut:
		return outcomeLoggedOut
	default:
		return outcomeDisconnected
	}
}

type epochFlags struct {
	loggedOut   bool
	childFailed bool
}

// readEvents pumps decoded frames from the child's stdout until EOF.
func (s *Supervisor) readEvents(stdout io.ReadCloser) epochFlags {
	var flags epochFlags
	var dec ipc.Decoder
	buf := make([]byte, 32*1024)

	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			for _, ev := range dec.Write(buf[:n]) {
				s.handleEvent(ev, &flags)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("stdout_read_ended", "error", err)
			}
			if pend := dec.Pending(); pend > 0 {
				s.log.Warn("partial_frame_discarded", "bytes", pend)
			}
			return flags
		}
	}
}

func (s *Supervisor) handleEvent(ev ipc.Event, flags *epochFlags) {
	switch ev.Type {
	case ipc.EventConnected:
		s.mu.Lock()
		s.attempt = 0
		if ev.Connected != nil {
			s.selfJID = ev.Connected.User.ID
			s.selfName = ev.Connected.User.Name
		}
		jid := s.selfJID
		s.mu.Unlock()
		s.setState(StateOpen)
		s.log.Info("transport_connected", "self_jid", jid)

	case ipc.EventQRCode:
		s.setState(StateAuthenticating)
		s.log.Info("qr_challenge_pending")

	case ipc.EventDisconnected:
		if ev.Disconnected != nil && !ev.Disconnected.ShouldReconnect {
			flags.loggedOut = true
		}
		s.log.Info("transport_disconnected",
			"status_code", statusCode(ev.Disconnected),
			"should_reconnect", shouldReconnect(ev.Disconnected))

	case ipc.EventLoggedOut:
		flags.loggedOut = true
		s.log.Warn("transport_logged_out")

	case ipc.EventMaxReconnectReached:
		flags.childFailed = true
		s.log.Error("transport_gave_up")

	case ipc.EventPong:
		s.mu.Lock()
		if s.pongWarn != nil {
			s.pongWarn.Stop()
			s.pongWarn = nil
		}
		s.mu.Unlock()

	case ipc.EventSendResult:
		if ev.SendResult != nil {
			s.resolvePending(ev.SendResult)
		}

	case ipc.EventError:
		msg := ""
		if ev.Err != nil {
			msg = ev.Err.Message
		}
		s.log.Warn("transport_error", "message", msg)
	}

	s.forward(ev)
}

// forward hands the event to the consumer, preserving order. Once shutdown
// begins the consumer may be gone, so events are dropped instead.
func (s *Supervisor) forward(ev ipc.Event) {
	select {
	case <-s.closing:
		return
	default:
	}
	select {
	case s.events <- ev:
	case <-s.closing:
	}
}

func (s *Supervisor) resolvePending(res *ipc.SendResultPayload) {
	s.mu.Lock()
	sentAt, known := s.pending[res.MessageID]
	delete(s.pending, res.MessageID)
	s.mu.Unlock()

	if !known {
		s.log.Debug("send_result_unmatched", "message_id", res.MessageID)
		return
	}
	if res.Success {
		s.log.Info("message_delivered", "message_id", res.MessageID, "latency", s.opts.Now().Sub(sentAt))
	} else {
		s.log.Warn("message_delivery_failed", "message_id", res.MessageID, "jid", res.JID)
	}
}

func (s *Supervisor) forgetPending(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Supervisor) forwardStderr(stderr io.ReadCloser) {
	if stderr == nil {
		return
	}
	buf := make([]byte, 8*1024)
	line := make([]byte, 0, 256)
	for {
		n, err := stderr.Read(buf)
		for _, b := range buf[:n] {
			if b == '\n' {
				if len(line) > 0 {
					s.log.Debug("transport_stderr", "line", string(line))
					line = line[:0]
				}
				continue
			}
			line = append(line, b)
		}
		if err != nil {
			if len(line) > 0 {
				s.log.Debug("transport_stderr", "line", string(line))
			}
			return
		}
	}
}

func (s *Supervisor) startPinger() func() {
	if s.opts.PingInterval <= 0 {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.Ping(); err != nil && !errors.Is(err, ErrNotConnected) {
					s.log.Debug("ping_failed", "error", err)
				}
			case <-stop:
				return
			case <-s.closing:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}

// waitQuiescentFloor guarantees a minimum gap since the last disconnect, even
// across process restarts.
func (s *Supervisor) waitQuiescentFloor(ctx context.Context) {
	s.mu.Lock()
	last := s.lastDisconnect
	s.mu.Unlock()
	if last.IsZero() {
		return
	}
	elapsed := s.opts.Now().Sub(last)
	if elapsed >= s.opts.QuiescentFloor {
		return
	}
	wait := s.opts.QuiescentFloor - elapsed
	s.log.Info("quiescent_floor_wait", "wait", wait)
	s.sleep(ctx, wait)
}

func (s *Supervisor) noteDisconnect() {
	now := s.opts.Now()
	s.mu.Lock()
	s.lastDisconnect = now
	s.mu.Unlock()
	if err := storeLastDisconnect(s.opts.StatePath, now); err != nil {
		s.log.Warn("disconnect_record_write_failed", "error", err)
	}
}

func (s *Supervisor) fail(reason string) {
	s.setState(StateFailed)
	s.log.Error("supervisor_failed", "reason", reason)
	s.forward(ipc.Event{Type: ipc.EventMaxReconnectReached})
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	prev := s.state
	if prev == StateClosing && st != StateIdle && st != StateFailed {
		// Shutdown already won; intermediate transitions no longer apply.
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.log.Debug("connection_state", "from", string(prev), "to", string(st))
	}
}

func (s *Supervisor) stopRequested(ctx context.Context) bool {
	select {
	case <-s.closing:
		return true
	default:
	}
	return ctx.Err() != nil
}

// sleep waits for d, returning false when interrupted by shutdown.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.closing:
		return false
	case <-ctx.Done():
		return false
	}
}

func statusCode(p *ipc.DisconnectedPayload) int {
	if p == nil {
		return 0
	}
	return p.StatusCode
}

func shouldReconnect(p *ipc.DisconnectedPayload) bool {
	if p == nil {
		return true
	}
	return p.ShouldReconnect
}
