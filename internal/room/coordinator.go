// Package room drives one chat session: it negotiates a peer-to-peer link
// through the relay, exchanges public keys once the link is up, and moves
// chat messages through the encryption layer.
//
// All session state is owned by the goroutine running Coordinator.Run.
// Relay and peer callbacks, user intents and worker results are queued onto
// it, so nothing else mutates the session record.
package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/BioHazard786/Warpchat/internal/peer"
	"github.com/BioHazard786/Warpchat/internal/seal"
)

// Gateway is the relay connection as the coordinator uses it.
type Gateway interface {
	CreateRoom(name string, initiator json.RawMessage) error
	JoinRoom(name string) error
	Answer(name string, answer json.RawMessage) error
	OnOffer(fn func(offer json.RawMessage))
	OnAnswer(fn func(answer json.RawMessage))
	OnFailedCreate(fn func())
	OnFailedJoin(fn func())
}

// Session is one end of the peer-to-peer link.
type Session interface {
	OnSignal(fn func(json.RawMessage))
	OnConnect(fn func())
	OnData(fn func([]byte))
	OnError(fn func(error))
	Start() error
	AcceptSignal(data json.RawMessage) error
	Send(data []byte) error
	Close() error
}

// SessionFactory opens a peer session for a role.
type SessionFactory func(role peer.Role) (Session, error)

// Cipher is the encryption layer.
type Cipher interface {
	GenerateKeyPair(ctx context.Context, id seal.Identity, curve, passphrase string) (*seal.KeyPair, error)
	Encrypt(plaintext, publicKey string) (string, error)
	Decrypt(ciphertext, privateKey, passphrase string) (string, error)
}

// Options are the per-session protocol parameters.
type Options struct {
	// Curve names the key algorithm.
	Curve string

	// Passphrase seals the private key. Empty means a random passphrase
	// per keypair.
	Passphrase string

	// Email goes into the key's identity next to the user name.
	Email string

	Echo EchoPolicy
	Wire WireFormat

	Logger *slog.Logger
}

// Deps are the collaborators a coordinator drives.
type Deps struct {
	Gateway    Gateway
	NewSession SessionFactory
	Cipher     Cipher
}

// session is the record owned by the loop goroutine.
type session struct {
	state ConnectionState
	room  string
	user  string
	peer  Session

	keys         *seal.KeyPair
	localKeySent bool
	remoteKey    string

	// keyErr is set once the local half of the key exchange has failed.
	// Nothing can be sent after that.
	keyErr error

	chats []ChatMessage

	// deferred holds chats sent before the key exchange finished.
	deferred []ChatMessage

	// pending holds ciphertexts that arrived before decryption was possible.
	pending []string

	stats Stats
}

// Coordinator runs the room state machine for one local user.
type Coordinator struct {
	id     string
	opts   Options
	deps   Deps
	logger *slog.Logger

	loop     *queue
	outbound *queue
	inbound  *queue

	updates chan Update

	// mu guards s for readers outside the loop. Only the loop writes.
	mu sync.RWMutex
	s  session

	runCtx    context.Context
	started   atomic.Bool
	closing   chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}
}

// New creates a coordinator and registers its relay handlers. Call Run to
// start processing.
func New(opts Options, deps Deps) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Curve == "" {
		opts.Curve = "curve25519"
	}

	id := uuid.NewString()
	c := &Coordinator{
		id:       id,
		opts:     opts,
		deps:     deps,
		logger:   logger.With("session", id[:8]),
		loop:     newQueue(),
		outbound: newQueue(),
		inbound:  newQueue(),
		updates:  make(chan Update, 256),
		runCtx:   context.Background(),
		closing:  make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	deps.Gateway.OnOffer(func(offer json.RawMessage) {
		c.loop.push(func() { c.handleOffer(offer) })
	})
	deps.Gateway.OnAnswer(func(answer json.RawMessage) {
		c.loop.push(func() { c.handleAnswer(answer) })
	})
	deps.Gateway.OnFailedCreate(func() {
		c.loop.push(func() { c.handleRelayFailure(Creating, "create-room") })
	})
	deps.Gateway.OnFailedJoin(func() {
		c.loop.push(func() { c.handleRelayFailure(Joining, "join-room") })
	})

	return c
}

// Run processes events until ctx is canceled or Close is called. It closes
// the peer session on the way out.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrInvalidTransition
	}
	defer close(c.stopped)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-c.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	c.runCtx = ctx
	c.logger.Debug("coordinator running")

	go c.outbound.run(ctx.Done())
	go c.inbound.run(ctx.Done())
	c.loop.run(ctx.Done())

	c.mu.RLock()
	p := c.s.peer
	c.mu.RUnlock()
	if p != nil {
		if err := p.Close(); err != nil {
			c.logger.Debug("closing peer session", "error", err)
		}
	}

	select {
	case <-c.closing:
		return nil
	default:
		return ctx.Err()
	}
}

// Close stops Run and waits for it to finish.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() { close(c.closing) })
	if c.started.Load() {
		<-c.stopped
	}
	return nil
}

// Updates streams state changes, messages and errors. Slow consumers miss
// updates rather than stall the session.
func (c *Coordinator) Updates() <-chan Update {
	return c.updates
}

// call runs fn on the loop and waits for its result.
func (c *Coordinator) call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	c.loop.push(func() { result <- fn() })

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closing:
		return ErrClosed
	case <-c.stopped:
		return ErrClosed
	}
}

// CreateRoom opens an initiator session and registers the room on the
// relay once the local offer is ready. Valid only in Start.
func (c *Coordinator) CreateRoom(ctx context.Context, name, user string) error {
	return c.call(ctx, func() error {
		return c.open(peer.Initiator, name, user)
	})
}

// JoinRoom opens a responder session and asks the relay for the room's
// offer. Valid only in Start.
func (c *Coordinator) JoinRoom(ctx context.Context, name, user string) error {
	return c.call(ctx, func() error {
		return c.open(peer.Responder, name, user)
	})
}

// SendChat appends a message to the log according to the echo policy and
// sends it encrypted to the peer. Valid only once Connected; messages sent
// before the key exchange completes are held and delivered in order. Once
// our key could not be generated or sent, it returns that failure.
func (c *Coordinator) SendChat(ctx context.Context, text string) error {
	return c.call(ctx, func() error {
		if c.s.state != Connected || c.s.user == "" {
			return ErrInvalidTransition
		}

		if c.s.keyErr != nil {
			return c.s.keyErr
		}

		msg := ChatMessage{From: c.s.user, Text: text}
		if c.opts.Echo == EchoImmediately {
			c.appendChat(msg, true)
		}

		if !c.ready() {
			c.update(func(s *session) {
				s.deferred = append(s.deferred, msg)
				s.stats.Deferred++
			})
			c.logger.Debug("chat deferred until key exchange completes", "queued", len(c.s.deferred))
			return nil
		}

		c.enqueueChat(msg)
		return nil
	})
}

func (c *Coordinator) open(role peer.Role, name, user string) error {
	target := Creating
	if role == peer.Responder {
		target = Joining
	}
	if !canTransition(c.s.state, target) {
		return ErrInvalidTransition
	}
	if name == "" || user == "" {
		return ErrMissingName
	}

	p, err := c.deps.NewSession(role)
	if err != nil {
		return &TransportError{Op: "open peer session", Err: err}
	}

	p.OnSignal(func(sig json.RawMessage) {
		c.loop.push(func() { c.handleSignal(sig) })
	})
	p.OnConnect(func() {
		c.loop.push(c.handleConnect)
	})
	p.OnData(func(data []byte) {
		buf := append([]byte(nil), data...)
		c.loop.push(func() { c.handleData(buf) })
	})
	p.OnError(func(err error) {
		c.loop.push(func() { c.fail(&TransportError{Op: "peer session", Err: err}) })
	})

	if err := p.Start(); err != nil {
		p.Close()
		return &TransportError{Op: "start peer session", Err: err}
	}

	if role == peer.Responder {
		if err := c.deps.Gateway.JoinRoom(name); err != nil {
			p.Close()
			return &TransportError{Op: "join-room", Err: err}
		}
	}

	c.update(func(s *session) {
		s.peer = p
		s.room = name
		s.user = user
	})
	c.setState(target)
	c.logger.Info("room negotiation started", "room", name, "role", role.String())
	return nil
}

func (c *Coordinator) handleSignal(sig json.RawMessage) {
	var err error
	switch c.s.state {
	case Creating:
		err = c.deps.Gateway.CreateRoom(c.s.room, sig)
		if err != nil {
			err = &TransportError{Op: "create-room", Err: err}
		}
	case Joining:
		err = c.deps.Gateway.Answer(c.s.room, sig)
		if err != nil {
			err = &TransportError{Op: "answer", Err: err}
		}
	default:
		c.logger.Debug("ignoring late signal", "state", c.s.state.String())
		return
	}
	if err != nil {
		c.fail(err)
	}
}

func (c *Coordinator) handleOffer(offer json.RawMessage) {
	if c.s.state != Joining {
		c.logger.Warn("ignoring offer", "state", c.s.state.String())
		return
	}
	if err := c.s.peer.AcceptSignal(offer); err != nil {
		c.fail(&TransportError{Op: "accept offer", Err: err})
	}
}

func (c *Coordinator) handleAnswer(answer json.RawMessage) {
	if c.s.state != Creating {
		c.logger.Warn("ignoring answer", "state", c.s.state.String())
		return
	}
	if err := c.s.peer.AcceptSignal(answer); err != nil {
		c.fail(&TransportError{Op: "accept answer", Err: err})
	}
}

func (c *Coordinator) handleRelayFailure(expect ConnectionState, op string) {
	if c.s.state != expect {
		c.logger.Debug("ignoring relay failure", "op", op, "state", c.s.state.String())
		return
	}
	c.fail(&NegotiationError{Op: op, Room: c.s.room})
}

func (c *Coordinator) handleConnect() {
	if !canTransition(c.s.state, Connected) {
		c.logger.Debug("ignoring connect", "state", c.s.state.String())
		return
	}

	c.update(func(s *session) { s.stats.ConnectedAt = time.Now() })
	c.setState(Connected)
	c.logger.Info("peer connected", "room", c.s.room)

	ctx := c.runCtx
	id := seal.Identity{Name: c.s.user, Email: c.opts.Email}
	go func() {
		passphrase := c.opts.Passphrase
		if passphrase == "" {
			var err error
			passphrase, err = seal.RandomPassphrase()
			if err != nil {
				c.loop.push(func() { c.keyExchangeFailed(&CryptoError{Op: "generate keypair", Err: err}) })
				return
			}
		}

		kp, err := c.deps.Cipher.GenerateKeyPair(ctx, id, c.opts.Curve, passphrase)
		c.loop.push(func() { c.handleKeyPair(kp, err) })
	}()
}

func (c *Coordinator) handleKeyPair(kp *seal.KeyPair, err error) {
	if err != nil {
		c.keyExchangeFailed(&CryptoError{Op: "generate keypair", Err: err})
		return
	}

	c.update(func(s *session) { s.keys = kp })
	c.logger.Debug("local keypair ready", "fingerprint", seal.Fingerprint(kp.PublicKey))

	payload, err := c.opts.Wire.encode(envelopeKey, kp.PublicKey)
	if err != nil {
		c.keyExchangeFailed(&TransportError{Op: "encode key", Err: err})
		return
	}

	p := c.s.peer
	c.outbound.push(func() {
		err := p.Send(payload)
		c.loop.push(func() {
			if err != nil {
				c.keyExchangeFailed(&TransportError{Op: "send key", Err: err})
				return
			}
			c.update(func(s *session) { s.localKeySent = true })
			c.flush()
		})
	})

	c.flush()
}

func (c *Coordinator) handleData(data []byte) {
	if c.s.state != Connected {
		c.logger.Warn("dropping payload before connect", "state", c.s.state.String())
		return
	}

	kind, text, err := c.opts.Wire.decode(data, c.s.remoteKey != "")
	if err != nil {
		c.fail(&TransportError{Op: "decode payload", Err: err})
		return
	}

	switch kind {
	case envelopeKey:
		if c.s.remoteKey != "" {
			c.logger.Warn("ignoring repeated public key")
			return
		}
		c.update(func(s *session) { s.remoteKey = text })
		c.logger.Info("remote key received", "fingerprint", seal.Fingerprint(text))
		c.publish(Update{Kind: UpdateKeyExchanged, State: c.s.state})
		c.flush()

	case envelopeMessage:
		c.update(func(s *session) { s.pending = append(s.pending, text) })
		c.flush()
	}
}

// ready reports whether chats can be encrypted and sent in order.
func (c *Coordinator) ready() bool {
	return c.s.remoteKey != "" && c.s.localKeySent
}

// flush releases deferred chats and pending ciphertexts once their
// preconditions hold.
func (c *Coordinator) flush() {
	if c.ready() && len(c.s.deferred) > 0 {
		deferred := c.s.deferred
		c.update(func(s *session) { s.deferred = nil })
		for _, msg := range deferred {
			c.enqueueChat(msg)
		}
	}

	if c.s.keys != nil && c.s.remoteKey != "" && len(c.s.pending) > 0 {
		pending := c.s.pending
		c.update(func(s *session) { s.pending = nil })
		for _, ct := range pending {
			c.enqueueDecrypt(ct)
		}
	}
}

func (c *Coordinator) enqueueChat(msg ChatMessage) {
	remoteKey := c.s.remoteKey
	p := c.s.peer
	cipher := c.deps.Cipher
	wire := c.opts.Wire

	c.outbound.push(func() {
		body, err := json.Marshal(msg)
		if err != nil {
			c.loop.push(func() { c.fail(&CryptoError{Op: "encode chat", Err: err}) })
			return
		}

		ciphertext, err := cipher.Encrypt(string(body), remoteKey)
		if err != nil {
			c.loop.push(func() { c.sendFailed(&CryptoError{Op: "encrypt", Err: err}) })
			return
		}

		payload, err := wire.encode(envelopeMessage, ciphertext)
		if err == nil {
			err = p.Send(payload)
		}
		if err != nil {
			c.loop.push(func() { c.sendFailed(&TransportError{Op: "send chat", Err: err}) })
			return
		}

		c.loop.push(func() {
			c.update(func(s *session) { s.stats.Sent++ })
			if c.opts.Echo == EchoAfterConfirmedSend {
				c.appendChat(msg, true)
			}
		})
	})
}

func (c *Coordinator) enqueueDecrypt(ciphertext string) {
	keys := *c.s.keys
	cipher := c.deps.Cipher

	c.inbound.push(func() {
		plaintext, err := cipher.Decrypt(ciphertext, keys.PrivateKey, keys.Passphrase)
		if err != nil {
			c.loop.push(func() { c.decryptFailed(&CryptoError{Op: "decrypt", Err: err}) })
			return
		}

		var msg ChatMessage
		if err := json.Unmarshal([]byte(plaintext), &msg); err != nil {
			c.loop.push(func() { c.decryptFailed(&CryptoError{Op: "decode chat", Err: err}) })
			return
		}

		c.loop.push(func() {
			c.update(func(s *session) { s.stats.Received++ })
			c.appendChat(msg, false)
		})
	})
}

// keyExchangeFailed records that our key can never be sent and fails every
// deferred chat, since none of them can leave any more.
func (c *Coordinator) keyExchangeFailed(cause error) {
	deferred := c.s.deferred
	c.update(func(s *session) {
		s.keyErr = fmt.Errorf("%w: %w", ErrKeyExchange, cause)
		s.deferred = nil
	})
	c.fail(cause)

	for range deferred {
		c.sendFailed(&TransportError{Op: "send deferred chat", Err: c.s.keyErr})
	}
}

func (c *Coordinator) sendFailed(err error) {
	c.update(func(s *session) { s.stats.SendFailures++ })
	c.fail(err)
}

func (c *Coordinator) decryptFailed(err error) {
	c.update(func(s *session) { s.stats.DecryptFailures++ })
	c.fail(err)
}

func (c *Coordinator) appendChat(msg ChatMessage, local bool) {
	c.update(func(s *session) { s.chats = append(s.chats, msg) })
	c.publish(Update{Kind: UpdateMessage, State: c.s.state, Message: msg, Local: local})
}

// fail logs and publishes a per-session error. State is left unchanged.
func (c *Coordinator) fail(err error) {
	c.logger.Error("session error", "room", c.s.room, "state", c.s.state.String(), "error", err)
	c.publish(Update{Kind: UpdateError, State: c.s.state, Err: err})
}

func (c *Coordinator) setState(state ConnectionState) {
	c.update(func(s *session) { s.state = state })
	c.publish(Update{Kind: UpdateState, State: state})
}

func (c *Coordinator) update(fn func(s *session)) {
	c.mu.Lock()
	fn(&c.s)
	c.mu.Unlock()
}

func (c *Coordinator) publish(u Update) {
	select {
	case c.updates <- u:
	default:
		c.logger.Debug("update dropped, consumer too slow", "kind", u.Kind)
	}
}

// State returns the current connection state.
func (c *Coordinator) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s.state
}

// Chats returns a copy of the chat log.
func (c *Coordinator) Chats() []ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ChatMessage(nil), c.s.chats...)
}

// Room returns the room name, empty before create or join.
func (c *Coordinator) Room() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s.room
}

// UserName returns the local user name.
func (c *Coordinator) UserName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s.user
}

// LocalFingerprint identifies the local public key, empty until generated.
func (c *Coordinator) LocalFingerprint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.s.keys == nil {
		return ""
	}
	return seal.Fingerprint(c.s.keys.PublicKey)
}

// RemoteFingerprint identifies the peer's public key, empty until received.
func (c *Coordinator) RemoteFingerprint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return seal.Fingerprint(c.s.remoteKey)
}

// Stats returns traffic counters.
func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s.stats
}

// ID identifies the session in logs.
func (c *Coordinator) ID() string {
	return c.id
}
