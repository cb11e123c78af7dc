package room

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/Warpchat/internal/logging"
	"github.com/BioHazard786/Warpchat/internal/peer"
	"github.com/BioHazard786/Warpchat/internal/seal"
)

func testLogger() *slog.Logger {
	return logging.Discard()
}

// fakeRelay matches one creator with one joiner per room name, like the
// real relay hub, but delivers synchronously.
type fakeRelay struct {
	mu    sync.Mutex
	rooms map[string]*fakeRoom
}

type fakeRoom struct {
	creator *fakeGateway
	joiner  *fakeGateway
	offer   json.RawMessage
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{rooms: make(map[string]*fakeRoom)}
}

func (r *fakeRelay) gateway() *fakeGateway {
	return &fakeGateway{relay: r}
}

type fakeGateway struct {
	relay *fakeRelay

	mu             sync.Mutex
	onOffer        func(json.RawMessage)
	onAnswer       func(json.RawMessage)
	onFailedCreate func()
	onFailedJoin   func()
	emitted        []string
}

func (g *fakeGateway) record(event string) {
	g.mu.Lock()
	g.emitted = append(g.emitted, event)
	g.mu.Unlock()
}

func (g *fakeGateway) events() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.emitted...)
}

func (g *fakeGateway) CreateRoom(name string, initiator json.RawMessage) error {
	g.record("create-room")
	r := g.relay
	r.mu.Lock()
	_, exists := r.rooms[name]
	if !exists {
		r.rooms[name] = &fakeRoom{creator: g, offer: initiator}
	}
	r.mu.Unlock()

	if exists {
		g.failCreate()
	}
	return nil
}

func (g *fakeGateway) JoinRoom(name string) error {
	g.record("join-room")
	r := g.relay
	r.mu.Lock()
	room, ok := r.rooms[name]
	ok = ok && room.joiner == nil && room.creator != g
	if ok {
		room.joiner = g
	}
	r.mu.Unlock()

	if !ok {
		g.failJoin()
		return nil
	}

	g.mu.Lock()
	fn := g.onOffer
	g.mu.Unlock()
	if fn != nil {
		fn(room.offer)
	}
	return nil
}

func (g *fakeGateway) Answer(name string, answer json.RawMessage) error {
	g.record("answer")
	r := g.relay
	r.mu.Lock()
	room, ok := r.rooms[name]
	r.mu.Unlock()
	if !ok || room.joiner != g {
		return nil
	}

	room.creator.mu.Lock()
	fn := room.creator.onAnswer
	room.creator.mu.Unlock()
	if fn != nil {
		fn(answer)
	}
	return nil
}

func (g *fakeGateway) failCreate() {
	g.mu.Lock()
	fn := g.onFailedCreate
	g.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (g *fakeGateway) failJoin() {
	g.mu.Lock()
	fn := g.onFailedJoin
	g.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (g *fakeGateway) OnOffer(fn func(json.RawMessage)) {
	g.mu.Lock()
	g.onOffer = fn
	g.mu.Unlock()
}

func (g *fakeGateway) OnAnswer(fn func(json.RawMessage)) {
	g.mu.Lock()
	g.onAnswer = fn
	g.mu.Unlock()
}

func (g *fakeGateway) OnFailedCreate(fn func()) {
	g.mu.Lock()
	g.onFailedCreate = fn
	g.mu.Unlock()
}

func (g *fakeGateway) OnFailedJoin(fn func()) {
	g.mu.Lock()
	g.onFailedJoin = fn
	g.mu.Unlock()
}

// pipe connects two fake sessions in memory. Payloads are delivered in
// send order.
type pipe struct {
	ends [2]*pipeEnd
}

func newPipe() *pipe {
	p := &pipe{}
	p.ends[peer.Initiator] = &pipeEnd{pipe: p, role: peer.Initiator}
	p.ends[peer.Responder] = &pipeEnd{pipe: p, role: peer.Responder}
	return p
}

func (p *pipe) factory(role peer.Role) (Session, error) {
	return p.ends[role], nil
}

func (p *pipe) connect() {
	for _, end := range p.ends {
		end.mu.Lock()
		end.connected = true
		fn := end.onConnect
		end.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
}

type pipeEnd struct {
	pipe *pipe
	role peer.Role

	mu        sync.Mutex
	onSignal  func(json.RawMessage)
	onConnect func()
	onData    func([]byte)
	onError   func(error)
	connected bool
	closed    bool
	sendErr   error
	sent      [][]byte
}

func (e *pipeEnd) other() *pipeEnd {
	return e.pipe.ends[1-e.role]
}

func (e *pipeEnd) OnSignal(fn func(json.RawMessage)) { e.mu.Lock(); e.onSignal = fn; e.mu.Unlock() }
func (e *pipeEnd) OnConnect(fn func())               { e.mu.Lock(); e.onConnect = fn; e.mu.Unlock() }
func (e *pipeEnd) OnData(fn func([]byte))            { e.mu.Lock(); e.onData = fn; e.mu.Unlock() }
func (e *pipeEnd) OnError(fn func(error))            { e.mu.Lock(); e.onError = fn; e.mu.Unlock() }

func (e *pipeEnd) signal(sig peer.Signal) {
	data, _ := json.Marshal(sig)
	e.mu.Lock()
	fn := e.onSignal
	e.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

func (e *pipeEnd) Start() error {
	if e.role == peer.Initiator {
		e.signal(peer.Signal{Type: "offer", SDP: "fake-offer"})
	}
	return nil
}

func (e *pipeEnd) AcceptSignal(data json.RawMessage) error {
	var sig peer.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return peer.ErrBadSignal
	}
	switch {
	case sig.Type == "offer" && e.role == peer.Responder:
		e.signal(peer.Signal{Type: "answer", SDP: "fake-answer"})
	case sig.Type == "answer" && e.role == peer.Initiator:
		e.pipe.connect()
	default:
		return peer.ErrBadSignal
	}
	return nil
}

func (e *pipeEnd) Send(data []byte) error {
	e.mu.Lock()
	if !e.connected {
		e.mu.Unlock()
		return peer.ErrNotConnected
	}
	if e.sendErr != nil {
		err := e.sendErr
		e.mu.Unlock()
		return err
	}
	e.sent = append(e.sent, append([]byte(nil), data...))
	e.mu.Unlock()

	e.other().deliver(data)
	return nil
}

// deliver hands a payload to this end's data handler as if it came from
// the peer.
func (e *pipeEnd) deliver(data []byte) {
	e.mu.Lock()
	fn := e.onData
	e.mu.Unlock()
	if fn != nil {
		fn(append([]byte(nil), data...))
	}
}

func (e *pipeEnd) fail(err error) {
	e.mu.Lock()
	fn := e.onError
	e.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (e *pipeEnd) sentCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sent)
}

func (e *pipeEnd) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// brokenCipher fails every encryption and delegates the rest.
type brokenCipher struct {
	Cipher
}

var errEncrypt = errors.New("encrypt exploded")

func (brokenCipher) Encrypt(string, string) (string, error) {
	return "", errEncrypt
}

// recorder collects a coordinator's updates.
type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func record(c *Coordinator) *recorder {
	r := &recorder{}
	go func() {
		for u := range c.Updates() {
			r.mu.Lock()
			r.updates = append(r.updates, u)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []error
	for _, u := range r.updates {
		if u.Kind == UpdateError {
			out = append(out, u.Err)
		}
	}
	return out
}

func (r *recorder) hasError(target error) bool {
	for _, err := range r.errors() {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestCipher() *seal.Channel {
	return seal.NewChannel(seal.Options{WorkFactor: 10})
}
