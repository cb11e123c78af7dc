package signaling

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Conn is the part of Client the gateway needs.
type Conn interface {
	SendMessage(msg *Message) error
	Incoming() <-chan *Message
}

// Gateway exposes the relay protocol as typed operations. Each inbound
// event has exactly one handler; registering again replaces it.
type Gateway struct {
	conn   Conn
	logger *slog.Logger

	mu             sync.RWMutex
	onOffer        func(offer json.RawMessage)
	onAnswer       func(answer json.RawMessage)
	onFailedCreate func()
	onFailedJoin   func()
}

// NewGateway wraps conn. Call Start to begin dispatching inbound events.
func NewGateway(conn Conn, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{conn: conn, logger: logger}
}

// Start routes incoming relay messages to the registered handlers until the
// connection closes.
func (g *Gateway) Start() {
	for msg := range g.conn.Incoming() {
		g.dispatch(msg)
	}
	g.logger.Debug("signaling connection closed")
}

func (g *Gateway) dispatch(msg *Message) {
	g.mu.RLock()
	onOffer, onAnswer := g.onOffer, g.onAnswer
	onFailedCreate, onFailedJoin := g.onFailedCreate, g.onFailedJoin
	g.mu.RUnlock()

	switch msg.Type {
	case EventOffer:
		var payload OfferPayload
		if err := msg.DecodePayload(&payload); err != nil {
			g.logger.Warn("malformed offer from relay", "error", err)
			return
		}
		if onOffer != nil {
			onOffer(payload.Offer)
		}

	case EventAnswer:
		var payload AnswerPayload
		if err := msg.DecodePayload(&payload); err != nil {
			g.logger.Warn("malformed answer from relay", "error", err)
			return
		}
		if onAnswer != nil {
			onAnswer(payload.Answer)
		}

	case EventFailedCreate:
		if onFailedCreate != nil {
			onFailedCreate()
		}

	case EventFailedJoin:
		if onFailedJoin != nil {
			onFailedJoin()
		}

	default:
		g.logger.Debug("ignoring relay event", "type", msg.Type)
	}
}

// CreateRoom emits create-room{name, initiator}.
func (g *Gateway) CreateRoom(name string, initiator json.RawMessage) error {
	return g.emit(EventCreateRoom, CreateRoomPayload{Name: name, Initiator: initiator})
}

// JoinRoom emits join-room{name}.
func (g *Gateway) JoinRoom(name string) error {
	return g.emit(EventJoinRoom, JoinRoomPayload{Name: name})
}

// Answer emits answer{name, answer}.
func (g *Gateway) Answer(name string, answer json.RawMessage) error {
	return g.emit(EventAnswer, AnswerPayload{Name: name, Answer: answer})
}

func (g *Gateway) emit(event string, payload any) error {
	msg, err := NewMessage(event, payload)
	if err != nil {
		return err
	}
	g.logger.Debug("emitting relay event", "type", event)
	return g.conn.SendMessage(msg)
}

func (g *Gateway) OnOffer(fn func(offer json.RawMessage)) {
	g.mu.Lock()
	g.onOffer = fn
	g.mu.Unlock()
}

func (g *Gateway) OnAnswer(fn func(answer json.RawMessage)) {
	g.mu.Lock()
	g.onAnswer = fn
	g.mu.Unlock()
}

func (g *Gateway) OnFailedCreate(fn func()) {
	g.mu.Lock()
	g.onFailedCreate = fn
	g.mu.Unlock()
}

func (g *Gateway) OnFailedJoin(fn func()) {
	g.mu.Lock()
	g.onFailedJoin = fn
	g.mu.Unlock()
}
