package relay

import (
	"context"
	"log/slog"

	"github.com/BioHazard786/Warpchat/internal/signaling"
)

// Hub is the central brain of the relay.
// It manages all active rooms and clients.
type Hub struct {
	// Rooms maps room names to rooms. Owned by the Run goroutine.
	Rooms map[string]*Room

	// clients tracks registered connections so late messages from a
	// departed client are dropped instead of answered.
	clients map[*Client]bool

	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Broadcast carries client messages for processing.
	Broadcast chan *Message

	done   chan struct{}
	logger *slog.Logger
}

// NewHub creates a new Hub instance.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		Rooms:      make(map[string]*Room),
		clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *Message),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main processing loop.
// This is the single goroutine that safely manages all state (rooms, clients).
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.Send)
			}
			return

		case client := <-h.Register:
			h.clients[client] = true
			h.logger.Info("client registered", "client", client.ID, "addr", client.Conn.RemoteAddr().String())

		case client := <-h.Unregister:
			h.unregister(client)

		case message := <-h.Broadcast:
			if !h.clients[message.client] {
				continue
			}
			h.handle(message)
		}
	}
}

// Done is closed once Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) unregister(client *Client) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	h.logger.Info("client unregistered", "client", client.ID)

	// The stored offer is single-use, so the room goes away with either
	// participant. An already connected pair no longer needs the relay.
	if client.RoomName != "" {
		if room, ok := h.Rooms[client.RoomName]; ok && room.has(client) {
			delete(h.Rooms, room.Name)
			if room.Creator != nil && room.Creator != client {
				room.Creator.RoomName = ""
			}
			if room.Joiner != nil && room.Joiner != client {
				room.Joiner.RoomName = ""
			}
			h.logger.Info("room deleted", "room", room.Name)
		}
	}

	close(client.Send)
}

func (h *Hub) handle(message *Message) {
	h.logger.Debug("message received", "type", message.Type, "client", message.client.ID)

	switch message.Type {
	case signaling.EventCreateRoom:
		h.createRoom(message)
	case signaling.EventJoinRoom:
		h.joinRoom(message)
	case signaling.EventAnswer:
		h.relayAnswer(message)
	default:
		h.logger.Warn("unknown message type", "type", message.Type, "client", message.client.ID)
	}
}

func (h *Hub) createRoom(message *Message) {
	client := message.client

	var payload signaling.CreateRoomPayload
	if err := message.decode(&payload); err != nil || payload.Name == "" || isNull(payload.Initiator) {
		h.logger.Warn("room create failed: malformed request", "client", client.ID, "error", err)
		h.send(client, newMessage(signaling.EventFailedCreate, nil))
		return
	}

	if _, exists := h.Rooms[payload.Name]; exists {
		h.logger.Info("room create failed: name taken", "room", payload.Name, "client", client.ID)
		h.send(client, newMessage(signaling.EventFailedCreate, nil))
		return
	}

	if client.RoomName != "" {
		h.logger.Info("room create failed: client already in a room", "room", client.RoomName, "client", client.ID)
		h.send(client, newMessage(signaling.EventFailedCreate, nil))
		return
	}

	h.Rooms[payload.Name] = &Room{
		Name:    payload.Name,
		Creator: client,
		Offer:   payload.Initiator,
	}
	client.RoomName = payload.Name

	h.logger.Info("room created", "room", payload.Name, "client", client.ID)
}

func (h *Hub) joinRoom(message *Message) {
	client := message.client

	var payload signaling.JoinRoomPayload
	if err := message.decode(&payload); err != nil {
		h.logger.Warn("room join failed: malformed request", "client", client.ID, "error", err)
		h.send(client, newMessage(signaling.EventFailedJoin, nil))
		return
	}

	room, ok := h.Rooms[payload.Name]
	if !ok {
		h.logger.Info("room join failed: not found", "room", payload.Name, "client", client.ID)
		h.send(client, newMessage(signaling.EventFailedJoin, nil))
		return
	}

	if room.Joiner != nil || room.Creator == client || client.RoomName != "" {
		h.logger.Info("room join failed: room is full", "room", payload.Name, "client", client.ID)
		h.send(client, newMessage(signaling.EventFailedJoin, nil))
		return
	}

	room.Joiner = client
	client.RoomName = room.Name

	h.logger.Info("client joined room", "room", room.Name, "client", client.ID)
	h.send(client, newMessage(signaling.EventOffer, signaling.OfferPayload{Offer: room.Offer}))
}

func (h *Hub) relayAnswer(message *Message) {
	client := message.client

	var payload signaling.AnswerPayload
	if err := message.decode(&payload); err != nil {
		h.logger.Warn("answer dropped: malformed payload", "client", client.ID, "error", err)
		return
	}

	room, ok := h.Rooms[payload.Name]
	if !ok || room.Joiner != client {
		h.logger.Warn("answer dropped: sender is not the joiner", "room", payload.Name, "client", client.ID)
		return
	}

	h.logger.Info("relaying answer", "room", room.Name, "from", client.ID, "to", room.Creator.ID)
	h.send(room.Creator, newMessage(signaling.EventAnswer, signaling.AnswerPayload{Answer: payload.Answer}))
}

// send never blocks the hub; a client that cannot keep up loses the frame.
func (h *Hub) send(client *Client, msg *Message) {
	select {
	case client.Send <- msg:
	default:
		h.logger.Warn("client send buffer full, dropping message", "client", client.ID, "type", msg.Type)
	}
}

func isNull(raw []byte) bool {
	return len(raw) == 0 || string(raw) == "null"
}
