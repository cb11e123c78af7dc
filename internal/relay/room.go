package relay

import "encoding/json"

// Room is one negotiation slot: the creator's offer waiting for exactly one
// joiner.
type Room struct {
	// Name is chosen by the creator.
	Name string

	// Creator is the client who sent create-room (the initiator).
	Creator *Client

	// Joiner is the client who joined (the responder).
	Joiner *Client

	// Offer is the initiator's signal data, handed to the joiner verbatim.
	Offer json.RawMessage
}

func (r *Room) has(c *Client) bool {
	return r.Creator == c || r.Joiner == c
}
