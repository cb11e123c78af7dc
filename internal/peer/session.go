// Package peer wraps a pion PeerConnection with a single ordered data
// channel. Signaling is non-trickle: each side emits exactly one signal,
// its complete session description, once ICE gathering has finished.
package peer

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	pion "github.com/pion/webrtc/v4"
)

// ChannelLabel names the data channel carrying chat payloads.
const ChannelLabel = "chat"

// Role is fixed when a session is created.
type Role int

const (
	Initiator Role = iota
	Responder
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// Signal is the negotiation payload exchanged through the relay.
type Signal struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Session is one side of a peer-to-peer link.
type Session struct {
	role   Role
	ice    ICEConfig
	pc     *pion.PeerConnection
	logger *slog.Logger

	mu        sync.Mutex
	dc        *pion.DataChannel
	onSignal  func(json.RawMessage)
	onConnect func()
	onData    func([]byte)
	onError   func(error)

	connected   atomic.Bool
	connectOnce sync.Once
	signalOnce  sync.Once
	closed      chan struct{}
	closeOnce   sync.Once
}

// New creates a session for role. Register handlers before calling Start.
func New(role Role, ice ICEConfig, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pc, err := ice.newPeerConnection()
	if err != nil {
		return nil, newError("create peer connection", err)
	}

	s := &Session{
		role:   role,
		ice:    ice,
		pc:     pc,
		logger: logger.With("role", role.String()),
		closed: make(chan struct{}),
	}

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		s.logger.Debug("peer connection state changed", "state", state.String())
		if state == pion.PeerConnectionStateFailed {
			s.emitError(newError("connection", ErrConnectionFailed))
		}
	})

	if role == Responder {
		pc.OnDataChannel(func(dc *pion.DataChannel) {
			if dc.Label() != ChannelLabel {
				s.logger.Warn("ignoring unexpected data channel", "label", dc.Label())
				return
			}
			s.attach(dc)
		})
	}

	return s, nil
}

// Role reports the session's role.
func (s *Session) Role() Role {
	return s.role
}

// OnSignal registers the handler for the local session description.
func (s *Session) OnSignal(fn func(json.RawMessage)) {
	s.mu.Lock()
	s.onSignal = fn
	s.mu.Unlock()
}

// OnConnect registers the handler fired once the data channel opens.
func (s *Session) OnConnect(fn func()) {
	s.mu.Lock()
	s.onConnect = fn
	s.mu.Unlock()
}

// OnData registers the handler for inbound payloads.
func (s *Session) OnData(fn func([]byte)) {
	s.mu.Lock()
	s.onData = fn
	s.mu.Unlock()
}

// OnError registers the handler for asynchronous failures.
func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Start begins negotiation. The initiator opens the chat channel and
// produces an offer; the responder waits for one via AcceptSignal.
func (s *Session) Start() error {
	if s.role == Responder {
		return nil
	}

	ordered := true
	dc, err := s.pc.CreateDataChannel(ChannelLabel, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return newError("create data channel", err)
	}
	s.attach(dc)

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return newError("create offer", err)
	}

	gatherComplete := pion.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return newError("set local description", err)
	}

	go s.signalWhenGathered(gatherComplete)
	return nil
}

// AcceptSignal applies the remote side's session description. A responder
// answers an offer; an initiator completes with the answer.
func (s *Session) AcceptSignal(data json.RawMessage) error {
	var sig Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return newError("parse signal", ErrBadSignal)
	}

	switch {
	case sig.Type == "offer" && s.role == Responder:
		if err := s.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: sig.SDP}); err != nil {
			return newError("set remote description", err)
		}

		answer, err := s.pc.CreateAnswer(nil)
		if err != nil {
			return newError("create answer", err)
		}

		gatherComplete := pion.GatheringCompletePromise(s.pc)
		if err := s.pc.SetLocalDescription(answer); err != nil {
			return newError("set local description", err)
		}

		go s.signalWhenGathered(gatherComplete)
		return nil

	case sig.Type == "answer" && s.role == Initiator:
		if err := s.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: sig.SDP}); err != nil {
			return newError("set remote description", err)
		}
		return nil

	default:
		return newError("accept signal", ErrBadSignal)
	}
}

// Send writes one payload to the peer. UTF-8 payloads go out as text
// messages, anything else as binary.
func (s *Session) Send(data []byte) error {
	if !s.connected.Load() {
		return ErrNotConnected
	}

	s.mu.Lock()
	dc := s.dc
	s.mu.Unlock()

	var err error
	if utf8.Valid(data) {
		err = dc.SendText(string(data))
	} else {
		err = dc.Send(data)
	}
	if err != nil {
		return newError("send", err)
	}
	return nil
}

// Connected reports whether the data channel is open.
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Close tears down the peer connection.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.connected.Store(false)
		err = s.pc.Close()
	})
	return err
}

func (s *Session) attach(dc *pion.DataChannel) {
	s.mu.Lock()
	s.dc = dc
	s.mu.Unlock()

	dc.OnOpen(func() {
		s.connectOnce.Do(func() {
			s.connected.Store(true)
			s.logger.Info("data channel open", "label", dc.Label())

			s.mu.Lock()
			fn := s.onConnect
			s.mu.Unlock()
			if fn != nil {
				fn()
			}
		})
	})

	dc.OnMessage(func(msg pion.DataChannelMessage) {
		s.mu.Lock()
		fn := s.onData
		s.mu.Unlock()
		if fn != nil {
			fn(msg.Data)
		}
	})

	dc.OnError(func(err error) {
		s.emitError(newError("data channel", err))
	})

	dc.OnClose(func() {
		s.logger.Debug("data channel closed", "label", dc.Label())
	})
}

func (s *Session) signalWhenGathered(gatherComplete <-chan struct{}) {
	timeout := s.ice.gatherTimeout()

	select {
	case <-gatherComplete:
	case <-time.After(timeout):
		s.emitError(newError("gather candidates", ErrGatherTimeout))
		return
	case <-s.closed:
		return
	}

	desc := s.pc.LocalDescription()
	if desc == nil {
		s.emitError(newError("gather candidates", ErrClosed))
		return
	}

	data, err := json.Marshal(Signal{Type: desc.Type.String(), SDP: desc.SDP})
	if err != nil {
		s.emitError(newError("encode signal", err))
		return
	}

	s.signalOnce.Do(func() {
		s.logger.Debug("local description ready", "type", desc.Type.String())

		s.mu.Lock()
		fn := s.onSignal
		s.mu.Unlock()
		if fn != nil {
			fn(data)
		}
	})
}

func (s *Session) emitError(err error) {
	select {
	case <-s.closed:
		return
	default:
	}

	s.logger.Warn("peer session error", "error", err)

	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
