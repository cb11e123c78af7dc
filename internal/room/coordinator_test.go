package room

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/BioHazard786/Warpchat/internal/peer"
	"github.com/BioHazard786/Warpchat/internal/seal"
)

type harness struct {
	relay *fakeRelay
	pipe  *pipe
}

func newHarness() *harness {
	return &harness{relay: newFakeRelay(), pipe: newPipe()}
}

func (h *harness) coordinator(t *testing.T, opts Options, cipher Cipher) (*Coordinator, *fakeGateway) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	gw := h.relay.gateway()
	c := New(opts, Deps{Gateway: gw, NewSession: h.pipe.factory, Cipher: cipher})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c, gw
}

func (h *harness) roomExists(name string) bool {
	h.relay.mu.Lock()
	defer h.relay.mu.Unlock()
	_, ok := h.relay.rooms[name]
	return ok
}

// connectPair drives a creator and a joiner to Connected.
func connectPair(t *testing.T, h *harness, a, b *Coordinator, name string) {
	t.Helper()
	ctx := context.Background()

	if err := a.CreateRoom(ctx, name, "alice"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	eventually(t, "room registered on relay", func() bool { return h.roomExists(name) })

	if err := b.JoinRoom(ctx, name, "bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	eventually(t, "both connected", func() bool {
		return a.State() == Connected && b.State() == Connected
	})
}

func waitKeyExchange(t *testing.T, a, b *Coordinator) {
	t.Helper()
	eventually(t, "key exchange", func() bool {
		return a.LocalFingerprint() != "" && b.LocalFingerprint() != "" &&
			a.RemoteFingerprint() == b.LocalFingerprint() &&
			b.RemoteFingerprint() == a.LocalFingerprint()
	})
}

func chatsEqual(c *Coordinator, want []ChatMessage) func() bool {
	return func() bool { return reflect.DeepEqual(c.Chats(), want) }
}

func TestCreateAndJoinReachConnected(t *testing.T) {
	h := newHarness()
	a, gwA := h.coordinator(t, Options{}, newTestCipher())
	b, gwB := h.coordinator(t, Options{}, newTestCipher())

	connectPair(t, h, a, b, "r1")
	waitKeyExchange(t, a, b)

	if got := gwA.events(); !reflect.DeepEqual(got, []string{"create-room"}) {
		t.Errorf("creator emitted %v", got)
	}
	if got := gwB.events(); !reflect.DeepEqual(got, []string{"join-room", "answer"}) {
		t.Errorf("joiner emitted %v", got)
	}

	// The key payloads never reach the chat log.
	if len(a.Chats()) != 0 || len(b.Chats()) != 0 {
		t.Fatalf("chat logs not empty after key exchange: %v / %v", a.Chats(), b.Chats())
	}

	if a.Room() != "r1" || b.Room() != "r1" {
		t.Errorf("rooms = %q, %q", a.Room(), b.Room())
	}
	if a.UserName() != "alice" || b.UserName() != "bob" {
		t.Errorf("users = %q, %q", a.UserName(), b.UserName())
	}
	if a.Stats().ConnectedAt.IsZero() {
		t.Error("ConnectedAt not recorded")
	}
}

func TestSendChatRoundTrip(t *testing.T) {
	h := newHarness()
	a, _ := h.coordinator(t, Options{}, newTestCipher())
	b, _ := h.coordinator(t, Options{}, newTestCipher())
	connectPair(t, h, a, b, "r1")
	waitKeyExchange(t, a, b)

	ctx := context.Background()
	if err := a.SendChat(ctx, "hello"); err != nil {
		t.Fatalf("SendChat: %v", err)
	}

	want := []ChatMessage{{From: "alice", Text: "hello"}}
	if got := a.Chats(); !reflect.DeepEqual(got, want) {
		t.Fatalf("sender log = %v, want %v", got, want)
	}
	eventually(t, "message decrypted by peer", chatsEqual(b, want))

	if err := b.SendChat(ctx, "hi alice"); err != nil {
		t.Fatalf("SendChat: %v", err)
	}
	want = append(want, ChatMessage{From: "bob", Text: "hi alice"})
	eventually(t, "reply decrypted", chatsEqual(a, want))

	if s := a.Stats(); s.Sent != 1 || s.Received != 1 {
		t.Errorf("creator stats = %+v", s)
	}
}

func TestMessagesArriveInOrder(t *testing.T) {
	h := newHarness()
	a, _ := h.coordinator(t, Options{}, newTestCipher())
	b, _ := h.coordinator(t, Options{}, newTestCipher())
	connectPair(t, h, a, b, "r1")
	waitKeyExchange(t, a, b)

	var want []ChatMessage
	for _, text := range []string{"one", "two", "three", "four", "five"} {
		if err := a.SendChat(context.Background(), text); err != nil {
			t.Fatalf("SendChat(%q): %v", text, err)
		}
		want = append(want, ChatMessage{From: "alice", Text: text})
	}
	eventually(t, "all messages in order", chatsEqual(b, want))
}

// gatedCipher holds key generation until released.
type gatedCipher struct {
	Cipher
	release chan struct{}
}

func (g gatedCipher) GenerateKeyPair(ctx context.Context, id seal.Identity, curve, passphrase string) (*seal.KeyPair, error) {
	<-g.release
	return g.Cipher.GenerateKeyPair(ctx, id, curve, passphrase)
}

func TestSendBeforeKeyExchangeIsDeferred(t *testing.T) {
	h := newHarness()
	gate := gatedCipher{Cipher: newTestCipher(), release: make(chan struct{})}
	a, _ := h.coordinator(t, Options{}, gate)
	b, _ := h.coordinator(t, Options{}, newTestCipher())
	connectPair(t, h, a, b, "r1")

	ctx := context.Background()
	for _, text := range []string{"early", "bird"} {
		if err := a.SendChat(ctx, text); err != nil {
			t.Fatalf("SendChat(%q): %v", text, err)
		}
	}
	if got := a.Stats().Deferred; got != 2 {
		t.Fatalf("Deferred = %d, want 2", got)
	}

	want := []ChatMessage{{From: "alice", Text: "early"}, {From: "alice", Text: "bird"}}
	if got := a.Chats(); !reflect.DeepEqual(got, want) {
		t.Fatalf("local echo = %v, want %v", got, want)
	}

	close(gate.release)
	eventually(t, "deferred messages delivered", chatsEqual(b, want))
}

// failingKeyCipher fails key generation once released.
type failingKeyCipher struct {
	Cipher
	release chan struct{}
}

var errKeygen = errors.New("entropy ran dry")

func (f failingKeyCipher) GenerateKeyPair(context.Context, seal.Identity, string, string) (*seal.KeyPair, error) {
	<-f.release
	return nil, errKeygen
}

func TestDeferredChatsFailWhenKeyExchangeFails(t *testing.T) {
	h := newHarness()
	failing := failingKeyCipher{Cipher: newTestCipher(), release: make(chan struct{})}
	a, _ := h.coordinator(t, Options{}, failing)
	b, _ := h.coordinator(t, Options{}, newTestCipher())
	rec := record(a)
	connectPair(t, h, a, b, "r1")

	ctx := context.Background()
	for _, text := range []string{"early", "bird"} {
		if err := a.SendChat(ctx, text); err != nil {
			t.Fatalf("SendChat(%q): %v", text, err)
		}
	}

	close(failing.release)
	eventually(t, "deferred chats failed", func() bool { return a.Stats().SendFailures == 2 })

	var deferredErrs int
	for _, err := range rec.errors() {
		var tErr *TransportError
		if errors.As(err, &tErr) && errors.Is(err, ErrKeyExchange) {
			deferredErrs++
		}
	}
	if deferredErrs != 2 {
		t.Errorf("got %d deferred chat errors, want 2", deferredErrs)
	}
	if !rec.hasError(errKeygen) {
		t.Error("key generation failure not published")
	}

	err := a.SendChat(ctx, "later")
	if !errors.Is(err, ErrKeyExchange) || !errors.Is(err, errKeygen) {
		t.Fatalf("SendChat after failed key exchange = %v, want ErrKeyExchange", err)
	}
	if got := len(a.Chats()); got != 2 {
		t.Errorf("log has %d entries, want only the 2 deferred echoes", got)
	}
	if got := h.pipe.ends[peer.Initiator].sentCount(); got != 0 {
		t.Errorf("initiator sent %d payloads, want 0", got)
	}
}

func TestSendChatRejectedBeforeConnected(t *testing.T) {
	h := newHarness()
	a, _ := h.coordinator(t, Options{}, newTestCipher())
	ctx := context.Background()

	if err := a.SendChat(ctx, "hello"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("SendChat in Start = %v, want ErrInvalidTransition", err)
	}

	if err := a.CreateRoom(ctx, "r1", "alice"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := a.SendChat(ctx, "hello"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("SendChat in Creating = %v, want ErrInvalidTransition", err)
	}
	if len(a.Chats()) != 0 {
		t.Fatalf("rejected send touched the log: %v", a.Chats())
	}
}

func TestMissingNames(t *testing.T) {
	h := newHarness()
	a, _ := h.coordinator(t, Options{}, newTestCipher())
	ctx := context.Background()

	if err := a.CreateRoom(ctx, "", "alice"); !errors.Is(err, ErrMissingName) {
		t.Fatalf("CreateRoom without name = %v", err)
	}
	if err := a.JoinRoom(ctx, "r1", ""); !errors.Is(err, ErrMissingName) {
		t.Fatalf("JoinRoom without user = %v", err)
	}
	if a.State() != Start {
		t.Fatalf("state = %s, want start", a.State())
	}
}

func TestConnectedCannotRenegotiate(t *testing.T) {
	h := newHarness()
	a, _ := h.coordinator(t, Options{}, newTestCipher())
	b, _ := h.coordinator(t, Options{}, newTestCipher())
	connectPair(t, h, a, b, "r1")

	ctx := context.Background()
	if err := a.CreateRoom(ctx, "r2", "alice"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("CreateRoom after connect = %v", err)
	}
	if err := b.JoinRoom(ctx, "r2", "bob"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("JoinRoom after connect = %v", err)
	}
	if a.State() != Connected || b.State() != Connected {
		t.Fatalf("states = %s, %s", a.State(), b.State())
	}
	if a.Room() != "r1" {
		t.Fatalf("room changed to %q", a.Room())
	}
}

func TestFailedCreate(t *testing.T) {
	h := newHarness()
	h.relay.rooms["r1"] = &fakeRoom{creator: h.relay.gateway()}

	a, _ := h.coordinator(t, Options{}, newTestCipher())
	rec := record(a)

	if err := a.CreateRoom(context.Background(), "r1", "Alice"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	eventually(t, "negotiation failure", func() bool { return rec.hasError(ErrNegotiationFailed) })

	var negErr *NegotiationError
	for _, err := range rec.errors() {
		if errors.As(err, &negErr) {
			break
		}
	}
	if negErr == nil || negErr.Op != "create-room" || negErr.Room != "r1" {
		t.Fatalf("NegotiationError = %+v", negErr)
	}
	if a.State() != Creating {
		t.Fatalf("state = %s, want creating", a.State())
	}
	if n := h.pipe.ends[peer.Initiator].sentCount(); n != 0 {
		t.Fatalf("transport sent %d payloads", n)
	}
}

func TestFailedJoin(t *testing.T) {
	h := newHarness()
	b, _ := h.coordinator(t, Options{}, newTestCipher())
	rec := record(b)

	if err := b.JoinRoom(context.Background(), "nowhere", "bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	eventually(t, "negotiation failure", func() bool { return rec.hasError(ErrNegotiationFailed) })
	if b.State() != Joining {
		t.Fatalf("state = %s, want joining", b.State())
	}
}

// wrongPassphrase opens the private key with the wrong secret.
type wrongPassphrase struct {
	Cipher
}

func (w wrongPassphrase) Decrypt(ciphertext, privateKey, _ string) (string, error) {
	return w.Cipher.Decrypt(ciphertext, privateKey, "not-the-passphrase")
}

func TestDecryptWithWrongPassphrase(t *testing.T) {
	h := newHarness()
	a, _ := h.coordinator(t, Options{}, newTestCipher())
	b, _ := h.coordinator(t, Options{}, wrongPassphrase{Cipher: newTestCipher()})
	rec := record(b)
	connectPair(t, h, a, b, "r1")
	waitKeyExchange(t, a, b)

	if err := a.SendChat(context.Background(), "secret"); err != nil {
		t.Fatalf("SendChat: %v", err)
	}
	eventually(t, "decrypt failure", func() bool { return rec.hasError(seal.ErrDecryption) })

	if len(b.Chats()) != 0 {
		t.Fatalf("log changed on failure: %v", b.Chats())
	}
	if b.Stats().DecryptFailures != 1 {
		t.Fatalf("DecryptFailures = %d", b.Stats().DecryptFailures)
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	h := newHarness()
	a, _ := h.coordinator(t, Options{}, newTestCipher())
	b, _ := h.coordinator(t, Options{}, newTestCipher())
	rec := record(b)
	connectPair(t, h, a, b, "r1")
	waitKeyExchange(t, a, b)

	other := newTestCipher()
	stranger, err := other.GenerateKeyPair(context.Background(), seal.Identity{Name: "eve"}, "curve25519", "pw")
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	ct, err := other.Encrypt(`{"from":"eve","text":"psst"}`, stranger.PublicKey)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	h.pipe.ends[peer.Responder].deliver([]byte(ct))
	eventually(t, "decrypt failure", func() bool { return rec.hasError(seal.ErrDecryption) })

	var cryptoErr *CryptoError
	for _, err := range rec.errors() {
		if errors.As(err, &cryptoErr) {
			break
		}
	}
	if cryptoErr == nil || cryptoErr.Op != "decrypt" {
		t.Fatalf("CryptoError = %+v", cryptoErr)
	}
	if len(b.Chats()) != 0 {
		t.Fatalf("log changed on failure: %v", b.Chats())
	}
	if b.State() != Connected {
		t.Fatalf("state = %s", b.State())
	}
}

func TestEchoPolicies(t *testing.T) {
	tests := []struct {
		name       string
		echo       EchoPolicy
		broken     bool
		wantLocal  []ChatMessage
		wantRemote []ChatMessage
	}{
		{
			name:       "immediate",
			echo:       EchoImmediately,
			wantLocal:  []ChatMessage{{From: "alice", Text: "hello"}},
			wantRemote: []ChatMessage{{From: "alice", Text: "hello"}},
		},
		{
			name:       "confirmed",
			echo:       EchoAfterConfirmedSend,
			wantLocal:  []ChatMessage{{From: "alice", Text: "hello"}},
			wantRemote: []ChatMessage{{From: "alice", Text: "hello"}},
		},
		{
			name:      "immediate with encryption failure",
			echo:      EchoImmediately,
			broken:    true,
			wantLocal: []ChatMessage{{From: "alice", Text: "hello"}},
		},
		{
			name:   "confirmed with encryption failure",
			echo:   EchoAfterConfirmedSend,
			broken: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			var cipher Cipher = newTestCipher()
			if tt.broken {
				cipher = brokenCipher{Cipher: cipher}
			}
			a, _ := h.coordinator(t, Options{Echo: tt.echo}, cipher)
			b, _ := h.coordinator(t, Options{}, newTestCipher())
			rec := record(a)
			connectPair(t, h, a, b, "r1")
			waitKeyExchange(t, a, b)

			if err := a.SendChat(context.Background(), "hello"); err != nil {
				t.Fatalf("SendChat: %v", err)
			}

			if tt.broken {
				eventually(t, "encryption failure", func() bool { return rec.hasError(errEncrypt) })
				if got := a.Chats(); !reflect.DeepEqual(got, tt.wantLocal) {
					t.Fatalf("local log = %v, want %v", got, tt.wantLocal)
				}
				if a.Stats().SendFailures != 1 {
					t.Fatalf("SendFailures = %d", a.Stats().SendFailures)
				}
				if len(b.Chats()) != 0 {
					t.Fatalf("peer log = %v", b.Chats())
				}
				return
			}

			eventually(t, "local log", chatsEqual(a, tt.wantLocal))
			eventually(t, "remote log", chatsEqual(b, tt.wantRemote))
		})
	}
}

func TestTaggedWire(t *testing.T) {
	h := newHarness()
	a, _ := h.coordinator(t, Options{Wire: WireTagged}, newTestCipher())
	b, _ := h.coordinator(t, Options{Wire: WireTagged}, newTestCipher())
	connectPair(t, h, a, b, "r1")
	waitKeyExchange(t, a, b)

	if err := a.SendChat(context.Background(), "tagged hello"); err != nil {
		t.Fatalf("SendChat: %v", err)
	}
	want := []ChatMessage{{From: "alice", Text: "tagged hello"}}
	eventually(t, "tagged message delivered", chatsEqual(b, want))

	end := h.pipe.ends[peer.Initiator]
	end.mu.Lock()
	first := end.sent[0]
	end.mu.Unlock()

	var env envelope
	if err := msgpack.Unmarshal(first, &env); err != nil {
		t.Fatalf("first payload is not an envelope: %v", err)
	}
	if env.Type != envelopeKey {
		t.Fatalf("first envelope type = %q, want key", env.Type)
	}
}

// reorderedKey connects a lone joiner to a hand-driven initiator end, then
// delivers a chat message before the key.
func reorderedKey(t *testing.T, wire WireFormat) (*Coordinator, *recorder, string) {
	t.Helper()
	h := newHarness()
	offer, _ := json.Marshal(peer.Signal{Type: "offer", SDP: "fake-offer"})
	h.relay.rooms["r1"] = &fakeRoom{creator: h.relay.gateway(), offer: offer}

	b, _ := h.coordinator(t, Options{Wire: wire}, newTestCipher())
	rec := record(b)
	if err := b.JoinRoom(context.Background(), "r1", "bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	h.pipe.connect()

	responder := h.pipe.ends[peer.Responder]
	eventually(t, "joiner key sent", func() bool { return responder.sentCount() == 1 })

	responder.mu.Lock()
	raw := responder.sent[0]
	responder.mu.Unlock()
	_, bobKey, err := wire.decode(raw, false)
	if err != nil {
		t.Fatalf("decode joiner key: %v", err)
	}

	mallory := newTestCipher()
	kp, err := mallory.GenerateKeyPair(context.Background(), seal.Identity{Name: "mallory"}, "x25519", "pw")
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	ct, err := mallory.Encrypt(`{"from":"mallory","text":"first"}`, bobKey)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	msgPayload, _ := wire.encode(envelopeMessage, ct)
	keyPayload, _ := wire.encode(envelopeKey, kp.PublicKey)
	responder.deliver(msgPayload)
	responder.deliver(keyPayload)

	return b, rec, kp.PublicKey
}

func TestTaggedWireToleratesKeyAfterMessage(t *testing.T) {
	b, _, key := reorderedKey(t, WireTagged)

	want := []ChatMessage{{From: "mallory", Text: "first"}}
	eventually(t, "queued message decrypted", chatsEqual(b, want))
	if b.RemoteFingerprint() != seal.Fingerprint(key) {
		t.Fatal("remote key not adopted from tagged envelope")
	}
}

func TestLegacyWireMisreadsKeyAfterMessage(t *testing.T) {
	b, rec, key := reorderedKey(t, WireLegacy)

	// The ciphertext is adopted as the key and the key is treated as chat.
	eventually(t, "misread key", func() bool { return rec.hasError(seal.ErrArmorDecode) })
	if b.RemoteFingerprint() == seal.Fingerprint(key) {
		t.Fatal("legacy wire should not recover the reordered key")
	}
	if len(b.Chats()) != 0 {
		t.Fatalf("log = %v", b.Chats())
	}
}

func TestTransportErrorIsPublished(t *testing.T) {
	h := newHarness()
	a, _ := h.coordinator(t, Options{}, newTestCipher())
	b, _ := h.coordinator(t, Options{}, newTestCipher())
	rec := record(a)
	connectPair(t, h, a, b, "r1")
	waitKeyExchange(t, a, b)

	boom := errors.New("ice went away")
	h.pipe.ends[peer.Initiator].fail(boom)
	eventually(t, "transport error", func() bool { return rec.hasError(boom) })

	var tErr *TransportError
	for _, err := range rec.errors() {
		if errors.As(err, &tErr) {
			break
		}
	}
	if tErr == nil {
		t.Fatal("error is not a TransportError")
	}
	if a.State() != Connected {
		t.Fatalf("state = %s", a.State())
	}

	end := h.pipe.ends[peer.Initiator]
	end.mu.Lock()
	end.sendErr = boom
	end.mu.Unlock()

	if err := a.SendChat(context.Background(), "lost"); err != nil {
		t.Fatalf("SendChat: %v", err)
	}
	eventually(t, "send failure counted", func() bool { return a.Stats().SendFailures == 1 })
}

func TestCloseStopsCoordinator(t *testing.T) {
	h := newHarness()
	gw := h.relay.gateway()
	c := New(Options{Logger: testLogger()}, Deps{Gateway: gw, NewSession: h.pipe.factory, Cipher: newTestCipher()})

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	if err := c.CreateRoom(context.Background(), "r1", "alice"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	end := h.pipe.ends[peer.Initiator]
	end.mu.Lock()
	closed := end.closed
	end.mu.Unlock()
	if !closed {
		t.Fatal("peer session not closed")
	}

	if err := c.SendChat(context.Background(), "late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("SendChat after Close = %v, want ErrClosed", err)
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to ConnectionState
		want     bool
	}{
		{Start, Creating, true},
		{Start, Joining, true},
		{Start, Connected, false},
		{Creating, Connected, true},
		{Creating, Joining, false},
		{Joining, Connected, true},
		{Connected, Creating, false},
		{Connected, Joining, false},
	}
	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestParseOptions(t *testing.T) {
	if p, err := ParseEchoPolicy("confirmed"); err != nil || p != EchoAfterConfirmedSend {
		t.Errorf("ParseEchoPolicy(confirmed) = %v, %v", p, err)
	}
	if _, err := ParseEchoPolicy("loud"); !errors.Is(err, ErrUnknownOption) {
		t.Errorf("ParseEchoPolicy(loud) error = %v", err)
	}
	if f, err := ParseWireFormat("tagged"); err != nil || f != WireTagged {
		t.Errorf("ParseWireFormat(tagged) = %v, %v", f, err)
	}
	if _, err := ParseWireFormat("json"); !errors.Is(err, ErrUnknownOption) {
		t.Errorf("ParseWireFormat(json) error = %v", err)
	}
}

func TestTaggedDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := WireTagged.decode([]byte("plain text"), false); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("decode(garbage) error = %v", err)
	}

	bad, _ := newEnvelope("video", "x")
	if _, _, err := WireTagged.decode(bad, false); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("decode(unknown type) error = %v", err)
	}
}

func TestMalformedEnvelopeIsTransportError(t *testing.T) {
	h := newHarness()
	a, _ := h.coordinator(t, Options{Wire: WireTagged}, newTestCipher())
	b, _ := h.coordinator(t, Options{Wire: WireTagged}, newTestCipher())
	rec := record(b)
	connectPair(t, h, a, b, "r1")
	waitKeyExchange(t, a, b)

	h.pipe.ends[peer.Responder].deliver([]byte("not an envelope"))
	eventually(t, "malformed payload reported", func() bool { return rec.hasError(ErrMalformedPayload) })

	for _, err := range rec.errors() {
		if !errors.Is(err, ErrMalformedPayload) {
			continue
		}
		var tErr *TransportError
		if !errors.As(err, &tErr) {
			t.Errorf("malformed payload error %T, want *TransportError", err)
		}
		var cErr *CryptoError
		if errors.As(err, &cErr) {
			t.Errorf("malformed payload reported as crypto failure: %v", err)
		}
	}
	if a.Stats().DecryptFailures != 0 || b.Stats().DecryptFailures != 0 {
		t.Error("framing fault counted as decrypt failure")
	}
}
