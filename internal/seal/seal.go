// Package seal provides the end-to-end encryption used between two chat
// peers. It wraps filippo.io/age: keypairs are X25519, the private key is
// kept as an armored age file sealed with an scrypt passphrase, and every
// message is an armored age file addressed to the remote public key.
package seal

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/zeebo/blake3"
)

// DefaultWorkFactor is the scrypt log2(N) used to seal private keys.
const DefaultWorkFactor = 15

// maxWorkFactor bounds what Decrypt accepts when opening a private key.
const maxWorkFactor = 22

// Identity is the user id embedded in a generated key.
type Identity struct {
	Name  string
	Email string
}

func (i Identity) String() string {
	switch {
	case i.Email == "":
		return i.Name
	case i.Name == "":
		return "<" + i.Email + ">"
	default:
		return i.Name + " <" + i.Email + ">"
	}
}

// KeyPair is one side's key material for a session.
type KeyPair struct {
	// PublicKey is the age recipient (age1...). Safe to send to the peer.
	PublicKey string

	// PrivateKey is an armored age file holding the X25519 identity,
	// encrypted under Passphrase.
	PrivateKey string

	// Passphrase unlocks PrivateKey.
	Passphrase string
}

// Options configures a Channel.
type Options struct {
	// WorkFactor is the scrypt log2(N) for sealing private keys. Zero means
	// DefaultWorkFactor.
	WorkFactor int
}

// Channel generates keys and encrypts and decrypts chat payloads.
// It is safe for concurrent use.
type Channel struct {
	workFactor int

	mu         sync.Mutex
	identities map[[32]byte][]age.Identity
}

// NewChannel creates a Channel.
func NewChannel(opts Options) *Channel {
	wf := opts.WorkFactor
	if wf <= 0 {
		wf = DefaultWorkFactor
	}
	return &Channel{
		workFactor: wf,
		identities: make(map[[32]byte][]age.Identity),
	}
}

// GenerateKeyPair creates a fresh X25519 keypair and seals the private half
// under passphrase. The curve names curve25519, x25519, cv25519 and ed25519
// all select X25519.
func (c *Channel) GenerateKeyPair(ctx context.Context, id Identity, curve, passphrase string) (*KeyPair, error) {
	if !supportedCurve(curve) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCurve, curve)
	}
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(c.workFactor)

	var file strings.Builder
	fmt.Fprintf(&file, "# identity: %s\n", id)
	fmt.Fprintf(&file, "# created: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&file, "# public key: %s\n", identity.Recipient())
	fmt.Fprintf(&file, "%s\n", identity)

	sealed, err := encryptArmored([]byte(file.String()), recipient)
	if err != nil {
		return nil, fmt.Errorf("sealing private key: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kp := &KeyPair{
		PublicKey:  identity.Recipient().String(),
		PrivateKey: sealed,
		Passphrase: passphrase,
	}

	// The freshly generated identity is already unlocked.
	c.mu.Lock()
	c.identities[cacheKey(kp.PrivateKey, passphrase)] = []age.Identity{identity}
	c.mu.Unlock()

	return kp, nil
}

// Encrypt encrypts plaintext to the given age public key and returns the
// armored ciphertext.
func (c *Channel) Encrypt(plaintext, publicKey string) (string, error) {
	recipient, err := age.ParseX25519Recipient(strings.TrimSpace(publicKey))
	if err != nil {
		return "", fmt.Errorf("%w: parsing recipient: %v", ErrArmorDecode, err)
	}

	out, err := encryptArmored([]byte(plaintext), recipient)
	if err != nil {
		return "", fmt.Errorf("encrypting message: %w", err)
	}
	return out, nil
}

// Decrypt opens an armored ciphertext with the sealed private key.
func (c *Channel) Decrypt(ciphertext, privateKey, passphrase string) (string, error) {
	if !isArmored(ciphertext) {
		return "", fmt.Errorf("%w: ciphertext", ErrArmorDecode)
	}

	identities, err := c.unlock(privateKey, passphrase)
	if err != nil {
		return "", err
	}

	plaintext, err := decryptArmored(ciphertext, identities...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return string(plaintext), nil
}

// unlock returns the identities inside a sealed private key, memoized per
// (key, passphrase).
func (c *Channel) unlock(privateKey, passphrase string) ([]age.Identity, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}

	key := cacheKey(privateKey, passphrase)

	c.mu.Lock()
	cached, ok := c.identities[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	if !isArmored(privateKey) {
		return nil, fmt.Errorf("%w: private key", ErrArmorDecode)
	}

	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	scrypt.SetMaxWorkFactor(maxWorkFactor)

	file, err := decryptArmored(privateKey, scrypt)
	if err != nil {
		return nil, fmt.Errorf("%w: unlocking private key: %v", ErrDecryption, err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing private key: %v", ErrArmorDecode, err)
	}

	c.mu.Lock()
	c.identities[key] = identities
	c.mu.Unlock()

	return identities, nil
}

// Fingerprint returns a short, stable digest of a public key for
// out-of-band comparison, e.g. "3f2a:91c4:07be:d55e".
func Fingerprint(publicKey string) string {
	publicKey = strings.TrimSpace(publicKey)
	if publicKey == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(publicKey))
	h := hex.EncodeToString(sum[:8])
	return h[0:4] + ":" + h[4:8] + ":" + h[8:12] + ":" + h[12:16]
}

// RandomPassphrase returns a fresh 256-bit passphrase.
func RandomPassphrase() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random passphrase: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func supportedCurve(curve string) bool {
	switch strings.ToLower(curve) {
	case "curve25519", "x25519", "cv25519", "ed25519":
		return true
	}
	return false
}

func isArmored(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), armor.Header)
}

func cacheKey(privateKey, passphrase string) [32]byte {
	h := blake3.New()
	h.Write([]byte(privateKey))
	h.Write([]byte{0})
	h.Write([]byte(passphrase))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func encryptArmored(plaintext []byte, recipient age.Recipient) (string, error) {
	var buf bytes.Buffer
	aw := armor.NewWriter(&buf)

	w, err := age.Encrypt(aw, recipient)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	if err := aw.Close(); err != nil {
		return "", fmt.Errorf("closing armor: %w", err)
	}
	return buf.String(), nil
}

func decryptArmored(ciphertext string, identities ...age.Identity) ([]byte, error) {
	r, err := age.Decrypt(armor.NewReader(strings.NewReader(strings.TrimSpace(ciphertext)+"\n")), identities...)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
