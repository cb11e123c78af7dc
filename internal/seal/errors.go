package seal

import "errors"

var (
	// ErrUnsupportedCurve is returned for curve names other than the
	// X25519 family.
	ErrUnsupportedCurve = errors.New("unsupported curve")

	// ErrEmptyPassphrase is returned when a private key would be sealed or
	// opened without a passphrase.
	ErrEmptyPassphrase = errors.New("empty passphrase")

	// ErrArmorDecode covers malformed keys and ciphertexts that are not
	// armored age files.
	ErrArmorDecode = errors.New("malformed armored data")

	// ErrDecryption covers wrong passphrases and messages not addressed to
	// the given key.
	ErrDecryption = errors.New("decryption failed")
)
