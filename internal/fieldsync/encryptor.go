package fieldsync

import "io"

// Encryptor handles at-rest encryption of captured content.
// Encryption uses the public key only, so capture never needs a passphrase.
// Reading content back for upload requires a DecryptionContext obtained by
// unlocking the private key.
type Encryptor interface {
	// Setup performs one-time key generation. Called during `fieldsync keys init`.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key using the passphrase and returns a
	// DecryptionContext for the rest of the process lifetime.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist at configured paths.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory.
type DecryptionContext interface {
	// Decrypt decrypts data read from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}
