package encryption

import (
	"bytes"
	"fmt"
	"io"

	"fieldsync/internal/fieldsync"
)

// testHeader marks content sealed by TestEncryptor.
var testHeader = []byte("FSENC\x00\x00\x01")

// TestEncryptor is a deterministic stand-in for AgeEncryptor. It prepends
// a fixed header, so stored bytes differ from the captured photo without any
// key material.
type TestEncryptor struct {
	setupCalled bool
	passphrase  string
}

var _ fieldsync.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a new TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

// Setup records the passphrase; later Unlock calls must match it.
func (e *TestEncryptor) Setup(passphrase string) error {
	e.setupCalled = true
	e.passphrase = passphrase
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (fieldsync.DecryptionContext, error) {
	if e.setupCalled && passphrase != e.passphrase {
		return nil, fieldsync.NewError(fieldsync.KindPermission, "unlock private key", fmt.Errorf("wrong passphrase"))
	}
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

var _ fieldsync.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
