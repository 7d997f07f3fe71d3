package testutil

import (
	"fieldsync/internal/encryption"
	"fieldsync/internal/fieldsync"
)

// NewTestEncryptor creates an encryptor that only frames content with a
// header, so tests can tell sealed bytes from plaintext.
func NewTestEncryptor() fieldsync.Encryptor {
	return encryption.NewTestEncryptor()
}
