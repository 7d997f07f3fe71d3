package encryption

import (
	"fmt"

	"fieldsync/internal/config"
	"fieldsync/internal/fieldsync"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// Type "none" (or empty) returns nil: content is stored in plaintext.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (fieldsync.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption requires public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
