package encryption

import (
	"fmt"

	"counseld-go/internal/config"
)

// NewEncryptorFromConfig creates an Encryptor based on the encryption
// config type. An empty type returns (nil, nil): artifacts stay plaintext.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (Encryptor, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %s", cfg.Type)
	}
}
