package config

import (
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const serviceName = "mail-merge"

// KeyIMAP and KeySMTP name keyring entries per account.
func KeyIMAP(user string) string { return "imap:" + user }
func KeySMTP(user string) string { return "smtp:" + user }

// keyringGet is replaced in tests.
var keyringGet = GetSecret

// Secret returns value when set, then the env variable, then the keyring
// entry. Keyring failures count as "not found".
func Secret(value, env, key string) string {
	if value != "" {
		return value
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	v, err := keyringGet(key)
	if err != nil {
		return ""
	}
	return v
}

func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.mail-merge/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mail-merge-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// GetSecret reads a credential from the system keyring.
func GetSecret(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// SetSecret stores a credential in the system keyring.
func SetSecret(key, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: serviceName + " " + key}); err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// DeleteSecret removes a credential from the system keyring.
func DeleteSecret(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}
	if err := ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}
