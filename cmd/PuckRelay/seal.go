package main

import (
	"fmt"
	"io"

	"PuckRelay/pkg/crypto"
)

// sealSecret encrypts plaintext with the configured ENCRYPTION_KEY so it can
// be stored as an "enc:" api_key in config.yaml.
func sealSecret(w io.Writer, key, plaintext string) error {
	if key == "" {
		return crypto.ErrNoKey
	}
	c, err := crypto.NewCipher(key)
	if err != nil {
		return err
	}
	sealed, err := c.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("failed to seal secret: %w", err)
	}
	_, err = fmt.Fprintln(w, sealed)
	return err
}
