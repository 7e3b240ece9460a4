package keystore

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const (
	keystoreService = "offload-desktop"
	keystoreUser    = "worker-token"
)

// Token loads the worker API token from the system keychain. A missing token
// is not an error; it returns ("", nil) so callers can fall back to an
// unauthenticated connection against a local worker.
func Token() (string, error) {
	token, err := keyring.Get(keystoreService, keystoreUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return token, nil
}

// SetToken stores the worker API token in the system keychain.
func SetToken(token string) error {
	return keyring.Set(keystoreService, keystoreUser, token)
}

// DeleteToken removes the worker API token from the keychain.
func DeleteToken() error {
	err := keyring.Delete(keystoreService, keystoreUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// HasToken checks whether a worker API token is stored.
func HasToken() bool {
	_, err := keyring.Get(keystoreService, keystoreUser)
	return err == nil
}
