package crypto

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// LoadKeyPair decrypts a go-ethereum JSON keystore file holding an authority key.
func LoadKeyPair(path string, password string) (*KeyPair, error) {
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore file: %w", err)
	}
	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt keystore file: %w", err)
	}
	return NewKeyPair(key.PrivateKey), nil
}
