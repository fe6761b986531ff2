package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Keyer derives cache keys from lookup inputs.
//
// Contract:
// - Determinism: equal inputs produce equal keys.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	Key(namespace string, input any) (string, error)
}

// DefaultKeyer hashes the JSON encoding of the input.
// Format: <namespace>:<first 16 hex chars of sha256>.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key generates a deterministic cache key. encoding/json sorts map keys, so
// maps with the same contents hash the same regardless of iteration order.
func (k *DefaultKeyer) Key(namespace string, input any) (string, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("cache: failed to encode key input: %w", err)
	}
	sum := sha256.Sum256(data)
	key := namespace + ":" + hex.EncodeToString(sum[:8])
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

var _ Keyer = (*DefaultKeyer)(nil)
