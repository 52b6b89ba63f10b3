package secrets

import (
	"context"
	"fmt"
)

// Vault stores and resolves provider credentials. Values are encrypted
// at rest (AES-256-GCM) and only decrypted in-memory at resolve time.
type Vault interface {
	Resolve(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
}

// SecretStore is the minimal persistence interface needed by the vault.
// Satisfied by store.Store.
type SecretStore interface {
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	ListSecrets(ctx context.Context) ([]string, error)
}

// ProviderKey returns the vault key under which an LLM provider's API
// key is stored, e.g. "provider_api_key:anthropic".
func ProviderKey(provider string) string {
	return fmt.Sprintf("provider_api_key:%s", provider)
}
