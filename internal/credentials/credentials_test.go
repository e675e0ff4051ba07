package credentials

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/strategy"
)

type memStore struct {
	entries map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string][]byte)}
}

func (m *memStore) Get(key string) ([]byte, error) {
	v, ok := m.entries[key]
	if !ok {
		return nil, errors.New("key not found")
	}
	return v, nil
}

func (m *memStore) Put(key string, plaintext []byte) error {
	m.entries[key] = plaintext
	return nil
}

func (m *memStore) Delete(key string) error {
	delete(m.entries, key)
	return nil
}

func TestResolveAWS(t *testing.T) {
	store := newMemStore()
	r := NewResolver(store, zerolog.Nop())

	conn := &core.Connection{UUID: "c1", Provider: core.ProviderAWS}
	err := r.StoreSecret("c1", map[string]string{
		"access_key_id":     "AKIA123",
		"secret_access_key": "secret",
		"region":            "us-west-2",
	})
	if err != nil {
		t.Fatalf("StoreSecret: %v", err)
	}

	creds := r.Resolve(conn)
	aws, ok := creds.(strategy.AWSCredentials)
	if !ok {
		t.Fatalf("want AWSCredentials, got %T", creds)
	}
	if aws.AccessKeyID != "AKIA123" || aws.Region != "us-west-2" {
		t.Errorf("unexpected credentials: %+v", aws)
	}
	if aws.CredentialProvider() != core.ProviderAWS {
		t.Error("wrong provider tag")
	}
}

func TestResolveAzure(t *testing.T) {
	store := newMemStore()
	r := NewResolver(store, zerolog.Nop())

	conn := &core.Connection{UUID: "c2", Provider: core.ProviderAzure}
	if err := r.StoreSecret("c2", map[string]string{
		"tenant_id":       "t",
		"client_id":       "c",
		"client_secret":   "s",
		"subscription_id": "sub",
	}); err != nil {
		t.Fatalf("StoreSecret: %v", err)
	}

	az, ok := r.Resolve(conn).(strategy.AzureCredentials)
	if !ok || az.SubscriptionID != "sub" {
		t.Fatalf("unexpected resolution: %+v", az)
	}
}

func TestResolveMissingSecretFailsSoft(t *testing.T) {
	r := NewResolver(newMemStore(), zerolog.Nop())
	conn := &core.Connection{UUID: "missing", Provider: core.ProviderGCP}

	creds := r.Resolve(conn)
	nc, ok := creds.(strategy.NoCredentials)
	if !ok {
		t.Fatalf("want NoCredentials, got %T", creds)
	}
	if nc.CredentialProvider() != core.ProviderGCP {
		t.Error("NoCredentials should carry the connection's provider")
	}
}

func TestResolveCorruptSecretFailsSoft(t *testing.T) {
	store := newMemStore()
	store.entries["connection:c3"] = []byte("{not json")
	r := NewResolver(store, zerolog.Nop())

	conn := &core.Connection{UUID: "c3", Provider: core.ProviderSaaS}
	if _, ok := r.Resolve(conn).(strategy.NoCredentials); !ok {
		t.Error("corrupt payload should resolve to NoCredentials")
	}
}

func TestResolveNilConnection(t *testing.T) {
	r := NewResolver(newMemStore(), zerolog.Nop())
	if _, ok := r.Resolve(nil).(strategy.NoCredentials); !ok {
		t.Error("nil connection should resolve to NoCredentials")
	}
}

func TestResolvePlatformSkipsVault(t *testing.T) {
	r := NewResolver(newMemStore(), zerolog.Nop())
	conn := &core.Connection{UUID: "c4", Provider: core.ProviderPlatform}
	nc, ok := r.Resolve(conn).(strategy.NoCredentials)
	if !ok || nc.CredentialProvider() != core.ProviderPlatform {
		t.Error("platform connections should resolve to NoCredentials without a vault lookup")
	}
}

func TestDeleteSecret(t *testing.T) {
	store := newMemStore()
	r := NewResolver(store, zerolog.Nop())
	if err := r.StoreSecret("c5", map[string]string{"token": "x"}); err != nil {
		t.Fatalf("StoreSecret: %v", err)
	}
	if err := r.DeleteSecret("c5"); err != nil {
		t.Fatalf("DeleteSecret: %v", err)
	}
	if _, err := store.Get("connection:c5"); err == nil {
		t.Error("secret should be gone after DeleteSecret")
	}
}
