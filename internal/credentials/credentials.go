// Package credentials resolves vault-stored connection secrets into the
// tagged credential variants consumed by strategies.
package credentials

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/strategy"
	"github.com/costguard-framework/costguard/internal/vault"
)

// secretPayload is the vault record format for every provider; only the
// fields for the connection's provider are populated.
type secretPayload struct {
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	SessionToken    string `json:"session_token,omitempty"`
	Region          string `json:"region,omitempty"`

	TenantID       string `json:"tenant_id,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
	ClientSecret   string `json:"client_secret,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`

	ProjectID          string `json:"project_id,omitempty"`
	ServiceAccountJSON string `json:"service_account_json,omitempty"`

	Org   string `json:"org,omitempty"`
	Token string `json:"token,omitempty"`

	Vendor string `json:"vendor,omitempty"`
	APIKey string `json:"api_key,omitempty"`
}

// Store is the subset of the vault the resolver needs.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, plaintext []byte) error
	Delete(key string) error
}

// Resolver turns a connection into strategy credentials.
type Resolver struct {
	store  Store
	logger zerolog.Logger
}

// NewResolver wraps an open vault.
func NewResolver(store Store, logger zerolog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// StoreSecret writes a connection's secret payload to the vault.
func (r *Resolver) StoreSecret(connectionUUID string, payload map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.store.Put(vault.ConnectionKey(connectionUUID), data)
}

// DeleteSecret removes a connection's secret payload.
func (r *Resolver) DeleteSecret(connectionUUID string) error {
	return r.store.Delete(vault.ConnectionKey(connectionUUID))
}

// Resolve produces the credential variant for a connection. Resolution is
// fail-soft: a nil connection, a missing vault entry, or a corrupt payload
// yields NoCredentials and a warning, never an error. The provider API call
// then fails with a normal auth error, which routes through the standard
// FAILED path.
func (r *Resolver) Resolve(conn *core.Connection) strategy.Credentials {
	if conn == nil {
		return strategy.NoCredentials{}
	}
	switch conn.Provider {
	case core.ProviderPlatform, core.ProviderHybrid:
		// no API surface to authenticate against
		return strategy.NoCredentials{For: conn.Provider}
	}

	raw, err := r.store.Get(vault.ConnectionKey(conn.UUID))
	if err != nil {
		r.logger.Warn().
			Str("connection", conn.UUID).
			Str("provider", string(conn.Provider)).
			Msg("no vault secret for connection, resolving without credentials")
		return strategy.NoCredentials{For: conn.Provider}
	}

	var p secretPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		r.logger.Warn().
			Str("connection", conn.UUID).
			Msg("corrupt vault secret for connection, resolving without credentials")
		return strategy.NoCredentials{For: conn.Provider}
	}

	switch conn.Provider {
	case core.ProviderAWS:
		return strategy.AWSCredentials{
			AccessKeyID:     p.AccessKeyID,
			SecretAccessKey: p.SecretAccessKey,
			SessionToken:    p.SessionToken,
			Region:          p.Region,
		}
	case core.ProviderAzure:
		return strategy.AzureCredentials{
			TenantID:       p.TenantID,
			ClientID:       p.ClientID,
			ClientSecret:   p.ClientSecret,
			SubscriptionID: p.SubscriptionID,
		}
	case core.ProviderGCP:
		return strategy.GCPCredentials{
			ProjectID:          p.ProjectID,
			ServiceAccountJSON: []byte(p.ServiceAccountJSON),
		}
	case core.ProviderSaaS:
		return strategy.SaaSCredentials{
			Org:   p.Org,
			Token: p.Token,
		}
	case core.ProviderLicense:
		return strategy.LicenseCredentials{
			Vendor: p.Vendor,
			APIKey: p.APIKey,
		}
	}
	return strategy.NoCredentials{For: conn.Provider}
}
