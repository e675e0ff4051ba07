// Package strategy implements the per-(provider, action) remediation strategy
// layer: the strategy contract, the immutable registry, the retry policy and
// the execute wrapper that gives every strategy uniform failure semantics.
// Strategies are built-in Go structs registered at startup.
package strategy

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/tier"
)

// ExecutionStatus classifies a strategy outcome.
type ExecutionStatus string

const (
	ExecSuccess ExecutionStatus = "success"
	ExecFailed  ExecutionStatus = "failed"
	ExecSkipped ExecutionStatus = "skipped"
)

// ExecutionResult is what a strategy reports back to the orchestrator.
type ExecutionResult struct {
	Status      ExecutionStatus   `json:"status"`
	ResourceID  string            `json:"resource_id"`
	ActionTaken string            `json:"action_taken"`
	Error       string            `json:"error,omitempty"`
	BackupID    string            `json:"backup_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Credentials is the closed set of provider-shaped credential variants
// produced by the resolver. Strategies type-switch on the variant matching
// their provider; a mismatched or empty variant surfaces as an API failure,
// never as a missing-field panic.
type Credentials interface {
	CredentialProvider() core.Provider
}

// AWSCredentials carries static AWS key material.
type AWSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
}

func (AWSCredentials) CredentialProvider() core.Provider { return core.ProviderAWS }

// AzureCredentials carries a service principal.
type AzureCredentials struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string
}

func (AzureCredentials) CredentialProvider() core.Provider { return core.ProviderAzure }

// GCPCredentials carries a service-account key.
type GCPCredentials struct {
	ProjectID          string
	ServiceAccountJSON []byte
}

func (GCPCredentials) CredentialProvider() core.Provider { return core.ProviderGCP }

// SaaSCredentials carries an org-scoped API token.
type SaaSCredentials struct {
	Org   string
	Token string
}

func (SaaSCredentials) CredentialProvider() core.Provider { return core.ProviderSaaS }

// LicenseCredentials carries a license-vendor API key.
type LicenseCredentials struct {
	Vendor string
	APIKey string
}

func (LicenseCredentials) CredentialProvider() core.Provider { return core.ProviderLicense }

// NoCredentials is the fail-soft fallback and the variant for providers that
// have no native API (platform, hybrid).
type NoCredentials struct {
	For core.Provider
}

func (n NoCredentials) CredentialProvider() core.Provider { return n.For }

// Context is everything a strategy receives for one execution. It carries the
// user-supplied action parameters only; the trusted policy context is stripped
// by the orchestrator before this struct is built and can never reach a
// strategy.
type Context struct {
	WorkspaceUUID       string
	Region              string
	Tier                string
	Credentials         Credentials
	CreateBackup        bool
	BackupRetentionDays int
	Params              map[string]string
	Logger              zerolog.Logger
}

// Param returns a user-supplied action parameter, or "".
func (c Context) Param(name string) string {
	if c.Params == nil {
		return ""
	}
	return c.Params[name]
}

// Meta declares a strategy's identity and gating.
type Meta struct {
	Provider        core.Provider
	Action          core.Action
	Description     string
	RequiredFeature tier.Feature
	Destructive     bool
}

// Strategy is the per-(provider, action) contract.
type Strategy interface {
	Meta() Meta

	// Validate is a pre-flight safety check. It returns false, not an
	// error, when the action cannot proceed (e.g. a resize without a
	// target size parameter).
	Validate(ctx context.Context, resourceID string, rc Context) bool

	// CreateBackup snapshots the resource before a destructive action and
	// returns the backup resource id. No-op strategies return "".
	CreateBackup(ctx context.Context, resourceID string, rc Context) (string, error)

	// PerformAction runs the provider API call sequence.
	PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error)
}

// Base provides the default Validate and CreateBackup behaviors; concrete
// strategies embed it and override what they need.
type Base struct{}

func (Base) Validate(ctx context.Context, resourceID string, rc Context) bool {
	return true
}

func (Base) CreateBackup(ctx context.Context, resourceID string, rc Context) (string, error) {
	return "", nil
}

// transientError marks a failure as retryable. Provider API round-trip
// failures are transient; validation and programming errors are not.
type transientError struct {
	err error
}

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Transient wraps an external-API error so the retry policy will retry it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether an error was marked retryable.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}
