// Package core defines the foundational types for the CostGuard engine.
// Four primitives (Workspace, Connection, RemediationRequest, Job) organize
// every operation and are enforced across the data layer, CLI, and strategy API.
package core

import (
	"time"
)

// Provider identifies the target platform of a remediation action.
type Provider string

const (
	ProviderAWS      Provider = "aws"
	ProviderAzure    Provider = "azure"
	ProviderGCP      Provider = "gcp"
	ProviderSaaS     Provider = "saas"
	ProviderLicense  Provider = "license"
	ProviderPlatform Provider = "platform"
	ProviderHybrid   Provider = "hybrid"
)

// KnownProviders lists every provider the engine accepts at request creation.
var KnownProviders = []Provider{
	ProviderAWS, ProviderAzure, ProviderGCP, ProviderSaaS,
	ProviderLicense, ProviderPlatform, ProviderHybrid,
}

// Action enumerates the remediation action catalog.
type Action string

const (
	ActionStopInstance       Action = "stop_instance"
	ActionTerminateInstance  Action = "terminate_instance"
	ActionResizeInstance     Action = "resize_instance"
	ActionDeleteVolume       Action = "delete_volume"
	ActionDeleteSnapshot     Action = "delete_snapshot"
	ActionReleaseElasticIP   Action = "release_elastic_ip"
	ActionDeleteNATGateway   Action = "delete_nat_gateway"
	ActionDeleteLoadBalancer Action = "delete_load_balancer"
	ActionStopRDSInstance    Action = "stop_rds_instance"
	ActionDeleteRDSInstance  Action = "delete_rds_instance"
	ActionDeleteS3Bucket     Action = "delete_s3_bucket"
	ActionDeleteECRImage     Action = "delete_ecr_image"
	ActionDeleteRedshift     Action = "delete_redshift_cluster"
	ActionDeleteSageMaker    Action = "delete_sagemaker_endpoint"
	ActionDeallocateVM       Action = "deallocate_vm"
	ActionResizeVM           Action = "resize_vm"
	ActionStopGCPInstance    Action = "stop_gcp_instance"
	ActionResizeGCPInstance  Action = "resize_gcp_instance"
	ActionRevokeSaaSSeat     Action = "revoke_saas_seat"
	ActionReclaimLicenseSeat Action = "reclaim_license_seat"
	ActionManualReview       Action = "manual_review"
)

// RequestStatus tracks a remediation request's lifecycle.
type RequestStatus string

const (
	StatusPending         RequestStatus = "pending"
	StatusPendingApproval RequestStatus = "pending_approval" // escalated, needs elevated review
	StatusApproved        RequestStatus = "approved"
	StatusRejected        RequestStatus = "rejected"
	StatusScheduled       RequestStatus = "scheduled"
	StatusExecuting       RequestStatus = "executing"
	StatusCompleted       RequestStatus = "completed"
	StatusFailed          RequestStatus = "failed"
)

// IsTerminal reports whether no further transitions are permitted.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRejected
}

// PolicyContext is the trusted, system-derived production/criticality metadata
// stamped onto a request by the orchestrator. It is never writable by callers
// and is consumed only by the policy engine; strategies never see it.
type PolicyContext struct {
	Source       string `json:"source,omitempty"`      // discovery subsystem that produced it
	Environment  string `json:"environment,omitempty"` // e.g. prod, staging, dev
	Criticality  string `json:"criticality,omitempty"`
	IsProduction *bool  `json:"is_production,omitempty"`
}

// RemediationRequest is the unit of work for the remediation core.
type RemediationRequest struct {
	UUID                 string            `json:"uuid"`
	WorkspaceUUID        string            `json:"workspace_uuid"` // tenant; immutable after creation
	ResourceID           string            `json:"resource_id"`
	ResourceType         string            `json:"resource_type"`
	Provider             Provider          `json:"provider"`
	ConnectionUUID       string            `json:"connection_uuid,omitempty"`
	Region               string            `json:"region"`
	Action               Action            `json:"action"`
	Status               RequestStatus     `json:"status"`
	EstimatedSavings     float64           `json:"estimated_savings"`
	ConfidenceScore      string            `json:"confidence_score,omitempty"` // decimal 0..1, empty = absent
	Explainability       string            `json:"explainability,omitempty"`
	CreateBackup         bool              `json:"create_backup"`
	BackupRetentionDays  int               `json:"backup_retention_days,omitempty"`
	BackupCostEstimate   float64           `json:"backup_cost_estimate,omitempty"`
	RequestedBy          string            `json:"requested_by"`
	ReviewedBy           string            `json:"reviewed_by,omitempty"`
	ReviewNotes          string            `json:"review_notes,omitempty"`
	ActionParams         map[string]string `json:"action_params,omitempty"` // user-supplied, untrusted
	PolicyContext        PolicyContext     `json:"policy_context"`          // trusted, orchestrator-stamped
	EscalationRequired   bool              `json:"escalation_required"`
	EscalationReason     string            `json:"escalation_reason,omitempty"`
	EscalatedAt          *time.Time        `json:"escalated_at,omitempty"`
	ScheduledExecutionAt *time.Time        `json:"scheduled_execution_at,omitempty"`
	ExecutedAt           *time.Time        `json:"executed_at,omitempty"`
	BackupResourceID     string            `json:"backup_resource_id,omitempty"`
	ExecutionError       string            `json:"execution_error,omitempty"` // truncated, see MaxExecutionErrorLen
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// MaxExecutionErrorLen bounds the stored execution error message.
const MaxExecutionErrorLen = 500

// TruncateError clips an error message to MaxExecutionErrorLen characters.
func TruncateError(msg string) string {
	if len(msg) <= MaxExecutionErrorLen {
		return msg
	}
	return msg[:MaxExecutionErrorLen]
}

// PolicyConfig is the per-workspace policy engine configuration.
// It is read fresh on every evaluation; never cached across transitions.
type PolicyConfig struct {
	Enabled                    bool    `json:"enabled"`
	BlockProductionDestructive bool    `json:"block_production_destructive"`
	RequireGPUOverride         bool    `json:"require_gpu_override"`
	LowConfidenceWarnThreshold float64 `json:"low_confidence_warn_threshold"`
}

// DefaultPolicyConfig returns the policy defaults for a new workspace.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Enabled:                    true,
		BlockProductionDestructive: true,
		RequireGPUOverride:         true,
		LowConfidenceWarnThreshold: 0.90,
	}
}

// WorkspaceSettings holds per-workspace (tenant) remediation settings.
type WorkspaceSettings struct {
	Tier               string       `json:"tier"`
	EscalationRole     string       `json:"escalation_role"`    // role entitled to approve escalations
	GracePeriodHours   int          `json:"grace_period_hours"` // delay between approval and execution
	LicenseReclaimDays int          `json:"license_reclaim_days"`
	RemediationPaused  bool         `json:"remediation_paused"`  // workspace kill switch
	MaxMonthlySavings  float64      `json:"max_monthly_savings"` // 0 = no spend guard
	DefaultAWSRegion   string       `json:"default_aws_region"`
	Policy             PolicyConfig `json:"policy"`
}

// DefaultWorkspaceSettings returns sensible workspace defaults.
func DefaultWorkspaceSettings() WorkspaceSettings {
	return WorkspaceSettings{
		Tier:               "standard",
		EscalationRole:     "owner",
		GracePeriodHours:   24,
		LicenseReclaimDays: 7,
		DefaultAWSRegion:   "us-east-1",
		Policy:             DefaultPolicyConfig(),
	}
}

// ConnectionStatus represents the verification state of a provider connection.
type ConnectionStatus string

const (
	ConnectionActive     ConnectionStatus = "active"
	ConnectionUnverified ConnectionStatus = "unverified"
	ConnectionError      ConnectionStatus = "error"
	ConnectionRevoked    ConnectionStatus = "revoked"
)

// Connection is a tenant-scoped link to an external provider account.
// Secret material lives in the vault under "connection:<uuid>"; this record
// holds only non-secret metadata.
type Connection struct {
	UUID           string           `json:"uuid"`
	WorkspaceUUID  string           `json:"workspace_uuid"`
	Provider       Provider         `json:"provider"`
	Label          string           `json:"label"`
	AccountID      string           `json:"account_id,omitempty"` // AWS account, Azure subscription, GCP project, SaaS org
	Region         string           `json:"region,omitempty"`
	Status         ConnectionStatus `json:"status"`
	LastVerifiedAt *time.Time       `json:"last_verified_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	CreatedBy      string           `json:"created_by"`
}

// JobType categorizes deferred jobs.
type JobType string

const (
	JobRemediation JobType = "remediation"
)

// JobStatus tracks a deferred job's lifecycle.
type JobStatus string

const (
	JobQueued JobStatus = "queued"
	JobDone   JobStatus = "done"
	JobFailed JobStatus = "failed"
)

// Job is a deferred unit of work, re-triggered by an external runner.
type Job struct {
	UUID          string     `json:"uuid"`
	WorkspaceUUID string     `json:"workspace_uuid"`
	Type          JobType    `json:"type"`
	RequestUUID   string     `json:"request_uuid"`
	ScheduledFor  time.Time  `json:"scheduled_for"`
	Status        JobStatus  `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// Workspace is the top-level tenant container.
type Workspace struct {
	UUID        string            `json:"uuid"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Owner       string            `json:"owner"`
	Settings    WorkspaceSettings `json:"settings"`
	Path        string            `json:"-"` // filesystem location, not persisted in the row JSON
}

// RegionGlobal is the non-concrete region sentinel. AWS requests replace it
// with the workspace default region at creation; all other providers store it
// verbatim.
const RegionGlobal = "global"
