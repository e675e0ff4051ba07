package strategy

import (
	"context"
	"fmt"

	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/tier"
)

// Execute runs a strategy with uniform failure semantics:
//
//  1. tier gate — SKIPPED when the workspace tier lacks the strategy's
//     required feature;
//  2. Validate — SKIPPED on false;
//  3. CreateBackup when requested, recording the backup id;
//  4. PerformAction under the retry policy;
//  5. any error or panic in 3-4 becomes a FAILED result and never
//     propagates to the caller.
func Execute(ctx context.Context, s Strategy, resourceID string, rc Context, retry RetryPolicy) (result ExecutionResult) {
	meta := s.Meta()

	defer func() {
		if r := recover(); r != nil {
			result = ExecutionResult{
				Status:      ExecFailed,
				ResourceID:  resourceID,
				ActionTaken: string(meta.Action),
				Error:       core.TruncateError(fmt.Sprintf("strategy panic: %v", r)),
			}
		}
	}()

	if !tier.IsFeatureEnabled(rc.Tier, meta.RequiredFeature) {
		return ExecutionResult{
			Status:      ExecSkipped,
			ResourceID:  resourceID,
			ActionTaken: string(meta.Action),
			Error:       fmt.Sprintf("tier %q lacks feature %q", rc.Tier, meta.RequiredFeature),
		}
	}

	if !s.Validate(ctx, resourceID, rc) {
		return ExecutionResult{
			Status:      ExecSkipped,
			ResourceID:  resourceID,
			ActionTaken: string(meta.Action),
			Error:       "validation failed",
		}
	}

	var backupID string
	if rc.CreateBackup {
		id, err := s.CreateBackup(ctx, resourceID, rc)
		if err != nil {
			return ExecutionResult{
				Status:      ExecFailed,
				ResourceID:  resourceID,
				ActionTaken: string(meta.Action),
				Error:       core.TruncateError(fmt.Sprintf("backup failed: %s", err)),
			}
		}
		backupID = id
		if backupID != "" {
			rc.Logger.Info().Str("resource", resourceID).Str("backup_id", backupID).Msg("backup created")
		}
	}

	var out ExecutionResult
	err := retry.Run(ctx, func() error {
		var perfErr error
		out, perfErr = s.PerformAction(ctx, resourceID, rc)
		return perfErr
	})
	if err != nil {
		return ExecutionResult{
			Status:      ExecFailed,
			ResourceID:  resourceID,
			ActionTaken: string(meta.Action),
			Error:       core.TruncateError(err.Error()),
			BackupID:    backupID,
		}
	}

	if out.ResourceID == "" {
		out.ResourceID = resourceID
	}
	if out.ActionTaken == "" {
		out.ActionTaken = string(meta.Action)
	}
	if backupID != "" && out.BackupID == "" {
		out.BackupID = backupID
	}
	return out
}
