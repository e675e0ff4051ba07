package strategy

import (
	"context"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"

	awsadapter "github.com/costguard-framework/costguard/internal/aws"
	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/tier"
)

// StopRDSInstanceStrategy stops an RDS database instance.
type StopRDSInstanceStrategy struct {
	Base
	Factory *awsadapter.ClientFactory
}

func (s *StopRDSInstanceStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderAWS,
		Action:          core.ActionStopRDSInstance,
		Description:     "Stop an idle RDS instance",
		RequiredFeature: tier.FeatureRemediation,
	}
}

func (s *StopRDSInstanceStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	client := s.Factory.RDSClient(awsStatic(rc))
	s.Factory.WaitForService("rds")
	_, err := client.StopDBInstance(ctx, &rds.StopDBInstanceInput{
		DBInstanceIdentifier: awssdk.String(resourceID),
	})
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("StopDBInstance %s: %w", resourceID, err))
	}
	return ExecutionResult{Status: ExecSuccess}, nil
}

// DeleteRDSInstanceStrategy deletes an RDS instance, snapshotting it first
// when a backup is requested.
type DeleteRDSInstanceStrategy struct {
	Base
	Factory *awsadapter.ClientFactory
}

func (s *DeleteRDSInstanceStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderAWS,
		Action:          core.ActionDeleteRDSInstance,
		Description:     "Snapshot and delete an RDS instance",
		RequiredFeature: tier.FeatureRemediation,
		Destructive:     true,
	}
}

func (s *DeleteRDSInstanceStrategy) CreateBackup(ctx context.Context, resourceID string, rc Context) (string, error) {
	client := s.Factory.RDSClient(awsStatic(rc))
	s.Factory.WaitForService("rds")
	snapshotID := fmt.Sprintf("costguard-%s-%d", resourceID, time.Now().Unix())
	_, err := client.CreateDBSnapshot(ctx, &rds.CreateDBSnapshotInput{
		DBInstanceIdentifier: awssdk.String(resourceID),
		DBSnapshotIdentifier: awssdk.String(snapshotID),
	})
	if err != nil {
		return "", fmt.Errorf("CreateDBSnapshot %s: %w", resourceID, err)
	}
	return snapshotID, nil
}

func (s *DeleteRDSInstanceStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	client := s.Factory.RDSClient(awsStatic(rc))
	s.Factory.WaitForService("rds")
	_, err := client.DeleteDBInstance(ctx, &rds.DeleteDBInstanceInput{
		DBInstanceIdentifier: awssdk.String(resourceID),
		SkipFinalSnapshot:    awssdk.Bool(true),
	})
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("DeleteDBInstance %s: %w", resourceID, err))
	}
	return ExecutionResult{Status: ExecSuccess}, nil
}
