package strategy

import (
	"context"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	awsadapter "github.com/costguard-framework/costguard/internal/aws"
	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/tier"
)

// DeleteVolumeStrategy deletes an EBS volume after snapshotting it and
// waiting for any attachment to clear.
type DeleteVolumeStrategy struct {
	Base
	Factory *awsadapter.ClientFactory
}

func (s *DeleteVolumeStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderAWS,
		Action:          core.ActionDeleteVolume,
		Description:     "Snapshot and delete an EBS volume",
		RequiredFeature: tier.FeatureRemediation,
		Destructive:     true,
	}
}

func (s *DeleteVolumeStrategy) Validate(ctx context.Context, resourceID string, rc Context) bool {
	client := s.Factory.EC2Client(awsStatic(rc))
	s.Factory.WaitForService("ec2")
	out, err := client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		VolumeIds: []string{resourceID},
	})
	if err != nil || len(out.Volumes) == 0 {
		return false
	}
	return true
}

func (s *DeleteVolumeStrategy) CreateBackup(ctx context.Context, resourceID string, rc Context) (string, error) {
	client := s.Factory.EC2Client(awsStatic(rc))
	s.Factory.WaitForService("ec2")
	out, err := client.CreateSnapshot(ctx, &ec2.CreateSnapshotInput{
		VolumeId:    awssdk.String(resourceID),
		Description: awssdk.String(fmt.Sprintf("costguard backup of %s", resourceID)),
	})
	if err != nil {
		return "", fmt.Errorf("CreateSnapshot %s: %w", resourceID, err)
	}
	return awssdk.ToString(out.SnapshotId), nil
}

func (s *DeleteVolumeStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	creds := awsStatic(rc)
	client := s.Factory.EC2Client(creds)

	s.Factory.WaitForService("ec2")
	out, err := client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		VolumeIds: []string{resourceID},
	})
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("DescribeVolumes %s: %w", resourceID, err))
	}
	if len(out.Volumes) > 0 && len(out.Volumes[0].Attachments) > 0 {
		s.Factory.WaitForService("ec2")
		if _, err := client.DetachVolume(ctx, &ec2.DetachVolumeInput{
			VolumeId: awssdk.String(resourceID),
		}); err != nil {
			return ExecutionResult{}, Transient(fmt.Errorf("DetachVolume %s: %w", resourceID, err))
		}
		if err := s.Factory.WaitForVolumeDetached(ctx, creds, resourceID, 5*time.Minute); err != nil {
			return ExecutionResult{}, Transient(err)
		}
	}

	s.Factory.WaitForService("ec2")
	if _, err := client.DeleteVolume(ctx, &ec2.DeleteVolumeInput{
		VolumeId: awssdk.String(resourceID),
	}); err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("DeleteVolume %s: %w", resourceID, err))
	}
	return ExecutionResult{Status: ExecSuccess}, nil
}

// DeleteSnapshotStrategy deletes an EBS snapshot. No backup of a backup.
type DeleteSnapshotStrategy struct {
	Base
	Factory *awsadapter.ClientFactory
}

func (s *DeleteSnapshotStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderAWS,
		Action:          core.ActionDeleteSnapshot,
		Description:     "Delete an aged EBS snapshot",
		RequiredFeature: tier.FeatureRemediation,
		Destructive:     true,
	}
}

func (s *DeleteSnapshotStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	client := s.Factory.EC2Client(awsStatic(rc))
	s.Factory.WaitForService("ec2")
	_, err := client.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{
		SnapshotId: awssdk.String(resourceID),
	})
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("DeleteSnapshot %s: %w", resourceID, err))
	}
	return ExecutionResult{Status: ExecSuccess}, nil
}
