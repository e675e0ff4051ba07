package strategy

import (
	"context"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	awsadapter "github.com/costguard-framework/costguard/internal/aws"
	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/tier"
)

// awsStatic converts the tagged credential variant into the adapter's static
// form, stamping the execution region. A non-AWS variant yields empty keys;
// the SDK call then fails with an auth error the retry policy will not mask.
func awsStatic(rc Context) awsadapter.StaticCredentials {
	creds, _ := rc.Credentials.(AWSCredentials)
	region := awsadapter.ResolveRegion(rc.Region, creds.Region, "")
	return awsadapter.StaticCredentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		Region:          region,
	}
}

// StopInstanceStrategy stops a running EC2 instance.
type StopInstanceStrategy struct {
	Base
	Factory *awsadapter.ClientFactory
}

func (s *StopInstanceStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderAWS,
		Action:          core.ActionStopInstance,
		Description:     "Stop a running EC2 instance",
		RequiredFeature: tier.FeatureRemediation,
	}
}

func (s *StopInstanceStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	client := s.Factory.EC2Client(awsStatic(rc))
	s.Factory.WaitForService("ec2")
	_, err := client.StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{resourceID},
	})
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("StopInstances %s: %w", resourceID, err))
	}
	return ExecutionResult{Status: ExecSuccess}, nil
}

// TerminateInstanceStrategy terminates an EC2 instance, optionally capturing
// an AMI first.
type TerminateInstanceStrategy struct {
	Base
	Factory *awsadapter.ClientFactory
}

func (s *TerminateInstanceStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderAWS,
		Action:          core.ActionTerminateInstance,
		Description:     "Terminate an EC2 instance",
		RequiredFeature: tier.FeatureRemediation,
		Destructive:     true,
	}
}

func (s *TerminateInstanceStrategy) CreateBackup(ctx context.Context, resourceID string, rc Context) (string, error) {
	client := s.Factory.EC2Client(awsStatic(rc))
	s.Factory.WaitForService("ec2")
	name := fmt.Sprintf("costguard-%s-%d", resourceID, time.Now().Unix())
	out, err := client.CreateImage(ctx, &ec2.CreateImageInput{
		InstanceId: awssdk.String(resourceID),
		Name:       awssdk.String(name),
		NoReboot:   awssdk.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("CreateImage %s: %w", resourceID, err)
	}
	return awssdk.ToString(out.ImageId), nil
}

func (s *TerminateInstanceStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	client := s.Factory.EC2Client(awsStatic(rc))
	s.Factory.WaitForService("ec2")
	_, err := client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{resourceID},
	})
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("TerminateInstances %s: %w", resourceID, err))
	}
	return ExecutionResult{Status: ExecSuccess}, nil
}

// ResizeInstanceStrategy changes an instance type: stop, modify, start.
// Requires the target_instance_type parameter.
type ResizeInstanceStrategy struct {
	Base
	Factory *awsadapter.ClientFactory
}

func (s *ResizeInstanceStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderAWS,
		Action:          core.ActionResizeInstance,
		Description:     "Resize an EC2 instance to a smaller type",
		RequiredFeature: tier.FeatureRemediation,
	}
}

func (s *ResizeInstanceStrategy) Validate(ctx context.Context, resourceID string, rc Context) bool {
	return rc.Param("target_instance_type") != ""
}

func (s *ResizeInstanceStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	targetType := rc.Param("target_instance_type")
	creds := awsStatic(rc)
	client := s.Factory.EC2Client(creds)

	s.Factory.WaitForService("ec2")
	if _, err := client.StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{resourceID},
	}); err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("StopInstances %s: %w", resourceID, err))
	}
	if err := s.Factory.WaitForInstanceStopped(ctx, creds, resourceID, 10*time.Minute); err != nil {
		return ExecutionResult{}, Transient(err)
	}

	s.Factory.WaitForService("ec2")
	if _, err := client.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
		InstanceId:   awssdk.String(resourceID),
		InstanceType: &ec2types.AttributeValue{Value: awssdk.String(targetType)},
	}); err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("ModifyInstanceAttribute %s: %w", resourceID, err))
	}

	s.Factory.WaitForService("ec2")
	if _, err := client.StartInstances(ctx, &ec2.StartInstancesInput{
		InstanceIds: []string{resourceID},
	}); err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("StartInstances %s: %w", resourceID, err))
	}
	return ExecutionResult{
		Status:   ExecSuccess,
		Metadata: map[string]string{"new_instance_type": targetType},
	}, nil
}

// ReleaseElasticIPStrategy releases an unattached Elastic IP allocation.
type ReleaseElasticIPStrategy struct {
	Base
	Factory *awsadapter.ClientFactory
}

func (s *ReleaseElasticIPStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderAWS,
		Action:          core.ActionReleaseElasticIP,
		Description:     "Release an unassociated Elastic IP",
		RequiredFeature: tier.FeatureRemediation,
		Destructive:     true,
	}
}

func (s *ReleaseElasticIPStrategy) Validate(ctx context.Context, resourceID string, rc Context) bool {
	client := s.Factory.EC2Client(awsStatic(rc))
	s.Factory.WaitForService("ec2")
	out, err := client.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{
		AllocationIds: []string{resourceID},
	})
	if err != nil || len(out.Addresses) == 0 {
		return false
	}
	// refuse to release an address still associated with something
	return out.Addresses[0].AssociationId == nil
}

func (s *ReleaseElasticIPStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	client := s.Factory.EC2Client(awsStatic(rc))
	s.Factory.WaitForService("ec2")
	_, err := client.ReleaseAddress(ctx, &ec2.ReleaseAddressInput{
		AllocationId: awssdk.String(resourceID),
	})
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("ReleaseAddress %s: %w", resourceID, err))
	}
	return ExecutionResult{Status: ExecSuccess}, nil
}

// DeleteNATGatewayStrategy deletes a NAT gateway.
type DeleteNATGatewayStrategy struct {
	Base
	Factory *awsadapter.ClientFactory
}

func (s *DeleteNATGatewayStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderAWS,
		Action:          core.ActionDeleteNATGateway,
		Description:     "Delete an idle NAT gateway",
		RequiredFeature: tier.FeatureRemediation,
		Destructive:     true,
	}
}

func (s *DeleteNATGatewayStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	client := s.Factory.EC2Client(awsStatic(rc))
	s.Factory.WaitForService("ec2")
	_, err := client.DeleteNatGateway(ctx, &ec2.DeleteNatGatewayInput{
		NatGatewayId: awssdk.String(resourceID),
	})
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("DeleteNatGateway %s: %w", resourceID, err))
	}
	return ExecutionResult{Status: ExecSuccess}, nil
}
