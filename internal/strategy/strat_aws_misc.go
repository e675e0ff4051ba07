package strategy

import (
	"context"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"

	awsadapter "github.com/costguard-framework/costguard/internal/aws"
	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/tier"
)

// DeleteS3BucketStrategy deletes an empty S3 bucket. A non-empty bucket
// fails the call rather than being emptied; bulk object deletion is a
// different blast radius than removing an abandoned bucket.
type DeleteS3BucketStrategy struct {
	Base
	Factory *awsadapter.ClientFactory
}

func (s *DeleteS3BucketStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderAWS,
		Action:          core.ActionDeleteS3Bucket,
		Description:     "Delete an empty S3 bucket",
		RequiredFeature: tier.FeatureRemediation,
		Destructive:     true,
	}
}

func (s *DeleteS3BucketStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	client := s.Factory.S3Client(awsStatic(rc))
	s.Factory.WaitForService("s3")
	_, err := client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: awssdk.String(resourceID),
	})
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("DeleteBucket %s: %w", resourceID, err))
	}
	return ExecutionResult{Status: ExecSuccess}, nil
}

// DeleteECRImageStrategy removes one image from a repository. The resource
// id is the repository name; the image is addressed by the image_digest or
// image_tag parameter.
type DeleteECRImageStrategy struct {
	Base
	Factory *awsadapter.ClientFactory
}

func (s *DeleteECRImageStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderAWS,
		Action:          core.ActionDeleteECRImage,
		Description:     "Delete a stale ECR image",
		RequiredFeature: tier.FeatureRemediation,
		Destructive:     true,
	}
}

func (s *DeleteECRImageStrategy) Validate(ctx context.Context, resourceID string, rc Context) bool {
	return rc.Param("image_digest") != "" || rc.Param("image_tag") != ""
}

func (s *DeleteECRImageStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	var imageID ecrtypes.ImageIdentifier
	if digest := rc.Param("image_digest"); digest != "" {
		imageID.ImageDigest = awssdk.String(digest)
	} else {
		imageID.ImageTag = awssdk.String(rc.Param("image_tag"))
	}

	client := s.Factory.ECRClient(awsStatic(rc))
	s.Factory.WaitForService("ecr")
	out, err := client.BatchDeleteImage(ctx, &ecr.BatchDeleteImageInput{
		RepositoryName: awssdk.String(resourceID),
		ImageIds:       []ecrtypes.ImageIdentifier{imageID},
	})
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("BatchDeleteImage %s: %w", resourceID, err))
	}
	if len(out.Failures) > 0 {
		f := out.Failures[0]
		return ExecutionResult{}, fmt.Errorf("BatchDeleteImage %s: %s: %s",
			resourceID, f.FailureCode, awssdk.ToString(f.FailureReason))
	}
	return ExecutionResult{Status: ExecSuccess}, nil
}

// DeleteRedshiftClusterStrategy deletes a cluster. Redshift snapshots at
// deletion time, so there is no separate CreateBackup call: PerformAction
// names the final snapshot and reports it as the backup id.
type DeleteRedshiftClusterStrategy struct {
	Base
	Factory *awsadapter.ClientFactory
}

func (s *DeleteRedshiftClusterStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderAWS,
		Action:          core.ActionDeleteRedshift,
		Description:     "Delete an idle Redshift cluster",
		RequiredFeature: tier.FeatureRemediation,
		Destructive:     true,
	}
}

// redshiftFinalSnapshotName names the snapshot taken by DeleteCluster. The
// name must be generated exactly once per deletion so the recorded backup id
// and the FinalClusterSnapshotIdentifier sent to the API cannot diverge.
func redshiftFinalSnapshotName(resourceID string) string {
	return fmt.Sprintf("costguard-%s-%d", resourceID, time.Now().Unix())
}

func (s *DeleteRedshiftClusterStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	client := s.Factory.RedshiftClient(awsStatic(rc))
	s.Factory.WaitForService("redshift")

	input := &redshift.DeleteClusterInput{
		ClusterIdentifier:        awssdk.String(resourceID),
		SkipFinalClusterSnapshot: awssdk.Bool(true),
	}
	var snapshotName string
	if rc.CreateBackup {
		snapshotName = redshiftFinalSnapshotName(resourceID)
		input.SkipFinalClusterSnapshot = awssdk.Bool(false)
		input.FinalClusterSnapshotIdentifier = awssdk.String(snapshotName)
	}
	_, err := client.DeleteCluster(ctx, input)
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("DeleteCluster %s: %w", resourceID, err))
	}
	return ExecutionResult{Status: ExecSuccess, BackupID: snapshotName}, nil
}

// DeleteSageMakerEndpointStrategy deletes an inference endpoint.
type DeleteSageMakerEndpointStrategy struct {
	Base
	Factory *awsadapter.ClientFactory
}

func (s *DeleteSageMakerEndpointStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderAWS,
		Action:          core.ActionDeleteSageMaker,
		Description:     "Delete an idle SageMaker endpoint",
		RequiredFeature: tier.FeatureRemediation,
		Destructive:     true,
	}
}

func (s *DeleteSageMakerEndpointStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	client := s.Factory.SageMakerClient(awsStatic(rc))
	s.Factory.WaitForService("sagemaker")
	_, err := client.DeleteEndpoint(ctx, &sagemaker.DeleteEndpointInput{
		EndpointName: awssdk.String(resourceID),
	})
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("DeleteEndpoint %s: %w", resourceID, err))
	}
	return ExecutionResult{Status: ExecSuccess}, nil
}

// DeleteLoadBalancerStrategy deletes an ALB/NLB by ARN.
type DeleteLoadBalancerStrategy struct {
	Base
	Factory *awsadapter.ClientFactory
}

func (s *DeleteLoadBalancerStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderAWS,
		Action:          core.ActionDeleteLoadBalancer,
		Description:     "Delete an unused load balancer",
		RequiredFeature: tier.FeatureRemediation,
		Destructive:     true,
	}
}

func (s *DeleteLoadBalancerStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	client := s.Factory.ELBClient(awsStatic(rc))
	s.Factory.WaitForService("elbv2")
	_, err := client.DeleteLoadBalancer(ctx, &elbv2.DeleteLoadBalancerInput{
		LoadBalancerArn: awssdk.String(resourceID),
	})
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("DeleteLoadBalancer %s: %w", resourceID, err))
	}
	return ExecutionResult{Status: ExecSuccess}, nil
}
