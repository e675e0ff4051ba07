// Package aws provides the AWS SDK v2 adapter layer: per-service client
// construction from resolved connection credentials, per-service rate
// limiting, and bounded waiters for provider-side eventual state.
package aws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"
)

// StaticCredentials holds the key material needed to create AWS clients.
type StaticCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
}

// ClientFactory creates rate-limited AWS service clients.
type ClientFactory struct {
	rateLimiter *RateLimiter
	logger      zerolog.Logger
}

// NewClientFactory creates a new AWS client factory.
func NewClientFactory(logger zerolog.Logger) *ClientFactory {
	return &ClientFactory{
		rateLimiter: NewRateLimiter(10),
		logger:      logger,
	}
}

// NewClientFactoryWithRate creates a factory with a custom rate limit.
func NewClientFactoryWithRate(logger zerolog.Logger, ratePerSec int) *ClientFactory {
	return &ClientFactory{
		rateLimiter: NewRateLimiter(ratePerSec),
		logger:      logger,
	}
}

func (f *ClientFactory) awsConfig(creds StaticCredentials) aws.Config {
	return aws.Config{
		Region: creds.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID,
			creds.SecretAccessKey,
			creds.SessionToken,
		),
		RetryMaxAttempts: 5,
	}
}

// WaitForService blocks until the rate limit allows a call.
func (f *ClientFactory) WaitForService(service string) {
	f.rateLimiter.Wait(service)
}

// --- Service client factories ---

func (f *ClientFactory) STSClient(creds StaticCredentials) *sts.Client {
	return sts.NewFromConfig(f.awsConfig(creds))
}

func (f *ClientFactory) EC2Client(creds StaticCredentials) *ec2.Client {
	return ec2.NewFromConfig(f.awsConfig(creds))
}

func (f *ClientFactory) RDSClient(creds StaticCredentials) *rds.Client {
	return rds.NewFromConfig(f.awsConfig(creds))
}

func (f *ClientFactory) S3Client(creds StaticCredentials) *s3.Client {
	return s3.NewFromConfig(f.awsConfig(creds))
}

func (f *ClientFactory) ECRClient(creds StaticCredentials) *ecr.Client {
	return ecr.NewFromConfig(f.awsConfig(creds))
}

func (f *ClientFactory) RedshiftClient(creds StaticCredentials) *redshift.Client {
	return redshift.NewFromConfig(f.awsConfig(creds))
}

func (f *ClientFactory) SageMakerClient(creds StaticCredentials) *sagemaker.Client {
	return sagemaker.NewFromConfig(f.awsConfig(creds))
}

func (f *ClientFactory) ELBClient(creds StaticCredentials) *elbv2.Client {
	return elbv2.NewFromConfig(f.awsConfig(creds))
}

// --- Convenience operations ---

// GetCallerIdentity performs sts:GetCallerIdentity, used to verify imported
// connections.
func (f *ClientFactory) GetCallerIdentity(ctx context.Context, creds StaticCredentials) (arn, account, userID string, err error) {
	f.rateLimiter.Wait("sts")

	client := f.STSClient(creds)
	result, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", "", "", fmt.Errorf("GetCallerIdentity: %w", err)
	}
	return aws.ToString(result.Arn), aws.ToString(result.Account), aws.ToString(result.UserId), nil
}

// WaitForVolumeDetached polls until the volume reports no attachments or the
// timeout elapses. The poll loop is bounded; callers get an error rather than
// an unbounded hang.
func (f *ClientFactory) WaitForVolumeDetached(ctx context.Context, creds StaticCredentials, volumeID string, timeout time.Duration) error {
	client := f.EC2Client(creds)
	deadline := time.Now().Add(timeout)

	for {
		f.rateLimiter.Wait("ec2")
		out, err := client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
			VolumeIds: []string{volumeID},
		})
		if err != nil {
			return fmt.Errorf("DescribeVolumes %s: %w", volumeID, err)
		}
		if len(out.Volumes) == 0 {
			return fmt.Errorf("volume not found: %s", volumeID)
		}
		if len(out.Volumes[0].Attachments) == 0 && out.Volumes[0].State == ec2types.VolumeStateAvailable {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("volume %s still attached after %s", volumeID, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

// WaitForInstanceStopped polls until the instance reports stopped or the
// timeout elapses.
func (f *ClientFactory) WaitForInstanceStopped(ctx context.Context, creds StaticCredentials, instanceID string, timeout time.Duration) error {
	client := f.EC2Client(creds)
	deadline := time.Now().Add(timeout)

	for {
		f.rateLimiter.Wait("ec2")
		out, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{instanceID},
		})
		if err != nil {
			return fmt.Errorf("DescribeInstances %s: %w", instanceID, err)
		}
		for _, res := range out.Reservations {
			for _, inst := range res.Instances {
				if inst.State != nil && inst.State.Name == ec2types.InstanceStateNameStopped {
					return nil
				}
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("instance %s not stopped after %s", instanceID, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

// --- Rate Limiter ---

type RateLimiter struct {
	mu         sync.Mutex
	ratePerSec int
	lastCall   map[string]time.Time
}

func NewRateLimiter(ratePerSec int) *RateLimiter {
	return &RateLimiter{
		ratePerSec: ratePerSec,
		lastCall:   make(map[string]time.Time),
	}
}

func (rl *RateLimiter) Wait(service string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	minInterval := time.Second / time.Duration(rl.ratePerSec)
	last, ok := rl.lastCall[service]
	if ok {
		elapsed := time.Since(last)
		if elapsed < minInterval {
			time.Sleep(minInterval - elapsed)
		}
	}
	rl.lastCall[service] = time.Now()
}
