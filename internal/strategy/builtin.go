package strategy

import (
	awsadapter "github.com/costguard-framework/costguard/internal/aws"
	"github.com/costguard-framework/costguard/internal/azure"
	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/gcp"
	"github.com/costguard-framework/costguard/internal/saas"
)

// RegisterBuiltinStrategies registers the full built-in action catalog on
// the builder. Called once at startup before Build.
func RegisterBuiltinStrategies(b *Builder, awsF *awsadapter.ClientFactory, azureF *azure.ClientFactory, gcpF *gcp.ClientFactory, saasF *saas.ClientFactory) {
	// AWS
	b.Register(&StopInstanceStrategy{Factory: awsF})
	b.Register(&TerminateInstanceStrategy{Factory: awsF})
	b.Register(&ResizeInstanceStrategy{Factory: awsF})
	b.Register(&DeleteVolumeStrategy{Factory: awsF})
	b.Register(&DeleteSnapshotStrategy{Factory: awsF})
	b.Register(&ReleaseElasticIPStrategy{Factory: awsF})
	b.Register(&DeleteNATGatewayStrategy{Factory: awsF})
	b.Register(&DeleteLoadBalancerStrategy{Factory: awsF})
	b.Register(&StopRDSInstanceStrategy{Factory: awsF})
	b.Register(&DeleteRDSInstanceStrategy{Factory: awsF})
	b.Register(&DeleteS3BucketStrategy{Factory: awsF})
	b.Register(&DeleteECRImageStrategy{Factory: awsF})
	b.Register(&DeleteRedshiftClusterStrategy{Factory: awsF})
	b.Register(&DeleteSageMakerEndpointStrategy{Factory: awsF})

	// Azure
	b.Register(&DeallocateVMStrategy{Factory: azureF})
	b.Register(&ResizeVMStrategy{Factory: azureF})

	// GCP
	b.Register(&StopGCPInstanceStrategy{Factory: gcpF})
	b.Register(&ResizeGCPInstanceStrategy{Factory: gcpF})

	// SaaS / license / manual
	b.Register(&RevokeSaaSSeatStrategy{Factory: saasF})
	b.Register(&ReclaimLicenseSeatStrategy{})
	b.Register(&ManualReviewStrategy{Provider: core.ProviderPlatform})
	b.Register(&ManualReviewStrategy{Provider: core.ProviderHybrid})
}
