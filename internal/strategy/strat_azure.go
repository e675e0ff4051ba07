package strategy

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"

	"github.com/costguard-framework/costguard/internal/azure"
	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/tier"
)

func azurePrincipal(rc Context) azure.ServicePrincipal {
	creds, _ := rc.Credentials.(AzureCredentials)
	return azure.ServicePrincipal{
		TenantID:       creds.TenantID,
		ClientID:       creds.ClientID,
		ClientSecret:   creds.ClientSecret,
		SubscriptionID: creds.SubscriptionID,
	}
}

// DeallocateVMStrategy deallocates an Azure VM so compute stops billing.
// Requires the resource_group parameter; the resource id is the VM name.
type DeallocateVMStrategy struct {
	Base
	Factory *azure.ClientFactory
}

func (s *DeallocateVMStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderAzure,
		Action:          core.ActionDeallocateVM,
		Description:     "Deallocate an idle Azure VM",
		RequiredFeature: tier.FeatureMultiCloud,
	}
}

func (s *DeallocateVMStrategy) Validate(ctx context.Context, resourceID string, rc Context) bool {
	return rc.Param("resource_group") != ""
}

func (s *DeallocateVMStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	client, err := s.Factory.VirtualMachinesClient(azurePrincipal(rc))
	if err != nil {
		return ExecutionResult{}, err
	}
	poller, err := client.BeginDeallocate(ctx, rc.Param("resource_group"), resourceID, nil)
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("BeginDeallocate %s: %w", resourceID, err))
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("deallocate %s: %w", resourceID, err))
	}
	return ExecutionResult{Status: ExecSuccess}, nil
}

// ResizeVMStrategy changes an Azure VM size. Requires resource_group and
// target_vm_size parameters.
type ResizeVMStrategy struct {
	Base
	Factory *azure.ClientFactory
}

func (s *ResizeVMStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderAzure,
		Action:          core.ActionResizeVM,
		Description:     "Resize an Azure VM to a smaller size",
		RequiredFeature: tier.FeatureMultiCloud,
	}
}

func (s *ResizeVMStrategy) Validate(ctx context.Context, resourceID string, rc Context) bool {
	return rc.Param("resource_group") != "" && rc.Param("target_vm_size") != ""
}

func (s *ResizeVMStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	client, err := s.Factory.VirtualMachinesClient(azurePrincipal(rc))
	if err != nil {
		return ExecutionResult{}, err
	}
	targetSize := rc.Param("target_vm_size")
	update := armcompute.VirtualMachineUpdate{
		Properties: &armcompute.VirtualMachineProperties{
			HardwareProfile: &armcompute.HardwareProfile{
				VMSize: to.Ptr(armcompute.VirtualMachineSizeTypes(targetSize)),
			},
		},
	}
	poller, err := client.BeginUpdate(ctx, rc.Param("resource_group"), resourceID, update, nil)
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("BeginUpdate %s: %w", resourceID, err))
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("resize %s: %w", resourceID, err))
	}
	return ExecutionResult{
		Status:   ExecSuccess,
		Metadata: map[string]string{"new_vm_size": targetSize},
	}, nil
}
