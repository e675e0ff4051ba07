package strategy

import (
	"context"
	"fmt"

	"cloud.google.com/go/compute/apiv1/computepb"
	"google.golang.org/protobuf/proto"

	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/gcp"
	"github.com/costguard-framework/costguard/internal/tier"
)

func gcpAccount(rc Context) gcp.ServiceAccount {
	creds, _ := rc.Credentials.(GCPCredentials)
	return gcp.ServiceAccount{
		ProjectID: creds.ProjectID,
		JSON:      string(creds.ServiceAccountJSON),
	}
}

// StopGCPInstanceStrategy stops a Compute Engine instance. Requires the zone
// parameter; the resource id is the instance name.
type StopGCPInstanceStrategy struct {
	Base
	Factory *gcp.ClientFactory
}

func (s *StopGCPInstanceStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderGCP,
		Action:          core.ActionStopGCPInstance,
		Description:     "Stop an idle Compute Engine instance",
		RequiredFeature: tier.FeatureMultiCloud,
	}
}

func (s *StopGCPInstanceStrategy) Validate(ctx context.Context, resourceID string, rc Context) bool {
	return rc.Param("zone") != ""
}

func (s *StopGCPInstanceStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	sa := gcpAccount(rc)
	client, err := s.Factory.InstancesClient(ctx, sa)
	if err != nil {
		return ExecutionResult{}, err
	}
	defer client.Close()

	op, err := client.Stop(ctx, &computepb.StopInstanceRequest{
		Project:  sa.ProjectID,
		Zone:     rc.Param("zone"),
		Instance: resourceID,
	})
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("Stop %s: %w", resourceID, err))
	}
	if err := op.Wait(ctx); err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("Stop %s: %w", resourceID, err))
	}
	return ExecutionResult{Status: ExecSuccess}, nil
}

// ResizeGCPInstanceStrategy changes the machine type: stop, set type, start.
// Requires zone and target_machine_type parameters.
type ResizeGCPInstanceStrategy struct {
	Base
	Factory *gcp.ClientFactory
}

func (s *ResizeGCPInstanceStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderGCP,
		Action:          core.ActionResizeGCPInstance,
		Description:     "Resize a Compute Engine instance to a smaller type",
		RequiredFeature: tier.FeatureMultiCloud,
	}
}

func (s *ResizeGCPInstanceStrategy) Validate(ctx context.Context, resourceID string, rc Context) bool {
	return rc.Param("zone") != "" && rc.Param("target_machine_type") != ""
}

func (s *ResizeGCPInstanceStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	sa := gcpAccount(rc)
	zone := rc.Param("zone")
	targetType := rc.Param("target_machine_type")

	client, err := s.Factory.InstancesClient(ctx, sa)
	if err != nil {
		return ExecutionResult{}, err
	}
	defer client.Close()

	stopOp, err := client.Stop(ctx, &computepb.StopInstanceRequest{
		Project:  sa.ProjectID,
		Zone:     zone,
		Instance: resourceID,
	})
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("Stop %s: %w", resourceID, err))
	}
	if err := stopOp.Wait(ctx); err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("Stop %s: %w", resourceID, err))
	}

	setOp, err := client.SetMachineType(ctx, &computepb.SetMachineTypeInstanceRequest{
		Project:  sa.ProjectID,
		Zone:     zone,
		Instance: resourceID,
		InstancesSetMachineTypeRequestResource: &computepb.InstancesSetMachineTypeRequest{
			MachineType: proto.String(fmt.Sprintf("zones/%s/machineTypes/%s", zone, targetType)),
		},
	})
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("SetMachineType %s: %w", resourceID, err))
	}
	if err := setOp.Wait(ctx); err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("SetMachineType %s: %w", resourceID, err))
	}

	startOp, err := client.Start(ctx, &computepb.StartInstanceRequest{
		Project:  sa.ProjectID,
		Zone:     zone,
		Instance: resourceID,
	})
	if err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("Start %s: %w", resourceID, err))
	}
	if err := startOp.Wait(ctx); err != nil {
		return ExecutionResult{}, Transient(fmt.Errorf("Start %s: %w", resourceID, err))
	}
	return ExecutionResult{
		Status:   ExecSuccess,
		Metadata: map[string]string{"new_machine_type": targetType},
	}, nil
}
