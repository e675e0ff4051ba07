package strategy

import (
	"context"
	"fmt"
	"net/http"

	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/saas"
	"github.com/costguard-framework/costguard/internal/tier"
)

// RevokeSaaSSeatStrategy removes a user's org membership, freeing the seat.
// The resource id is the username. A 404 means the seat is already gone and
// counts as success.
type RevokeSaaSSeatStrategy struct {
	Base
	Factory *saas.ClientFactory
}

func (s *RevokeSaaSSeatStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderSaaS,
		Action:          core.ActionRevokeSaaSSeat,
		Description:     "Revoke an inactive SaaS seat",
		RequiredFeature: tier.FeatureSaaSConnectors,
		Destructive:     true,
	}
}

func (s *RevokeSaaSSeatStrategy) Validate(ctx context.Context, resourceID string, rc Context) bool {
	creds, ok := rc.Credentials.(SaaSCredentials)
	return ok && creds.Org != "" && creds.Token != ""
}

func (s *RevokeSaaSSeatStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	creds := rc.Credentials.(SaaSCredentials)
	client := s.Factory.GitHubClient(creds.Token)

	resp, err := client.Organizations.RemoveOrgMembership(ctx, resourceID, creds.Org)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return ExecutionResult{
				Status:   ExecSuccess,
				Metadata: map[string]string{"note": "seat already revoked"},
			}, nil
		}
		return ExecutionResult{}, Transient(fmt.Errorf("RemoveOrgMembership %s: %w", resourceID, err))
	}
	return ExecutionResult{Status: ExecSuccess}, nil
}

// ReclaimLicenseSeatStrategy records a seat reclaim that an operator must
// complete in the vendor console. License vendors rarely expose a revoke
// API, so the strategy reports SKIPPED with follow-up detail rather than
// pretending the seat is gone.
type ReclaimLicenseSeatStrategy struct {
	Base
}

func (s *ReclaimLicenseSeatStrategy) Meta() Meta {
	return Meta{
		Provider:        core.ProviderLicense,
		Action:          core.ActionReclaimLicenseSeat,
		Description:     "Reclaim an unused license seat",
		RequiredFeature: tier.FeatureLicenseConnectors,
	}
}

func (s *ReclaimLicenseSeatStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	vendor := "unknown"
	if creds, ok := rc.Credentials.(LicenseCredentials); ok && creds.Vendor != "" {
		vendor = creds.Vendor
	}
	return ExecutionResult{
		Status: ExecSkipped,
		Error:  fmt.Sprintf("manual follow-up: reclaim seat %s in the %s console", resourceID, vendor),
		Metadata: map[string]string{
			"vendor": vendor,
		},
	}, nil
}

// ManualReviewStrategy is the catch-all for providers without an API
// surface. It never touches anything; the operator acts on the notification.
type ManualReviewStrategy struct {
	Base
	Provider core.Provider
}

func (s *ManualReviewStrategy) Meta() Meta {
	return Meta{
		Provider:        s.Provider,
		Action:          core.ActionManualReview,
		Description:     "Flag a resource for operator review",
		RequiredFeature: tier.FeatureRemediation,
	}
}

func (s *ManualReviewStrategy) PerformAction(ctx context.Context, resourceID string, rc Context) (ExecutionResult, error) {
	return ExecutionResult{
		Status:   ExecSuccess,
		Metadata: map[string]string{"disposition": "queued for operator review"},
	}, nil
}
