// Package gcp constructs Google Cloud Compute clients from service account
// JSON stored with a connection.
package gcp

import (
	"context"
	"fmt"

	compute "cloud.google.com/go/compute/apiv1"
	"google.golang.org/api/option"
)

// ServiceAccount holds the credential fields for a GCP connection.
type ServiceAccount struct {
	ProjectID string
	// JSON is the full service account key file contents.
	JSON string
}

// ClientFactory creates Compute Engine REST clients.
type ClientFactory struct{}

func NewClientFactory() *ClientFactory {
	return &ClientFactory{}
}

// InstancesClient returns a Compute Engine instances client authenticated
// with the given service account key. The caller owns Close.
func (f *ClientFactory) InstancesClient(ctx context.Context, sa ServiceAccount) (*compute.InstancesClient, error) {
	client, err := compute.NewInstancesRESTClient(ctx, option.WithCredentialsJSON([]byte(sa.JSON)))
	if err != nil {
		return nil, fmt.Errorf("gcp instances client: %w", err)
	}
	return client, nil
}
