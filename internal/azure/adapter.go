// Package azure constructs Azure Resource Manager clients from service
// principal credentials stored with a connection.
package azure

import (
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
)

// ServicePrincipal holds the client-secret credential fields for an Azure
// connection.
type ServicePrincipal struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string
}

// ClientFactory creates ARM service clients.
type ClientFactory struct{}

func NewClientFactory() *ClientFactory {
	return &ClientFactory{}
}

// VirtualMachinesClient returns a compute client authenticated as the given
// service principal.
func (f *ClientFactory) VirtualMachinesClient(sp ServicePrincipal) (*armcompute.VirtualMachinesClient, error) {
	cred, err := azidentity.NewClientSecretCredential(sp.TenantID, sp.ClientID, sp.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}
	client, err := armcompute.NewVirtualMachinesClient(sp.SubscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure compute client: %w", err)
	}
	return client, nil
}
