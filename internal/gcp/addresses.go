package gcp

import (
	"context"
	"log/slog"

	"google.golang.org/api/compute/v1"

	"github.com/budgetml/budgetml/internal/constants"
)

type defaultAddressClient struct {
	service *compute.Service
}

// CreateStaticIP reserves a regional external address and waits until
// the reservation holds an IP. The caller must release it explicitly;
// calling twice with different names allocates two addresses.
func (c *defaultAddressClient) CreateStaticIP(ctx context.Context, project, region, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.AddressOperationTimeout)
	defer cancel()

	slog.Debug("reserving static ip", "project", project, "region", region, "name", name)

	address := &compute.Address{Name: name}
	op, err := c.service.Addresses.Insert(project, region, address).Context(ctx).Do()
	if err != nil {
		return "", wrapError("reserve static ip", err)
	}

	if waitErr := waitForRegionalOperation(ctx, c.service, project, region, op.Name); waitErr != nil {
		return "", wrapError("wait for static ip reservation", waitErr)
	}

	reserved, err := c.service.Addresses.Get(project, region, name).Context(ctx).Do()
	if err != nil {
		return "", wrapError("get reserved static ip", err)
	}

	slog.Info("static ip reserved", "name", name, "address", reserved.Address)
	return reserved.Address, nil
}

// ReleaseStaticIP deletes the reservation. Not-found is tolerated so
// teardown can be re-run.
func (c *defaultAddressClient) ReleaseStaticIP(ctx context.Context, project, region, name string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.AddressOperationTimeout)
	defer cancel()

	slog.Debug("releasing static ip", "project", project, "region", region, "name", name)

	_, err := c.service.Addresses.Delete(project, region, name).Context(ctx).Do()
	if isNotFound(err) {
		return nil
	}
	return wrapError("release static ip", err)
}
