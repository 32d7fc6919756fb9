package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/api/compute/v1"

	"github.com/budgetml/budgetml/internal/constants"
)

// SourceImage is the boot disk image for serving instances.
const SourceImage = "projects/ubuntu-os-cloud/global/images/family/ubuntu-2004-lts"

const computeOperationDone = "DONE"

// InstanceSpec describes the serving instance. MetadataPayload carries
// the base64-encoded template files read back by the startup script.
type InstanceSpec struct {
	Name            string
	MachineType     string
	StaticIP        string
	Preemptible     bool
	StartupScript   string
	ShutdownScript  string
	MetadataPayload map[string]string
}

type defaultInstanceClient struct {
	service *compute.Service
}

// CreateInstance issues a synchronous insert. It returns once the
// control plane accepts the request; it does not wait for the
// instance to reach RUNNING.
func (c *defaultInstanceClient) CreateInstance(ctx context.Context, project, zone string, spec *InstanceSpec) error {
	ctx, cancel := context.WithTimeout(ctx, constants.InstanceOperationTimeout)
	defer cancel()

	slog.Info("creating instance",
		"project", project,
		"zone", zone,
		"name", spec.Name,
		"machine_type", spec.MachineType,
		"static_ip", spec.StaticIP,
		"preemptible", spec.Preemptible,
	)

	_, err := c.service.Instances.Insert(project, zone, c.toInstance(project, zone, spec)).Context(ctx).Do()
	return wrapError("create instance", err)
}

// DeleteInstance removes the instance; not-found is tolerated.
func (c *defaultInstanceClient) DeleteInstance(ctx context.Context, project, zone, name string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.InstanceOperationTimeout)
	defer cancel()

	slog.Debug("deleting instance", "project", project, "zone", zone, "name", name)

	_, err := c.service.Instances.Delete(project, zone, name).Context(ctx).Do()
	if isNotFound(err) {
		return nil
	}
	return wrapError("delete instance", err)
}

func (c *defaultInstanceClient) toInstance(project, zone string, spec *InstanceSpec) *compute.Instance {
	items := []*compute.MetadataItems{
		metadataItem("startup-script", spec.StartupScript),
		metadataItem("shutdown-script", spec.ShutdownScript),
	}
	for _, key := range []string{
		constants.MetadataDockerTemplate,
		constants.MetadataRequirements,
		constants.MetadataComposeTemplate,
		constants.MetadataNginxTemplate,
	} {
		if value, ok := spec.MetadataPayload[key]; ok {
			items = append(items, metadataItem(key, value))
		}
	}

	return &compute.Instance{
		Name:        spec.Name,
		MachineType: fmt.Sprintf("zones/%s/machineTypes/%s", zone, spec.MachineType),
		Disks: []*compute.AttachedDisk{
			{
				Boot:       true,
				AutoDelete: true,
				InitializeParams: &compute.AttachedDiskInitializeParams{
					SourceImage: SourceImage,
				},
			},
		},
		NetworkInterfaces: []*compute.NetworkInterface{
			{
				Network: "global/networks/default",
				AccessConfigs: []*compute.AccessConfig{
					{
						Type:  "ONE_TO_ONE_NAT",
						Name:  "External NAT",
						NatIP: spec.StaticIP,
					},
				},
			},
		},
		Scheduling: &compute.Scheduling{
			Preemptible: spec.Preemptible,
		},
		ServiceAccounts: []*compute.ServiceAccount{
			{
				Email: "default",
				Scopes: []string{
					"https://www.googleapis.com/auth/devstorage.read_write",
					"https://www.googleapis.com/auth/logging.write",
					"https://www.googleapis.com/auth/pubsub",
				},
			},
		},
		Tags: &compute.Tags{
			Items: []string{"http-server", "https-server"},
		},
		Metadata: &compute.Metadata{Items: items},
	}
}

func metadataItem(key, value string) *compute.MetadataItems {
	v := value
	return &compute.MetadataItems{Key: key, Value: &v}
}

func waitForRegionalOperation(ctx context.Context, service *compute.Service, project, region, opName string) error {
	for {
		op, err := service.RegionOperations.Get(project, region, opName).Context(ctx).Do()
		if err != nil {
			return wrapError("poll regional operation", err)
		}
		if op.Status == computeOperationDone {
			if op.Error != nil && len(op.Error.Errors) > 0 {
				return fmt.Errorf("operation error: %s", op.Error.Errors[0].Message)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(constants.ResourcePollInterval):
		}
	}
}
