// Package gcp provides typed thin clients for the GCP resources a
// budgetml deployment manages: static IPs, compute instances, storage
// buckets, Pub/Sub topics, scheduler jobs and the watchdog function.
//
// Each client wraps one Google API service and exposes narrow
// create/delete methods. Creates treat an HTTP 409 conflict as
// success where idempotency is wanted; deletes tolerate 404s so a
// teardown can be re-run safely.
package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/cloudfunctions/v1"
	"google.golang.org/api/cloudscheduler/v1"
	"google.golang.org/api/compute/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/pubsub/v1"
)

// AddressClient manages regional static IP addresses.
type AddressClient interface {
	CreateStaticIP(ctx context.Context, project, region, name string) (string, error)
	ReleaseStaticIP(ctx context.Context, project, region, name string) error
}

// InstanceClient manages compute instances.
type InstanceClient interface {
	CreateInstance(ctx context.Context, project, zone string, spec *InstanceSpec) error
	DeleteInstance(ctx context.Context, project, zone, name string) error
}

// StorageClient manages buckets and object uploads.
type StorageClient interface {
	CreateBucketIfAbsent(ctx context.Context, project, name string) error
	UploadObject(ctx context.Context, bucket, localPath, objectPath string) error
}

// PubSubClient manages notification topics.
type PubSubClient interface {
	CreateTopic(ctx context.Context, project, topic string) (string, error)
	DeleteTopic(ctx context.Context, project, topic string) error
}

// SchedulerClient manages the periodic heartbeat job.
type SchedulerClient interface {
	CreateJob(ctx context.Context, project, region, topic, schedule string) error
	DeleteJob(ctx context.Context, project, region, topic string) error
}

// FunctionClient manages the watchdog cloud function.
type FunctionClient interface {
	CreateWatchdogFunction(ctx context.Context, in *WatchdogSpec) error
	DeleteWatchdogFunction(ctx context.Context, project, region, name string) error
}

// ServiceClients bundles one client per managed resource kind.
type ServiceClients struct {
	Addresses AddressClient
	Instances InstanceClient
	Storage   StorageClient
	PubSub    PubSubClient
	Scheduler SchedulerClient
	Functions FunctionClient
}

// NewServiceClients builds concrete clients backed by the Google Cloud APIs.
func NewServiceClients(ctx context.Context, opts ...option.ClientOption) (*ServiceClients, error) {
	computeSvc, err := compute.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create compute service: %w", err)
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	pubsubSvc, err := pubsub.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub service: %w", err)
	}

	schedulerSvc, err := cloudscheduler.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler service: %w", err)
	}

	functionsSvc, err := cloudfunctions.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create cloud functions service: %w", err)
	}

	return &ServiceClients{
		Addresses: &defaultAddressClient{service: computeSvc},
		Instances: &defaultInstanceClient{service: computeSvc},
		Storage:   &defaultStorageClient{client: storageClient},
		PubSub:    &defaultPubSubClient{service: pubsubSvc},
		Scheduler: &defaultSchedulerClient{service: schedulerSvc},
		Functions: &defaultFunctionClient{service: functionsSvc},
	}, nil
}
