package constants

import "time"

// GCP defaults for the provisioning pipeline.
const (
	// DefaultZone is the zone instances are created in when none is given.
	DefaultZone = "us-central1-a"

	// DefaultRegion is the region used for addresses, functions and scheduler jobs.
	DefaultRegion = "us-central1"

	// DefaultMachineType is the Compute Engine machine type for the serving instance.
	DefaultMachineType = "e2-medium"

	// BucketLocation is the multi-region location for predictor buckets.
	BucketLocation = "us"

	// HeartbeatSchedule fires the watchdog heartbeat every fifth minute.
	HeartbeatSchedule = "*/5 * * * *"

	// FunctionRuntime is the Cloud Functions runtime for the watchdog payload.
	FunctionRuntime = "python37"

	// FunctionMemoryMB is the watchdog function memory allocation.
	FunctionMemoryMB = 128

	// FunctionEntryPoint is the exported handler inside the watchdog payload.
	FunctionEntryPoint = "launch"

	// DefaultFunctionTimeoutSeconds bounds a single watchdog execution.
	DefaultFunctionTimeoutSeconds = 200

	// FunctionUploadSizeRange caps the zipped payload accepted by the upload URL.
	FunctionUploadSizeRange = "0,104857600"

	// PubSubPublishEventType is the event trigger type wiring a function to a topic.
	PubSubPublishEventType = "providers/cloud.pubsub/eventTypes/topic.publish"
)

// Container images baked into the generated scripts.
const (
	// BaseImage is the serving base image substituted into the Dockerfile template.
	BaseImage = "budgetml/budgetml:latest"

	// ComposeImage runs the multi-container stack on the instance.
	ComposeImage = "docker/compose:1.24.0"

	// CloudSDKImage is pre-pulled at startup and used by the shutdown script
	// to publish the stop notification.
	CloudSDKImage = "google/cloud-sdk:324.0.0"

	// LocalImageTag names the image built for local validation runs.
	LocalImageTag = "budget_local"
)

// Instance metadata keys read back by the startup script. Values are
// base64-encoded to survive the single-line metadata channel.
const (
	MetadataDockerTemplate  = "DOCKER_TEMPLATE"
	MetadataRequirements    = "REQUIREMENTS"
	MetadataComposeTemplate = "DOCKER_COMPOSE_TEMPLATE"
	MetadataNginxTemplate   = "NGINX_CONF_TEMPLATE"
)

// Control-plane call timeouts.
const (
	// AddressOperationTimeout bounds static IP reserve/release calls.
	AddressOperationTimeout = 2 * time.Minute

	// InstanceOperationTimeout bounds instance insert/delete calls.
	InstanceOperationTimeout = 3 * time.Minute

	// StorageOperationTimeout bounds bucket creation and object uploads.
	StorageOperationTimeout = 2 * time.Minute

	// PubSubOperationTimeout bounds topic create/delete calls.
	PubSubOperationTimeout = 30 * time.Second

	// SchedulerOperationTimeout bounds scheduler job create/delete calls.
	SchedulerOperationTimeout = 30 * time.Second

	// FunctionOperationTimeout bounds the upload handshake and function
	// registration; function deployment itself completes asynchronously.
	FunctionOperationTimeout = 5 * time.Minute

	// ResourcePollInterval is the delay between operation status polls.
	ResourcePollInterval = 2 * time.Second
)
