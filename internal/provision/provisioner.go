// Package provision sequences the resource creation pipeline that
// brings a budgetml deployment up: static IP, bucket, predictor
// upload, topic, watchdog function, scheduler job, and finally the
// serving instance whose startup script embeds everything before it.
//
// The pipeline is a straight line. Step ordering is load-bearing: the
// topic must exist before the function and the scheduler job reference
// it by name, and the instance is created last because its metadata
// textually embeds names produced by every earlier step. A failure at
// step k leaves the resources from steps 1..k-1 allocated; the
// manifest written alongside records them for cleanup.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/budgetml/budgetml/internal/constants"
	"github.com/budgetml/budgetml/internal/gcp"
	"github.com/budgetml/budgetml/internal/scripts"
)

// Predictor identifies the user's prediction handler artifact: the
// source file to upload and the class name the serving app loads.
type Predictor struct {
	Path       string
	Entrypoint string
}

// LaunchOptions are the per-launch parameters. Zero values fall back
// to derived names and the documented defaults.
type LaunchOptions struct {
	Predictor Predictor

	Domain    string
	Subdomain string
	Username  string
	Password  string // random per launch when empty

	RequirementsPath string
	RequirementsList []string
	DockerfilePath   string

	BucketName   string
	InstanceName string
	MachineType  string
	Preemptible  bool
	StaticIP     string // skip address reservation when set
}

// Deployment reports what a launch created. Username and Password are
// the credential pair protecting the HTTPS endpoint.
type Deployment struct {
	Username     string
	Password     string
	StaticIP     string
	InstanceName string
	BucketName   string
	Topic        string
	FunctionName string
	Endpoint     string
}

// Launcher drives the provisioning pipeline against one GCP project.
type Launcher struct {
	project  string
	zone     string
	region   string
	uniqueID string
	clients  *gcp.ServiceClients
}

// NewLauncher builds a Launcher. An empty uniqueID gets a fresh UUID;
// reusing the same uniqueID across launches targets the same resource
// names.
func NewLauncher(project, zone, region, uniqueID string, clients *gcp.ServiceClients) *Launcher {
	if zone == "" {
		zone = constants.DefaultZone
	}
	if region == "" {
		region = constants.DefaultRegion
	}
	if uniqueID == "" {
		uniqueID = uuid.NewString()
	}
	return &Launcher{
		project:  project,
		zone:     zone,
		region:   region,
		uniqueID: uniqueID,
		clients:  clients,
	}
}

// UniqueID returns the seed value all resource names derive from.
func (l *Launcher) UniqueID() string {
	return l.uniqueID
}

// Launch runs the full pipeline and returns the deployment credentials.
// There is no rollback on failure; whatever was created so far is
// recorded in the resource manifest.
func (l *Launcher) Launch(ctx context.Context, opts LaunchOptions) (*Deployment, error) {
	if err := validateLaunchOptions(&opts); err != nil {
		return nil, err
	}
	applyLaunchDefaults(&opts, l.uniqueID)

	manifest := &Manifest{
		Project:   l.project,
		Zone:      l.zone,
		Region:    l.region,
		UniqueID:  l.uniqueID,
		CreatedAt: time.Now().UTC(),
	}
	defer func() {
		if err := manifest.Write(ManifestFileName); err != nil {
			slog.Warn("could not write resource manifest", "error", err)
		}
	}()

	staticIP, err := l.ensureAddressAndBucket(ctx, &opts, manifest)
	if err != nil {
		return nil, err
	}

	objectPath := PredictorObjectPath(l.uniqueID, opts.Predictor.Entrypoint)
	if err := l.clients.Storage.UploadObject(ctx, opts.BucketName, opts.Predictor.Path, objectPath); err != nil {
		return nil, fmt.Errorf("upload predictor: %w", err)
	}

	topic := TopicName(opts.InstanceName)
	fullTopic, err := l.clients.PubSub.CreateTopic(ctx, l.project, topic)
	if err != nil {
		return nil, err
	}
	manifest.add("pubsub-topic", topic)

	functionName := FunctionName(opts.InstanceName)
	err = l.clients.Functions.CreateWatchdogFunction(ctx, &gcp.WatchdogSpec{
		Project:        l.project,
		Region:         l.region,
		Name:           functionName,
		Zone:           l.zone,
		InstanceName:   opts.InstanceName,
		Topic:          fullTopic,
		TimeoutSeconds: constants.DefaultFunctionTimeoutSeconds,
	})
	if err != nil {
		return nil, err
	}
	manifest.add("cloud-function", functionName)

	if err := l.clients.Scheduler.CreateJob(ctx, l.project, l.region, topic, constants.HeartbeatSchedule); err != nil {
		return nil, err
	}
	manifest.add("scheduler-job", topic)

	payload, err := l.renderPayloads(&opts)
	if err != nil {
		return nil, err
	}

	startup := scripts.StartupScript(scripts.StartupInput{
		Bucket:        opts.BucketName,
		PredictorPath: objectPath,
		Entrypoint:    opts.Predictor.Entrypoint,
		Domain:        opts.Domain,
		Subdomain:     opts.Subdomain,
		Username:      opts.Username,
		Password:      opts.Password,
		Token:         uuid.NewString(),
	})
	shutdown := scripts.ShutdownScript(topic)

	slog.Info("launching instance",
		"instance", opts.InstanceName,
		"static_ip", staticIP,
		"project", l.project,
		"zone", l.zone,
		"machine_type", opts.MachineType,
	)

	err = l.clients.Instances.CreateInstance(ctx, l.project, l.zone, &gcp.InstanceSpec{
		Name:            opts.InstanceName,
		MachineType:     opts.MachineType,
		StaticIP:        staticIP,
		Preemptible:     opts.Preemptible,
		StartupScript:   startup,
		ShutdownScript:  shutdown,
		MetadataPayload: payload,
	})
	if err != nil {
		return nil, err
	}
	manifest.add("compute-instance", opts.InstanceName)

	return &Deployment{
		Username:     opts.Username,
		Password:     opts.Password,
		StaticIP:     staticIP,
		InstanceName: opts.InstanceName,
		BucketName:   opts.BucketName,
		Topic:        topic,
		FunctionName: functionName,
		Endpoint:     fmt.Sprintf("https://%s.%s", opts.Subdomain, opts.Domain),
	}, nil
}

// ensureAddressAndBucket reserves the static IP and creates the bucket.
// The two steps have no data dependency on each other and run
// concurrently.
func (l *Launcher) ensureAddressAndBucket(
	ctx context.Context,
	opts *LaunchOptions,
	manifest *Manifest,
) (string, error) {
	staticIP := opts.StaticIP
	ipName := StaticIPName(opts.InstanceName)

	g, gctx := errgroup.WithContext(ctx)

	// Each branch records its resource the moment it succeeds, so the
	// manifest keeps the survivor even when the sibling branch fails.
	if staticIP == "" {
		g.Go(func() error {
			address, err := l.clients.Addresses.CreateStaticIP(gctx, l.project, l.region, ipName)
			if err != nil {
				return err
			}
			staticIP = address
			manifest.add("static-ip", ipName)
			return nil
		})
	}

	g.Go(func() error {
		if err := l.clients.Storage.CreateBucketIfAbsent(gctx, l.project, opts.BucketName); err != nil {
			return err
		}
		manifest.add("bucket", opts.BucketName)
		return nil
	})

	if err := g.Wait(); err != nil {
		return "", err
	}

	return staticIP, nil
}

func (l *Launcher) renderPayloads(opts *LaunchOptions) (map[string]string, error) {
	dockerfile, err := scripts.Dockerfile(opts.DockerfilePath)
	if err != nil {
		return nil, err
	}
	requirements, err := scripts.Requirements(opts.RequirementsPath, opts.RequirementsList)
	if err != nil {
		return nil, err
	}
	compose, err := scripts.ComposeFile()
	if err != nil {
		return nil, err
	}
	nginx, err := scripts.NginxConf(opts.Domain, opts.Subdomain)
	if err != nil {
		return nil, err
	}
	return scripts.EncodeMetadata(dockerfile, requirements, compose, nginx), nil
}

func validateLaunchOptions(opts *LaunchOptions) error {
	if opts.Predictor.Path == "" || opts.Predictor.Entrypoint == "" {
		return errors.New("predictor path and entrypoint are required")
	}
	if opts.Domain == "" {
		return errors.New("domain is required")
	}
	if opts.DockerfilePath != "" && (opts.RequirementsPath != "" || len(opts.RequirementsList) > 0) {
		return scripts.ErrConflictingInputs
	}
	return nil
}

// applyLaunchDefaults resolves derived names and per-launch random
// credentials. Defaults are computed here, per call, never bound once
// at package init.
func applyLaunchDefaults(opts *LaunchOptions, uniqueID string) {
	if opts.BucketName == "" {
		opts.BucketName = BucketName(uniqueID)
	}
	if opts.InstanceName == "" {
		opts.InstanceName = InstanceName(uniqueID)
	}
	if opts.Subdomain == "" {
		opts.Subdomain = "budget"
	}
	if opts.Username == "" {
		opts.Username = "budget"
	}
	if opts.Password == "" {
		opts.Password = uuid.NewString()
	}
	if opts.MachineType == "" {
		opts.MachineType = constants.DefaultMachineType
	}
}
