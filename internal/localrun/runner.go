// Package localrun builds and runs the predictor container locally
// with Docker, validating the image before a remote launch. The API
// comes up at 0.0.0.0:8000 backed by the same templates the remote
// instance boots from.
package localrun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/budgetml/budgetml/internal/constants"
	"github.com/budgetml/budgetml/internal/gcp"
	"github.com/budgetml/budgetml/internal/provision"
	"github.com/budgetml/budgetml/internal/scripts"
)

const (
	containerCredentialsPath = "/app/sa.json"
	containerPort            = "80/tcp"
	hostPort                 = "8000"
	scratchDir               = "tmp"
)

// dockerAPI is the slice of the Docker engine client the runner needs.
type dockerAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ContainerCreate(
		ctx context.Context,
		config *container.Config,
		hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig,
		platform *ocispec.Platform,
		containerName string,
	) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
}

// Options are the per-run parameters, a subset of the remote launch
// surface.
type Options struct {
	Predictor provision.Predictor

	RequirementsPath string
	RequirementsList []string
	DockerfilePath   string

	BucketName string
	Username   string
	Password   string // random per run when empty
}

// Result reports the started container and its credential pair.
type Result struct {
	Username    string
	Password    string
	ContainerID string
	Endpoint    string
}

// Runner builds and runs the predictor image against a local Docker
// daemon.
type Runner struct {
	project  string
	uniqueID string
	docker   dockerAPI
	storage  gcp.StorageClient
}

// NewRunner constructs a Runner talking to the local Docker daemon.
func NewRunner(project, uniqueID string, storage gcp.StorageClient) (*Runner, error) {
	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return NewRunnerWithClient(project, uniqueID, docker, storage), nil
}

// NewRunnerWithClient constructs a Runner with an injected Docker client.
func NewRunnerWithClient(project, uniqueID string, docker dockerAPI, storage gcp.StorageClient) *Runner {
	return &Runner{
		project:  project,
		uniqueID: uniqueID,
		docker:   docker,
		storage:  storage,
	}
}

// Launch validates the containerized predictor locally: ensure the
// bucket, render the build inputs to a scratch directory, build the
// image, upload the predictor artifact, and start the container
// detached with port 80 published on host port 8000.
func (r *Runner) Launch(ctx context.Context, opts Options) (*Result, error) {
	if opts.Predictor.Path == "" || opts.Predictor.Entrypoint == "" {
		return nil, errors.New("predictor path and entrypoint are required")
	}
	if opts.DockerfilePath != "" && (opts.RequirementsPath != "" || len(opts.RequirementsList) > 0) {
		return nil, scripts.ErrConflictingInputs
	}
	if opts.BucketName == "" {
		opts.BucketName = provision.BucketName(r.uniqueID)
	}
	if opts.Username == "" {
		opts.Username = "budget"
	}
	if opts.Password == "" {
		opts.Password = uuid.NewString()
	}

	credentialsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	if credentialsFile == "" {
		return nil, errors.New("GOOGLE_APPLICATION_CREDENTIALS must point at a credentials file")
	}

	if err := r.storage.CreateBucketIfAbsent(ctx, r.project, opts.BucketName); err != nil {
		return nil, err
	}

	if err := r.renderBuildContext(&opts); err != nil {
		return nil, err
	}

	if err := r.buildImage(ctx); err != nil {
		return nil, err
	}

	objectPath := provision.PredictorObjectPath(r.uniqueID, opts.Predictor.Entrypoint)
	if err := r.storage.UploadObject(ctx, opts.BucketName, opts.Predictor.Path, objectPath); err != nil {
		return nil, fmt.Errorf("upload predictor: %w", err)
	}

	containerID, err := r.runContainer(ctx, &opts, objectPath, credentialsFile)
	if err != nil {
		return nil, err
	}

	slog.Info("local predictor running", "container", containerID, "port", hostPort)
	return &Result{
		Username:    opts.Username,
		Password:    opts.Password,
		ContainerID: containerID,
		Endpoint:    "http://0.0.0.0:" + hostPort,
	}, nil
}

// renderBuildContext writes the Dockerfile and requirements into the
// scratch directory. An existing directory is reused.
func (r *Runner) renderBuildContext(opts *Options) error {
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}

	dockerfile, err := scripts.Dockerfile(opts.DockerfilePath)
	if err != nil {
		return err
	}
	requirements, err := scripts.Requirements(opts.RequirementsPath, opts.RequirementsList)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(scratchDir, "template.Dockerfile"), []byte(dockerfile), 0o644); err != nil {
		return fmt.Errorf("write dockerfile: %w", err)
	}
	if err := os.WriteFile(filepath.Join(scratchDir, "custom_requirements.txt"), []byte(requirements), 0o644); err != nil {
		return fmt.Errorf("write requirements: %w", err)
	}
	return nil
}

func (r *Runner) buildImage(ctx context.Context) error {
	slog.Debug("building docker image", "tag", constants.LocalImageTag, "context", scratchDir)

	buildContext, err := tarDirectory(scratchDir)
	if err != nil {
		return err
	}

	resp, err := r.docker.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:       []string{constants.LocalImageTag},
		Dockerfile: "template.Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("build image: %w", err)
	}
	defer resp.Body.Close()

	return drainBuildOutput(resp.Body)
}

func (r *Runner) runContainer(ctx context.Context, opts *Options, objectPath, credentialsFile string) (string, error) {
	predictorPath := fmt.Sprintf("gs://%s/%s", opts.BucketName, objectPath)
	token := uuid.NewString()

	env := []string{
		"BUDGET_PREDICTOR_PATH=" + predictorPath,
		"BUDGET_PREDICTOR_ENTRYPOINT=" + opts.Predictor.Entrypoint,
		"BUDGET_USERNAME=" + opts.Username,
		"BUDGET_PWD=" + opts.Password,
		"GOOGLE_APPLICATION_CREDENTIALS=" + containerCredentialsPath,
		"BUDGET_TOKEN=" + token,
	}

	slog.Debug("running container",
		"image", constants.LocalImageTag,
		"port", containerPort+"->"+hostPort,
		"credentials", credentialsFile,
	)

	created, err := r.docker.ContainerCreate(ctx,
		&container.Config{
			Image: constants.LocalImageTag,
			Env:   env,
			ExposedPorts: nat.PortSet{
				nat.Port(containerPort): struct{}{},
			},
		},
		&container.HostConfig{
			AutoRemove: true,
			PortBindings: nat.PortMap{
				nat.Port(containerPort): []nat.PortBinding{{HostPort: hostPort}},
			},
			Binds: []string{credentialsFile + ":" + containerCredentialsPath + ":ro"},
		},
		nil, nil, constants.LocalImageTag,
	)
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}

	if err := r.docker.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}
	return created.ID, nil
}

// drainBuildOutput consumes the build response stream, logging each
// stream line and surfacing any build error the daemon reports.
func drainBuildOutput(body io.Reader) error {
	type buildLine struct {
		Stream string `json:"stream"`
		Error  string `json:"error"`
	}

	dec := json.NewDecoder(body)
	for {
		var line buildLine
		if err := dec.Decode(&line); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode build output: %w", err)
		}
		if line.Error != "" {
			return fmt.Errorf("image build failed: %s", line.Error)
		}
		if line.Stream != "" {
			slog.Debug("docker build", "output", line.Stream)
		}
	}
}
