package localrun

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/budgetml/budgetml/internal/constants"
	"github.com/budgetml/budgetml/internal/provision"
	"github.com/budgetml/budgetml/internal/scripts"
)

type fakeDocker struct {
	buildOptions  types.ImageBuildOptions
	buildFiles    map[string]string
	config        *container.Config
	hostConfig    *container.HostConfig
	containerName string
	started       []string
}

func (f *fakeDocker) ImageBuild(_ context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error) {
	f.buildOptions = options
	f.buildFiles = map[string]string{}

	tr := tar.NewReader(buildContext)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return types.ImageBuildResponse{}, err
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return types.ImageBuildResponse{}, err
		}
		f.buildFiles[hdr.Name] = string(data)
	}

	body := `{"stream":"Step 1/1 : FROM scratch"}` + "\n" + `{"stream":"Successfully built"}`
	return types.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeDocker) ContainerCreate(
	_ context.Context,
	config *container.Config,
	hostConfig *container.HostConfig,
	_ *network.NetworkingConfig,
	_ *ocispec.Platform,
	containerName string,
) (container.CreateResponse, error) {
	f.config = config
	f.hostConfig = hostConfig
	f.containerName = containerName
	return container.CreateResponse{ID: "cafebabe"}, nil
}

func (f *fakeDocker) ContainerStart(_ context.Context, containerID string, _ container.StartOptions) error {
	f.started = append(f.started, containerID)
	return nil
}

type fakeStorage struct {
	buckets []string
	uploads map[string]string // object path -> source file
}

func (f *fakeStorage) CreateBucketIfAbsent(_ context.Context, _, bucket string) error {
	f.buckets = append(f.buckets, bucket)
	return nil
}

func (f *fakeStorage) UploadObject(_ context.Context, _, source, object string) error {
	if f.uploads == nil {
		f.uploads = map[string]string{}
	}
	f.uploads[object] = source
	return nil
}

func newTestRunner(t *testing.T) (*Runner, *fakeDocker, *fakeStorage) {
	t.Helper()
	t.Chdir(t.TempDir()) // the build context renders into ./tmp
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", filepath.Join(t.TempDir(), "sa.json"))

	docker := &fakeDocker{}
	storage := &fakeStorage{}
	return NewRunnerWithClient("test-project", "abc", docker, storage), docker, storage
}

func defaultOptions() Options {
	return Options{
		Predictor: provision.Predictor{Path: "predictor.py", Entrypoint: "Predictor"},
	}
}

func TestLaunch_BuildsTaggedImageFromRenderedContext(t *testing.T) {
	runner, docker, _ := newTestRunner(t)

	opts := defaultOptions()
	opts.RequirementsList = []string{"numpy", "scipy"}

	res, err := runner.Launch(context.Background(), opts)

	require.NoError(t, err)
	assert.Equal(t, "cafebabe", res.ContainerID)
	assert.Equal(t, "http://0.0.0.0:8000", res.Endpoint)

	assert.Equal(t, []string{constants.LocalImageTag}, docker.buildOptions.Tags)
	assert.Equal(t, "template.Dockerfile", docker.buildOptions.Dockerfile)

	require.Contains(t, docker.buildFiles, "template.Dockerfile")
	assert.Contains(t, docker.buildFiles["template.Dockerfile"], constants.BaseImage)
	assert.Equal(t, "numpy\nscipy", docker.buildFiles["custom_requirements.txt"])
}

func TestLaunch_UploadsPredictorBeforeStart(t *testing.T) {
	runner, docker, storage := newTestRunner(t)

	_, err := runner.Launch(context.Background(), defaultOptions())

	require.NoError(t, err)
	assert.Equal(t, []string{provision.BucketName("abc")}, storage.buckets)
	assert.Equal(t, "predictor.py", storage.uploads["predictors/abc/Predictor.py"])
	assert.Equal(t, []string{"cafebabe"}, docker.started)
}

func TestLaunch_ContainerEnvAndPorts(t *testing.T) {
	runner, docker, _ := newTestRunner(t)

	opts := defaultOptions()
	opts.Username = "alice"
	opts.Password = "hunter2"

	_, err := runner.Launch(context.Background(), opts)

	require.NoError(t, err)
	require.NotNil(t, docker.config)
	assert.Equal(t, constants.LocalImageTag, docker.config.Image)
	assert.Equal(t, constants.LocalImageTag, docker.containerName)

	env := strings.Join(docker.config.Env, "\n")
	assert.Contains(t, env, "BUDGET_PREDICTOR_ENTRYPOINT=Predictor")
	assert.Contains(t, env, "BUDGET_PREDICTOR_PATH=gs://budget_bucket_abc/predictors/abc/Predictor.py")
	assert.Contains(t, env, "BUDGET_USERNAME=alice")
	assert.Contains(t, env, "BUDGET_PWD=hunter2")
	assert.Contains(t, env, "GOOGLE_APPLICATION_CREDENTIALS=/app/sa.json")
	assert.Contains(t, env, "BUDGET_TOKEN=")

	require.NotNil(t, docker.hostConfig)
	assert.True(t, docker.hostConfig.AutoRemove)
	bindings := docker.hostConfig.PortBindings["80/tcp"]
	require.Len(t, bindings, 1)
	assert.Equal(t, "8000", bindings[0].HostPort)

	credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	assert.Equal(t, []string{credsFile + ":/app/sa.json:ro"}, docker.hostConfig.Binds)
}

func TestLaunch_RandomPasswordWhenOmitted(t *testing.T) {
	runner, _, _ := newTestRunner(t)

	first, err := runner.Launch(context.Background(), defaultOptions())
	require.NoError(t, err)
	second, err := runner.Launch(context.Background(), defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "budget", first.Username)
	assert.NotEmpty(t, first.Password)
	assert.NotEqual(t, first.Password, second.Password)
}

func TestLaunch_RejectsConflictingBuildInputs(t *testing.T) {
	runner, docker, _ := newTestRunner(t)

	opts := defaultOptions()
	opts.DockerfilePath = "Dockerfile"
	opts.RequirementsPath = "requirements.txt"

	_, err := runner.Launch(context.Background(), opts)

	require.ErrorIs(t, err, scripts.ErrConflictingInputs)
	assert.Nil(t, docker.config)
}

func TestLaunch_RequiresCredentialsEnv(t *testing.T) {
	runner, _, _ := newTestRunner(t)
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := runner.Launch(context.Background(), defaultOptions())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_APPLICATION_CREDENTIALS")
}

func TestLaunch_RequiresPredictor(t *testing.T) {
	runner, _, _ := newTestRunner(t)

	_, err := runner.Launch(context.Background(), Options{})

	require.Error(t, err)
}

func TestDrainBuildOutput_SurfacesDaemonError(t *testing.T) {
	body := `{"stream":"Step 1/2"}` + "\n" + `{"error":"no such base image"}`

	err := drainBuildOutput(strings.NewReader(body))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such base image")
}

func TestDrainBuildOutput_CleanStream(t *testing.T) {
	body := `{"stream":"ok"}` + "\n" + `{"stream":"done"}`

	assert.NoError(t, drainBuildOutput(strings.NewReader(body)))
}
