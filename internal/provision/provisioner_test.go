package provision

import (
	"context"
	"errors"
	"os"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/budgetml/budgetml/internal/gcp"
)

// fakeClients implements every resource client and records the order
// in which create/delete calls arrive.
type fakeClients struct {
	mu    sync.Mutex
	calls []string

	instanceSpec    *gcp.InstanceSpec
	watchdog        *gcp.WatchdogSpec
	deletedInstance string

	failFunction bool
	failBucket   bool
}

func (f *fakeClients) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeClients) callIndex(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Index(f.calls, call)
}

func (f *fakeClients) CreateStaticIP(_ context.Context, _, _, _ string) (string, error) {
	f.record("create-static-ip")
	return "203.0.113.10", nil
}

func (f *fakeClients) ReleaseStaticIP(_ context.Context, _, _, _ string) error {
	f.record("release-static-ip")
	return nil
}

func (f *fakeClients) CreateInstance(_ context.Context, _, _ string, spec *gcp.InstanceSpec) error {
	f.record("create-instance")
	f.instanceSpec = spec
	return nil
}

func (f *fakeClients) DeleteInstance(_ context.Context, _, _, name string) error {
	f.record("delete-instance")
	f.deletedInstance = name
	return nil
}

func (f *fakeClients) CreateBucketIfAbsent(_ context.Context, _, _ string) error {
	f.record("create-bucket")
	if f.failBucket {
		return errors.New("bucket create boom")
	}
	return nil
}

func (f *fakeClients) UploadObject(_ context.Context, _, _, _ string) error {
	f.record("upload-object")
	return nil
}

func (f *fakeClients) CreateTopic(_ context.Context, project, topic string) (string, error) {
	f.record("create-topic")
	return "projects/" + project + "/topics/" + topic, nil
}

func (f *fakeClients) DeleteTopic(_ context.Context, _, _ string) error {
	f.record("delete-topic")
	return nil
}

func (f *fakeClients) CreateJob(_ context.Context, _, _, _, _ string) error {
	f.record("create-scheduler-job")
	return nil
}

func (f *fakeClients) DeleteJob(_ context.Context, _, _, _ string) error {
	f.record("delete-scheduler-job")
	return nil
}

func (f *fakeClients) CreateWatchdogFunction(_ context.Context, spec *gcp.WatchdogSpec) error {
	f.record("create-function")
	f.watchdog = spec
	if f.failFunction {
		return errors.New("function create boom")
	}
	return nil
}

func (f *fakeClients) DeleteWatchdogFunction(_ context.Context, _, _, _ string) error {
	f.record("delete-function")
	return nil
}

func newFakeLauncher(t *testing.T, fake *fakeClients, uniqueID string) *Launcher {
	t.Helper()
	t.Chdir(t.TempDir()) // the launch writes its manifest to the working directory

	clients := &gcp.ServiceClients{
		Addresses: fake,
		Instances: fake,
		Storage:   fake,
		PubSub:    fake,
		Scheduler: fake,
		Functions: fake,
	}
	return NewLauncher("test-project", "", "", uniqueID, clients)
}

func defaultOptions() LaunchOptions {
	return LaunchOptions{
		Predictor:   Predictor{Path: "predictor.py", Entrypoint: "Predictor"},
		Domain:      "example.com",
		Preemptible: true,
	}
}

func TestLaunch_TopicExistsBeforeFunctionAndScheduler(t *testing.T) {
	fake := &fakeClients{}
	launcher := newFakeLauncher(t, fake, "abc")

	_, err := launcher.Launch(context.Background(), defaultOptions())

	require.NoError(t, err)
	topicIdx := fake.callIndex("create-topic")
	require.GreaterOrEqual(t, topicIdx, 0)
	assert.Less(t, topicIdx, fake.callIndex("create-function"))
	assert.Less(t, topicIdx, fake.callIndex("create-scheduler-job"))
}

func TestLaunch_InstanceCreatedLast(t *testing.T) {
	fake := &fakeClients{}
	launcher := newFakeLauncher(t, fake, "abc")

	_, err := launcher.Launch(context.Background(), defaultOptions())

	require.NoError(t, err)
	assert.Equal(t, "create-instance", fake.calls[len(fake.calls)-1])
}

func TestLaunch_DerivedNamesFlowIntoScriptsAndSpecs(t *testing.T) {
	fake := &fakeClients{}
	launcher := newFakeLauncher(t, fake, "8f14_e45f")

	dep, err := launcher.Launch(context.Background(), defaultOptions())

	require.NoError(t, err)
	assert.Equal(t, "budget-instance-8f14-e45f", dep.InstanceName)
	assert.Equal(t, "topic-budget-instance-8f14-e45f", dep.Topic)

	require.NotNil(t, fake.instanceSpec)
	assert.Equal(t, "budget-instance-8f14-e45f", fake.instanceSpec.Name)
	assert.Contains(t, fake.instanceSpec.StartupScript, "budget_bucket_8f14_e45f")
	assert.Contains(t, fake.instanceSpec.ShutdownScript, "topic-budget-instance-8f14-e45f")

	require.NotNil(t, fake.watchdog)
	assert.Equal(t, "projects/test-project/topics/topic-budget-instance-8f14-e45f", fake.watchdog.Topic)
	assert.Equal(t, "function-budget-instance-8f14-e45f", fake.watchdog.Name)
}

func TestLaunch_MetadataPayloadCarriesAllFourTemplates(t *testing.T) {
	fake := &fakeClients{}
	launcher := newFakeLauncher(t, fake, "abc")

	_, err := launcher.Launch(context.Background(), defaultOptions())

	require.NoError(t, err)
	require.NotNil(t, fake.instanceSpec)
	assert.Len(t, fake.instanceSpec.MetadataPayload, 4)
}

func TestLaunch_SkipsAddressWhenStaticIPGiven(t *testing.T) {
	fake := &fakeClients{}
	launcher := newFakeLauncher(t, fake, "abc")

	opts := defaultOptions()
	opts.StaticIP = "198.51.100.7"

	dep, err := launcher.Launch(context.Background(), opts)

	require.NoError(t, err)
	assert.Equal(t, "198.51.100.7", dep.StaticIP)
	assert.Equal(t, -1, fake.callIndex("create-static-ip"))
}

func TestLaunch_FreshCredentialsPerLaunch(t *testing.T) {
	fake := &fakeClients{}
	launcher := newFakeLauncher(t, fake, "abc")

	first, err := launcher.Launch(context.Background(), defaultOptions())
	require.NoError(t, err)
	second, err := launcher.Launch(context.Background(), defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "budget", first.Username)
	assert.NotEmpty(t, first.Password)
	assert.NotEmpty(t, second.Password)
	assert.NotEqual(t, first.Password, second.Password)
}

func TestLaunch_RejectsConflictingBuildInputs(t *testing.T) {
	fake := &fakeClients{}
	launcher := newFakeLauncher(t, fake, "abc")

	opts := defaultOptions()
	opts.DockerfilePath = "Dockerfile"
	opts.RequirementsList = []string{"numpy"}

	_, err := launcher.Launch(context.Background(), opts)

	require.Error(t, err)
	assert.Empty(t, fake.calls)
}

func TestLaunch_RequiresPredictorAndDomain(t *testing.T) {
	fake := &fakeClients{}
	launcher := newFakeLauncher(t, fake, "abc")

	_, err := launcher.Launch(context.Background(), LaunchOptions{Domain: "example.com"})
	require.Error(t, err)

	_, err = launcher.Launch(context.Background(), LaunchOptions{
		Predictor: Predictor{Path: "p.py", Entrypoint: "P"},
	})
	require.Error(t, err)
}

func TestLaunch_AbortsWithoutCleanupOnFailure(t *testing.T) {
	fake := &fakeClients{failFunction: true}
	launcher := newFakeLauncher(t, fake, "abc")

	_, err := launcher.Launch(context.Background(), defaultOptions())

	require.Error(t, err)
	assert.Equal(t, -1, fake.callIndex("create-scheduler-job"))
	assert.Equal(t, -1, fake.callIndex("create-instance"))
	// earlier resources stay allocated; no compensating deletes fire
	assert.Equal(t, -1, fake.callIndex("release-static-ip"))
	assert.Equal(t, -1, fake.callIndex("delete-topic"))
}

func TestLaunch_WritesResourceManifest(t *testing.T) {
	fake := &fakeClients{failFunction: true}
	launcher := newFakeLauncher(t, fake, "abc")

	_, err := launcher.Launch(context.Background(), defaultOptions())
	require.Error(t, err)

	data, readErr := os.ReadFile(ManifestFileName)
	require.NoError(t, readErr)

	var manifest Manifest
	require.NoError(t, yaml.Unmarshal(data, &manifest))
	assert.Equal(t, "test-project", manifest.Project)
	assert.Equal(t, "abc", manifest.UniqueID)

	kinds := make([]string, 0, len(manifest.Resources))
	for _, r := range manifest.Resources {
		kinds = append(kinds, r.Kind)
	}
	// everything created before the failing step is recorded
	assert.Contains(t, kinds, "static-ip")
	assert.Contains(t, kinds, "bucket")
	assert.Contains(t, kinds, "pubsub-topic")
	assert.NotContains(t, kinds, "compute-instance")
}

func TestLaunch_ManifestKeepsSurvivorOfParallelStep(t *testing.T) {
	fake := &fakeClients{failBucket: true}
	launcher := newFakeLauncher(t, fake, "abc")

	_, err := launcher.Launch(context.Background(), defaultOptions())
	require.Error(t, err)

	manifest, readErr := ReadManifest(ManifestFileName)
	require.NoError(t, readErr)

	kinds := make([]string, 0, len(manifest.Resources))
	for _, r := range manifest.Resources {
		kinds = append(kinds, r.Kind)
	}
	// the reservation succeeded while the bucket branch failed
	assert.Contains(t, kinds, "static-ip")
	assert.NotContains(t, kinds, "bucket")
}

func TestReadManifest_ResumesTeardownAfterLaunch(t *testing.T) {
	fake := &fakeClients{}
	launcher := newFakeLauncher(t, fake, "") // random unique ID

	_, err := launcher.Launch(context.Background(), defaultOptions())
	require.NoError(t, err)

	manifest, err := ReadManifest(ManifestFileName)
	require.NoError(t, err)
	require.Equal(t, launcher.UniqueID(), manifest.UniqueID)

	// a later process picks the unique ID up from the manifest and
	// derives the same resource names the launch created
	later := &fakeClients{}
	resumed := NewLauncher(manifest.Project, manifest.Zone, manifest.Region, manifest.UniqueID, &gcp.ServiceClients{
		Addresses: later,
		Instances: later,
		Storage:   later,
		PubSub:    later,
		Scheduler: later,
		Functions: later,
	})

	require.NoError(t, resumed.Teardown(context.Background(), TeardownOptions{}))
	assert.Equal(t, InstanceName(manifest.UniqueID), later.deletedInstance)
}

func TestReadManifest_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := ReadManifest(ManifestFileName)

	require.Error(t, err)
}

func TestTeardown_DeletesEveryResourceKind(t *testing.T) {
	fake := &fakeClients{}
	launcher := newFakeLauncher(t, fake, "abc")

	err := launcher.Teardown(context.Background(), TeardownOptions{})

	require.NoError(t, err)
	assert.Equal(t, []string{
		"delete-instance",
		"delete-scheduler-job",
		"delete-function",
		"delete-topic",
		"release-static-ip",
	}, fake.calls)
}

func TestTeardown_KeepsStaticIPWhenAsked(t *testing.T) {
	fake := &fakeClients{}
	launcher := newFakeLauncher(t, fake, "abc")

	err := launcher.Teardown(context.Background(), TeardownOptions{KeepStaticIP: true})

	require.NoError(t, err)
	assert.Equal(t, -1, fake.callIndex("release-static-ip"))
}
