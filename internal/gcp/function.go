package gcp

import (
	"archive/zip"
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"

	"google.golang.org/api/cloudfunctions/v1"

	"github.com/budgetml/budgetml/internal/constants"
)

//go:embed watchdog
var watchdogFS embed.FS

// WatchdogSpec describes the serverless cost-control function. The
// function subscribes to the notification topic and decides whether
// the instance needs restarting or tearing down; its payload is
// embedded in the binary and uploaded as a zip archive.
type WatchdogSpec struct {
	Project        string
	Region         string
	Name           string
	Zone           string
	InstanceName   string
	Topic          string // fully qualified topic name
	TimeoutSeconds int
}

type defaultFunctionClient struct {
	service    *cloudfunctions.Service
	httpClient *http.Client
}

// CreateWatchdogFunction performs the two-step deploy handshake:
// obtain an upload URL, PUT the zipped watchdog payload to it, then
// register the function with the topic as its event trigger. No step
// is retried; any failure aborts the whole create.
func (c *defaultFunctionClient) CreateWatchdogFunction(ctx context.Context, in *WatchdogSpec) error {
	ctx, cancel := context.WithTimeout(ctx, constants.FunctionOperationTimeout)
	defer cancel()

	timeout := in.TimeoutSeconds
	if timeout == 0 {
		timeout = constants.DefaultFunctionTimeoutSeconds
	}

	parent := fmt.Sprintf("projects/%s/locations/%s", in.Project, in.Region)

	uploadURL, err := c.generateUploadURL(ctx, parent)
	if err != nil {
		return err
	}

	archive, err := buildWatchdogArchive()
	if err != nil {
		return err
	}

	if err := uploadFunctionArchive(ctx, c.client(), uploadURL, archive); err != nil {
		return err
	}

	function := &cloudfunctions.CloudFunction{
		Name:              fmt.Sprintf("%s/functions/%s", parent, in.Name),
		EntryPoint:        constants.FunctionEntryPoint,
		Runtime:           constants.FunctionRuntime,
		AvailableMemoryMb: constants.FunctionMemoryMB,
		Timeout:           fmt.Sprintf("%ds", timeout),
		SourceUploadUrl:   uploadURL,
		EnvironmentVariables: map[string]string{
			"BUDGET_PROJECT":  in.Project,
			"BUDGET_ZONE":     in.Zone,
			"BUDGET_INSTANCE": in.InstanceName,
		},
		EventTrigger: &cloudfunctions.EventTrigger{
			EventType: constants.PubSubPublishEventType,
			Resource:  in.Topic,
		},
	}

	slog.Debug("creating watchdog function", "name", function.Name, "trigger", in.Topic, "timeout", function.Timeout)

	_, err = c.service.Projects.Locations.Functions.Create(parent, function).Context(ctx).Do()
	if err != nil {
		return wrapError("create watchdog function", err)
	}

	slog.Info("watchdog function created", "name", in.Name)
	return nil
}

// DeleteWatchdogFunction removes the function; not-found is tolerated.
func (c *defaultFunctionClient) DeleteWatchdogFunction(ctx context.Context, project, region, name string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.FunctionOperationTimeout)
	defer cancel()

	fullName := fmt.Sprintf("projects/%s/locations/%s/functions/%s", project, region, name)
	_, err := c.service.Projects.Locations.Functions.Delete(fullName).Context(ctx).Do()
	if isNotFound(err) {
		return nil
	}
	return wrapError("delete watchdog function", err)
}

func (c *defaultFunctionClient) generateUploadURL(ctx context.Context, parent string) (string, error) {
	resp, err := c.service.Projects.Locations.Functions.GenerateUploadUrl(
		parent,
		&cloudfunctions.GenerateUploadUrlRequest{},
	).Context(ctx).Do()
	if err != nil {
		return "", wrapError("generate function upload url", err)
	}

	slog.Debug("function upload url generated", "parent", parent)
	return resp.UploadUrl, nil
}

func (c *defaultFunctionClient) client() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return http.DefaultClient
}

// buildWatchdogArchive zips the embedded watchdog payload. File paths
// are flattened to the archive root as the Functions runtime expects
// main.py at the top level.
func buildWatchdogArchive() ([]byte, error) {
	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)

	entries, err := fs.ReadDir(watchdogFS, "watchdog")
	if err != nil {
		return nil, fmt.Errorf("read watchdog payload: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, readErr := fs.ReadFile(watchdogFS, "watchdog/"+entry.Name())
		if readErr != nil {
			return nil, fmt.Errorf("read watchdog file %s: %w", entry.Name(), readErr)
		}
		w, createErr := archive.Create(entry.Name())
		if createErr != nil {
			return nil, fmt.Errorf("add %s to archive: %w", entry.Name(), createErr)
		}
		if _, writeErr := w.Write(data); writeErr != nil {
			return nil, fmt.Errorf("write %s to archive: %w", entry.Name(), writeErr)
		}
	}

	if err := archive.Close(); err != nil {
		return nil, fmt.Errorf("finalize watchdog archive: %w", err)
	}
	return buf.Bytes(), nil
}

// uploadFunctionArchive pushes the zipped payload to the signed upload
// URL via a direct content PUT.
func uploadFunctionArchive(ctx context.Context, client *http.Client, uploadURL string, archive []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(archive))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/zip")
	req.Header.Set("x-goog-content-length-range", constants.FunctionUploadSizeRange)

	resp, err := client.Do(req)
	if err != nil {
		return wrapError("upload function archive", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("upload function archive: unexpected status %s", resp.Status)
	}

	slog.Debug("function archive uploaded", "bytes", len(archive))
	return nil
}
