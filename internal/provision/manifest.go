package provision

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestFileName is written to the working directory on every launch.
const ManifestFileName = "budgetml.resources.yaml"

// Manifest records the identifiers of every resource a launch created,
// in creation order. There is no automatic rollback on partial failure;
// the manifest is what bounds the blast radius — it is written even
// when the pipeline aborts midway, so leaked resources can be cleaned
// up manually or with `budgetml down`.
type Manifest struct {
	Project   string             `yaml:"project"`
	Zone      string             `yaml:"zone"`
	Region    string             `yaml:"region"`
	UniqueID  string             `yaml:"unique_id"`
	CreatedAt time.Time          `yaml:"created_at"`
	Resources []ManifestResource `yaml:"resources"`

	mu sync.Mutex
}

// ManifestResource is one created resource identifier.
type ManifestResource struct {
	Kind string `yaml:"kind"`
	Name string `yaml:"name"`
}

// add is safe for concurrent use; parallel pipeline steps record their
// resources as soon as each one succeeds.
func (m *Manifest) add(kind, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Resources = append(m.Resources, ManifestResource{Kind: kind, Name: name})
}

// ReadManifest loads a previously written manifest, letting a teardown
// resolve a deployment whose unique ID is not in the config.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resource manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse resource manifest %s: %w", path, err)
	}
	return &m, nil
}

// Write serializes the manifest to path as YAML.
func (m *Manifest) Write(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal resource manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write resource manifest: %w", err)
	}
	slog.Debug("resource manifest written", "path", path, "resources", len(m.Resources))
	return nil
}
