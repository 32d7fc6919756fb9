// Package scripts renders the container-build inputs and the boot-time
// shell scripts for a deployment. Everything here is pure string
// construction; no network I/O happens in this package.
//
// Multi-line payloads destined for instance metadata are base64-encoded
// by EncodeMetadata and decoded by the startup script, so they survive
// the single-line metadata key/value channel without escaping issues.
package scripts

import (
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/budgetml/budgetml/internal/constants"
)

//go:embed templates
var templatesFS embed.FS

// ErrConflictingInputs is returned when both a Dockerfile override and
// requirements are supplied; exactly one source of build input may be set.
var ErrConflictingInputs = errors.New("dockerfile override and requirements are mutually exclusive")

const baseImagePlaceholder = "$BASE_IMAGE"

const domainPlaceholder = "$BUDGET_DOMAIN"

// Dockerfile returns the Dockerfile content, loading the override path
// when given and the embedded template otherwise. The base image
// placeholder is substituted in both cases.
func Dockerfile(overridePath string) (string, error) {
	var content string
	if overridePath == "" {
		data, err := templatesFS.ReadFile("templates/template.Dockerfile")
		if err != nil {
			return "", fmt.Errorf("read embedded dockerfile template: %w", err)
		}
		content = string(data)
	} else {
		data, err := os.ReadFile(overridePath)
		if err != nil {
			return "", fmt.Errorf("read dockerfile %s: %w", overridePath, err)
		}
		content = string(data)
	}

	return strings.ReplaceAll(content, baseImagePlaceholder, constants.BaseImage), nil
}

// Requirements resolves the requirements file content. Three modes:
// neither input set returns an empty string, a list joins its entries
// with newlines, and a path reads the file verbatim. Supplying both is
// an error.
func Requirements(path string, list []string) (string, error) {
	if path != "" && len(list) > 0 {
		return "", ErrConflictingInputs
	}
	if len(list) > 0 {
		return strings.Join(list, "\n"), nil
	}
	if path == "" {
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read requirements %s: %w", path, err)
	}
	return string(data), nil
}

// ComposeFile returns the embedded compose template verbatim.
func ComposeFile() (string, error) {
	data, err := templatesFS.ReadFile("templates/template-compose.yaml")
	if err != nil {
		return "", fmt.Errorf("read embedded compose template: %w", err)
	}
	return string(data), nil
}

// NginxConf returns the reverse-proxy config with the external
// hostname (subdomain.domain) substituted in.
func NginxConf(domain, subdomain string) (string, error) {
	data, err := templatesFS.ReadFile("templates/template-nginx.conf")
	if err != nil {
		return "", fmt.Errorf("read embedded nginx template: %w", err)
	}
	hostname := fmt.Sprintf("%s.%s", subdomain, domain)
	return strings.ReplaceAll(string(data), domainPlaceholder, hostname), nil
}

// EncodeMetadata base64-encodes the four template payloads under the
// metadata keys the startup script reads back.
func EncodeMetadata(dockerfile, requirements, compose, nginx string) map[string]string {
	encode := func(s string) string {
		return base64.StdEncoding.EncodeToString([]byte(s))
	}
	return map[string]string{
		constants.MetadataDockerTemplate:  encode(dockerfile),
		constants.MetadataRequirements:    encode(requirements),
		constants.MetadataComposeTemplate: encode(compose),
		constants.MetadataNginxTemplate:   encode(nginx),
	}
}
