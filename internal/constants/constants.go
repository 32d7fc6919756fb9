// Package constants defines global constants used throughout budgetml.
// It includes version information, paths, and environment types.
package constants

var version = "0.0.0-development" // Updated by CI/CD pipeline at build time

// GetVersion returns the current version of budgetml.
func GetVersion() *string {
	return &version
}

// ProjectName is the name of the CLI tool and application.
const ProjectName = "budgetml"

// ConfigDirName is the name of the configuration directory in the user's home directory.
const ConfigDirName = ".budgetml"

// ConfigFileName is the name of the global configuration file.
const ConfigFileName = "config.yaml"

// ConfigDirPath returns the full path to the global configuration directory.
func ConfigDirPath(homeDir string) string {
	return homeDir + "/" + ConfigDirName
}

// ConfigFilePath returns the full path to the global configuration file.
func ConfigFilePath(homeDir string) string {
	return ConfigDirPath(homeDir) + "/" + ConfigFileName
}

// Environment represents the execution environment (e.g., CLI, service).
type Environment string

// Environment types for logger configuration.
const (
	Production Environment = "production"
	CLI        Environment = "cli"
)
