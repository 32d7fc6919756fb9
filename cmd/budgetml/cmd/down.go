package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/budgetml/budgetml/internal/gcp"
	"github.com/budgetml/budgetml/internal/output"
	"github.com/budgetml/budgetml/internal/provision"
)

var downFlags struct {
	instanceName string
	keepStaticIP bool
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Tear down a deployment",
	Long: `Down deletes the instance, scheduler job, watchdog function, topic and
static IP of a deployment. Deletes are attempted independently; already
missing resources are skipped, so a partial launch can be cleaned up too.

The deployment is resolved from --instance, the configured unique_id, or
the resource manifest a launch wrote to the working directory.`,
	RunE: runDown,
}

func init() {
	downCmd.Flags().StringVar(&downFlags.instanceName, "instance", "", "Instance name (derived from unique_id or the manifest when omitted)")
	downCmd.Flags().BoolVar(&downFlags.keepStaticIP, "keep-static-ip", false, "Keep the static IP reservation")

	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		output.Error("failed to load configuration: %v", err)
		return err
	}
	if err := cfg.Validate(); err != nil {
		output.Error("invalid configuration: %v", err)
		return err
	}

	uniqueID, err := resolveDeployment(cfg.UniqueID)
	if err != nil {
		output.Error("cannot resolve the deployment: pass --instance, set unique_id, or run from the directory containing %s", provision.ManifestFileName)
		return err
	}

	ctx := cmd.Context()
	clients, err := gcp.NewServiceClients(ctx)
	if err != nil {
		output.Error("failed to initialize GCP clients: %v", err)
		return err
	}

	launcher := provision.NewLauncher(cfg.Project, cfg.Zone, cfg.Region, uniqueID, clients)

	output.Info("Tearing down deployment in project %s", output.Bold(cfg.Project))

	err = launcher.Teardown(ctx, provision.TeardownOptions{
		InstanceName: downFlags.instanceName,
		KeepStaticIP: downFlags.keepStaticIP,
	})
	if err != nil {
		output.Error("teardown finished with errors: %v", err)
		return err
	}

	output.Success("Deployment torn down")
	if downFlags.keepStaticIP {
		output.Warning("Static IP reservation kept; release it manually when no longer needed")
	}
	return nil
}

// resolveDeployment returns the unique ID the teardown derives resource
// names from. Without --instance or a configured unique_id it falls
// back to the manifest the launch wrote; it never invents a fresh ID,
// which would derive names no launch ever created and delete nothing.
func resolveDeployment(configuredID string) (string, error) {
	if downFlags.instanceName != "" || configuredID != "" {
		return configuredID, nil
	}

	manifest, err := provision.ReadManifest(provision.ManifestFileName)
	if err != nil {
		return "", err
	}
	if manifest.UniqueID == "" {
		return "", errors.New("resource manifest has no unique_id")
	}

	output.Info("Resolved deployment %s from %s", output.Bold(manifest.UniqueID), provision.ManifestFileName)
	return manifest.UniqueID, nil
}
