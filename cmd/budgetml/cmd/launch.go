package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/budgetml/budgetml/internal/gcp"
	"github.com/budgetml/budgetml/internal/output"
	"github.com/budgetml/budgetml/internal/provision"
)

var launchFlags struct {
	predictorPath    string
	entrypoint       string
	domain           string
	subdomain        string
	username         string
	password         string
	requirements     []string
	requirementsFile string
	dockerfilePath   string
	bucketName       string
	instanceName     string
	machineType      string
	preemptible      bool
	staticIP         string
}

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Provision the serving instance and HTTPS endpoint",
	Long: `Launch reserves a static IP, uploads the predictor to a bucket, wires
the watchdog function and heartbeat schedule, and boots the instance.`,
	RunE: runLaunch,
}

func init() {
	f := launchCmd.Flags()
	f.StringVar(&launchFlags.predictorPath, "predictor", "", "Path to the predictor source file")
	f.StringVar(&launchFlags.entrypoint, "entrypoint", "", "Predictor class name")
	f.StringVar(&launchFlags.domain, "domain", "", "Domain the endpoint is served under, e.g. example.com")
	f.StringVar(&launchFlags.subdomain, "subdomain", "", "Subdomain for the endpoint (default \"budget\")")
	f.StringVar(&launchFlags.username, "username", "", "Username for the API endpoints (default \"budget\")")
	f.StringVar(&launchFlags.password, "password", "", "Password for the API endpoints (random when omitted)")
	f.StringSliceVar(&launchFlags.requirements, "requirements", nil, "Python requirement lines (repeatable)")
	f.StringVar(&launchFlags.requirementsFile, "requirements-file", "", "Path to a requirements file")
	f.StringVar(&launchFlags.dockerfilePath, "dockerfile", "", "Path to a Dockerfile override")
	f.StringVar(&launchFlags.bucketName, "bucket", "", "Bucket for the predictor artifact")
	f.StringVar(&launchFlags.instanceName, "instance", "", "Name of the server instance")
	f.StringVar(&launchFlags.machineType, "machine-type", "", "Machine type of the server instance")
	f.BoolVar(&launchFlags.preemptible, "preemptible", true, "Use a preemptible machine")
	f.StringVar(&launchFlags.staticIP, "static-ip", "", "Existing static IP address to reuse")

	_ = launchCmd.MarkFlagRequired("predictor")
	_ = launchCmd.MarkFlagRequired("entrypoint")

	rootCmd.AddCommand(launchCmd)
}

func runLaunch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		output.Error("failed to load configuration: %v", err)
		return err
	}
	if launchFlags.domain != "" {
		cfg.Domain = launchFlags.domain
	}
	if err := cfg.Validate(); err != nil {
		output.Error("invalid configuration: %v", err)
		return err
	}

	ctx := cmd.Context()
	clients, err := gcp.NewServiceClients(ctx)
	if err != nil {
		output.Error("failed to initialize GCP clients: %v", err)
		return err
	}

	launcher := provision.NewLauncher(cfg.Project, cfg.Zone, cfg.Region, cfg.UniqueID, clients)

	output.Info("Launching deployment in project %s", output.Bold(cfg.Project))

	dep, err := launcher.Launch(ctx, provision.LaunchOptions{
		Predictor: provision.Predictor{
			Path:       launchFlags.predictorPath,
			Entrypoint: launchFlags.entrypoint,
		},
		Domain:           cfg.Domain,
		Subdomain:        firstNonEmpty(launchFlags.subdomain, cfg.Subdomain),
		Username:         firstNonEmpty(launchFlags.username, cfg.Username),
		Password:         launchFlags.password,
		RequirementsPath: launchFlags.requirementsFile,
		RequirementsList: launchFlags.requirements,
		DockerfilePath:   launchFlags.dockerfilePath,
		BucketName:       launchFlags.bucketName,
		InstanceName:     launchFlags.instanceName,
		MachineType:      firstNonEmpty(launchFlags.machineType, cfg.MachineType),
		Preemptible:      boolFlagOr(cmd.Flags(), "preemptible", launchFlags.preemptible, cfg.Preemptible),
		StaticIP:         firstNonEmpty(launchFlags.staticIP, cfg.StaticIP),
	})
	if err != nil {
		output.Error("launch failed: %v", err)
		return err
	}

	output.Success("Deployment launched")
	output.KeyValue("Instance", dep.InstanceName)
	output.KeyValue("Static IP", dep.StaticIP)
	output.KeyValue("Endpoint", dep.Endpoint)
	output.KeyValue("Username", dep.Username)
	output.KeyValueBold("Password", dep.Password)
	output.Info("Point an A record for %s at %s", output.Cyan(dep.Endpoint), output.Cyan(dep.StaticIP))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// boolFlagOr merges a boolean flag with its config counterpart: the
// flag wins only when it was set explicitly, so a flag default cannot
// shadow a configured value.
func boolFlagOr(flags *pflag.FlagSet, name string, flagValue, configValue bool) bool {
	if flags.Changed(name) {
		return flagValue
	}
	return configValue
}
