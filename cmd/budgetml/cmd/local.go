package cmd

import (
	"github.com/spf13/cobra"

	"github.com/budgetml/budgetml/internal/gcp"
	"github.com/budgetml/budgetml/internal/localrun"
	"github.com/budgetml/budgetml/internal/output"
	"github.com/budgetml/budgetml/internal/provision"
)

var localFlags struct {
	predictorPath    string
	entrypoint       string
	username         string
	password         string
	requirements     []string
	requirementsFile string
	dockerfilePath   string
	bucketName       string
}

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Build and run the predictor locally with Docker",
	Long: `Local builds the same image a remote launch would and runs it at
0.0.0.0:8000, simulating the endpoint before a proper launch.`,
	RunE: runLocal,
}

func init() {
	f := localCmd.Flags()
	f.StringVar(&localFlags.predictorPath, "predictor", "", "Path to the predictor source file")
	f.StringVar(&localFlags.entrypoint, "entrypoint", "", "Predictor class name")
	f.StringVar(&localFlags.username, "username", "", "Username for the API endpoints (default \"budget\")")
	f.StringVar(&localFlags.password, "password", "", "Password for the API endpoints (random when omitted)")
	f.StringSliceVar(&localFlags.requirements, "requirements", nil, "Python requirement lines (repeatable)")
	f.StringVar(&localFlags.requirementsFile, "requirements-file", "", "Path to a requirements file")
	f.StringVar(&localFlags.dockerfilePath, "dockerfile", "", "Path to a Dockerfile override")
	f.StringVar(&localFlags.bucketName, "bucket", "", "Bucket for the predictor artifact")

	_ = localCmd.MarkFlagRequired("predictor")
	_ = localCmd.MarkFlagRequired("entrypoint")

	rootCmd.AddCommand(localCmd)
}

func runLocal(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		output.Error("failed to load configuration: %v", err)
		return err
	}

	ctx := cmd.Context()
	clients, err := gcp.NewServiceClients(ctx)
	if err != nil {
		output.Error("failed to initialize GCP clients: %v", err)
		return err
	}

	runner, err := localrun.NewRunner(cfg.Project, cfg.UniqueID, clients.Storage)
	if err != nil {
		output.Error("failed to initialize docker client: %v", err)
		return err
	}

	output.Info("Building and running %s locally", output.Bold(localFlags.entrypoint))

	res, err := runner.Launch(ctx, localrun.Options{
		Predictor: provision.Predictor{
			Path:       localFlags.predictorPath,
			Entrypoint: localFlags.entrypoint,
		},
		RequirementsPath: localFlags.requirementsFile,
		RequirementsList: localFlags.requirements,
		DockerfilePath:   localFlags.dockerfilePath,
		BucketName:       localFlags.bucketName,
		Username:         firstNonEmpty(localFlags.username, cfg.Username),
		Password:         localFlags.password,
	})
	if err != nil {
		output.Error("local run failed: %v", err)
		return err
	}

	output.Success("Predictor running locally")
	output.KeyValue("Container", res.ContainerID)
	output.KeyValue("Endpoint", res.Endpoint)
	output.KeyValue("Username", res.Username)
	output.KeyValueBold("Password", res.Password)
	return nil
}
