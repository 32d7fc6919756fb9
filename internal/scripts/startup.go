package scripts

import (
	"fmt"
	"strings"

	"github.com/budgetml/budgetml/internal/constants"
)

const contextDir = "/home/budgetml"

const metadataBaseURL = "http://metadata.google.internal/computeMetadata/v1/instance/attributes"

// StartupInput carries everything the boot script embeds. Password and
// Token are generated fresh per launch by the caller; the script itself
// is deterministic given its input.
type StartupInput struct {
	Bucket        string
	PredictorPath string // object path inside the bucket
	Entrypoint    string
	Domain        string
	Subdomain     string
	Username      string
	Password      string
	Token         string
}

// StartupScript assembles the boot-time shell script: it fetches the
// four base64-encoded template payloads from the instance metadata
// service, decodes them onto disk, exports the serving environment,
// installs docker when absent, and brings the compose stack up.
func StartupScript(in StartupInput) string {
	dockerfilePath := contextDir + "/template.Dockerfile"
	requirementsPath := contextDir + "/custom_requirements.txt"
	composePath := contextDir + "/docker-compose.yaml"
	nginxPath := contextDir + "/nginx.conf"
	certsPath := contextDir + "/certs/"

	var b strings.Builder
	line := func(format string, a ...any) {
		fmt.Fprintf(&b, format+"\n", a...)
	}

	line("#!/bin/bash")
	line("sudo -s")
	line("mkdir %s", contextDir)
	line("cd %s", contextDir)

	// Fetch the encoded payloads from the metadata channel.
	for _, key := range []string{
		constants.MetadataDockerTemplate,
		constants.MetadataRequirements,
		constants.MetadataComposeTemplate,
		constants.MetadataNginxTemplate,
	} {
		line(`export %s=$(curl %s/%s -H "Metadata-Flavor: Google")`, key, metadataBaseURL, key)
	}

	// Decode onto disk, replacing any leftovers from a previous boot.
	files := []struct {
		key  string
		path string
	}{
		{constants.MetadataDockerTemplate, dockerfilePath},
		{constants.MetadataRequirements, requirementsPath},
		{constants.MetadataComposeTemplate, composePath},
		{constants.MetadataNginxTemplate, nginxPath},
	}
	for _, f := range files {
		line("rm -f %s", f.path)
		line("echo $%s | base64 --decode >> %s", f.key, f.path)
	}

	line("export BUDGET_PREDICTOR_PATH=gs://%s/%s", in.Bucket, in.PredictorPath)
	line("export BUDGET_PREDICTOR_ENTRYPOINT=%s", in.Entrypoint)
	line("export BUDGET_DOMAIN=%s", in.Domain)
	line("export BUDGET_SUBDOMAIN=%s", in.Subdomain)
	line("export BUDGET_USERNAME=%s", in.Username)
	line("export BUDGET_PWD=%s", in.Password)
	line("export BUDGET_NGINX_PATH=%s", nginxPath)
	line("export BUDGET_CERTS_PATH=%s", certsPath)
	line("export BASE_IMAGE=%s", constants.BaseImage)

	// Opaque session token picked up by the serving app at boot.
	line("export BUDGET_TOKEN=%s", in.Token)

	line(`if [ -x "$(command -v docker)" ]; then`)
	line(`    echo "Docker already installed"`)
	line("else")
	line("    sudo apt-get update")
	line("    sudo apt-get -y install apt-transport-https ca-certificates curl gnupg-agent software-properties-common")
	line("    curl -fsSL https://download.docker.com/linux/ubuntu/gpg | sudo apt-key add -")
	line(`    sudo add-apt-repository "deb [arch=amd64] https://download.docker.com/linux/ubuntu $(lsb_release -cs) stable"`)
	line("    sudo apt-get update")
	line("    sudo apt-get -y install docker-ce docker-ce-cli containerd.io")
	line("fi")

	line("docker run" +
		" -e BUDGET_PREDICTOR_PATH=$BUDGET_PREDICTOR_PATH" +
		" -e BUDGET_PREDICTOR_ENTRYPOINT=$BUDGET_PREDICTOR_ENTRYPOINT" +
		" -e BUDGET_USERNAME=$BUDGET_USERNAME" +
		" -e BUDGET_PWD=$BUDGET_PWD" +
		" -e BUDGET_DOMAIN=$BUDGET_DOMAIN" +
		" -e BUDGET_SUBDOMAIN=$BUDGET_SUBDOMAIN" +
		" -e BUDGET_NGINX_PATH=$BUDGET_NGINX_PATH" +
		" -e BUDGET_CERTS_PATH=$BUDGET_CERTS_PATH" +
		" -e BASE_IMAGE=$BASE_IMAGE" +
		" -e BUDGET_TOKEN=$BUDGET_TOKEN" +
		" --rm -v /var/run/docker.sock:/var/run/docker.sock" +
		` -v "$PWD:$PWD" -w="$PWD" ` +
		constants.ComposeImage + " up -d")

	// Pre-fetch the CLI image the shutdown script depends on; at
	// shutdown there is no time left to pull it.
	line("docker pull %s", constants.CloudSDKImage)

	return b.String()
}

// ShutdownScript publishes an empty notification to the topic via the
// pre-pulled cloud-sdk image, informing the watchdog that the instance
// is stopping.
func ShutdownScript(topic string) string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	b.WriteString("sudo -s\n")
	b.WriteString("cd /tmp\n")
	b.WriteString(`echo "+++ Running shutdown script +++"` + "\n")
	fmt.Fprintf(&b, `docker run %s gcloud pubsub topics publish %s --message "{}"`+"\n",
		constants.CloudSDKImage, topic)
	return b.String()
}
