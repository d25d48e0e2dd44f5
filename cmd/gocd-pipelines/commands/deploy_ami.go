package commands

import (
	"github.com/rs/zerolog"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/patterns/pipelines"
	"github.com/savaki/gocd-pipelines/internal/patterns/stages"
	"github.com/savaki/gocd-pipelines/internal/utils"
	"github.com/urfave/cli/v2"
)

// asgardSpec reads the Asgard endpoint and credentials from the merged
// variable set.
func asgardSpec(vars utils.Variables) (stages.AsgardSpec, error) {
	var spec stages.AsgardSpec
	for _, field := range []struct {
		key  string
		dest *string
	}{
		{"asgard_api_endpoints", &spec.APIEndpoints},
		{"asgard_token", &spec.Token},
		{"aws_access_key_id", &spec.AWSAccessKeyID},
		{"aws_secret_access_key", &spec.AWSSecretAccessKey},
	} {
		value, err := vars.String(field.key)
		if err != nil {
			return stages.AsgardSpec{}, err
		}
		*field.dest = value
	}
	return spec, nil
}

// DeployAMICommand installs a standalone pipeline that deploys a named
// AMI through Asgard.
func DeployAMICommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "deploy-ami",
		Usage: "Install a pipeline that deploys an AMI named by its AMI_ID variable",
		Description: `Installs a manually gated pipeline that deploys the AMI named in the
pipeline's AMI_ID environment variable through Asgard, recording the
deployment in ami_deploy_info.yml.

Required variables: pipeline_group, pipeline_name, asgard_api_endpoints,
asgard_token, aws_access_key_id, aws_secret_access_key.`,
		Flags: installerFlags(),
		Action: func(c *cli.Context) error {
			logger.Info().Msg("installing AMI deployment pipeline")
			return installAndSave(c, installDeployAMI)
		},
	}
}

func installDeployAMI(configurator *gocd.Configurator, config *utils.Config) error {
	vars := config.Global()
	groupName, err := vars.String("pipeline_group")
	if err != nil {
		return err
	}
	pipelineName, err := vars.String("pipeline_name")
	if err != nil {
		return err
	}
	asgard, err := asgardSpec(vars)
	if err != nil {
		return err
	}

	pipelines.AMIDeploymentPipeline(configurator, groupName, pipelineName, asgard)
	return nil
}
