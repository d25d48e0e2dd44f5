package commands

import (
	"github.com/rs/zerolog"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/patterns/pipelines"
	"github.com/savaki/gocd-pipelines/internal/utils"
	"github.com/urfave/cli/v2"
)

// RollbackASGsCommand installs a standalone pipeline that rolls a
// deployment back to its previous auto scaling groups.
func RollbackASGsCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "rollback-asgs",
		Usage: "Install a pipeline that rolls a deployment back to its previous ASGs",
		Description: `Installs a manually gated pipeline that reads the ami_deploy_info.yml
artifact recorded by an upstream deployment and restores the previous
auto scaling groups through Asgard.

Required variables: pipeline_group, pipeline_name, upstream_pipeline,
upstream_stage, upstream_job, asgard_api_endpoints, asgard_token,
aws_access_key_id, aws_secret_access_key.`,
		Flags: installerFlags(),
		Action: func(c *cli.Context) error {
			logger.Info().Msg("installing rollback pipeline")
			return installAndSave(c, installRollbackASGs)
		},
	}
}

func installRollbackASGs(configurator *gocd.Configurator, config *utils.Config) error {
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

	deployInfo := utils.ArtifactLocation{
		FileName: "ami_deploy_info.yml",
	}
	for _, field := range []struct {
		key  string
		dest *string
	}{
		{"upstream_pipeline", &deployInfo.Pipeline},
		{"upstream_stage", &deployInfo.Stage},
		{"upstream_job", &deployInfo.Job},
	} {
		value, err := vars.String(field.key)
		if err != nil {
			return err
		}
		*field.dest = value
	}

	pipelines.RollbackASGsPipeline(configurator, groupName, pipelineName, asgard, deployInfo)
	return nil
}
