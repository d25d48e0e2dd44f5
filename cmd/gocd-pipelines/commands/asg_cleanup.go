package commands

import (
	"github.com/rs/zerolog"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/materials"
	"github.com/savaki/gocd-pipelines/internal/patterns/stages"
	"github.com/savaki/gocd-pipelines/internal/utils"
	"github.com/urfave/cli/v2"
)

// ASGCleanupCommand installs the pipeline that reaps orphaned auto scaling
// groups on a timer.
func ASGCleanupCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "asg-cleanup",
		Usage: "Install a timer-driven pipeline that cleans up orphaned ASGs",
		Description: `Installs a pipeline that runs on a cron timer and deletes auto scaling
groups left behind by rolled-back or superseded deployments.

Required variables: pipeline_group, pipeline_name, cron_timer,
asgard_api_endpoints, asgard_token, aws_access_key_id,
aws_secret_access_key.`,
		Flags: installerFlags(),
		Action: func(c *cli.Context) error {
			logger.Info().Msg("installing ASG cleanup pipeline")
			return installAndSave(c, installASGCleanup)
		},
	}
}

func installASGCleanup(configurator *gocd.Configurator, config *utils.Config) error {
	vars := config.Global()
	groupName, err := vars.String("pipeline_group")
	if err != nil {
		return err
	}
	pipelineName, err := vars.String("pipeline_name")
	if err != nil {
		return err
	}
	cronTimer, err := vars.String("cron_timer")
	if err != nil {
		return err
	}
	asgard, err := asgardSpec(vars)
	if err != nil {
		return err
	}

	pipeline := configurator.EnsurePipelineGroup(groupName).
		EnsureReplacementOfPipeline(pipelineName).
		SetTimer(cronTimer)
	pipeline.EnsureMaterial(materials.Tubular())
	stages.ASGCleanup(pipeline, asgard, false)
	return nil
}
