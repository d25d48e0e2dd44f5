package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/materials"
	"github.com/savaki/gocd-pipelines/internal/patterns/stages"
	"github.com/savaki/gocd-pipelines/internal/utils"
	"github.com/urfave/cli/v2"
)

// Instances launched for AMI builds carry this name; anything matching it
// that outlives a build is fair game for the janitor.
const automationRunPattern = "gocd automation run*"

// InstanceCleanupCommand installs the timer-driven pipelines that
// terminate instances left behind by aborted AMI builds.
func InstanceCleanupCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "instance-cleanup",
		Usage: "Install timer-driven pipelines that terminate leftover build instances",
		Description: `Installs one Instance-Cleanup-{deployment} pipeline per configured
deployment in the Janitors group. Each runs on a half-hour timer and
terminates automation instances older than a day, skipping anything
tagged do_not_delete.

Required variables: deployments, a list of maps each carrying
deployment, aws_access_key_id, and aws_secret_access_key.`,
		Flags: installerFlags(),
		Action: func(c *cli.Context) error {
			logger.Info().Msg("installing instance cleanup pipelines")
			return installAndSave(c, installInstanceCleanup)
		},
	}
}

func installInstanceCleanup(configurator *gocd.Configurator, config *utils.Config) error {
	deployments, err := config.Global().Slice("deployments")
	if err != nil {
		return err
	}
	if len(deployments) == 0 {
		return fmt.Errorf("instance cleanup needs at least one deployment")
	}

	for _, vars := range deployments {
		deployment, err := vars.String("deployment")
		if err != nil {
			return err
		}
		accessKey, err := vars.String("aws_access_key_id")
		if err != nil {
			return fmt.Errorf("instance cleanup for %v: %w", deployment, err)
		}
		secretKey, err := vars.String("aws_secret_access_key")
		if err != nil {
			return fmt.Errorf("instance cleanup for %v: %w", deployment, err)
		}

		pipeline := configurator.EnsurePipelineGroup("Janitors").
			EnsureReplacementOfPipeline("Instance-Cleanup-" + deployment).
			SetTimer("0 0,30 * * * ?")
		pipeline.EnsureMaterial(materials.Tubular())

		stages.JanitorInstances(pipeline, stages.JanitorSpec{
			AWSAccessKeyID:     accessKey,
			AWSSecretAccessKey: secretKey,
			NameMatchPattern:   automationRunPattern,
			MaxRunHours:        24,
			SkipIfTag:          "do_not_delete",
		})
	}
	return nil
}
