package commands

import (
	"github.com/rs/zerolog"
	"github.com/savaki/gocd-pipelines/internal/constants"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/patterns/pipelines"
	"github.com/savaki/gocd-pipelines/internal/utils"
	"github.com/urfave/cli/v2"
)

// DeployMarketingSiteCommand installs the Drupal marketing-site deployment
// pipeline.
func DeployMarketingSiteCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "deploy-marketing-site",
		Usage: "Install the pipeline that deploys the marketing site to Acquia",
		Description: `Installs the deploy-marketing-site pipeline: record the currently deployed
tags, cut a release tag and push it to Acquia, deploy to the test site,
then deploy to prod behind a manual gate. Database backups and cache
flushes bracket each deployment.

Required variables: mktg_repository_version, github_private_key,
acquia_remote_url, acquia_username, acquia_password, acquia_github_key.`,
		Flags: installerFlags(),
		Action: func(c *cli.Context) error {
			logger.Info().Msg("installing marketing site pipeline")
			return installAndSave(c, installMarketingSite)
		},
	}
}

func installMarketingSite(configurator *gocd.Configurator, config *utils.Config) error {
	spec, err := pipelines.MarketingSiteSpecFromVariables(config.Global())
	if err != nil {
		return err
	}
	pipelines.MarketingSitePipeline(configurator, spec)
	return nil
}

// RollbackStageMarketingSiteCommand installs the pipeline that rolls the
// test marketing site back to its previously deployed tag.
func RollbackStageMarketingSiteCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "rollback-stage-marketing-site",
		Usage: "Install the pipeline that rolls back the test marketing site",
		Description: `Installs the rollback-test-marketing-site pipeline. It redeploys the tag
the deploy pipeline recorded before its last run, behind a manual gate.`,
		Flags: installerFlags(),
		Action: func(c *cli.Context) error {
			logger.Info().Msg("installing marketing site rollback pipeline")
			return installAndSave(c, installMarketingSiteRollback)
		},
	}
}

func installMarketingSiteRollback(configurator *gocd.Configurator, config *utils.Config) error {
	spec, err := pipelines.MarketingSiteSpecFromVariables(config.Global())
	if err != nil {
		return err
	}
	pipelines.MarketingSiteRollbackPipeline(configurator, constants.StageEnv, constants.StageTagName, spec)
	return nil
}
