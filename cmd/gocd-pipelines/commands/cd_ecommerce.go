package commands

import (
	"github.com/rs/zerolog"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/patterns/pipelines"
	"github.com/savaki/gocd-pipelines/internal/utils"
	"github.com/urfave/cli/v2"
)

// CDEcommerceCommand installs the ecommerce service deployment pipelines.
func CDEcommerceCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "cd-ecommerce",
		Usage: "Install pipelines that deploy the ecommerce service",
		Description: `Installs the stage/prod pipeline pair plus the loadtest pipeline for the
ecommerce service. Stage deploys continuously on merges; prod waits for
operator approval behind the armed stage.

Example:
  gocd-pipelines cd-ecommerce \
      --variable_file vars/tools.yml \
      --env-variable-file stage-edx=vars/stage_edx.yml \
      --env-variable-file prod-edx=vars/prod_edx.yml`,
		Flags: installerFlags(),
		Action: func(c *cli.Context) error {
			logger.Info().Str("play", "ecommerce").Msg("installing service pipelines")
			return installAndSave(c, installEcommerce)
		},
	}
}

func installEcommerce(configurator *gocd.Configurator, config *utils.Config) error {
	return pipelines.SingleDeploymentServicePipelines(configurator, pipelines.SingleDeploymentSpec{
		Config:                 config,
		Play:                   "ecommerce",
		HasMigrations:          true,
		RunE2ETestsAfterDeploy: true,
	})
}
