package commands

import (
	"github.com/rs/zerolog"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/patterns/pipelines"
	"github.com/savaki/gocd-pipelines/internal/utils"
	"github.com/urfave/cli/v2"
)

// CDCredentialsCommand installs the credentials service deployment
// pipelines.
func CDCredentialsCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "cd-credentials",
		Usage: "Install pipelines that deploy the credentials service",
		Description: `Installs the stage/prod pipeline pair plus the loadtest pipeline for the
credentials service.

Example:
  gocd-pipelines cd-credentials \
      --variable_file vars/tools.yml \
      --env-variable-file stage-edx=vars/stage_edx.yml \
      --env-variable-file prod-edx=vars/prod_edx.yml`,
		Flags: installerFlags(),
		Action: func(c *cli.Context) error {
			logger.Info().Str("play", "credentials").Msg("installing service pipelines")
			return installAndSave(c, installCredentials)
		},
	}
}

func installCredentials(configurator *gocd.Configurator, config *utils.Config) error {
	return pipelines.SingleDeploymentServicePipelines(configurator, pipelines.SingleDeploymentSpec{
		Config:        config,
		Play:          "credentials",
		HasMigrations: true,
	})
}
