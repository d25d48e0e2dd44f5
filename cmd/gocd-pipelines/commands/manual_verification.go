package commands

import (
	"github.com/rs/zerolog"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/patterns/pipelines"
	"github.com/savaki/gocd-pipelines/internal/utils"
	"github.com/urfave/cli/v2"
)

// ManualVerificationCommand installs a pipeline that pauses a release
// workflow until an operator signs off.
func ManualVerificationCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "manual-verification",
		Usage: "Install a pipeline that gates a release workflow on operator sign-off",
		Description: `Installs a pipeline whose first stage triggers automatically to pin the
upstream materials, then holds for jenkins verification jobs and a final
manual sign-off. Downstream pipelines continue against the pinned
revisions once approved.

Required variables: pipeline_group, pipeline_name, materials,
upstream_pipelines, jenkins_user_name, jenkins_user_token,
jenkins_job_token, jenkins_verifications.`,
		Flags: installerFlags(),
		Action: func(c *cli.Context) error {
			logger.Info().Msg("installing manual verification pipeline")
			return installAndSave(c, installManualVerification)
		},
	}
}

func installManualVerification(configurator *gocd.Configurator, config *utils.Config) error {
	spec, err := pipelines.ManualVerificationSpecFromVariables(config.Global())
	if err != nil {
		return err
	}
	pipelines.ManualVerificationPipeline(configurator, spec)
	return nil
}
