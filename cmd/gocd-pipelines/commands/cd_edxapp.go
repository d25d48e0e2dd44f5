package commands

import (
	"github.com/rs/zerolog"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/materials"
	"github.com/savaki/gocd-pipelines/internal/patterns/pipelines"
	"github.com/savaki/gocd-pipelines/internal/utils"
	"github.com/urfave/cli/v2"
)

// CDEdxappCommand installs the edxapp (LMS/CMS platform) deployment
// pipelines.
func CDEdxappCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "cd-edxapp",
		Usage: "Install pipelines that deploy the edxapp platform",
		Description: `Installs the edxapp deployment pipelines: continuous deployment to
stage-edx from the release-candidate branch and a manually gated prod
pipeline covering the edx and edge accounts. Migrations run separately
for the cms and lms sub-applications.

Example:
  gocd-pipelines cd-edxapp \
      --variable_file vars/tools.yml \
      --env-variable-file stage-edx=vars/stage_edx.yml \
      --env-variable-file prod-edx=vars/prod_edx.yml \
      --env-variable-file prod-edge=vars/prod_edge.yml`,
		Flags: installerFlags(),
		Action: func(c *cli.Context) error {
			logger.Info().Str("play", "edxapp").Msg("installing service pipelines")
			return installAndSave(c, installEdxapp)
		},
	}
}

func installEdxapp(configurator *gocd.Configurator, config *utils.Config) error {
	const play = "edxapp"

	group := pipelines.ServicePipelineGroup(configurator, play)

	return pipelines.ServiceDeploymentPipelines(group, pipelines.ServiceDeploymentSpec{
		Config:      config,
		AppMaterial: materials.EdxPlatform(materials.TriggerOnChange()),
		ContinuousDeploymentEDPs: []utils.EDP{
			{Environment: "stage", Deployment: "edx", Play: play},
		},
		ManualDeploymentEDPs: []utils.EDP{
			{Environment: "prod", Deployment: "edx", Play: play},
			{Environment: "prod", Deployment: "edge", Play: play},
		},
		HasMigrations:   true,
		ApplicationUser: play,
		SubApplications: []string{"cms", "lms"},
	})
}
