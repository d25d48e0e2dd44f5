package commands

import (
	"github.com/rs/zerolog"
	"github.com/savaki/gocd-pipelines/internal/constants"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/materials"
	"github.com/savaki/gocd-pipelines/internal/patterns/pipelines"
	"github.com/savaki/gocd-pipelines/internal/utils"
	"github.com/urfave/cli/v2"
)

// CDInsightsCommand installs the insights service deployment pipelines.
// Insights deploys to both the edx and edge accounts in production.
func CDInsightsCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "cd-insights",
		Usage: "Install pipelines that deploy the insights service",
		Description: `Installs the deployment pipelines for insights: continuous deployment to
stage-edx, a manually gated prod pipeline covering both the edx and edge
accounts, and an independent loadtest pipeline.

Example:
  gocd-pipelines cd-insights \
      --variable_file vars/tools.yml \
      --env-variable-file stage-edx=vars/stage_edx.yml \
      --env-variable-file prod-edx=vars/prod_edx.yml \
      --env-variable-file prod-edge=vars/prod_edge.yml`,
		Flags: installerFlags(),
		Action: func(c *cli.Context) error {
			logger.Info().Str("play", "insights").Msg("installing service pipelines")
			return installAndSave(c, installInsights)
		},
	}
}

func installInsights(configurator *gocd.Configurator, config *utils.Config) error {
	const play = "insights"
	appRepo := constants.EdxRepoURL("edx-analytics-dashboard")

	group := pipelines.ServicePipelineGroup(configurator, play)

	appMaterial := func(opts ...materials.Option) gocd.GitMaterial {
		base := []materials.Option{
			materials.Destination(play),
			materials.TriggerOnChange(),
		}
		return materials.Deployment(appRepo, "master", play, append(base, opts...)...)
	}

	if err := pipelines.ServiceDeploymentPipelines(group, pipelines.ServiceDeploymentSpec{
		Config:      config,
		AppMaterial: appMaterial(),
		ContinuousDeploymentEDPs: []utils.EDP{
			{Environment: "stage", Deployment: "edx", Play: play},
		},
		ManualDeploymentEDPs: []utils.EDP{
			{Environment: "prod", Deployment: "edx", Play: play},
			{Environment: "prod", Deployment: "edge", Play: play},
		},
		HasMigrations: true,
	}); err != nil {
		return err
	}

	return pipelines.ServiceDeploymentPipelines(group, pipelines.ServiceDeploymentSpec{
		Config:      config,
		AppMaterial: appMaterial(materials.Branch("loadtest")),
		ContinuousDeploymentEDPs: []utils.EDP{
			{Environment: "loadtest", Deployment: "edx", Play: play},
		},
		ConfigurationBranch: "loadtest-" + play,
		HasMigrations:       true,
	})
}
