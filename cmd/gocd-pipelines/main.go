package main

import (
	"context"
	"os"

	"github.com/savaki/gocd-pipelines/cmd/gocd-pipelines/commands"
	"github.com/savaki/gocd-pipelines/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "gocd-pipelines",
		Usage: "GoCD deployment pipeline installer",
		Description: `Generates deployment pipelines and writes them into a GoCD server
configuration.

This tool provides commands for:
  - Installing continuous-deployment pipelines per service
  - Installing the Drupal marketing-site pipelines
  - Installing standalone AMI deployment, rollback, and cleanup pipelines`,
		Commands: []*cli.Command{
			commands.CDEcommerceCommand(&logger),
			commands.CDCredentialsCommand(&logger),
			commands.CDInsightsCommand(&logger),
			commands.CDEdxappCommand(&logger),
			commands.DeployMarketingSiteCommand(&logger),
			commands.RollbackStageMarketingSiteCommand(&logger),
			commands.DeployAMICommand(&logger),
			commands.RollbackASGsCommand(&logger),
			commands.ASGCleanupCommand(&logger),
			commands.InstanceCleanupCommand(&logger),
			commands.ManualVerificationCommand(&logger),
			commands.RunAllCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
