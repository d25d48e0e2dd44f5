package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/utils"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// installers maps run-all config names to install functions.
var installers = map[string]func(*gocd.Configurator, *utils.Config) error{
	"cd-ecommerce":                  installEcommerce,
	"cd-credentials":                installCredentials,
	"cd-insights":                   installInsights,
	"cd-edxapp":                     installEdxapp,
	"deploy-marketing-site":         installMarketingSite,
	"rollback-stage-marketing-site": installMarketingSiteRollback,
	"deploy-ami":                    installDeployAMI,
	"rollback-asgs":                 installRollbackASGs,
	"asg-cleanup":                   installASGCleanup,
	"instance-cleanup":              installInstanceCleanup,
	"manual-verification":           installManualVerification,
}

type runAllConfig struct {
	Installers []struct {
		Name    string `yaml:"name"`
		Enabled bool   `yaml:"enabled"`
	} `yaml:"installers"`
}

// RunAllCommand runs every enabled installer from a YAML manifest and
// saves the combined configuration in one write.
func RunAllCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "run-all",
		Usage: "Run every enabled installer from a manifest and save once",
		Description: `Reads a YAML manifest listing installers, runs each enabled one against
a shared configurator, and posts the combined configuration in a single
write. If any installer fails, nothing is posted and the failures are
reported.

Manifest format:
  installers:
    - name: cd-ecommerce
      enabled: true
    - name: cd-edxapp
      enabled: false`,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the installer manifest",
				Required: true,
			},
		}, installerFlags()...),
		Action: func(c *cli.Context) error {
			return runAllAction(c, logger)
		},
	}
}

func runAllAction(c *cli.Context, logger *zerolog.Logger) error {
	runID := ksuid.New().String()

	data, err := os.ReadFile(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest runAllConfig
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse manifest %v: %w", c.String("config"), err)
	}

	config, err := loadConfig(c)
	if err != nil {
		return err
	}

	container, err := newContainer(c)
	if err != nil {
		return err
	}

	return container.Invoke(func(ctx context.Context, configurator *gocd.Configurator) error {
		type result struct {
			name string
			err  error
		}
		var results []result
		failures := 0

		for _, entry := range manifest.Installers {
			if !entry.Enabled {
				logger.Debug().Str("installer", entry.Name).Msg("skipping disabled installer")
				continue
			}
			install, ok := installers[entry.Name]
			if !ok {
				return fmt.Errorf("unknown installer %q in manifest", entry.Name)
			}

			logger.Info().Str("run", runID).Str("installer", entry.Name).Msg("running installer")
			err := install(configurator, config)
			if err != nil {
				failures++
				logger.Error().Err(err).Str("installer", entry.Name).Msg("installer failed")
			}
			results = append(results, result{name: entry.Name, err: err})
		}

		fmt.Printf("run %s: %d succeeded, %d failed\n", runID, len(results)-failures, failures)
		for _, r := range results {
			if r.err != nil {
				fmt.Printf("  FAIL %s: %v\n", r.name, r.err)
			} else {
				fmt.Printf("  ok   %s\n", r.name)
			}
		}

		if failures > 0 {
			return fmt.Errorf("%d installer(s) failed, configuration not saved", failures)
		}
		return configurator.Save(ctx, saveOptions(c))
	})
}
