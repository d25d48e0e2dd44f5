// Package commands holds the installer subcommands of the gocd-pipelines
// CLI. Each installer builds one family of pipelines and writes them into
// the GoCD server configuration.
package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/savaki/gocd-pipelines/internal/di"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/utils"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
)

// serverFlags identify the GoCD server and its admin credentials.
func serverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "gocd-server",
			Usage:    "Base URL of the GoCD server, e.g. https://gocd.example.com",
			Required: true,
			EnvVars:  []string{"GOCD_SERVER"},
		},
		&cli.StringFlag{
			Name:    "gocd-username",
			Usage:   "Username for the GoCD admin API",
			EnvVars: []string{"GOCD_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "gocd-password",
			Usage:   "Password for the GoCD admin API",
			EnvVars: []string{"GOCD_PASSWORD"},
		},
	}
}

// variableFlags load the layered variable configuration feeding an
// installer.
func variableFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "variable_file",
			Aliases: []string{"f"},
			Usage:   "YAML variable file; later files must not conflict with earlier ones (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:    "variable",
			Aliases: []string{"e"},
			Usage:   "KEY=VALUE override merged over the variable files (repeatable)",
		},
		&cli.StringSliceFlag{
			Name: "env-variable-file",
			Usage: "SCOPE=PATH overlay variable file, where SCOPE is an environment " +
				"(stage) or an environment-deployment pair (stage-edx) (repeatable)",
		},
	}
}

// saveFlags control how the generated configuration is applied.
func saveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Print a diff of the canonicalized configuration instead of posting it",
		},
		&cli.BoolFlag{
			Name:  "save-config",
			Usage: "Write before/after configuration snapshots into config-snapshots/",
		},
	}
}

func installerFlags() []cli.Flag {
	flags := serverFlags()
	flags = append(flags, variableFlags()...)
	flags = append(flags, saveFlags()...)
	return flags
}

// loadConfig merges the variable files and overrides into the layered
// installer configuration.
func loadConfig(c *cli.Context) (*utils.Config, error) {
	global, err := utils.MergeFilesAndOverrides(c.StringSlice("variable_file"), c.StringSlice("variable"))
	if err != nil {
		return nil, err
	}

	config := utils.NewConfig(global)
	for _, pair := range c.StringSlice("env-variable-file") {
		scope, path, found := strings.Cut(pair, "=")
		if !found || scope == "" {
			return nil, fmt.Errorf("invalid overlay %q, expected SCOPE=PATH", pair)
		}
		vars, err := utils.LoadVariablesFile(path)
		if err != nil {
			return nil, err
		}
		// Environment-deployment scopes are hyphenated, e.g. stage-edx.
		if strings.Contains(scope, "-") {
			err = config.AddEnvDeployment(scope, vars)
		} else {
			err = config.AddEnvironment(scope, vars)
		}
		if err != nil {
			return nil, err
		}
	}
	return config, nil
}

func newContainer(c *cli.Context) (di.Container, error) {
	return di.New(di.WithServer(
		c.String("gocd-server"),
		c.String("gocd-username"),
		c.String("gocd-password"),
	))
}

func saveOptions(c *cli.Context) gocd.SaveOptions {
	opts := gocd.SaveOptions{DryRun: c.Bool("dry-run")}
	if c.Bool("save-config") {
		opts.SnapshotDir = filepath.Join("config-snapshots", ksuid.New().String())
	}
	return opts
}

// installAndSave runs an installer against a fresh configurator and saves
// the result per the command's save flags.
func installAndSave(c *cli.Context, install func(configurator *gocd.Configurator, config *utils.Config) error) error {
	config, err := loadConfig(c)
	if err != nil {
		return err
	}

	container, err := newContainer(c)
	if err != nil {
		return err
	}

	return container.Invoke(func(ctx context.Context, configurator *gocd.Configurator) error {
		if err := install(configurator, config); err != nil {
			return err
		}
		return configurator.Save(ctx, saveOptions(c))
	})
}
