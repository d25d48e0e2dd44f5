package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/savaki/gocd-pipelines/internal/canonicalize"
	"github.com/savaki/gocd-pipelines/internal/gocd"
)

func ProvideContext() context.Context {
	return context.Background()
}

func ProvideClient(settings Settings, logger zerolog.Logger) (*gocd.Client, error) {
	if settings.ServerURL == "" {
		return nil, fmt.Errorf("gocd server url is required")
	}

	var opts []gocd.ClientOption
	if settings.Username != "" {
		opts = append(opts, gocd.WithBasicAuth(settings.Username, settings.Password))
	}
	return gocd.NewClient(settings.ServerURL, &logger, opts...), nil
}

func ProvideConfigurator(client *gocd.Client, logger zerolog.Logger) *gocd.Configurator {
	return gocd.NewConfigurator(client, &logger, gocd.WithDiff(canonicalize.Diff))
}
