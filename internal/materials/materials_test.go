package materials

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardDefaults(t *testing.T) {
	material := Tubular()

	assert.Equal(t, "https://github.com/edx/tubular", material.URL)
	assert.Equal(t, "master", material.Branch)
	assert.Equal(t, "tubular", material.MaterialName)
	assert.Equal(t, "tubular", material.Destination)
	assert.True(t, material.Polling)

	// Tooling checkouts never trigger the pipeline on their own.
	assert.Equal(t, IgnoreAll, material.IgnorePatterns)
}

func TestOptions(t *testing.T) {
	material := Configuration(
		Branch("loadtest-ecommerce"),
		Destination("config"),
		Polling(false),
	)

	assert.Equal(t, "loadtest-ecommerce", material.Branch)
	assert.Equal(t, "config", material.Destination)
	assert.False(t, material.Polling)
}

func TestTriggerOnChange(t *testing.T) {
	material := EdxPlatform(TriggerOnChange())

	assert.Empty(t, material.IgnorePatterns)
	assert.Equal(t, "release-candidate", material.Branch)
}

func TestEnvVarName(t *testing.T) {
	assert.Equal(t, "$GO_REVISION_EDX_PLATFORM", EdxPlatform().EnvVarName())
	assert.Equal(t, "$GO_REVISION_EDX_SECURE", EdxSecure().EnvVarName())
}

func TestStandardRepos(t *testing.T) {
	assert.Equal(t, "git@github.com:edx-ops/edge-secure.git", EdgeSecure().URL)
	assert.Equal(t, "git@github.com:edx/edx-internal.git", EdxInternal().URL)
	assert.Equal(t, "git@github.com:edx/edge-internal.git", EdgeInternal().URL)

	// The microsite repo deploys from release, not master.
	microsite := EdxMicrosite()
	assert.Equal(t, "git@github.com:edx/edx-microsite.git", microsite.URL)
	assert.Equal(t, "release", microsite.Branch)
}

func TestURLOverride(t *testing.T) {
	material := EdxMktg(URL("git@github.com:edx/edx-mktg-fork.git"))

	assert.Equal(t, "git@github.com:edx/edx-mktg-fork.git", material.URL)
	assert.Equal(t, "edx-mktg", material.MaterialName)
}

func TestDeploymentRepos(t *testing.T) {
	secure := DeploymentSecure("edge")
	assert.Equal(t, "git@github.com:edx-ops/edge-secure.git", secure.URL)
	assert.Equal(t, "edge-secure", secure.MaterialName)

	internal := DeploymentInternal("edge", Branch("loadtest"))
	assert.Equal(t, "git@github.com:edx/edge-internal.git", internal.URL)
	assert.Equal(t, "loadtest", internal.Branch)
}
