package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEDP(t *testing.T) {
	edp := EDP{Environment: "stage", Deployment: "edx", Play: "ecommerce"}

	assert.Equal(t, "stage-edx-ecommerce", edp.String())
	assert.Equal(t, "stage-edx", edp.EnvDeployment())
}

func TestGroupByEnvironment(t *testing.T) {
	edps := []EDP{
		{Environment: "prod", Deployment: "edx", Play: "insights"},
		{Environment: "stage", Deployment: "edx", Play: "insights"},
		{Environment: "prod", Deployment: "edge", Play: "insights"},
	}

	envs, grouped := GroupByEnvironment(edps)

	assert.Equal(t, []string{"prod", "stage"}, envs)
	assert.Len(t, grouped["prod"], 2)
	assert.Len(t, grouped["stage"], 1)
}

func TestPlays(t *testing.T) {
	edps := []EDP{
		{Environment: "stage", Deployment: "edx", Play: "insights"},
		{Environment: "prod", Deployment: "edx", Play: "insights"},
		{Environment: "stage", Deployment: "edx", Play: "ecommerce"},
	}

	assert.Equal(t, []string{"ecommerce", "insights"}, Plays(edps))
	assert.Empty(t, Plays(nil))
}

func TestArtifactLocation_AsFetchTask(t *testing.T) {
	t.Run("file artifact", func(t *testing.T) {
		loc := ArtifactLocation{
			Pipeline: "stage-ecommerce",
			Stage:    "build_ami",
			Job:      "stage-edx",
			FileName: "ami.yml",
		}

		task := loc.AsFetchTask("tubular")
		assert.Equal(t, "stage-ecommerce", task.Pipeline)
		assert.Equal(t, "ami.yml", task.Src)
		assert.False(t, task.SrcDir)
		assert.Equal(t, "tubular", task.Dest)
	})

	t.Run("directory artifact", func(t *testing.T) {
		loc := ArtifactLocation{
			Pipeline: "stage-ecommerce",
			Stage:    "deploy_ami",
			Job:      "stage-edx",
			FileName: "migrations",
			IsDir:    true,
		}

		task := loc.AsFetchTask("target")
		assert.True(t, task.SrcDir)
	})
}
