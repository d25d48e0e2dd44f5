package tasks

import (
	"fmt"

	"github.com/savaki/gocd-pipelines/internal/constants"
	"github.com/savaki/gocd-pipelines/internal/gocd"
)

// Drupal tasks drive the marketing site on Acquia. Stages using them must
// carry PRIVATE_ACQUIA_USERNAME and PRIVATE_ACQUIA_PASSWORD.

// BackupDrupalDatabase snapshots the site database in the given
// environment ("test" or "prod").
func BackupDrupalDatabase(job *gocd.Job, siteEnv string) gocd.Task {
	return job.AddTask(Tubular(TubularSpec{
		Script: "drupal_backup_database.py",
		Args: []string{
			"--env", siteEnv,
			"--username $PRIVATE_ACQUIA_USERNAME",
			"--password $PRIVATE_ACQUIA_PASSWORD",
		},
	}))
}

// FlushDrupalCaches clears all drupal caches. Assumes the drupal root is
// edx-mktg/docroot.
func FlushDrupalCaches(job *gocd.Job, siteEnv string) gocd.Task {
	return job.AddTask(Bash(
		fmt.Sprintf("drush -y @edx.%s cc all", siteEnv),
		InDir("edx-mktg/docroot"),
	))
}

// ClearVarnishCache purges the Varnish cache for the environment.
func ClearVarnishCache(job *gocd.Job, siteEnv string) gocd.Task {
	return job.AddTask(Tubular(TubularSpec{
		Script: "drupal_clear_varnish.py",
		Args: []string{
			"--env", siteEnv,
			"--username $PRIVATE_ACQUIA_USERNAME",
			"--password $PRIVATE_ACQUIA_PASSWORD",
		},
	}))
}

// DeployDrupal deploys the tag named in the fetched tag file to the
// environment.
func DeployDrupal(job *gocd.Job, siteEnv, tagFile string) gocd.Task {
	return job.AddTask(Tubular(TubularSpec{
		Script: "drupal_deploy.py",
		Args: []string{
			"--env", siteEnv,
			"--username $PRIVATE_ACQUIA_USERNAME",
			"--password $PRIVATE_ACQUIA_PASSWORD",
			fmt.Sprintf("--tag $(cat ../%s/%s)", constants.ArtifactPath, tagFile),
		},
	}))
}

// FetchDeployedTag records the tag currently deployed in the environment.
func FetchDeployedTag(job *gocd.Job, siteEnv, pathName string) gocd.Task {
	return job.AddTask(Tubular(TubularSpec{
		Script: "drupal_fetch_deployed_tag.py",
		Args: []string{
			"--env", siteEnv,
			"--username $PRIVATE_ACQUIA_USERNAME",
			"--password $PRIVATE_ACQUIA_PASSWORD",
			"--path_name", pathName,
		},
	}))
}

