package pipelines

import (
	"fmt"

	"github.com/savaki/gocd-pipelines/internal/constants"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/materials"
	"github.com/savaki/gocd-pipelines/internal/patterns/tasks"
	"github.com/savaki/gocd-pipelines/internal/utils"
)

// MarketingSiteSpec carries the Acquia credentials and repository settings
// for the Drupal marketing-site pipelines.
type MarketingSiteSpec struct {
	RepositoryVersion string
	GithubPrivateKey  string
	AcquiaRemoteURL   string
	AcquiaUsername    string
	AcquiaPassword    string
	AcquiaGithubKey   string
}

// MarketingSiteSpecFromVariables builds a MarketingSiteSpec from the
// merged variable set, failing on any missing key.
func MarketingSiteSpecFromVariables(vars utils.Variables) (MarketingSiteSpec, error) {
	var spec MarketingSiteSpec
	for _, field := range []struct {
		key  string
		dest *string
	}{
		{"mktg_repository_version", &spec.RepositoryVersion},
		{"github_private_key", &spec.GithubPrivateKey},
		{"acquia_remote_url", &spec.AcquiaRemoteURL},
		{"acquia_username", &spec.AcquiaUsername},
		{"acquia_password", &spec.AcquiaPassword},
		{"acquia_github_key", &spec.AcquiaGithubKey},
	} {
		value, err := vars.String(field.key)
		if err != nil {
			return MarketingSiteSpec{}, fmt.Errorf("marketing site: %w", err)
		}
		*field.dest = value
	}
	return spec, nil
}

func marketingMaterials(pipeline *gocd.Pipeline) {
	pipeline.EnsureMaterial(materials.Tubular())
	pipeline.EnsureMaterial(materials.EdxMktg())
	pipeline.EnsureMaterial(materials.EcomSecure())
}

func marketingVariables(pipeline *gocd.Pipeline, spec MarketingSiteSpec) {
	pipeline.EnsureEnvironmentVariables(map[string]string{
		"MARKETING_REPOSITORY_VERSION": spec.RepositoryVersion,
	})
	pipeline.EnsureEncryptedEnvironmentVariables(map[string]string{
		"PRIVATE_GITHUB_KEY":        spec.GithubPrivateKey,
		"PRIVATE_ACQUIA_REMOTE":     spec.AcquiaRemoteURL,
		"PRIVATE_ACQUIA_USERNAME":   spec.AcquiaUsername,
		"PRIVATE_ACQUIA_PASSWORD":   spec.AcquiaPassword,
		"PRIVATE_ACQUIA_GITHUB_KEY": spec.AcquiaGithubKey,
	})
}

// copyAcquiaKey makes the Acquia deploy key available to drush commands
// running in the drupal root.
func copyAcquiaKey(job *gocd.Job) {
	job.AddTask(tasks.Bash(`
		chmod 600 ecom-secure/acquia/acquia_github_key.pem &&
		cp ecom-secure/acquia/acquia_github_key.pem edx-mktg/docroot/`))
}

func tagArtifact(name string) utils.ArtifactLocation {
	return utils.ArtifactLocation{
		Pipeline: constants.DeployMarketingPipeline,
		Stage:    constants.FetchTagStage,
		Job:      constants.FetchTagJob,
		FileName: name + ".txt",
	}
}

// MarketingSitePipeline builds the deploy-marketing-site pipeline: record
// the currently deployed tags, cut and push a release tag to Acquia,
// deploy it to the test site, then behind a manual gate deploy it to prod,
// with database backups and cache flushes around each deployment.
func MarketingSitePipeline(configurator *gocd.Configurator, spec MarketingSiteSpec) *gocd.Pipeline {
	group := configurator.EnsurePipelineGroup(constants.DrupalPipelineGroup)
	pipeline := group.EnsureReplacementOfPipeline(constants.DeployMarketingPipeline)
	marketingMaterials(pipeline)
	marketingVariables(pipeline, spec)

	// Record the tags currently live on test and prod so the rollback
	// pipelines can find them later.
	fetchTagStage := pipeline.EnsureStage(constants.FetchTagStage)
	fetchTagStage.SetHasManualApproval()
	fetchTagJob := fetchTagStage.EnsureJob(constants.FetchTagJob)
	tasks.PackageInstall(fetchTagJob, "tubular")
	tasks.TargetDirectory(fetchTagJob, constants.ArtifactPath)
	for _, siteEnv := range []string{constants.StageEnv, constants.ProdEnv} {
		pathName := fmt.Sprintf("../%s/%s_tag_name.txt", constants.ArtifactPath, siteEnv)
		tasks.FetchDeployedTag(fetchTagJob, siteEnv, pathName)
	}
	fetchTagJob.EnsureArtifacts(
		gocd.BuildArtifact{Src: constants.ArtifactPath + "/" + constants.StageTagName + ".txt"},
		gocd.BuildArtifact{Src: constants.ArtifactPath + "/" + constants.ProdTagName + ".txt"},
	)

	// Cut a dated release tag and push it to the Acquia remote.
	pushStage := pipeline.EnsureStage(constants.PushToAcquiaStage)
	pushJob := pushStage.EnsureJob(constants.PushToAcquiaJob)
	pushJob.EnsureArtifacts(gocd.BuildArtifact{Src: constants.ArtifactPath + "/" + constants.NewTagName + ".txt"})
	tasks.PackageInstall(pushJob, "tubular")
	tasks.TargetDirectory(pushJob, constants.ArtifactPath)
	pushJob.AddTask(tasks.Bash(fmt.Sprintf(`
		echo -n "release-$(date +%%Y-%%m-%%d-%%H.%%M)" > ../target/%[1]s.txt &&
		TAG_NAME=$(cat ../target/%[1]s.txt) &&
		/usr/bin/git config user.email "admin@edx.org" &&
		/usr/bin/git config user.name "edx-secure" &&
		/usr/bin/git tag -a $TAG_NAME -m "Release created by $GO_TRIGGER_USER." &&
		/usr/bin/git push origin $TAG_NAME`,
		constants.NewTagName,
	), tasks.InDir("edx-mktg")))
	pushJob.AddTask(tasks.Bash(fmt.Sprintf(`
		chmod 600 ../ecom-secure/acquia/acquia_github_key.pem &&
		if [[ $(git remote) != *"acquia"* ]]; then
			/usr/bin/git remote add acquia $PRIVATE_ACQUIA_REMOTE ;
		fi &&
		GIT_SSH_COMMAND="/usr/bin/ssh -o StrictHostKeyChecking=no -i ../ecom-secure/acquia/acquia_github_key.pem"
		/usr/bin/git push acquia $(cat ../target/%[1]s.txt) &&
		echo -n "tags/" | cat - ../target/%[1]s.txt > temp &&
		mv temp ../target/%[1]s.txt`,
		constants.NewTagName,
	), tasks.InDir("edx-mktg")))

	newTagArtifact := utils.ArtifactLocation{
		Pipeline: constants.DeployMarketingPipeline,
		Stage:    constants.PushToAcquiaStage,
		Job:      constants.PushToAcquiaJob,
		FileName: constants.NewTagName + ".txt",
	}

	// Test site deployment.
	backupStageJob := pipeline.EnsureStage(constants.BackupStageDatabaseStage).
		EnsureJob(constants.BackupStageDatabaseJob)
	tasks.PackageInstall(backupStageJob, "tubular")
	tasks.BackupDrupalDatabase(backupStageJob, constants.StageEnv)

	deployStageJob := pipeline.EnsureStage(constants.DeployStageStage).
		EnsureJob(constants.DeployStageJob)
	tasks.PackageInstall(deployStageJob, "tubular")
	tasks.TargetDirectory(deployStageJob, constants.ArtifactPath)
	deployStageJob.AddTask(newTagArtifact.AsFetchTask(constants.ArtifactPath))
	tasks.DeployDrupal(deployStageJob, constants.StageEnv, constants.NewTagName+".txt")

	clearStageJob := pipeline.EnsureStage(constants.ClearStageCachesStage).
		EnsureJob(constants.ClearStageCachesJob)
	tasks.PackageInstall(clearStageJob, "tubular")
	copyAcquiaKey(clearStageJob)
	tasks.FlushDrupalCaches(clearStageJob, constants.StageEnv)
	tasks.ClearVarnishCache(clearStageJob, constants.StageEnv)

	// Production deployment, gated on a human.
	backupProdStage := pipeline.EnsureStage(constants.BackupProdDatabaseStage)
	backupProdStage.SetHasManualApproval()
	backupProdJob := backupProdStage.EnsureJob(constants.BackupProdDatabaseJob)
	tasks.PackageInstall(backupProdJob, "tubular")
	tasks.BackupDrupalDatabase(backupProdJob, constants.ProdEnv)

	deployProdJob := pipeline.EnsureStage(constants.DeployProdStage).
		EnsureJob(constants.DeployProdJob)
	tasks.PackageInstall(deployProdJob, "tubular")
	tasks.TargetDirectory(deployProdJob, constants.ArtifactPath)
	deployProdJob.AddTask(newTagArtifact.AsFetchTask(constants.ArtifactPath))
	tasks.DeployDrupal(deployProdJob, constants.ProdEnv, constants.NewTagName+".txt")

	clearProdJob := pipeline.EnsureStage(constants.ClearProdCachesStage).
		EnsureJob(constants.ClearProdCachesJob)
	tasks.PackageInstall(clearProdJob, "tubular")
	copyAcquiaKey(clearProdJob)
	tasks.FlushDrupalCaches(clearProdJob, constants.ProdEnv)
	tasks.ClearVarnishCache(clearProdJob, constants.ProdEnv)

	return pipeline
}

// MarketingSiteRollbackPipeline builds a pipeline that redeploys the tag
// recorded by the deploy pipeline, rolling the site in the environment
// back to its previous release. The rollback stage is manually gated.
func MarketingSiteRollbackPipeline(configurator *gocd.Configurator, siteEnv, tagName string, spec MarketingSiteSpec) *gocd.Pipeline {
	group := configurator.EnsurePipelineGroup(constants.DrupalPipelineGroup)
	pipeline := group.EnsureReplacementOfPipeline(fmt.Sprintf("rollback-%s-marketing-site", siteEnv))
	marketingMaterials(pipeline)
	pipeline.EnsureMaterial(gocd.PipelineMaterial{
		PipelineName: constants.DeployMarketingPipeline,
		StageName:    constants.FetchTagStage,
	})
	marketingVariables(pipeline, spec)

	rollbackStage := pipeline.EnsureStage(constants.RollbackStage)
	rollbackStage.SetHasManualApproval()
	rollbackJob := rollbackStage.EnsureJob(constants.RollbackJob)
	tasks.PackageInstall(rollbackJob, "tubular")
	tasks.TargetDirectory(rollbackJob, constants.ArtifactPath)
	rollbackJob.AddTask(tagArtifact(tagName).AsFetchTask(constants.ArtifactPath))
	tasks.DeployDrupal(rollbackJob, siteEnv, tagName+".txt")

	clearJob := pipeline.EnsureStage(constants.ClearStageCachesStage).
		EnsureJob(constants.ClearStageCachesJob)
	tasks.PackageInstall(clearJob, "tubular")
	copyAcquiaKey(clearJob)
	tasks.FlushDrupalCaches(clearJob, siteEnv)
	tasks.ClearVarnishCache(clearJob, siteEnv)

	return pipeline
}
