// Package pipelines assembles complete deployment pipelines: a
// continuous-deployment pipeline per service, an optional manually gated
// production pipeline chained to it, and the standalone AMI deployment and
// rollback pipelines.
package pipelines

import (
	"fmt"
	"strings"

	"github.com/savaki/gocd-pipelines/internal/constants"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/materials"
	"github.com/savaki/gocd-pipelines/internal/patterns/authz"
	"github.com/savaki/gocd-pipelines/internal/patterns/jobs"
	"github.com/savaki/gocd-pipelines/internal/patterns/stages"
	"github.com/savaki/gocd-pipelines/internal/utils"
)

// ServicePipelineGroup creates a fresh pipeline group for the play and
// grants {play}-admin administration and {play}-operator operate/view.
func ServicePipelineGroup(configurator *gocd.Configurator, play string) *gocd.PipelineGroup {
	group := configurator.EnsurePipelineGroup(play)

	authz.EnsurePermissions(group, authz.Admins, []string{play + "-admin"})
	authz.EnsurePermissions(group, authz.Operate, []string{play + "-operator"})
	authz.EnsurePermissions(group, authz.View, []string{play + "-operator"})
	return group
}

// DeploymentStages bundles the stages making up one pipeline's deployment
// lifecycle. RollbackMigrations is nil for services without migrations;
// E2ETests is nil unless post-deploy tests are requested.
type DeploymentStages struct {
	Deploy             *gocd.Stage
	E2ETests           *gocd.Stage
	RollbackASGs       *gocd.Stage
	RollbackMigrations *gocd.Stage
}

// deploymentStages frames out the deploy and rollback stages of a
// pipeline. Rollback stages always require manual approval, regardless of
// how the pipeline itself is triggered.
func deploymentStages(pipeline *gocd.Pipeline, hasMigrations, runE2ETests bool) DeploymentStages {
	deploy := pipeline.EnsureStage(constants.DeployAMIStage)

	var e2eTests *gocd.Stage
	if runE2ETests {
		e2eTests = pipeline.EnsureStage(constants.E2ETestsStage)
	}

	rollbackASGs := pipeline.EnsureStage(constants.RollbackASGsStage)
	rollbackASGs.SetHasManualApproval()

	var rollbackMigrations *gocd.Stage
	if hasMigrations {
		rollbackMigrations = pipeline.EnsureStage(constants.RollbackMigrationsStage)
		rollbackMigrations.SetHasManualApproval()
	}

	return DeploymentStages{
		Deploy:             deploy,
		E2ETests:           e2eTests,
		RollbackASGs:       rollbackASGs,
		RollbackMigrations: rollbackMigrations,
	}
}

// ServiceDeploymentSpec describes the pipelines for deploying one service
// to a set of environment-deployments.
type ServiceDeploymentSpec struct {
	Config      *utils.Config
	AppMaterial gocd.GitMaterial

	// ContinuousDeploymentEDPs deploy automatically on every change to
	// the app material; ManualDeploymentEDPs wait for operator approval
	// in a second pipeline chained to the first one's build stage.
	ContinuousDeploymentEDPs []utils.EDP
	ManualDeploymentEDPs     []utils.EDP

	// ConfigurationBranch selects the branch of the configuration and
	// internal repos; empty means master.
	ConfigurationBranch string

	HasMigrations   bool
	ApplicationUser string
	SubApplications []string // e.g. cms, lms

	// RunE2ETestsAfterDeploy adds a stage after the continuous deploy
	// that triggers a jenkins test job for each EDP whose configuration
	// carries jenkins_job_name and jenkins_job_token.
	RunE2ETestsAfterDeploy bool

	// CDPipelineName and ManualPipelineName default to
	// {environment}-{play}; they are required when the respective EDP
	// set spans more than one environment.
	CDPipelineName     string
	ManualPipelineName string

	// PlaybookPath overrides the playbook location; nil means the
	// conventional playbooks/edx-east/{play}.yml.
	PlaybookPath func(play string) string
}

// ServiceDeploymentPipelines builds the continuous-deployment pipeline and,
// when manual EDPs are given, the manually gated pipeline chained to its
// build stage.
func ServiceDeploymentPipelines(group *gocd.PipelineGroup, spec ServiceDeploymentSpec) error {
	allEDPs := append(append([]utils.EDP{}, spec.ContinuousDeploymentEDPs...), spec.ManualDeploymentEDPs...)

	plays := utils.Plays(allEDPs)
	if len(plays) == 0 {
		return fmt.Errorf("service deployment needs at least one EDP to deploy")
	}
	if len(plays) > 1 {
		return fmt.Errorf("service deployment expects a single play, got %v", plays)
	}
	play := plays[0]

	cdName := spec.CDPipelineName
	if cdName == "" {
		envs, _ := utils.GroupByEnvironment(spec.ContinuousDeploymentEDPs)
		if len(envs) == 0 {
			return fmt.Errorf("continuous deployment has no EDPs, an explicit pipeline name is required")
		}
		if len(envs) > 1 {
			return fmt.Errorf("continuous deployment EDPs span environments %v, an explicit pipeline name is required", envs)
		}
		cdName = constants.EnvironmentPipelineName(envs[0], play)
	}

	playbookPath := spec.PlaybookPath
	if playbookPath == nil {
		playbookPath = constants.PlaybookPath
	}

	// Frame out the continuous deployment pipeline.
	cdPipeline := group.EnsureReplacementOfPipeline(cdName)
	cdPipeline.SetLabelTemplate(constants.DeploymentPipelineLabel(spec.AppMaterial.MaterialName))
	buildStage := cdPipeline.EnsureStage(constants.BuildAMIStage)
	cdStages := deploymentStages(cdPipeline, spec.HasMigrations, spec.RunE2ETestsAfterDeploy)

	// Frame out the manual pipeline and chain it to the build stage.
	var manualPipeline *gocd.Pipeline
	var manualStages DeploymentStages
	if len(spec.ManualDeploymentEDPs) > 0 {
		manualName := spec.ManualPipelineName
		if manualName == "" {
			envs, _ := utils.GroupByEnvironment(spec.ManualDeploymentEDPs)
			if len(envs) > 1 {
				return fmt.Errorf("manual deployment EDPs span environments %v, an explicit pipeline name is required", envs)
			}
			manualName = constants.EnvironmentPipelineName(envs[0], play)
		}

		manualPipeline = group.EnsureReplacementOfPipeline(manualName)
		manualPipeline.EnsureMaterial(gocd.PipelineMaterial{
			PipelineName: cdPipeline.Name,
			StageName:    constants.BuildAMIStage,
			MaterialName: cdPipeline.Name,
		})

		// Pipelines return their label when referenced by name; the
		// manual pipeline reuses the CD pipeline's label.
		manualPipeline.SetLabelTemplate(fmt.Sprintf("${%s}", cdPipeline.Name))

		// An automatically triggered no-op stage pins the upstream
		// materials; the deploy stage behind it holds for approval.
		stages.Armed(manualPipeline, constants.ArmedStage)
		manualStages = deploymentStages(manualPipeline, spec.HasMigrations, false)
		manualStages.Deploy.SetHasManualApproval()
	}

	// Materials shared by both pipelines.
	configurationMaterial := materials.Configuration(materials.Branch(spec.ConfigurationBranch))
	secureMaterials := map[string]gocd.GitMaterial{}
	internalMaterials := map[string]gocd.GitMaterial{}
	for _, edp := range allEDPs {
		if _, ok := secureMaterials[edp.Deployment]; ok {
			continue
		}
		secureMaterials[edp.Deployment] = materials.DeploymentSecure(edp.Deployment)
		internalMaterials[edp.Deployment] = materials.DeploymentInternal(edp.Deployment, materials.Branch(spec.ConfigurationBranch))
	}

	shared := []gocd.GitMaterial{materials.Tubular(), configurationMaterial}
	for _, edp := range allEDPs {
		shared = append(shared, secureMaterials[edp.Deployment], internalMaterials[edp.Deployment])
	}
	for _, material := range shared {
		cdPipeline.EnsureMaterial(material)
		if manualPipeline != nil {
			manualPipeline.EnsureMaterial(material)
		}
	}
	cdPipeline.EnsureMaterial(spec.AppMaterial)

	// One build job per environment-deployment.
	appVersionVar := spec.AppMaterial.EnvVarName()
	for _, edp := range allEDPs {
		envConfig, err := spec.Config.ForEDP(edp)
		if err != nil {
			return err
		}
		secureRepo := secureMaterials[edp.Deployment].URL

		_, err = jobs.BuildAMI(cdPipeline, buildStage, jobs.BuildAMISpec{
			EDP:                     edp,
			AppRepoURL:              spec.AppMaterial.URL,
			ConfigurationSecureRepo: secureRepo,
			PlaybookPath:            playbookPath(edp.Play),
			EnvConfig:               envConfig,
			VersionOverrides: map[string]string{
				"app_version":                      appVersionVar,
				strings.ToUpper(play) + "_VERSION": appVersionVar,
			},
		})
		if err != nil {
			return err
		}
	}

	// Post-deploy test jobs, one per continuous EDP that names a jenkins
	// job in its configuration.
	if spec.RunE2ETestsAfterDeploy {
		for _, edp := range spec.ContinuousDeploymentEDPs {
			envConfig, err := spec.Config.ForEDP(edp)
			if err != nil {
				return err
			}
			if err := jobs.E2ETests(cdPipeline, cdStages.E2ETests, edp, envConfig); err != nil {
				return err
			}
		}
	}

	// Deploy and rollback wiring per EDP.
	type wiring struct {
		pipeline *gocd.Pipeline
		stages   DeploymentStages
		edps     []utils.EDP
	}
	wirings := []wiring{{cdPipeline, cdStages, spec.ContinuousDeploymentEDPs}}
	if manualPipeline != nil {
		wirings = append(wirings, wiring{manualPipeline, manualStages, spec.ManualDeploymentEDPs})
	}

	for _, w := range wirings {
		for _, edp := range w.edps {
			envConfig, err := spec.Config.ForEDP(edp)
			if err != nil {
				return err
			}

			amiArtifact := utils.ArtifactLocation{
				Pipeline: cdPipeline.Name,
				Stage:    constants.BuildAMIStage,
				Job:      edp.EnvDeployment(),
				FileName: constants.BuildAMIOutFilename,
			}

			deploySpec := jobs.DeployAMISpec{
				EDP:             edp,
				AMIArtifact:     amiArtifact,
				EnvConfig:       envConfig,
				HasMigrations:   spec.HasMigrations,
				ApplicationUser: spec.ApplicationUser,
				SubApplications: spec.SubApplications,
			}
			if _, err := jobs.DeployAMI(w.pipeline, w.stages.Deploy, deploySpec); err != nil {
				return err
			}

			deployInfo := utils.ArtifactLocation{
				Pipeline: w.pipeline.Name,
				Stage:    constants.DeployAMIStage,
				Job:      edp.EnvDeployment(),
				FileName: constants.DeployAMIOutFilename,
			}
			jobs.RollbackASGs(w.stages.RollbackASGs, edp, deployInfo)

			if !spec.HasMigrations {
				continue
			}

			migrationInfo := jobs.MigrationOutputLocation(w.pipeline.Name, deploySpec)
			subApps := spec.SubApplications
			if len(subApps) == 0 {
				subApps = []string{""}
			}
			for _, sub := range subApps {
				_, err := jobs.RollbackMigrations(w.pipeline, w.stages.RollbackMigrations, jobs.RollbackMigrationsSpec{
					EDP:             edp,
					ApplicationUser: spec.ApplicationUser,
					SubApplication:  sub,
					MigrationInfo:   migrationInfo,
					AMIArtifact:     amiArtifact,
					EnvConfig:       envConfig,
				})
				if err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// SingleDeploymentSpec describes the common stage/prod/loadtest layout for
// a service deployed to a single deployment account.
type SingleDeploymentSpec struct {
	Config          *utils.Config
	Play            string
	AppRepo         string // empty means the conventional edx repo for the play
	Deployment      string // empty means edx
	HasMigrations   bool
	ApplicationUser string
	SubApplications []string
	PlaybookPath    func(play string) string

	// RunE2ETestsAfterDeploy applies to the stage/prod pair only; the
	// loadtest pipeline never triggers post-deploy tests.
	RunE2ETestsAfterDeploy bool
}

// SingleDeploymentServicePipelines builds stage-{play} and prod-{play}
// pipelines (chained, with prod manually gated) plus an independent
// loadtest-{play} pipeline tracking the loadtest branch.
func SingleDeploymentServicePipelines(configurator *gocd.Configurator, spec SingleDeploymentSpec) error {
	deployment := spec.Deployment
	if deployment == "" {
		deployment = "edx"
	}
	appRepo := spec.AppRepo
	if appRepo == "" {
		appRepo = constants.EdxRepoURL(spec.Play)
	}

	group := ServicePipelineGroup(configurator, spec.Play)

	appMaterial := func(opts ...materials.Option) gocd.GitMaterial {
		// The material name lets pipelines label runs with the app SHA.
		base := []materials.Option{
			materials.Destination(spec.Play),
			materials.TriggerOnChange(),
		}
		return materials.Deployment(appRepo, "master", spec.Play, append(base, opts...)...)
	}

	if err := ServiceDeploymentPipelines(group, ServiceDeploymentSpec{
		Config:                   spec.Config,
		AppMaterial:              appMaterial(),
		ContinuousDeploymentEDPs: []utils.EDP{{Environment: "stage", Deployment: deployment, Play: spec.Play}},
		ManualDeploymentEDPs:     []utils.EDP{{Environment: "prod", Deployment: deployment, Play: spec.Play}},
		HasMigrations:            spec.HasMigrations,
		ApplicationUser:          spec.ApplicationUser,
		SubApplications:          spec.SubApplications,
		PlaybookPath:             spec.PlaybookPath,
		RunE2ETestsAfterDeploy:   spec.RunE2ETestsAfterDeploy,
	}); err != nil {
		return err
	}

	return ServiceDeploymentPipelines(group, ServiceDeploymentSpec{
		Config:                   spec.Config,
		AppMaterial:              appMaterial(materials.Branch("loadtest")),
		ContinuousDeploymentEDPs: []utils.EDP{{Environment: "loadtest", Deployment: deployment, Play: spec.Play}},
		ConfigurationBranch:      "loadtest-" + spec.Play,
		HasMigrations:            spec.HasMigrations,
		ApplicationUser:          spec.ApplicationUser,
		SubApplications:          spec.SubApplications,
		PlaybookPath:             spec.PlaybookPath,
	})
}

// AMIDeploymentPipeline builds a standalone pipeline that deploys an AMI
// named by artifact or AMI_ID, with a manual gate on the deploy stage.
func AMIDeploymentPipeline(configurator *gocd.Configurator, groupName, pipelineName string, asgard stages.AsgardSpec) *gocd.Pipeline {
	group := configurator.EnsurePipelineGroup(groupName)
	pipeline := group.EnsureReplacementOfPipeline(pipelineName)
	pipeline.EnsureMaterial(materials.Tubular())

	stages.DeployAMI(pipeline, stages.DeployAMISpec{
		Asgard:         asgard,
		ManualApproval: true,
	})
	return pipeline
}

// RollbackASGsPipeline builds a standalone pipeline that rolls a
// deployment back using a recorded deployment artifact.
func RollbackASGsPipeline(configurator *gocd.Configurator, groupName, pipelineName string, asgard stages.AsgardSpec, deployInfo utils.ArtifactLocation) *gocd.Pipeline {
	group := configurator.EnsurePipelineGroup(groupName)
	pipeline := group.EnsureReplacementOfPipeline(pipelineName)
	pipeline.EnsureMaterial(materials.Tubular())

	stages.RollbackASGs(pipeline, asgard, deployInfo)
	return pipeline
}
