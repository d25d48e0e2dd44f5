// Package stages builds the standard pipeline stages: instance lifecycle,
// AMI deployment, migrations, and the approval plumbing around them.
package stages

import (
	"fmt"

	"github.com/savaki/gocd-pipelines/internal/constants"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/patterns/tasks"
	"github.com/savaki/gocd-pipelines/internal/utils"
)

// AsgardSpec carries the Asgard endpoint and the credentials its scripts
// need.
type AsgardSpec struct {
	APIEndpoints       string
	Token              string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
}

func (s AsgardSpec) ensureOn(pipeline *gocd.Pipeline) {
	pipeline.EnsureEnvironmentVariables(map[string]string{
		"ASGARD_API_ENDPOINTS": s.APIEndpoints,
	})
	pipeline.EnsureEncryptedEnvironmentVariables(map[string]string{
		"ASGARD_API_TOKEN":      s.Token,
		"AWS_ACCESS_KEY_ID":     s.AWSAccessKeyID,
		"AWS_SECRET_ACCESS_KEY": s.AWSSecretAccessKey,
	})
}

// ASGCleanup adds a stage that reaps orphaned auto scaling groups.
func ASGCleanup(pipeline *gocd.Pipeline, asgard AsgardSpec, manualApproval bool) *gocd.Stage {
	asgard.ensureOn(pipeline)

	stage := pipeline.EnsureStage("ASG-Cleanup-Stage")
	if manualApproval {
		stage.SetHasManualApproval()
	}

	job := stage.EnsureJob("Cleanup-ASGS")
	tasks.RequirementsInstall(job, "tubular")
	job.AddTask(gocd.ExecTask{
		Command:    []string{"/usr/bin/python", "scripts/cleanup-asgs.py"},
		WorkingDir: "tubular",
	})
	return stage
}

// JanitorSpec controls which instances the janitor stage reaps.
type JanitorSpec struct {
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	NameMatchPattern   string
	MaxRunHours        int
	SkipIfTag          string
}

// JanitorInstances adds a stage that terminates instances left behind by
// aborted AMI builds. Instances tagged SkipIfTag are never touched.
func JanitorInstances(pipeline *gocd.Pipeline, spec JanitorSpec) *gocd.Stage {
	pipeline.EnsureEnvironmentVariables(map[string]string{
		"EC2_REGION": constants.EC2Region,
	})
	pipeline.EnsureEncryptedEnvironmentVariables(map[string]string{
		"AWS_ACCESS_KEY_ID":     spec.AWSAccessKeyID,
		"AWS_SECRET_ACCESS_KEY": spec.AWSSecretAccessKey,
	})

	stage := pipeline.EnsureStage(constants.InstanceJanitorStage)
	job := stage.EnsureJob(constants.InstanceJanitorJob)
	tasks.RequirementsInstall(job, "tubular")
	job.AddTask(gocd.ExecTask{
		Command: []string{
			"/usr/bin/python",
			"scripts/cleanup_instances.py",
			"--region", "$EC2_REGION",
			"--max_run_hours", fmt.Sprintf("%d", spec.MaxRunHours),
			"--name_filter", spec.NameMatchPattern,
			"--skip_if_tag", spec.SkipIfTag,
		},
		WorkingDir: "tubular",
	})
	return stage
}

// LaunchInstance adds the stage that launches the instance an AMI is baked
// from.
func LaunchInstance(pipeline *gocd.Pipeline, spec tasks.LaunchInstanceSpec, manualApproval bool) *gocd.Stage {
	stage := pipeline.EnsureStage(constants.LaunchInstanceStage)
	if manualApproval {
		stage.SetHasManualApproval()
	}

	job := stage.EnsureJob(constants.LaunchInstanceJob)
	tasks.RequirementsInstall(job, "tubular")
	tasks.RequirementsInstall(job, "configuration")
	tasks.LaunchInstance(pipeline, job, spec)
	return stage
}

// RunPlay adds the stage that runs the service's play against the launched
// instance.
func RunPlay(pipeline *gocd.Pipeline, spec tasks.RunAppPlaybookSpec, manualApproval bool) *gocd.Stage {
	stage := pipeline.EnsureStage(constants.RunPlayStage)
	if manualApproval {
		stage.SetHasManualApproval()
	}

	job := stage.EnsureJob(constants.RunPlayJob)
	tasks.RequirementsInstall(job, "tubular")
	tasks.RequirementsInstall(job, "configuration")
	tasks.TargetDirectory(job, constants.ArtifactPath)

	for _, file := range []string{
		constants.KeyPEMFilename,
		constants.LaunchInstanceFilename,
		constants.AnsibleInventory,
	} {
		job.AddTask(gocd.FetchArtifactTask{
			Pipeline: pipeline.Name,
			Stage:    constants.LaunchInstanceStage,
			Job:      constants.LaunchInstanceJob,
			Src:      file,
			Dest:     constants.ArtifactPath,
		})
	}

	tasks.RunAppPlaybook(pipeline, job, spec)
	return stage
}

// CreateAMIFromInstance adds the stage that images the instance launched
// by LaunchInstance, publishing ami.yml.
func CreateAMIFromInstance(pipeline *gocd.Pipeline, spec tasks.CreateAMISpec, manualApproval bool) *gocd.Stage {
	stage := pipeline.EnsureStage(constants.BuildAMIStage)
	if manualApproval {
		stage.SetHasManualApproval()
	}

	job := stage.EnsureJob(constants.BuildAMIJob)
	tasks.RequirementsInstall(job, "tubular")
	tasks.RequirementsInstall(job, "configuration")
	tasks.TargetDirectory(job, constants.ArtifactPath)

	job.AddTask(gocd.FetchArtifactTask{
		Pipeline: pipeline.Name,
		Stage:    constants.LaunchInstanceStage,
		Job:      constants.LaunchInstanceJob,
		Src:      constants.LaunchInstanceFilename,
		Dest:     constants.ArtifactPath,
	})

	if spec.LaunchInfoPath == "" {
		spec.LaunchInfoPath = constants.ArtifactPath + "/" + constants.LaunchInstanceFilename
	}
	tasks.CreateAMI(pipeline, job, spec)
	return stage
}

// DeployAMISpec controls the AMI deployment stage. When UpstreamArtifact
// is set the AMI to deploy is read from that artifact; otherwise the
// pipeline's AMI_ID variable names it.
type DeployAMISpec struct {
	Asgard           AsgardSpec
	UpstreamArtifact *utils.ArtifactLocation
	ManualApproval   bool
}

// DeployAMI adds the stage that deploys an AMI through Asgard and records
// the deployment in ami_deploy_info.yml.
func DeployAMI(pipeline *gocd.Pipeline, spec DeployAMISpec) *gocd.Stage {
	spec.Asgard.ensureOn(pipeline)
	pipeline.EnsureEnvironmentVariables(map[string]string{
		"WAIT_SLEEP_TIME": "20",
	})

	stage := pipeline.EnsureStage(constants.DeployAMIStage)
	if spec.ManualApproval {
		stage.SetHasManualApproval()
	}

	job := stage.EnsureJob(constants.DeployAMIJob)
	tasks.RequirementsInstall(job, "tubular")

	artifactPath := constants.ArtifactPath + "/" + constants.DeployAMIOutFilename
	job.EnsureArtifacts(gocd.BuildArtifact{Src: artifactPath})

	command := []string{
		"/usr/bin/python",
		"scripts/asgard-deploy.py",
		"--out_file", "../" + artifactPath,
	}
	if spec.UpstreamArtifact != nil {
		job.AddTask(spec.UpstreamArtifact.AsFetchTask("tubular"))
		command = append(command, "--config-file", spec.UpstreamArtifact.FileName)
	} else {
		pipeline.EnsureEnvironmentVariables(map[string]string{"AMI_ID": ""})
		command = append(command, "--ami_id", "$AMI_ID")
	}

	job.AddTask(tasks.Bash(fmt.Sprintf("mkdir -p ../%s", constants.ArtifactPath), tasks.InDir("tubular")))
	job.AddTask(gocd.ExecTask{Command: command, WorkingDir: "tubular"})
	return stage
}

// EDPValidationSpec names the EDP an inbound AMI must be tagged for.
type EDPValidationSpec struct {
	EDP           utils.EDP
	ChatAuthToken string
	ChatChannels  string
	APIEndpoints  string
}

// EDPValidation adds a stage that fails when the AMI being deployed is not
// tagged for the expected environment/deployment/play, notifying chat on
// failure.
func EDPValidation(pipeline *gocd.Pipeline, spec EDPValidationSpec, manualApproval bool) *gocd.Stage {
	pipeline.EnsureEnvironmentVariables(map[string]string{
		"AMI_ID":               "",
		"AMI_ENVIRONMENT":      spec.EDP.Environment,
		"AMI_DEPLOYMENT":       spec.EDP.Deployment,
		"AMI_PLAY":             spec.EDP.Play,
		"HIPCHAT_CHANNELS":     spec.ChatChannels,
		"ASGARD_API_ENDPOINTS": spec.APIEndpoints,
	})
	pipeline.EnsureEncryptedEnvironmentVariables(map[string]string{
		"HIPCHAT_TOKEN": spec.ChatAuthToken,
	})

	stage := pipeline.EnsureStage("Validation")
	if manualApproval {
		stage.SetHasManualApproval()
	}

	job := stage.EnsureJob("EDPValidation")
	tasks.RequirementsInstall(job, "tubular")
	job.AddTask(gocd.ExecTask{
		Command:    []string{"/usr/bin/python", "scripts/validate_edp.py"},
		WorkingDir: "tubular",
	})
	job.AddTask(tasks.Bash(
		`/usr/bin/python scripts/submit_hipchat_msg.py -m `+
			`"${AMI_ID} is not tagged for ${AMI_ENVIRONMENT}-${AMI_DEPLOYMENT}-${AMI_PLAY}. `+
			`Are you sure you're deploying the right AMI to the right app?" --color "red"`,
		tasks.InDir("tubular"),
		tasks.When(gocd.RunIfFailed),
	))
	return stage
}

// RunMigrationsSpec wires the migration stage to the instance artifacts of
// an upstream launch stage.
type RunMigrationsSpec struct {
	DBMigrationPass     string
	InventoryLocation   utils.ArtifactLocation
	InstanceKeyLocation utils.ArtifactLocation
	LaunchInfoLocation  utils.ArtifactLocation
	ApplicationUser     string
	ApplicationName     string
	ApplicationPath     string
	SubApplication      string // e.g. cms or lms
	ManualApproval      bool
}

// RunMigrations adds the stage that applies database migrations. With a
// sub-application the stage name is suffixed so cms and lms runs coexist.
func RunMigrations(pipeline *gocd.Pipeline, spec RunMigrationsSpec) *gocd.Stage {
	pipeline.EnsureEnvironmentVariables(map[string]string{
		"APPLICATION_USER":  spec.ApplicationUser,
		"APPLICATION_NAME":  spec.ApplicationName,
		"APPLICATION_PATH":  spec.ApplicationPath,
		"DB_MIGRATION_USER": constants.DBMigrationUser,
		"ARTIFACT_PATH":     constants.ArtifactPath,
		"ANSIBLE_CONFIG":    constants.AnsibleContinuousDeliveryConfig,
	})
	pipeline.EnsureEncryptedEnvironmentVariables(map[string]string{
		"DB_MIGRATION_PASS": spec.DBMigrationPass,
	})

	stageName := constants.RunMigrationsStage
	if spec.SubApplication != "" {
		stageName = fmt.Sprintf("%s_%s", stageName, spec.SubApplication)
	}
	stage := pipeline.EnsureStage(stageName)
	if spec.ManualApproval {
		stage.SetHasManualApproval()
	}

	job := stage.EnsureJob(constants.RunMigrationsJob)
	job.AddTask(spec.InventoryLocation.AsFetchTask(constants.ArtifactPath))
	job.AddTask(spec.InstanceKeyLocation.AsFetchTask(constants.ArtifactPath))
	tasks.TargetDirectory(job, constants.ArtifactPath)
	job.AddTask(spec.LaunchInfoLocation.AsFetchTask(constants.ArtifactPath))

	// The fetched key is world-readable, which ssh refuses.
	job.AddTask(tasks.Bash(
		fmt.Sprintf("chmod 600 %s", spec.InstanceKeyLocation.FileName),
		tasks.InDir(constants.ArtifactPath),
	))

	tasks.RequirementsInstall(job, "configuration")
	tasks.RunMigrations(job, spec.SubApplication)
	return stage
}

// TerminateInstance adds the stage that cleans up the launched instance.
// It defaults to running whether the pipeline passed or failed.
func TerminateInstance(pipeline *gocd.Pipeline, instanceInfo utils.ArtifactLocation, runif string, manualApproval bool) *gocd.Stage {
	if runif == "" {
		runif = gocd.RunIfAny
	}
	pipeline.EnsureEnvironmentVariables(map[string]string{
		"ARTIFACT_PATH": constants.ArtifactPath,
		"EC2_REGION":    constants.EC2Region,
	})

	stage := pipeline.EnsureStage(constants.TerminateInstanceStage)
	if manualApproval {
		stage.SetHasManualApproval()
	}

	job := stage.EnsureJob(constants.TerminateInstanceJob)
	tasks.RequirementsInstall(job, "configuration")
	job.AddTask(instanceInfo.AsFetchTask(constants.ArtifactPath))
	tasks.AMICleanup(job, runif)
	return stage
}

// RollbackASGs adds the stage that rolls a deployment back to its previous
// auto scaling groups. The stage is always gated behind manual approval;
// rollback must be a human decision.
func RollbackASGs(pipeline *gocd.Pipeline, asgard AsgardSpec, deployInfo utils.ArtifactLocation) *gocd.Stage {
	asgard.ensureOn(pipeline)

	stage := pipeline.EnsureStage(constants.RollbackASGsStage)
	stage.SetHasManualApproval()

	job := stage.EnsureJob(constants.RollbackASGsJob)
	tasks.RequirementsInstall(job, "tubular")
	job.AddTask(deployInfo.AsFetchTask("tubular"))
	job.AddTask(tasks.Bash("mkdir -p ../target", tasks.InDir("tubular")))

	artifactPath := constants.ArtifactPath + "/" + constants.RollbackAMIOutFilename
	job.EnsureArtifacts(gocd.BuildArtifact{Src: artifactPath})

	job.AddTask(gocd.ExecTask{
		Command: []string{
			"/usr/bin/python",
			"scripts/rollback_asg.py",
			"--config_file", deployInfo.FileName,
			"--out_file", "../" + artifactPath,
		},
		WorkingDir: "tubular",
	})
	return stage
}

// Armed adds a no-op stage that "arms" a pipeline: the pipeline triggers
// automatically to pin its materials, and the following stage holds for
// manual approval.
func Armed(pipeline *gocd.Pipeline, stageName string) *gocd.Stage {
	stage := pipeline.EnsureStage(stageName)
	job := stage.EnsureJob(constants.ArmedJob)
	job.AddTask(tasks.Bash("echo Pipeline run number $GO_PIPELINE_COUNTER armed by $GO_TRIGGER_USER"))
	return stage
}
