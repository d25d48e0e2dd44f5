// Package jobs composes tasks into the jobs the deployment pipelines run:
// AMI builds per environment-deployment, migration-applying deploys, and
// the matching rollback jobs.
package jobs

import (
	"fmt"

	"github.com/savaki/gocd-pipelines/internal/constants"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/patterns/tasks"
	"github.com/savaki/gocd-pipelines/internal/utils"
)

// BuildAMISpec describes one AMI-build job.
type BuildAMISpec struct {
	EDP                     utils.EDP
	AppRepoURL              string
	ConfigurationSecureRepo string
	PlaybookPath            string
	EnvConfig               utils.Variables

	// VersionOverrides are extra ansible overrides pinning the app
	// version, e.g. app_version and {PLAY}_VERSION.
	VersionOverrides map[string]string
}

// BuildAMI adds the job that bakes an AMI for one environment-deployment:
// pick the base AMI, launch an instance from it, run the service play, and
// image the result. The instance is cleaned up whether the job passed or
// failed.
func BuildAMI(pipeline *gocd.Pipeline, stage *gocd.Stage, spec BuildAMISpec) (*gocd.Job, error) {
	accessKey, err := spec.EnvConfig.String("aws_access_key_id")
	if err != nil {
		return nil, fmt.Errorf("build ami for %v: %w", spec.EDP, err)
	}
	secretKey, err := spec.EnvConfig.String("aws_secret_access_key")
	if err != nil {
		return nil, fmt.Errorf("build ami for %v: %w", spec.EDP, err)
	}
	subnetID, err := spec.EnvConfig.String("ec2_vpc_subnet_id")
	if err != nil {
		return nil, fmt.Errorf("build ami for %v: %w", spec.EDP, err)
	}
	securityGroupID, err := spec.EnvConfig.String("ec2_security_group_id")
	if err != nil {
		return nil, fmt.Errorf("build ami for %v: %w", spec.EDP, err)
	}
	instanceProfile, err := spec.EnvConfig.String("ec2_instance_profile_name")
	if err != nil {
		return nil, fmt.Errorf("build ami for %v: %w", spec.EDP, err)
	}

	job := stage.EnsureJob(spec.EDP.EnvDeployment())

	tasks.RequirementsInstall(job, "configuration")
	tasks.PackageInstall(job, "tubular")
	tasks.TargetDirectory(job, constants.ArtifactPath)

	tasks.BaseAMISelection(pipeline, job, tasks.BaseAMISelectionSpec{
		EDP:                spec.EDP,
		AWSAccessKeyID:     accessKey,
		AWSSecretAccessKey: secretKey,
		BaseAMIID:          spec.EnvConfig.StringOr("base_ami_id", ""),
	})

	tasks.LaunchInstance(pipeline, job, tasks.LaunchInstanceSpec{
		AWSAccessKeyID:       accessKey,
		AWSSecretAccessKey:   secretKey,
		VPCSubnetID:          subnetID,
		SecurityGroupID:      securityGroupID,
		InstanceProfileName:  instanceProfile,
		BaseAMIID:            spec.EnvConfig.StringOr("base_ami_id", ""),
		VariableOverridePath: constants.ArtifactPath + "/" + constants.BaseAMIOverride,
	})

	overrides := map[string]string{
		"disable_edx_services":    "true",
		"COMMON_TAG_EC2_INSTANCE": "true",
	}
	for name, value := range spec.VersionOverrides {
		overrides[name] = value
	}
	tasks.RunAppPlaybook(pipeline, job, tasks.RunAppPlaybookSpec{
		Playbook:         spec.PlaybookPath,
		EDP:              spec.EDP,
		AppRepo:          spec.AppRepoURL,
		PrivateGithubKey: spec.EnvConfig.StringOr("github_private_key", ""),
		ExtraOverrides:   overrides,
	})

	tasks.CreateAMI(pipeline, job, tasks.CreateAMISpec{
		EDP:                     spec.EDP,
		AppRepo:                 spec.AppRepoURL,
		ConfigurationSecureRepo: spec.ConfigurationSecureRepo,
		AWSAccessKeyID:          accessKey,
		AWSSecretAccessKey:      secretKey,
		LaunchInfoPath:          constants.ArtifactPath + "/" + constants.LaunchInstanceFilename,
		ExtraOverrides: map[string]string{
			"configuration_secure_version": constants.ConfigurationSecureVersion,
		},
	})

	tasks.AMICleanup(job, gocd.RunIfAny)
	return job, nil
}

// DeployAMISpec describes one deploy job.
type DeployAMISpec struct {
	EDP         utils.EDP
	AMIArtifact utils.ArtifactLocation
	EnvConfig   utils.Variables

	// Migration settings. When HasMigrations is set the job launches an
	// instance from the built AMI, applies migrations (once per
	// sub-application when any are listed), publishes their output, and
	// terminates the instance before deploying.
	HasMigrations   bool
	ApplicationUser string // defaults to the play
	SubApplications []string
}

func (s DeployAMISpec) applicationUser() string {
	if s.ApplicationUser != "" {
		return s.ApplicationUser
	}
	return s.EDP.Play
}

// MigrationOutputLocation is where a deploy job built from spec publishes
// its migration output, for rollback wiring.
func MigrationOutputLocation(pipelineName string, spec DeployAMISpec) utils.ArtifactLocation {
	return utils.ArtifactLocation{
		Pipeline: pipelineName,
		Stage:    constants.DeployAMIStage,
		Job:      spec.EDP.EnvDeployment(),
		FileName: constants.MigrationOutputDir,
		IsDir:    true,
	}
}

// DeployAMI adds the job that deploys a built AMI to one
// environment-deployment and records the deployment for rollback.
func DeployAMI(pipeline *gocd.Pipeline, stage *gocd.Stage, spec DeployAMISpec) (*gocd.Job, error) {
	job := stage.EnsureJob(spec.EDP.EnvDeployment())

	tasks.RequirementsInstall(job, "tubular")
	tasks.TargetDirectory(job, constants.ArtifactPath)
	tasks.RetrieveArtifact(job, spec.AMIArtifact, "tubular")

	if spec.HasMigrations {
		if err := addMigrations(pipeline, job, spec); err != nil {
			return nil, err
		}
	}

	outPath := constants.ArtifactPath + "/" + constants.DeployAMIOutFilename
	job.EnsureArtifacts(gocd.BuildArtifact{Src: outPath})
	job.AddTask(gocd.ExecTask{
		Command: []string{
			"/usr/bin/python",
			"scripts/asgard-deploy.py",
			"--config-file", spec.AMIArtifact.FileName,
			"--out_file", "../" + outPath,
		},
		WorkingDir: "tubular",
	})
	return job, nil
}

// addMigrations launches an instance from the AMI being deployed, applies
// migrations on it, and cleans it up. Outputs land in the migration
// directory under the artifact path.
func addMigrations(pipeline *gocd.Pipeline, job *gocd.Job, spec DeployAMISpec) error {
	accessKey, err := spec.EnvConfig.String("aws_access_key_id")
	if err != nil {
		return fmt.Errorf("deploy %v: %w", spec.EDP, err)
	}
	secretKey, err := spec.EnvConfig.String("aws_secret_access_key")
	if err != nil {
		return fmt.Errorf("deploy %v: %w", spec.EDP, err)
	}
	subnetID, err := spec.EnvConfig.String("ec2_vpc_subnet_id")
	if err != nil {
		return fmt.Errorf("deploy %v: %w", spec.EDP, err)
	}
	securityGroupID, err := spec.EnvConfig.String("ec2_security_group_id")
	if err != nil {
		return fmt.Errorf("deploy %v: %w", spec.EDP, err)
	}
	instanceProfile, err := spec.EnvConfig.String("ec2_instance_profile_name")
	if err != nil {
		return fmt.Errorf("deploy %v: %w", spec.EDP, err)
	}
	migrationPass, err := spec.EnvConfig.String("db_migration_pass")
	if err != nil {
		return fmt.Errorf("deploy %v: %w", spec.EDP, err)
	}

	tasks.RequirementsInstall(job, "configuration")

	// The ami.yml fetched above names the image to run migrations on.
	tasks.LaunchInstance(pipeline, job, tasks.LaunchInstanceSpec{
		AWSAccessKeyID:       accessKey,
		AWSSecretAccessKey:   secretKey,
		VPCSubnetID:          subnetID,
		SecurityGroupID:      securityGroupID,
		InstanceProfileName:  instanceProfile,
		VariableOverridePath: "tubular/" + spec.AMIArtifact.FileName,
	})

	pipeline.EnsureEnvironmentVariables(map[string]string{
		"APPLICATION_USER":  spec.applicationUser(),
		"APPLICATION_NAME":  spec.EDP.Play,
		"APPLICATION_PATH":  "/edx/app/" + spec.EDP.Play,
		"DB_MIGRATION_USER": constants.DBMigrationUser,
	})
	pipeline.EnsureEncryptedEnvironmentVariables(map[string]string{
		"DB_MIGRATION_PASS": migrationPass,
	})

	if len(spec.SubApplications) == 0 {
		tasks.RunMigrations(job, "")
	} else {
		for _, sub := range spec.SubApplications {
			tasks.RunMigrations(job, sub)
		}
	}

	tasks.AMICleanup(job, gocd.RunIfAny)
	return nil
}

// RollbackASGs adds the job that rolls one environment-deployment back to
// its previous auto scaling groups using the recorded deployment info.
func RollbackASGs(stage *gocd.Stage, edp utils.EDP, deployInfo utils.ArtifactLocation) *gocd.Job {
	job := stage.EnsureJob(edp.EnvDeployment())

	tasks.RequirementsInstall(job, "tubular")
	job.AddTask(deployInfo.AsFetchTask("tubular"))
	job.AddTask(tasks.Bash("mkdir -p ../target", tasks.InDir("tubular")))

	outPath := constants.ArtifactPath + "/" + constants.RollbackAMIOutFilename
	job.EnsureArtifacts(gocd.BuildArtifact{Src: outPath})
	job.AddTask(gocd.ExecTask{
		Command: []string{
			"/usr/bin/python",
			"scripts/rollback_asg.py",
			"--config_file", deployInfo.FileName,
			"--out_file", "../" + outPath,
		},
		WorkingDir: "tubular",
	})
	return job
}

// RollbackMigrationsSpec wires a migration rollback job to the deploy job
// that produced the migration output.
type RollbackMigrationsSpec struct {
	EDP             utils.EDP
	ApplicationUser string // defaults to the play
	SubApplication  string
	MigrationInfo   utils.ArtifactLocation
	AMIArtifact     utils.ArtifactLocation
	EnvConfig       utils.Variables
}

// RollbackMigrations adds the job that replays the recorded migration
// plans in reverse on an instance launched from the deployed AMI.
func RollbackMigrations(pipeline *gocd.Pipeline, stage *gocd.Stage, spec RollbackMigrationsSpec) (*gocd.Job, error) {
	accessKey, err := spec.EnvConfig.String("aws_access_key_id")
	if err != nil {
		return nil, fmt.Errorf("rollback migrations for %v: %w", spec.EDP, err)
	}
	secretKey, err := spec.EnvConfig.String("aws_secret_access_key")
	if err != nil {
		return nil, fmt.Errorf("rollback migrations for %v: %w", spec.EDP, err)
	}
	subnetID, err := spec.EnvConfig.String("ec2_vpc_subnet_id")
	if err != nil {
		return nil, fmt.Errorf("rollback migrations for %v: %w", spec.EDP, err)
	}
	securityGroupID, err := spec.EnvConfig.String("ec2_security_group_id")
	if err != nil {
		return nil, fmt.Errorf("rollback migrations for %v: %w", spec.EDP, err)
	}
	instanceProfile, err := spec.EnvConfig.String("ec2_instance_profile_name")
	if err != nil {
		return nil, fmt.Errorf("rollback migrations for %v: %w", spec.EDP, err)
	}

	jobName := spec.EDP.EnvDeployment()
	if spec.SubApplication != "" {
		jobName += "_" + spec.SubApplication
	}
	job := stage.EnsureJob(jobName)

	tasks.RequirementsInstall(job, "tubular")
	tasks.RequirementsInstall(job, "configuration")
	tasks.TargetDirectory(job, constants.ArtifactPath)
	tasks.RetrieveArtifact(job, spec.AMIArtifact, "tubular")

	tasks.LaunchInstance(pipeline, job, tasks.LaunchInstanceSpec{
		AWSAccessKeyID:       accessKey,
		AWSSecretAccessKey:   secretKey,
		VPCSubnetID:          subnetID,
		SecurityGroupID:      securityGroupID,
		InstanceProfileName:  instanceProfile,
		VariableOverridePath: "tubular/" + spec.AMIArtifact.FileName,
	})

	tasks.RetrieveArtifact(job, spec.MigrationInfo, constants.ArtifactPath+"/rollback")
	tasks.MigrationRollback(job, spec.SubApplication)
	tasks.AMICleanup(job, gocd.RunIfAny)
	return job, nil
}

// E2ETests adds a job that triggers the jenkins test job configured for
// the EDP and polls for its result. EDPs whose configuration names no
// jenkins job opt out silently. Only a single jenkins server per pipeline
// is supported; every opted-in EDP must share the same user and job
// tokens.
func E2ETests(pipeline *gocd.Pipeline, stage *gocd.Stage, edp utils.EDP, envConfig utils.Variables) error {
	jobName := envConfig.StringOr("jenkins_job_name", "")
	jobToken := envConfig.StringOr("jenkins_job_token", "")
	if jobName == "" || jobToken == "" {
		return nil
	}

	jenkinsURL, err := envConfig.String("jenkins_url")
	if err != nil {
		return fmt.Errorf("e2e tests for %v: %w", edp, err)
	}
	userName, err := envConfig.String("jenkins_user_name")
	if err != nil {
		return fmt.Errorf("e2e tests for %v: %w", edp, err)
	}
	userToken, err := envConfig.String("jenkins_user_token")
	if err != nil {
		return fmt.Errorf("e2e tests for %v: %w", edp, err)
	}
	params, err := envConfig.StringMap("jenkins_params")
	if err != nil {
		return fmt.Errorf("e2e tests for %v: %w", edp, err)
	}

	pipeline.EnsureUnencryptedSecureEnvironmentVariables(map[string]string{
		"JENKINS_USER_TOKEN": userToken,
		"JENKINS_JOB_TOKEN":  jobToken,
	})

	job := stage.EnsureJob(edp.EnvDeployment())
	tasks.RequirementsInstall(job, "tubular")
	tasks.TriggerJenkinsBuild(job, tasks.JenkinsBuildSpec{
		URL:      jenkinsURL,
		UserName: userName,
		JobName:  jobName,
		Params:   params,
	})
	return nil
}
