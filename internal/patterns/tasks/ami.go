package tasks

import (
	"fmt"

	"github.com/savaki/gocd-pipelines/internal/constants"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/utils"
)

// RetrieveArtifact ensures the artifact directory exists and fetches the
// artifact into it.
func RetrieveArtifact(job *gocd.Job, location utils.ArtifactLocation, dest string) {
	TargetDirectory(job, dest)
	job.EnsureTask(location.AsFetchTask(dest))
}

// LaunchInstanceSpec carries the EC2 parameters for launching the instance
// an AMI is built from.
type LaunchInstanceSpec struct {
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	VPCSubnetID         string
	SecurityGroupID     string
	InstanceProfileName string
	BaseAMIID           string
	Region              string
	InstanceType        string
	Timeout             string
	EBSVolumeSize       string

	// VariableOverridePath points at an already-fetched YAML file of
	// launch overrides, typically the base AMI selection output.
	VariableOverridePath string
}

func (s *LaunchInstanceSpec) defaults() {
	if s.Region == "" {
		s.Region = constants.EC2Region
	}
	if s.InstanceType == "" {
		s.InstanceType = constants.EC2InstanceType
	}
	if s.Timeout == "" {
		s.Timeout = constants.EC2LaunchInstanceTimeout
	}
	if s.EBSVolumeSize == "" {
		s.EBSVolumeSize = constants.EC2EBSVolumeSize
	}
}

// LaunchInstance launches the EC2 instance used to bake an AMI. The play
// publishes key.pem, launch_info.yml, and ansible_inventory into the
// artifact directory.
func LaunchInstance(pipeline *gocd.Pipeline, job *gocd.Job, spec LaunchInstanceSpec) gocd.Task {
	spec.defaults()

	pipeline.EnsureEncryptedEnvironmentVariables(map[string]string{
		"AWS_ACCESS_KEY_ID":     spec.AWSAccessKeyID,
		"AWS_SECRET_ACCESS_KEY": spec.AWSSecretAccessKey,
	})
	pipeline.EnsureEnvironmentVariables(map[string]string{
		"EC2_VPC_SUBNET_ID":         spec.VPCSubnetID,
		"EC2_SECURITY_GROUP_ID":     spec.SecurityGroupID,
		"EC2_ASSIGN_PUBLIC_IP":      "no",
		"EC2_TIMEOUT":               spec.Timeout,
		"EC2_REGION":                spec.Region,
		"EBS_VOLUME_SIZE":           spec.EBSVolumeSize,
		"EC2_INSTANCE_TYPE":         spec.InstanceType,
		"EC2_INSTANCE_PROFILE_NAME": spec.InstanceProfileName,
		"NO_REBOOT":                 "no",
		"BASE_AMI_ID":               spec.BaseAMIID,
		"ANSIBLE_CONFIG":            constants.AnsibleContinuousDeliveryConfig,
	})

	job.EnsureArtifacts(
		gocd.BuildArtifact{Src: constants.ArtifactPath + "/" + constants.KeyPEMFilename},
		gocd.BuildArtifact{Src: constants.ArtifactPath + "/" + constants.AnsibleInventory},
		gocd.BuildArtifact{Src: constants.ArtifactPath + "/" + constants.LaunchInstanceFilename},
	)

	variables := []AnsibleVar{
		Var("artifact_path", fmt.Sprintf("`/bin/pwd`/../%s ", constants.ArtifactPath)),
		Var("base_ami_id", "$BASE_AMI_ID"),
		Var("ec2_vpc_subnet_id", "$EC2_VPC_SUBNET_ID"),
		Var("ec2_security_group_id", "$EC2_SECURITY_GROUP_ID"),
		Var("ec2_instance_type", "$EC2_INSTANCE_TYPE"),
		Var("ec2_instance_profile_name", "$EC2_INSTANCE_PROFILE_NAME"),
		Var("ebs_volume_size", "$EBS_VOLUME_SIZE"),
		Var("ec2_timeout", "900"),
	}
	if spec.VariableOverridePath != "" {
		variables = append(variables, VarFile(spec.VariableOverridePath))
	}

	return job.AddTask(Ansible(AnsibleSpec{
		Playbook:     "playbooks/continuous_delivery/launch_instance.yml",
		Variables:    variables,
		ExtraOptions: []string{"--module-path=playbooks/library"},
	}))
}

// CreateAMISpec carries the parameters for imaging a launched instance.
type CreateAMISpec struct {
	EDP                     utils.EDP
	AppRepo                 string
	ConfigurationRepo       string
	ConfigurationSecureRepo string
	AWSAccessKeyID          string
	AWSSecretAccessKey      string
	LaunchInfoPath          string
	CreationTimeout         string
	Wait                    string
	CacheID                 string

	// ExtraOverrides are additional ansible overrides, rendered in key
	// order so the generated task is stable.
	ExtraOverrides map[string]string
}

// CreateAMI images the launched instance and writes ami.yml describing
// the result.
func CreateAMI(pipeline *gocd.Pipeline, job *gocd.Job, spec CreateAMISpec) gocd.Task {
	if spec.ConfigurationRepo == "" {
		spec.ConfigurationRepo = constants.PublicConfigurationRepoURL
	}
	if spec.CreationTimeout == "" {
		spec.CreationTimeout = "3600"
	}
	if spec.Wait == "" {
		spec.Wait = "yes"
	}

	pipeline.EnsureEncryptedEnvironmentVariables(map[string]string{
		"AWS_ACCESS_KEY_ID":     spec.AWSAccessKeyID,
		"AWS_SECRET_ACCESS_KEY": spec.AWSSecretAccessKey,
	})
	pipeline.EnsureEnvironmentVariables(map[string]string{
		"PLAY":                      spec.EDP.Play,
		"DEPLOYMENT":                spec.EDP.Deployment,
		"EDX_ENVIRONMENT":           spec.EDP.Environment,
		"APP_REPO":                  spec.AppRepo,
		"CONFIGURATION_REPO":        spec.ConfigurationRepo,
		"CONFIGURATION_SECURE_REPO": spec.ConfigurationSecureRepo,
		"AMI_CREATION_TIMEOUT":      spec.CreationTimeout,
		"AMI_WAIT":                  spec.Wait,
		"CACHE_ID":                  spec.CacheID,
		"ARTIFACT_PATH":             constants.ArtifactPath,
		"ANSIBLE_CONFIG":            constants.AnsibleContinuousDeliveryConfig,
	})

	job.EnsureArtifacts(gocd.BuildArtifact{
		Src: constants.ArtifactPath + "/" + constants.BuildAMIOutFilename,
	})

	variables := []AnsibleVar{
		VarFile(spec.LaunchInfoPath),
		Var("play", "$PLAY"),
		Var("deployment", "$DEPLOYMENT"),
		Var("edx_environment", "$EDX_ENVIRONMENT"),
		Var("app_repo", "$APP_REPO"),
		Var("configuration_repo", "$CONFIGURATION_REPO"),
		Var("configuration_version", "$GO_REVISION_CONFIGURATION"),
		Var("configuration_secure_repo", "$CONFIGURATION_SECURE_REPO"),
		Var("cache_id", "$GO_PIPELINE_COUNTER"),
		Var("ec2_region", "$EC2_REGION"),
		Var("artifact_path", fmt.Sprintf("`/bin/pwd`/../%s", constants.ArtifactPath)),
		Var("ami_wait", "$AMI_WAIT"),
		Var("no_reboot", "$NO_REBOOT"),
		Var("extra_name_identifier", "$GO_PIPELINE_COUNTER"),
	}
	variables = append(variables, sortedVars(spec.ExtraOverrides)...)

	return job.AddTask(Ansible(AnsibleSpec{
		Playbook:     "playbooks/continuous_delivery/create_ami.yml",
		Variables:    variables,
		ExtraOptions: []string{"--module-path=playbooks/library"},
	}))
}

// AMICleanup terminates the instance launched by LaunchInstance.
func AMICleanup(job *gocd.Job, runif string) gocd.Task {
	return job.AddTask(Ansible(AnsibleSpec{
		Playbook: "playbooks/continuous_delivery/cleanup.yml",
		Variables: []AnsibleVar{
			VarFile(constants.ArtifactPath + "/" + constants.LaunchInstanceFilename),
			Var("ec2_region", "$EC2_REGION"),
		},
		ExtraOptions: []string{"--module-path=playbooks/library"},
		RunIf:        runif,
	}))
}

// RunMigrations applies database migrations over SSH against the launched
// instance and publishes their output.
func RunMigrations(job *gocd.Job, subApplication string) gocd.Task {
	job.EnsureArtifacts(gocd.BuildArtifact{
		Src: constants.ArtifactPath + "/" + constants.MigrationOutputDir,
	})

	variables := []AnsibleVar{
		Var("APPLICATION_PATH", "$APPLICATION_PATH"),
		Var("APPLICATION_NAME", "$APPLICATION_NAME"),
		Var("APPLICATION_USER", "$APPLICATION_USER"),
		Var("ARTIFACT_PATH", fmt.Sprintf("`/bin/pwd`/../%s/%s", constants.ArtifactPath, constants.MigrationOutputDir)),
		Var("DB_MIGRATION_USER", "$DB_MIGRATION_USER"),
		Var("DB_MIGRATION_PASS", "$DB_MIGRATION_PASS"),
	}
	if subApplication != "" {
		variables = append(variables, Var("SUB_APPLICATION_NAME", subApplication))
	}

	return job.AddTask(Ansible(AnsibleSpec{
		Playbook: "playbooks/continuous_delivery/run_migrations.yml",
		Prefix: []string{
			fmt.Sprintf("mkdir -p %s/%s;", constants.ArtifactPath, constants.MigrationOutputDir),
			"export ANSIBLE_HOST_KEY_CHECKING=False;",
			`export ANSIBLE_SSH_ARGS="-o ControlMaster=auto -o ControlPersist=30m";`,
			fmt.Sprintf("PRIVATE_KEY=`/bin/pwd`/../%s/%s;", constants.ArtifactPath, constants.KeyPEMFilename),
		},
		Inventory: fmt.Sprintf("../%s/%s ", constants.ArtifactPath, constants.AnsibleInventory),
		ExtraOptions: []string{
			"--private-key=$PRIVATE_KEY",
			"--user=ubuntu",
			"--module-path=playbooks/library",
		},
		Variables: variables,
	}))
}

// MigrationRollback replays the migration plans captured during deployment
// to roll the database back.
func MigrationRollback(job *gocd.Job, subApplication string) gocd.Task {
	migrationArtifactPath := fmt.Sprintf("%s/rollback/%s", constants.ArtifactPath, constants.MigrationOutputDir)
	TargetDirectory(job, migrationArtifactPath)
	job.EnsureArtifacts(gocd.BuildArtifact{Src: migrationArtifactPath})

	command := fmt.Sprintf(flatten(`
		for migration_input_file in ../%[2]s/*_migration_plan.yml do
		export ANSIBLE_HOST_KEY_CHECKING=False;
		export ANSIBLE_SSH_ARGS="-o ControlMaster=auto -o ControlPersist=30m";
		PRIVATE_KEY=`+"`/bin/pwd`"+`/../%[1]s/key.pem;
		ansible-playbook -vvvv -i ../%[1]s/ansible_inventory
		--private-key=$PRIVATE_KEY
		--module-path=playbooks/library
		--user=ubuntu
		-e APPLICATION_PATH=$APPLICATION_PATH
		-e APPLICATION_NAME=$APPLICATION_NAME
		-e APPLICATION_USER=$APPLICATION_USER
		-e ARTIFACT_PATH=`+"`/bin/pwd`"+`/../%[1]s/migrations
		-e DB_MIGRATION_USER=$DB_MIGRATION_USER
		-e DB_MIGRATION_PASS=$DB_MIGRATION_PASS
		-e ../%[1]s/${migration_input_file}`),
		constants.ArtifactPath, migrationArtifactPath,
	)
	if subApplication != "" {
		command += fmt.Sprintf(" -e SUB_APPLICATION_NAME=%s ", subApplication)
	}
	command += " playbooks/continuous_delivery/rollback_migrations.yml done || exit"

	return job.AddTask(gocd.ExecTask{
		Command:    []string{"/bin/bash", "-c", command},
		WorkingDir: constants.PublicConfigurationDir,
	})
}

// BaseAMISelectionSpec identifies which base AMI to build from: an
// explicit override, or the AMI currently active for the EDP.
type BaseAMISelectionSpec struct {
	EDP                utils.EDP
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	BaseAMIID          string
}

// BaseAMISelection writes ami_override.yml naming the base AMI for the
// build.
func BaseAMISelection(pipeline *gocd.Pipeline, job *gocd.Job, spec BaseAMISelectionSpec) gocd.Task {
	pipeline.EnsureEncryptedEnvironmentVariables(map[string]string{
		"AWS_ACCESS_KEY_ID":     spec.AWSAccessKeyID,
		"AWS_SECRET_ACCESS_KEY": spec.AWSSecretAccessKey,
	})

	override := "no"
	if spec.BaseAMIID != "" {
		override = "yes"
	}
	pipeline.EnsureEnvironmentVariables(map[string]string{
		"PLAY":                 spec.EDP.Play,
		"DEPLOYMENT":           spec.EDP.Deployment,
		"EDX_ENVIRONMENT":      spec.EDP.Environment,
		"BASE_AMI_ID":          spec.BaseAMIID,
		"BASE_AMI_ID_OVERRIDE": override,
	})

	overrideArtifact := constants.ArtifactPath + "/" + constants.BaseAMIOverride
	job.EnsureArtifacts(gocd.BuildArtifact{Src: overrideArtifact})

	return job.AddTask(Bash(fmt.Sprintf(`
		mkdir -p ../%[1]s;
		if [[ $BASE_AMI_ID_OVERRIDE != 'yes' ]];
		then echo "Finding base AMI ID from active ELB/ASG in EDP.";
		retrieve_base_ami.py
		--environment $EDX_ENVIRONMENT
		--deployment $DEPLOYMENT
		--play $PLAY
		--out_file ../%[2]s;
		elif [[ -n $BASE_AMI_ID ]];
		then echo "Using specified base AMI ID of '$BASE_AMI_ID'";
		retrieve_base_ami.py --override $BASE_AMI_ID --out_file ../%[2]s;
		else echo "Using environment base AMI ID";
		echo "{}" > ../%[2]s; fi;`,
		constants.ArtifactPath, overrideArtifact,
	), InDir("tubular")))
}

// RunAppPlaybookSpec describes running a service's play against the
// launched instance.
type RunAppPlaybookSpec struct {
	Playbook         string
	EDP              utils.EDP
	AppRepo          string
	PrivateGithubKey string

	// ConfigurationSecureDir and ConfigurationInternalDir default to the
	// standard secure/internal checkout locations.
	ConfigurationSecureDir   string
	ConfigurationInternalDir string

	ExtraOverrides map[string]string
}

// RunAppPlaybook runs the service play over SSH, layering the deployment's
// internal and secure variable files.
func RunAppPlaybook(pipeline *gocd.Pipeline, job *gocd.Job, spec RunAppPlaybookSpec) gocd.Task {
	secureDir := spec.ConfigurationSecureDir
	if secureDir == "" {
		secureDir = constants.PrivateConfigurationDir
	}
	internalDir := spec.ConfigurationInternalDir
	if internalDir == "" {
		internalDir = constants.InternalConfigurationDir
	}

	pipeline.EnsureEncryptedEnvironmentVariables(map[string]string{
		"PRIVATE_GITHUB_KEY": spec.PrivateGithubKey,
	})
	pipeline.EnsureEnvironmentVariables(map[string]string{
		"PLAY":            spec.EDP.Play,
		"DEPLOYMENT":      spec.EDP.Deployment,
		"EDX_ENVIRONMENT": spec.EDP.Environment,
		"APP_REPO":        spec.AppRepo,
		"ARTIFACT_PATH":   constants.ArtifactPath + "/",
		"ANSIBLE_CONFIG":  constants.AnsibleContinuousDeliveryConfig,
	})

	variables := []AnsibleVar{
		VarFile(constants.ArtifactPath + "/" + constants.LaunchInstanceFilename),
		VarFile(internalDir + "/ansible/vars/${DEPLOYMENT}.yml"),
		VarFile(internalDir + "/ansible/vars/${EDX_ENVIRONMENT}-${DEPLOYMENT}.yml"),
		VarFile(secureDir + "/ansible/vars/${DEPLOYMENT}.yml"),
		VarFile(secureDir + "/ansible/vars/${EDX_ENVIRONMENT}-${DEPLOYMENT}.yml"),
	}
	variables = append(variables, sortedVars(spec.ExtraOverrides)...)

	return job.AddTask(Ansible(AnsibleSpec{
		Playbook: spec.Playbook,
		Prefix: []string{
			fmt.Sprintf("chmod 600 ../%s/%s;", constants.ArtifactPath, constants.KeyPEMFilename),
			"export ANSIBLE_HOST_KEY_CHECKING=False;",
			`export ANSIBLE_SSH_ARGS="-o ControlMaster=auto -o ControlPersist=30m";`,
			fmt.Sprintf("PRIVATE_KEY=$(/bin/pwd)/../%s/%s;", constants.ArtifactPath, constants.KeyPEMFilename),
		},
		Inventory: fmt.Sprintf("../%s/%s ", constants.ArtifactPath, constants.AnsibleInventory),
		ExtraOptions: []string{
			"--private-key=$PRIVATE_KEY",
			"--user=ubuntu",
			"--module-path=playbooks/library",
		},
		Variables: variables,
	}))
}
