// Package constants holds the stage, job, pipeline, and file names shared
// by the pipeline patterns. Keeping them in one place keeps generated
// configuration stable across installer scripts that reference each other's
// stages and artifacts.
package constants

// Standard stage and job names.
const (
	LaunchInstanceStage = "launch_instance"
	LaunchInstanceJob   = "launch_instance_job"

	RunPlayStage = "run_play"
	RunPlayJob   = "run_play_job"

	BuildAMIStage = "build_ami"
	BuildAMIJob   = "build_ami_job"

	DeployAMIStage = "deploy_ami"
	DeployAMIJob   = "deploy_ami_job"

	RunMigrationsStage = "apply_migrations"
	RunMigrationsJob   = "apply_migrations_job"

	TerminateInstanceStage = "cleanup_ami_Instance"
	TerminateInstanceJob   = "cleanup_ami_instance_job"

	RollbackASGsStage = "rollback_asgs"
	RollbackASGsJob   = "rollback_asgs_job"

	RollbackMigrationsStage = "rollback_migrations"

	ArmedStage = "armed_stage"
	ArmedJob   = "armed_job"

	BaseAMISelectionStage = "select_base_ami"
	BaseAMISelectionJob   = "select_base_ami_job"

	E2ETestsStage = "e2e_tests"

	JenkinsVerificationStage = "jenkins_verification"

	InitialVerificationStage = "initial_verification"
	InitialVerificationJob   = "initial_verification_job"

	ManualVerificationStage = "manual_verification"
	ManualVerificationJob   = "manual_verification_job"

	InstanceJanitorStage = "janitor_instances"
	InstanceJanitorJob   = "janitor_instances_job"
)

// Artifact paths and filenames exchanged between stages.
const (
	ArtifactPath = "target"

	BuildAMIOutFilename    = "ami.yml"
	DeployAMIOutFilename   = "ami_deploy_info.yml"
	RollbackAMIOutFilename = "rollback_info.yml"
	LaunchInstanceFilename = "launch_info.yml"
	KeyPEMFilename         = "key.pem"
	AnsibleInventory       = "ansible_inventory"
	BaseAMIOverride        = "ami_override.yml"
	MigrationOutputDir     = "migrations"

	DBMigrationUser = "migrate"
)

// Repository checkout layout.
const (
	PublicConfigurationRepoURL = "https://github.com/edx/configuration.git"
	PublicConfigurationDir     = "configuration"
	PrivateConfigurationDir    = "edx-secure"
	InternalConfigurationDir   = "edx-internal"

	AnsibleContinuousDeliveryConfig = "playbooks/continuous_delivery/ansible.cfg"

	ConfigurationSecureVersion   = "$GO_REVISION_CONFIGURATION_SECURE"
	ConfigurationInternalVersion = "$GO_REVISION_CONFIGURATION_INTERNAL"
)

// EC2 defaults for AMI build instances.
const (
	EC2Region                = "us-east-1"
	EC2InstanceType          = "t2.large"
	EC2LaunchInstanceTimeout = "300"
	EC2EBSVolumeSize         = "50"
)

// Drupal marketing-site names.
const (
	DrupalPipelineGroup     = "E-Commerce"
	DeployMarketingPipeline = "deploy-marketing-site"

	FetchTagStage = "fetch_current_tag_names"
	FetchTagJob   = "fetch_current_tag_names_job"

	PushToAcquiaStage = "push_to_acquia"
	PushToAcquiaJob   = "push_to_acquia_job"

	BackupStageDatabaseStage = "backup_stage_database"
	BackupStageDatabaseJob   = "backup_stage_database_job"

	ClearStageCachesStage = "clear_stage_caches"
	ClearStageCachesJob   = "clear_stage_caches_job"

	DeployStageStage = "deploy_to_stage"
	DeployStageJob   = "deploy_to_stage_job"

	BackupProdDatabaseStage = "backup_prod_database"
	BackupProdDatabaseJob   = "backup_prod_database_job"

	ClearProdCachesStage = "clear_prod_caches"
	ClearProdCachesJob   = "clear_prod_caches_job"

	DeployProdStage = "deploy_to_prod"
	DeployProdJob   = "deploy_to_prod_job"

	RollbackStage = "rollback_stage"
	RollbackJob   = "rollback_job"

	NewTagName   = "new_tag_name"
	StageTagName = "test_tag_name"
	ProdTagName  = "prod_tag_name"

	StageEnv = "test"
	ProdEnv  = "prod"
)
