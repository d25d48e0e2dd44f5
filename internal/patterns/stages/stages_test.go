package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savaki/gocd-pipelines/internal/constants"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/patterns/tasks"
	"github.com/savaki/gocd-pipelines/internal/utils"
)

func findVar(p *gocd.Pipeline, name string) *gocd.EnvVar {
	for i := range p.EnvVars {
		if p.EnvVars[i].Name == name {
			return &p.EnvVars[i]
		}
	}
	return nil
}

func lastExec(t *testing.T, job *gocd.Job) gocd.ExecTask {
	t.Helper()
	require.NotEmpty(t, job.Tasks)
	task, ok := job.Tasks[len(job.Tasks)-1].(gocd.ExecTask)
	require.True(t, ok, "last task is not an exec task")
	return task
}

func TestLaunchInstance(t *testing.T) {
	pipeline := &gocd.Pipeline{Name: "test"}

	stage := LaunchInstance(pipeline, tasks.LaunchInstanceSpec{
		AWSAccessKeyID:     "key",
		AWSSecretAccessKey: "secret",
		VPCSubnetID:        "subnet-1",
		SecurityGroupID:    "sg-1",
	}, false)

	assert.Equal(t, constants.LaunchInstanceStage, stage.Name)
	assert.False(t, stage.ManualApproval)

	require.Len(t, stage.Jobs, 1)
	job := stage.Jobs[0]
	assert.ElementsMatch(t, []gocd.BuildArtifact{
		{Src: "target/key.pem"},
		{Src: "target/ansible_inventory"},
		{Src: "target/launch_info.yml"},
	}, job.Artifacts)

	// Credentials ride on the pipeline as encrypted variables.
	accessKey := findVar(pipeline, "AWS_ACCESS_KEY_ID")
	require.NotNil(t, accessKey)
	assert.True(t, accessKey.Secure)

	subnet := findVar(pipeline, "EC2_VPC_SUBNET_ID")
	require.NotNil(t, subnet)
	assert.Equal(t, "subnet-1", subnet.Value)
}

func TestRunPlay(t *testing.T) {
	pipeline := &gocd.Pipeline{Name: "test"}

	stage := RunPlay(pipeline, tasks.RunAppPlaybookSpec{
		Playbook: "playbooks/edx-east/ecommerce.yml",
		EDP:      utils.EDP{Environment: "stage", Deployment: "edx", Play: "ecommerce"},
	}, false)

	assert.Equal(t, constants.RunPlayStage, stage.Name)

	// The launch artifacts are fetched before the play runs.
	fetched := []string{}
	for _, task := range stage.Jobs[0].Tasks {
		if fetch, ok := task.(gocd.FetchArtifactTask); ok {
			fetched = append(fetched, fetch.Src)
			assert.Equal(t, constants.LaunchInstanceStage, fetch.Stage)
		}
	}
	assert.ElementsMatch(t, []string{"key.pem", "launch_info.yml", "ansible_inventory"}, fetched)
}

func TestCreateAMIFromInstance(t *testing.T) {
	pipeline := &gocd.Pipeline{Name: "test"}

	stage := CreateAMIFromInstance(pipeline, tasks.CreateAMISpec{
		EDP:     utils.EDP{Environment: "stage", Deployment: "edx", Play: "ecommerce"},
		AppRepo: "https://github.com/edx/ecommerce.git",
	}, false)

	assert.Equal(t, constants.BuildAMIStage, stage.Name)
	assert.Contains(t, stage.Jobs[0].Artifacts, gocd.BuildArtifact{Src: "target/ami.yml"})

	play := findVar(pipeline, "PLAY")
	require.NotNil(t, play)
	assert.Equal(t, "ecommerce", play.Value)
}

func TestDeployAMI(t *testing.T) {
	t.Run("deploys the AMI named by an upstream artifact", func(t *testing.T) {
		pipeline := &gocd.Pipeline{Name: "test"}

		stage := DeployAMI(pipeline, DeployAMISpec{
			UpstreamArtifact: &utils.ArtifactLocation{
				Pipeline: "build",
				Stage:    constants.BuildAMIStage,
				Job:      constants.BuildAMIJob,
				FileName: constants.BuildAMIOutFilename,
			},
		})

		command := lastExec(t, stage.Jobs[0]).Command
		assert.Contains(t, command, "--config-file")
		assert.Contains(t, command, constants.BuildAMIOutFilename)
		assert.Nil(t, findVar(pipeline, "AMI_ID"))
	})

	t.Run("falls back to the AMI_ID variable", func(t *testing.T) {
		pipeline := &gocd.Pipeline{Name: "test"}

		stage := DeployAMI(pipeline, DeployAMISpec{ManualApproval: true})

		assert.True(t, stage.ManualApproval)
		require.NotNil(t, findVar(pipeline, "AMI_ID"))
		assert.Contains(t, lastExec(t, stage.Jobs[0]).Command, "--ami_id")
	})

	t.Run("always records the deployment", func(t *testing.T) {
		pipeline := &gocd.Pipeline{Name: "test"}

		stage := DeployAMI(pipeline, DeployAMISpec{})

		assert.Contains(t, stage.Jobs[0].Artifacts,
			gocd.BuildArtifact{Src: "target/" + constants.DeployAMIOutFilename})
	})
}

func TestEDPValidation(t *testing.T) {
	pipeline := &gocd.Pipeline{Name: "test"}

	stage := EDPValidation(pipeline, EDPValidationSpec{
		EDP:          utils.EDP{Environment: "prod", Deployment: "edx", Play: "ecommerce"},
		ChatChannels: "release-pipeline",
	}, false)

	environment := findVar(pipeline, "AMI_ENVIRONMENT")
	require.NotNil(t, environment)
	assert.Equal(t, "prod", environment.Value)

	// The chat notification only fires when validation fails.
	notify := lastExec(t, stage.Jobs[0])
	assert.Equal(t, gocd.RunIfFailed, notify.RunIf)
	assert.Contains(t, notify.Command[2], "submit_hipchat_msg.py")
}

func TestTerminateInstance(t *testing.T) {
	pipeline := &gocd.Pipeline{Name: "test"}
	launchInfo := utils.ArtifactLocation{
		Pipeline: "test",
		Stage:    constants.LaunchInstanceStage,
		Job:      constants.LaunchInstanceJob,
		FileName: constants.LaunchInstanceFilename,
	}

	stage := TerminateInstance(pipeline, launchInfo, "", false)

	assert.Equal(t, constants.TerminateInstanceStage, stage.Name)

	// Cleanup runs whether the pipeline passed or failed.
	assert.Equal(t, gocd.RunIfAny, lastExec(t, stage.Jobs[0]).RunIf)
}

func TestRollbackASGs(t *testing.T) {
	pipeline := &gocd.Pipeline{Name: "test"}
	deployInfo := utils.ArtifactLocation{
		Pipeline: "test",
		Stage:    constants.DeployAMIStage,
		Job:      constants.DeployAMIJob,
		FileName: constants.DeployAMIOutFilename,
	}

	stage := RollbackASGs(pipeline, AsgardSpec{APIEndpoints: "https://asgard.example.com"}, deployInfo)

	// Rollback is a human decision, no input flag can automate it.
	assert.True(t, stage.ManualApproval)

	job := stage.Jobs[0]
	assert.Contains(t, job.Artifacts,
		gocd.BuildArtifact{Src: "target/" + constants.RollbackAMIOutFilename})
	assert.Contains(t, lastExec(t, job).Command, "scripts/rollback_asg.py")

	endpoints := findVar(pipeline, "ASGARD_API_ENDPOINTS")
	require.NotNil(t, endpoints)
	assert.Equal(t, "https://asgard.example.com", endpoints.Value)
}

func TestRunMigrations(t *testing.T) {
	location := func(file string, dir bool) utils.ArtifactLocation {
		return utils.ArtifactLocation{
			Pipeline: "test",
			Stage:    constants.LaunchInstanceStage,
			Job:      constants.LaunchInstanceJob,
			FileName: file,
			IsDir:    dir,
		}
	}
	spec := RunMigrationsSpec{
		DBMigrationPass:     "secret",
		InventoryLocation:   location(constants.AnsibleInventory, false),
		InstanceKeyLocation: location(constants.KeyPEMFilename, false),
		LaunchInfoLocation:  location(constants.LaunchInstanceFilename, false),
		ApplicationUser:     "edxapp",
		ApplicationName:     "edxapp",
		ApplicationPath:     "/edx/app/edxapp",
	}

	t.Run("without a sub-application", func(t *testing.T) {
		pipeline := &gocd.Pipeline{Name: "test"}
		stage := RunMigrations(pipeline, spec)
		assert.Equal(t, constants.RunMigrationsStage, stage.Name)

		pass := findVar(pipeline, "DB_MIGRATION_PASS")
		require.NotNil(t, pass)
		assert.True(t, pass.Secure)
	})

	t.Run("sub-applications get their own stage", func(t *testing.T) {
		pipeline := &gocd.Pipeline{Name: "test"}
		withSub := spec
		withSub.SubApplication = "cms"
		stage := RunMigrations(pipeline, withSub)
		assert.Equal(t, constants.RunMigrationsStage+"_cms", stage.Name)
		assert.Contains(t, lastExec(t, stage.Jobs[0]).Command[2], "SUB_APPLICATION_NAME=cms")
	})
}

func TestArmed(t *testing.T) {
	pipeline := &gocd.Pipeline{Name: "test"}

	stage := Armed(pipeline, constants.ArmedStage)

	assert.False(t, stage.ManualApproval)
	require.Len(t, stage.Jobs, 1)
	assert.Contains(t, stage.Jobs[0].Tasks[0].(gocd.ExecTask).Command[2], "armed")
}

func TestASGCleanup(t *testing.T) {
	pipeline := &gocd.Pipeline{Name: "test"}

	stage := ASGCleanup(pipeline, AsgardSpec{}, false)

	assert.Contains(t, lastExec(t, stage.Jobs[0]).Command, "scripts/cleanup-asgs.py")
}

func TestJanitorInstances(t *testing.T) {
	pipeline := &gocd.Pipeline{Name: "test"}

	stage := JanitorInstances(pipeline, JanitorSpec{
		AWSAccessKeyID:     "AKIA_TEST",
		AWSSecretAccessKey: "secret",
		NameMatchPattern:   "gocd automation run*",
		MaxRunHours:        24,
		SkipIfTag:          "do_not_delete",
	})

	assert.Equal(t, constants.InstanceJanitorStage, stage.Name)
	require.Len(t, stage.Jobs, 1)
	assert.Equal(t, constants.InstanceJanitorJob, stage.Jobs[0].Name)

	command := lastExec(t, stage.Jobs[0]).Command
	assert.Contains(t, command, "scripts/cleanup_instances.py")
	assert.Contains(t, command, "gocd automation run*")
	assert.Contains(t, command, "do_not_delete")

	key := findVar(pipeline, "AWS_ACCESS_KEY_ID")
	require.NotNil(t, key)
	assert.True(t, key.Secure)
}
