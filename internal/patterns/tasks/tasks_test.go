package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savaki/gocd-pipelines/internal/gocd"
)

func TestBash(t *testing.T) {
	t.Run("wraps the script in bash -c", func(t *testing.T) {
		task := Bash("echo hello")
		assert.Equal(t, []string{"/bin/bash", "-c", "echo hello"}, task.Command)
		assert.Empty(t, task.WorkingDir)
		assert.Empty(t, task.RunIf)
	})

	t.Run("folds multi-line scripts onto one line", func(t *testing.T) {
		task := Bash(`
			mkdir -p target &&
			echo done`)
		assert.Equal(t, "mkdir -p target && echo done", task.Command[2])
	})

	t.Run("applies options", func(t *testing.T) {
		task := Bash("true", InDir("tubular"), When(gocd.RunIfFailed))
		assert.Equal(t, "tubular", task.WorkingDir)
		assert.Equal(t, gocd.RunIfFailed, task.RunIf)
	})
}

func TestAnsible(t *testing.T) {
	t.Run("defaults to local mode in the configuration checkout", func(t *testing.T) {
		task := Ansible(AnsibleSpec{Playbook: "playbooks/test.yml"})

		assert.Equal(t, "configuration", task.WorkingDir)
		command := task.Command[2]
		assert.Contains(t, command, "ansible-playbook -vvv")
		assert.Contains(t, command, `-i "localhost," -c local`)
		assert.Contains(t, command, "playbooks/test.yml")
	})

	t.Run("uses the given inventory", func(t *testing.T) {
		task := Ansible(AnsibleSpec{
			Playbook:  "playbooks/test.yml",
			Inventory: "../target/ansible_inventory",
		})
		command := task.Command[2]
		assert.Contains(t, command, "-i ../target/ansible_inventory")
		assert.NotContains(t, command, "-c local")
	})

	t.Run("renders literal vars and variable files", func(t *testing.T) {
		task := Ansible(AnsibleSpec{
			Playbook: "playbooks/test.yml",
			Variables: []AnsibleVar{
				Var("play", "$PLAY"),
				VarFile("target/launch_info.yml"),
			},
		})
		command := task.Command[2]
		assert.Contains(t, command, "-e play=$PLAY")
		assert.Contains(t, command, "-e @../target/launch_info.yml")
	})

	t.Run("prepends prefix snippets", func(t *testing.T) {
		task := Ansible(AnsibleSpec{
			Playbook: "playbooks/test.yml",
			Prefix:   []string{"export ANSIBLE_HOST_KEY_CHECKING=False;"},
		})
		assert.Contains(t, task.Command[2], "export ANSIBLE_HOST_KEY_CHECKING=False; ansible-playbook")
	})
}

func TestTubular(t *testing.T) {
	task := Tubular(TubularSpec{
		Script: "scripts/asgard-deploy.py",
		Args:   []string{"--ami_id", "$AMI_ID"},
	})

	assert.Equal(t, "tubular", task.WorkingDir)
	assert.Equal(t, "scripts/asgard-deploy.py --ami_id $AMI_ID", task.Command[2])
}

func TestTargetDirectory(t *testing.T) {
	job := &gocd.Job{Name: "test"}

	TargetDirectory(job, "target")
	TargetDirectory(job, "target")

	// EnsureTask keeps the mkdir from piling up when several builders
	// prepare the same directory.
	require.Len(t, job.Tasks, 1)
	assert.Equal(t, "mkdir -p target", job.Tasks[0].(gocd.ExecTask).Command[2])
}

func TestRequirementsInstall(t *testing.T) {
	job := &gocd.Job{Name: "test"}

	RequirementsInstall(job, "tubular")

	require.Len(t, job.Tasks, 1)
	task := job.Tasks[0].(gocd.ExecTask)
	assert.Equal(t, "tubular", task.WorkingDir)
	assert.Equal(t, "sudo pip install -r requirements.txt", task.Command[2])
}

func TestTriggerJenkinsBuild(t *testing.T) {
	job := &gocd.Job{Name: "test"}

	TriggerJenkinsBuild(job, JenkinsBuildSpec{
		URL:      "https://jenkins.example.com",
		UserName: "gocd",
		JobName:  "nightly",
		Params:   map[string]string{"b": "2", "a": "1"},
	})

	require.Len(t, job.Tasks, 1)
	command := job.Tasks[0].(gocd.ExecTask).Command[2]
	assert.Contains(t, command, "jenkins_trigger_build.py")
	assert.Contains(t, command, "--url https://jenkins.example.com")
	assert.Contains(t, command, "--timeout 1800")
	// Params render in name order so repeated generation is stable.
	assert.Contains(t, command, "--param a 1 --param b 2")
}

func TestDeployDrupal(t *testing.T) {
	job := &gocd.Job{Name: "test"}

	DeployDrupal(job, "test", "new_tag_name.txt")

	require.Len(t, job.Tasks, 1)
	command := job.Tasks[0].(gocd.ExecTask).Command[2]
	assert.Contains(t, command, "drupal_deploy.py")
	assert.Contains(t, command, "--env test")
	assert.Contains(t, command, "--tag $(cat ../target/new_tag_name.txt)")
}

func TestBackupDrupalDatabase(t *testing.T) {
	job := &gocd.Job{Name: "test"}

	BackupDrupalDatabase(job, "prod")

	command := job.Tasks[0].(gocd.ExecTask).Command[2]
	assert.Contains(t, command, "drupal_backup_database.py")
	assert.Contains(t, command, "--env prod")
	assert.Contains(t, command, "--password $PRIVATE_ACQUIA_PASSWORD")
}
