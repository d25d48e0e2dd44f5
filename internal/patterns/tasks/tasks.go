// Package tasks builds the individual GoCD tasks the stage and job
// patterns compose. Builders ensure the pipeline environment variables
// their scripts read, expect upstream artifacts to already be fetched, and
// publish outputs at well known paths under the target directory.
package tasks

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/savaki/gocd-pipelines/internal/constants"
	"github.com/savaki/gocd-pipelines/internal/gocd"
)

var foldNewlines = regexp.MustCompile(`\s*\n\s*`)

// flatten collapses a multi-line script into the single line GoCD stores
// in the task's command argument.
func flatten(script string) string {
	return strings.TrimSpace(foldNewlines.ReplaceAllString(script, " "))
}

// Option adjusts a generated exec task.
type Option func(*gocd.ExecTask)

// InDir sets the task's working directory.
func InDir(dir string) Option {
	return func(t *gocd.ExecTask) {
		t.WorkingDir = dir
	}
}

// When sets the task's run-if condition.
func When(runif string) Option {
	return func(t *gocd.ExecTask) {
		t.RunIf = runif
	}
}

// Bash wraps a shell snippet in /bin/bash -c. Multi-line scripts are
// folded onto one line.
func Bash(script string, opts ...Option) gocd.ExecTask {
	task := gocd.ExecTask{
		Command: []string{"/bin/bash", "-c", flatten(script)},
	}
	for _, opt := range opts {
		opt(&task)
	}
	return task
}

// AnsibleVar is one -e override passed to ansible-playbook. A var with an
// empty name references a variable file instead of a literal value.
type AnsibleVar struct {
	Name  string
	Value string
}

// Var is a literal name=value ansible override.
func Var(name, value string) AnsibleVar {
	return AnsibleVar{Name: name, Value: value}
}

// VarFile references a YAML variable file relative to the checkout root.
func VarFile(path string) AnsibleVar {
	return AnsibleVar{Value: path}
}

// AnsibleSpec describes an ansible-playbook invocation.
type AnsibleSpec struct {
	Playbook     string
	Variables    []AnsibleVar
	Inventory    string   // empty runs ansible in local mode
	Prefix       []string // shell snippets prepended to the command
	ExtraOptions []string
	WorkingDir   string // defaults to the configuration checkout
	Verbosity    int    // -v count, defaults to 3
	RunIf        string
}

// Ansible assembles an ansible-playbook shell command.
func Ansible(spec AnsibleSpec) gocd.ExecTask {
	workingDir := spec.WorkingDir
	if workingDir == "" {
		workingDir = constants.PublicConfigurationDir
	}
	verbosity := spec.Verbosity
	if verbosity == 0 {
		verbosity = 3
	}

	command := append([]string{}, spec.Prefix...)
	command = append(command, "ansible-playbook")
	if verbosity > 0 {
		command = append(command, "-"+strings.Repeat("v", verbosity))
	}
	if spec.Inventory == "" {
		command = append(command, "-i", `"localhost,"`, "-c", "local")
	} else {
		command = append(command, "-i", spec.Inventory)
	}
	command = append(command, spec.ExtraOptions...)
	for _, v := range spec.Variables {
		if v.Name == "" {
			command = append(command, fmt.Sprintf(" -e @../%s ", v.Value))
		} else {
			command = append(command, fmt.Sprintf("-e %s=%s", v.Name, v.Value))
		}
	}
	command = append(command, spec.Playbook)

	return gocd.ExecTask{
		Command:    []string{"/bin/bash", "-c", strings.Join(command, " ")},
		WorkingDir: workingDir,
		RunIf:      spec.RunIf,
	}
}

// TubularSpec describes a run of one of the deployment scripts in the
// tubular checkout.
type TubularSpec struct {
	Script     string
	Args       []string
	Prefix     []string
	WorkingDir string // defaults to the tubular checkout
	RunIf      string
}

// Tubular runs a tubular script with whitespace-joined arguments.
func Tubular(spec TubularSpec) gocd.ExecTask {
	workingDir := spec.WorkingDir
	if workingDir == "" {
		workingDir = "tubular"
	}

	command := append([]string{}, spec.Prefix...)
	command = append(command, spec.Script)
	command = append(command, spec.Args...)

	return gocd.ExecTask{
		Command:    []string{"/bin/bash", "-c", strings.Join(command, " ")},
		WorkingDir: workingDir,
		RunIf:      spec.RunIf,
	}
}

// RequirementsInstall installs a checkout's requirements.txt.
func RequirementsInstall(job *gocd.Job, workingDir string) gocd.Task {
	return job.AddTask(Bash("sudo pip install -r requirements.txt", InDir(workingDir)))
}

// PackageInstall pip-installs a checkout as a package.
func PackageInstall(job *gocd.Job, workingDir string) gocd.Task {
	return job.AddTask(Bash("sudo pip3 install --upgrade .", InDir(workingDir)))
}

// TargetDirectory ensures the artifact directory exists before tasks write
// into it.
func TargetDirectory(job *gocd.Job, dir string) gocd.Task {
	return job.EnsureTask(Bash(fmt.Sprintf("mkdir -p %s", dir)))
}

// sortedVars renders a map as deterministic name=value ansible overrides.
func sortedVars(overrides map[string]string) []AnsibleVar {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vars := make([]AnsibleVar, 0, len(keys))
	for _, k := range keys {
		vars = append(vars, Var(k, overrides[k]))
	}
	return vars
}
