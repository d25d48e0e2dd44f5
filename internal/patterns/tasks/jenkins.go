package tasks

import (
	"fmt"
	"sort"

	"github.com/savaki/gocd-pipelines/internal/gocd"
)

// JenkinsBuildSpec names a jenkins job to trigger and poll. Stages using
// it must carry JENKINS_USER_TOKEN and JENKINS_JOB_TOKEN.
type JenkinsBuildSpec struct {
	URL      string
	UserName string
	JobName  string
	Params   map[string]string
	Timeout  int // seconds, defaults to 30 minutes
}

// TriggerJenkinsBuild triggers a jenkins build and waits for its result.
func TriggerJenkinsBuild(job *gocd.Job, spec JenkinsBuildSpec) gocd.Task {
	timeout := spec.Timeout
	if timeout == 0 {
		timeout = 30 * 60
	}

	args := []string{
		"--url", spec.URL,
		"--user_name", spec.UserName,
		"--job", spec.JobName,
		`--cause "Triggered by GoCD Pipeline ${GO_PIPELINE_NAME} build ${GO_PIPELINE_LABEL}"`,
		"--timeout", fmt.Sprintf("%d", timeout),
	}

	names := make([]string, 0, len(spec.Params))
	for name := range spec.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		args = append(args, fmt.Sprintf("--param %s %s", name, spec.Params[name]))
	}

	return job.AddTask(Tubular(TubularSpec{
		Script: "jenkins_trigger_build.py",
		Args:   args,
	}))
}
