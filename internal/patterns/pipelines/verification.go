package pipelines

import (
	"fmt"
	"strings"

	"github.com/savaki/gocd-pipelines/internal/constants"
	"github.com/savaki/gocd-pipelines/internal/gocd"
	"github.com/savaki/gocd-pipelines/internal/patterns/stages"
	"github.com/savaki/gocd-pipelines/internal/patterns/tasks"
	"github.com/savaki/gocd-pipelines/internal/utils"
)

// JenkinsVerification names one jenkins job the verification pipeline
// triggers before the release is waved through.
type JenkinsVerification struct {
	JobName        string // name of the GoCD job
	URL            string
	JenkinsJobName string
	Params         map[string]string
}

// ManualVerificationSpec describes a pipeline that pauses a release
// workflow until an operator signs off, optionally triggering jenkins
// verification jobs first.
type ManualVerificationSpec struct {
	GroupName    string
	PipelineName string

	Materials         []gocd.GitMaterial
	UpstreamPipelines []gocd.PipelineMaterial

	// All verifications run against a single jenkins server with a
	// shared pair of tokens.
	JenkinsUserName  string
	JenkinsUserToken string
	JenkinsJobToken  string
	Verifications    []JenkinsVerification
}

// ManualVerificationSpecFromVariables builds a ManualVerificationSpec from
// the merged variable set.
func ManualVerificationSpecFromVariables(vars utils.Variables) (ManualVerificationSpec, error) {
	var spec ManualVerificationSpec
	for _, field := range []struct {
		key  string
		dest *string
	}{
		{"pipeline_group", &spec.GroupName},
		{"pipeline_name", &spec.PipelineName},
		{"jenkins_user_name", &spec.JenkinsUserName},
		{"jenkins_user_token", &spec.JenkinsUserToken},
		{"jenkins_job_token", &spec.JenkinsJobToken},
	} {
		value, err := vars.String(field.key)
		if err != nil {
			return ManualVerificationSpec{}, fmt.Errorf("manual verification: %w", err)
		}
		*field.dest = value
	}

	gitMaterials, err := vars.Slice("materials")
	if err != nil {
		return ManualVerificationSpec{}, fmt.Errorf("manual verification: %w", err)
	}
	for _, m := range gitMaterials {
		url, err := m.String("url")
		if err != nil {
			return ManualVerificationSpec{}, fmt.Errorf("manual verification material: %w", err)
		}
		spec.Materials = append(spec.Materials, gocd.GitMaterial{
			URL:          url,
			Branch:       m.StringOr("branch", "master"),
			MaterialName: m.StringOr("material_name", ""),
			Polling:      m.Bool("polling"),
			Destination:  m.StringOr("destination_directory", ""),
		})
	}

	upstreams, err := vars.Slice("upstream_pipelines")
	if err != nil {
		return ManualVerificationSpec{}, fmt.Errorf("manual verification: %w", err)
	}
	for _, u := range upstreams {
		pipelineName, err := u.String("pipeline_name")
		if err != nil {
			return ManualVerificationSpec{}, fmt.Errorf("manual verification upstream: %w", err)
		}
		stageName, err := u.String("stage_name")
		if err != nil {
			return ManualVerificationSpec{}, fmt.Errorf("manual verification upstream: %w", err)
		}
		spec.UpstreamPipelines = append(spec.UpstreamPipelines, gocd.PipelineMaterial{
			PipelineName: pipelineName,
			StageName:    stageName,
			MaterialName: u.StringOr("material_name", ""),
		})
	}

	verifications, err := vars.Slice("jenkins_verifications")
	if err != nil {
		return ManualVerificationSpec{}, fmt.Errorf("manual verification: %w", err)
	}
	for _, v := range verifications {
		jobName, err := v.String("pipeline_job_name")
		if err != nil {
			return ManualVerificationSpec{}, fmt.Errorf("jenkins verification: %w", err)
		}
		url, err := v.String("url")
		if err != nil {
			return ManualVerificationSpec{}, fmt.Errorf("jenkins verification: %w", err)
		}
		jenkinsJob, err := v.String("job_name")
		if err != nil {
			return ManualVerificationSpec{}, fmt.Errorf("jenkins verification: %w", err)
		}

		verification := JenkinsVerification{
			JobName:        jobName,
			URL:            url,
			JenkinsJobName: jenkinsJob,
		}
		// A verification's parameter comes as one "NAME value" string.
		if param := v.StringOr("param", ""); param != "" {
			name, value, _ := strings.Cut(param, " ")
			verification.Params = map[string]string{name: value}
		}
		spec.Verifications = append(spec.Verifications, verification)
	}

	return spec, nil
}

// ManualVerificationPipeline builds a pipeline that holds a release
// workflow for sign-off. The armed first stage triggers automatically and
// pins the upstream materials; the jenkins verification and final sign-off
// stages behind it wait for an operator, so downstream pipelines keep
// running against the pinned revisions once approved.
func ManualVerificationPipeline(configurator *gocd.Configurator, spec ManualVerificationSpec) *gocd.Pipeline {
	group := configurator.EnsurePipelineGroup(spec.GroupName)
	pipeline := group.EnsureReplacementOfPipeline(spec.PipelineName)

	for _, m := range spec.Materials {
		pipeline.EnsureMaterial(m)
	}
	for _, u := range spec.UpstreamPipelines {
		pipeline.EnsureMaterial(u)
	}

	stages.Armed(pipeline, constants.InitialVerificationStage)

	pipeline.EnsureUnencryptedSecureEnvironmentVariables(map[string]string{
		"JENKINS_USER_TOKEN": spec.JenkinsUserToken,
		"JENKINS_JOB_TOKEN":  spec.JenkinsJobToken,
	})

	jenkinsStage := pipeline.EnsureStage(constants.JenkinsVerificationStage)
	jenkinsStage.SetHasManualApproval()
	for _, verification := range spec.Verifications {
		job := jenkinsStage.EnsureJob(verification.JobName)
		tasks.PackageInstall(job, "tubular")
		tasks.TriggerJenkinsBuild(job, tasks.JenkinsBuildSpec{
			URL:      verification.URL,
			UserName: spec.JenkinsUserName,
			JobName:  verification.JenkinsJobName,
			Params:   verification.Params,
		})
	}

	signOffStage := pipeline.EnsureStage(constants.ManualVerificationStage)
	signOffStage.SetHasManualApproval()
	signOffJob := signOffStage.EnsureJob(constants.ManualVerificationJob)
	signOffJob.AddTask(tasks.Bash(
		"echo Manual Verification run number $GO_PIPELINE_COUNTER completed by $GO_TRIGGER_USER"))

	return pipeline
}
