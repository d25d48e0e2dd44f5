// Package gocd models the slice of a GoCD server configuration that this
// tool manages: pipeline groups, pipelines, stages, jobs, materials, and
// tasks. The model is an explicit tree built through "ensure" operations
// that create or replace children by name, so generating the same
// configuration twice yields the same tree.
package gocd

// PipelineGroup is a named group of pipelines with access control roles.
type PipelineGroup struct {
	Name      string
	Admins    []string
	Operators []string
	Viewers   []string
	Pipelines []*Pipeline
}

// EnsureReplacementOfPipeline removes any pipeline with the given name and
// adds a fresh, empty one in its place.
func (g *PipelineGroup) EnsureReplacementOfPipeline(name string) *Pipeline {
	for i, p := range g.Pipelines {
		if p.Name == name {
			g.Pipelines = append(g.Pipelines[:i], g.Pipelines[i+1:]...)
			break
		}
	}
	pipeline := &Pipeline{Name: name}
	g.Pipelines = append(g.Pipelines, pipeline)
	return pipeline
}

// EnsurePipeline returns the named pipeline, creating it if needed.
func (g *PipelineGroup) EnsurePipeline(name string) *Pipeline {
	for _, p := range g.Pipelines {
		if p.Name == name {
			return p
		}
	}
	pipeline := &Pipeline{Name: name}
	g.Pipelines = append(g.Pipelines, pipeline)
	return pipeline
}

// EnvVar is a single pipeline-level environment variable. Secure variables
// carry their value to the server over the encrypted-variable element;
// Encrypted marks values that are already GoCD-encrypted ciphertext.
type EnvVar struct {
	Name      string
	Value     string
	Secure    bool
	Encrypted bool
}

// Pipeline is a single GoCD pipeline: materials, environment variables,
// and an ordered list of stages.
type Pipeline struct {
	Name          string
	LabelTemplate string
	Timer         string
	Materials     []Material
	EnvVars       []EnvVar
	Stages        []*Stage
}

// SetLabelTemplate sets the template used to label runs of this pipeline.
func (p *Pipeline) SetLabelTemplate(template string) *Pipeline {
	p.LabelTemplate = template
	return p
}

// SetTimer schedules the pipeline on a cron expression.
func (p *Pipeline) SetTimer(cron string) *Pipeline {
	p.Timer = cron
	return p
}

// EnsureMaterial adds the material unless an equivalent one is present.
func (p *Pipeline) EnsureMaterial(m Material) *Pipeline {
	for _, existing := range p.Materials {
		if existing.materialKey() == m.materialKey() {
			return p
		}
	}
	p.Materials = append(p.Materials, m)
	return p
}

// EnsureEnvironmentVariables ensures plain environment variables on the
// pipeline, replacing values of same-named variables.
func (p *Pipeline) EnsureEnvironmentVariables(vars map[string]string) *Pipeline {
	p.ensureVars(vars, false, false)
	return p
}

// EnsureEncryptedEnvironmentVariables ensures variables whose values are
// GoCD-encrypted ciphertext.
func (p *Pipeline) EnsureEncryptedEnvironmentVariables(vars map[string]string) *Pipeline {
	p.ensureVars(vars, true, true)
	return p
}

// EnsureUnencryptedSecureEnvironmentVariables ensures secure variables
// supplied as plaintext. The server encrypts them at rest; they are masked
// in console output.
func (p *Pipeline) EnsureUnencryptedSecureEnvironmentVariables(vars map[string]string) *Pipeline {
	p.ensureVars(vars, true, false)
	return p
}

func (p *Pipeline) ensureVars(vars map[string]string, secure, encrypted bool) {
	for _, name := range sortedKeys(vars) {
		p.setVar(EnvVar{Name: name, Value: vars[name], Secure: secure, Encrypted: encrypted})
	}
}

func (p *Pipeline) setVar(v EnvVar) {
	for i := range p.EnvVars {
		if p.EnvVars[i].Name == v.Name {
			p.EnvVars[i] = v
			return
		}
	}
	p.EnvVars = append(p.EnvVars, v)
}

// EnsureStage returns the named stage, creating it at the end of the
// pipeline if it does not exist yet.
func (p *Pipeline) EnsureStage(name string) *Stage {
	for _, s := range p.Stages {
		if s.Name == name {
			return s
		}
	}
	stage := &Stage{Name: name}
	p.Stages = append(p.Stages, stage)
	return stage
}

// Stage is a named phase of a pipeline holding one or more jobs.
type Stage struct {
	Name           string
	ManualApproval bool
	Jobs           []*Job
}

// SetHasManualApproval gates the stage behind operator approval.
func (s *Stage) SetHasManualApproval() *Stage {
	s.ManualApproval = true
	return s
}

// EnsureJob returns the named job, creating it if needed.
func (s *Stage) EnsureJob(name string) *Job {
	for _, j := range s.Jobs {
		if j.Name == name {
			return j
		}
	}
	job := &Job{Name: name}
	s.Jobs = append(s.Jobs, job)
	return job
}

// BuildArtifact names a file or directory published by a job.
type BuildArtifact struct {
	Src string
}

// Job is a unit of work within a stage: an ordered task list plus the
// artifacts the tasks publish.
type Job struct {
	Name      string
	Tasks     []Task
	Artifacts []BuildArtifact
}

// AddTask appends the task unconditionally and returns it.
func (j *Job) AddTask(t Task) Task {
	j.Tasks = append(j.Tasks, t)
	return t
}

// EnsureTask appends the task unless an identical task is already present.
func (j *Job) EnsureTask(t Task) Task {
	for _, existing := range j.Tasks {
		if existing.taskKey() == t.taskKey() {
			return existing
		}
	}
	return j.AddTask(t)
}

// EnsureArtifacts declares build artifacts, skipping duplicates.
func (j *Job) EnsureArtifacts(artifacts ...BuildArtifact) *Job {
	for _, a := range artifacts {
		exists := false
		for _, existing := range j.Artifacts {
			if existing == a {
				exists = true
				break
			}
		}
		if !exists {
			j.Artifacts = append(j.Artifacts, a)
		}
	}
	return j
}
