package gocd

import "strings"

// Run-if conditions controlling when a task executes within a job.
const (
	RunIfPassed = "passed"
	RunIfFailed = "failed"
	RunIfAny    = "any"
)

// Task is a single unit of work within a job.
type Task interface {
	taskKey() string
	taskElement() *Element
}

// ExecTask runs a command with arguments, optionally from a working
// directory, gated by a run-if condition.
type ExecTask struct {
	Command    []string
	WorkingDir string
	RunIf      string
}

func (t ExecTask) runif() string {
	if t.RunIf == "" {
		return RunIfPassed
	}
	return t.RunIf
}

func (t ExecTask) taskKey() string {
	return "exec:" + t.runif() + ":" + t.WorkingDir + ":" + strings.Join(t.Command, "\x00")
}

func (t ExecTask) taskElement() *Element {
	element := NewElement("exec")
	if len(t.Command) > 0 {
		element.SetAttr("command", t.Command[0])
	}
	if t.WorkingDir != "" {
		element.SetAttr("workingdir", t.WorkingDir)
	}
	for _, arg := range t.Command[1:] {
		element.Append(&Element{Tag: "arg", Text: arg})
	}
	element.Append(NewElement("runif").SetAttr("status", t.runif()))
	return element
}

// FetchArtifactTask copies a file or directory published by an upstream
// pipeline/stage/job into a destination directory of the current job.
type FetchArtifactTask struct {
	Pipeline string
	Stage    string
	Job      string
	Src      string
	SrcDir   bool
	Dest     string
	RunIf    string
}

func (t FetchArtifactTask) runif() string {
	if t.RunIf == "" {
		return RunIfPassed
	}
	return t.RunIf
}

func (t FetchArtifactTask) taskKey() string {
	kind := "file"
	if t.SrcDir {
		kind = "dir"
	}
	return strings.Join([]string{"fetch", t.runif(), t.Pipeline, t.Stage, t.Job, kind, t.Src, t.Dest}, "\x00")
}

func (t FetchArtifactTask) taskElement() *Element {
	element := NewElement("fetchartifact").
		SetAttr("pipeline", t.Pipeline).
		SetAttr("stage", t.Stage).
		SetAttr("job", t.Job)
	if t.SrcDir {
		element.SetAttr("srcdir", t.Src)
	} else {
		element.SetAttr("srcfile", t.Src)
	}
	if t.Dest != "" {
		element.SetAttr("dest", t.Dest)
	}
	element.Append(NewElement("runif").SetAttr("status", t.runif()))
	return element
}
