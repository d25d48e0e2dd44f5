package utils

import "github.com/savaki/gocd-pipelines/internal/gocd"

// ArtifactLocation identifies a file or directory published by an upstream
// pipeline stage job.
type ArtifactLocation struct {
	Pipeline string
	Stage    string
	Job      string
	FileName string
	IsDir    bool
}

// AsFetchTask returns the fetch task that retrieves this artifact into dest.
func (a ArtifactLocation) AsFetchTask(dest string) gocd.FetchArtifactTask {
	return gocd.FetchArtifactTask{
		Pipeline: a.Pipeline,
		Stage:    a.Stage,
		Job:      a.Job,
		Src:      a.FileName,
		SrcDir:   a.IsDir,
		Dest:     dest,
	}
}
