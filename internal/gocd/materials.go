package gocd

import (
	"fmt"
	"sort"
	"strings"
)

// Material is a pipeline input trigger: a git repository or an upstream
// pipeline stage.
type Material interface {
	materialKey() string
	materialElement() *Element
}

// GitMaterial is a git repository material.
type GitMaterial struct {
	URL            string
	Branch         string
	MaterialName   string
	Polling        bool
	Destination    string
	IgnorePatterns []string
}

func (m GitMaterial) materialKey() string {
	if m.MaterialName != "" {
		return "git:" + m.MaterialName
	}
	return "git:" + m.URL
}

func (m GitMaterial) materialElement() *Element {
	element := NewElement("git").SetAttr("url", m.URL)
	if m.Branch != "" {
		element.SetAttr("branch", m.Branch)
	}
	if m.MaterialName != "" {
		element.SetAttr("materialName", m.MaterialName)
	}
	if m.Destination != "" {
		element.SetAttr("dest", m.Destination)
	}
	if !m.Polling {
		element.SetAttr("autoUpdate", "false")
	}
	if len(m.IgnorePatterns) > 0 {
		filter := NewElement("filter")
		patterns := append([]string(nil), m.IgnorePatterns...)
		sort.Strings(patterns)
		for _, pattern := range patterns {
			filter.Append(NewElement("ignore").SetAttr("pattern", pattern))
		}
		element.Append(filter)
	}
	return element
}

// EnvVarName returns the name of the GoCD environment variable that holds
// the material's revision, e.g. GO_REVISION_EDX_PLATFORM for a material
// named edx-platform.
func (m GitMaterial) EnvVarName() string {
	name := strings.ToUpper(m.MaterialName)
	name = strings.NewReplacer("-", "_", ".", "_").Replace(name)
	return fmt.Sprintf("$GO_REVISION_%s", name)
}

// PipelineMaterial triggers a pipeline when a named stage of an upstream
// pipeline completes successfully.
type PipelineMaterial struct {
	PipelineName string
	StageName    string
	MaterialName string
}

func (m PipelineMaterial) materialKey() string {
	if m.MaterialName != "" {
		return "pipeline:" + m.MaterialName
	}
	return "pipeline:" + m.PipelineName + "/" + m.StageName
}

func (m PipelineMaterial) materialElement() *Element {
	element := NewElement("pipeline").
		SetAttr("pipelineName", m.PipelineName).
		SetAttr("stageName", m.StageName)
	if m.MaterialName != "" {
		element.SetAttr("materialName", m.MaterialName)
	}
	return element
}
