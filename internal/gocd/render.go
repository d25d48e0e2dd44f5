package gocd

import "sort"

// GroupElement renders the pipeline group as a <pipelines group="..."> element
// in the cruise configuration schema.
func (g *PipelineGroup) GroupElement() *Element {
	element := NewElement("pipelines").SetAttr("group", g.Name)

	if len(g.Admins)+len(g.Operators)+len(g.Viewers) > 0 {
		authorization := NewElement("authorization")
		appendRoles(authorization, "admins", g.Admins)
		appendRoles(authorization, "operate", g.Operators)
		appendRoles(authorization, "view", g.Viewers)
		element.Append(authorization)
	}

	for _, p := range g.Pipelines {
		element.Append(p.pipelineElement())
	}
	return element
}

func appendRoles(parent *Element, permission string, roles []string) {
	if len(roles) == 0 {
		return
	}
	element := NewElement(permission)
	for _, role := range roles {
		element.Append(&Element{Tag: "role", Text: role})
	}
	parent.Append(element)
}

func (p *Pipeline) pipelineElement() *Element {
	element := NewElement("pipeline").SetAttr("name", p.Name)
	if p.LabelTemplate != "" {
		element.SetAttr("labeltemplate", p.LabelTemplate)
	}
	if p.Timer != "" {
		element.Append(&Element{Tag: "timer", Text: p.Timer})
	}

	if len(p.EnvVars) > 0 {
		element.Append(envVarsElement(p.EnvVars))
	}

	materials := NewElement("materials")
	for _, m := range p.Materials {
		materials.Append(m.materialElement())
	}
	element.Append(materials)

	for _, s := range p.Stages {
		element.Append(s.stageElement())
	}
	return element
}

func envVarsElement(vars []EnvVar) *Element {
	sorted := append([]EnvVar(nil), vars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	element := NewElement("environmentvariables")
	for _, v := range sorted {
		variable := NewElement("variable").SetAttr("name", v.Name)
		switch {
		case v.Encrypted:
			variable.SetAttr("secure", "true")
			variable.Append(&Element{Tag: "encryptedValue", Text: v.Value})
		case v.Secure:
			variable.SetAttr("secure", "true")
			variable.Append(&Element{Tag: "value", Text: v.Value})
		default:
			variable.Append(&Element{Tag: "value", Text: v.Value})
		}
		element.Append(variable)
	}
	return element
}

func (s *Stage) stageElement() *Element {
	element := NewElement("stage").SetAttr("name", s.Name)
	if s.ManualApproval {
		element.Append(NewElement("approval").SetAttr("type", "manual"))
	}

	jobs := NewElement("jobs")
	for _, j := range s.Jobs {
		jobs.Append(j.jobElement())
	}
	element.Append(jobs)
	return element
}

func (j *Job) jobElement() *Element {
	element := NewElement("job").SetAttr("name", j.Name)

	if len(j.Tasks) > 0 {
		tasks := NewElement("tasks")
		for _, t := range j.Tasks {
			tasks.Append(t.taskElement())
		}
		element.Append(tasks)
	}

	if len(j.Artifacts) > 0 {
		sorted := append([]BuildArtifact(nil), j.Artifacts...)
		sort.Slice(sorted, func(a, b int) bool { return sorted[a].Src < sorted[b].Src })
		artifacts := NewElement("artifacts")
		for _, a := range sorted {
			artifacts.Append(NewElement("artifact").SetAttr("src", a.Src))
		}
		element.Append(artifacts)
	}
	return element
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
