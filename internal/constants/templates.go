package constants

import "fmt"

// EnvironmentPipelineName names a per-environment deployment pipeline,
// e.g. "prod-edxapp".
func EnvironmentPipelineName(environment, play string) string {
	return fmt.Sprintf("%s-%s", environment, play)
}

// DeploymentPipelineLabel builds a pipeline label template tying a run to
// the first seven characters of a material revision. The revision alone is
// not unique across re-triggers, so the run counter is appended.
func DeploymentPipelineLabel(materialName string) string {
	return fmt.Sprintf("${%s[:7]}-${COUNT}", materialName)
}

// PlaybookPath is the conventional location of a play's playbook inside
// the configuration repository.
func PlaybookPath(play string) string {
	return fmt.Sprintf("playbooks/edx-east/%s.yml", play)
}

// EdxRepoURL is the public GitHub URL for an edX repository.
func EdxRepoURL(name string) string {
	return fmt.Sprintf("https://github.com/edx/%s.git", name)
}
