// Package utils holds the small shared types the pipeline installers pass
// around: the environment/deployment/play triple, artifact locations, and
// the layered variable configuration loaded from YAML files and command
// line overrides.
package utils

import (
	"fmt"
	"sort"
)

// EDP identifies a deployable service instance: the environment it runs in
// (stage, prod, loadtest), the deployment owning the AWS account (edx, edge,
// mckinsey), and the ansible play that configures it.
type EDP struct {
	Environment string
	Deployment  string
	Play        string
}

func (e EDP) String() string {
	return fmt.Sprintf("%s-%s-%s", e.Environment, e.Deployment, e.Play)
}

// EnvDeployment is the "environment-deployment" pair, used for job names
// and for configuration overlay keys.
func (e EDP) EnvDeployment() string {
	return fmt.Sprintf("%s-%s", e.Environment, e.Deployment)
}

// GroupByEnvironment partitions the EDPs by environment. The returned
// environment names are sorted so that callers iterate deterministically.
func GroupByEnvironment(edps []EDP) (envs []string, grouped map[string][]EDP) {
	grouped = map[string][]EDP{}
	for _, edp := range edps {
		if _, ok := grouped[edp.Environment]; !ok {
			envs = append(envs, edp.Environment)
		}
		grouped[edp.Environment] = append(grouped[edp.Environment], edp)
	}
	sort.Strings(envs)
	return envs, grouped
}

// Plays returns the distinct plays across the EDPs, sorted.
func Plays(edps []EDP) []string {
	seen := map[string]bool{}
	var plays []string
	for _, edp := range edps {
		if !seen[edp.Play] {
			seen[edp.Play] = true
			plays = append(plays, edp.Play)
		}
	}
	sort.Strings(plays)
	return plays
}
