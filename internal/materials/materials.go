// Package materials defines the standard git materials the installers wire
// into pipelines. Each constructor returns the conventional checkout for a
// repository and accepts options to override the branch or destination for
// installers that deviate from the defaults.
package materials

import "github.com/savaki/gocd-pipelines/internal/gocd"

// IgnoreAll keeps a material from triggering the pipeline while still
// making the checkout available to jobs.
var IgnoreAll = []string{"**/*"}

// Option overrides a field of a standard material.
type Option func(*gocd.GitMaterial)

// Branch overrides the material's branch.
func Branch(branch string) Option {
	return func(m *gocd.GitMaterial) {
		m.Branch = branch
	}
}

// Destination overrides the directory the material checks out into.
func Destination(dir string) Option {
	return func(m *gocd.GitMaterial) {
		m.Destination = dir
	}
}

// URL overrides the repository URL, for forks and private mirrors.
func URL(url string) Option {
	return func(m *gocd.GitMaterial) {
		m.URL = url
	}
}

// Polling controls whether the material triggers the pipeline on new
// revisions.
func Polling(enabled bool) Option {
	return func(m *gocd.GitMaterial) {
		m.Polling = enabled
	}
}

// TriggerOnChange clears the ignore filter so commits to the repository
// trigger the pipeline.
func TriggerOnChange() Option {
	return func(m *gocd.GitMaterial) {
		m.IgnorePatterns = nil
	}
}

func standard(url, branch, name string, opts []Option) gocd.GitMaterial {
	material := gocd.GitMaterial{
		URL:            url,
		Branch:         branch,
		MaterialName:   name,
		Polling:        true,
		Destination:    name,
		IgnorePatterns: IgnoreAll,
	}
	for _, opt := range opts {
		opt(&material)
	}
	return material
}

// Tubular is the deployment scripts repository.
func Tubular(opts ...Option) gocd.GitMaterial {
	return standard("https://github.com/edx/tubular", "master", "tubular", opts)
}

// Configuration is the public ansible configuration repository.
func Configuration(opts ...Option) gocd.GitMaterial {
	return standard("https://github.com/edx/configuration", "master", "configuration", opts)
}

// EdxPlatform is the application repository for the edxapp play.
func EdxPlatform(opts ...Option) gocd.GitMaterial {
	return standard("https://github.com/edx/edx-platform", "release-candidate", "edx-platform", opts)
}

// EdxSecure holds the edx deployment's private configuration.
func EdxSecure(opts ...Option) gocd.GitMaterial {
	return standard("git@github.com:edx-ops/edx-secure.git", "master", "edx-secure", opts)
}

// EdgeSecure holds the edge deployment's private configuration.
func EdgeSecure(opts ...Option) gocd.GitMaterial {
	return standard("git@github.com:edx-ops/edge-secure.git", "master", "edge-secure", opts)
}

// EdxMicrosite is the microsite content repository.
func EdxMicrosite(opts ...Option) gocd.GitMaterial {
	return standard("git@github.com:edx/edx-microsite.git", "release", "edx-microsite", opts)
}

// EdxInternal holds the edx deployment's internal configuration.
func EdxInternal(opts ...Option) gocd.GitMaterial {
	return standard("git@github.com:edx/edx-internal.git", "master", "edx-internal", opts)
}

// EdgeInternal holds the edge deployment's internal configuration.
func EdgeInternal(opts ...Option) gocd.GitMaterial {
	return standard("git@github.com:edx/edge-internal.git", "master", "edge-internal", opts)
}

// EdxMktg is the marketing site repository for the Drupal pipelines.
func EdxMktg(opts ...Option) gocd.GitMaterial {
	return standard("git@github.com:edx/edx-mktg.git", "master", "edx-mktg", opts)
}

// EcomSecure holds the e-commerce deployment's private configuration.
func EcomSecure(opts ...Option) gocd.GitMaterial {
	return standard("git@github.com:edx-ops/ecom-secure.git", "master", "ecom-secure", opts)
}

// DeploymentSecure is the private configuration repository for a
// deployment, e.g. edx-secure or edge-secure.
func DeploymentSecure(deployment string, opts ...Option) gocd.GitMaterial {
	name := deployment + "-secure"
	return standard("git@github.com:edx-ops/"+name+".git", "master", name, opts)
}

// DeploymentInternal is the internal configuration repository for a
// deployment, e.g. edx-internal or edge-internal.
func DeploymentInternal(deployment string, opts ...Option) gocd.GitMaterial {
	name := deployment + "-internal"
	return standard("git@github.com:edx/"+name+".git", "master", name, opts)
}

// Deployment returns a material for an arbitrary application repository.
func Deployment(url, branch, name string, opts ...Option) gocd.GitMaterial {
	return standard(url, branch, name, opts)
}
