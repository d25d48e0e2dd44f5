// Package authz grants pipeline-group permissions to server roles.
package authz

import "github.com/savaki/gocd-pipelines/internal/gocd"

// Permission is one of the GoCD pipeline-group authorization grants.
type Permission string

const (
	Admins  Permission = "admins"
	Operate Permission = "operate"
	View    Permission = "view"
)

// EnsurePermissions grants exactly the given roles the permission in the
// pipeline group, replacing any previous grant of that permission.
func EnsurePermissions(group *gocd.PipelineGroup, permission Permission, roles []string) {
	names := append([]string(nil), roles...)
	switch permission {
	case Admins:
		group.Admins = names
	case Operate:
		group.Operators = names
	case View:
		group.Viewers = names
	}
}
