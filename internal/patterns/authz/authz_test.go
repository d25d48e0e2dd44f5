package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/savaki/gocd-pipelines/internal/gocd"
)

func TestEnsurePermissions(t *testing.T) {
	group := &gocd.PipelineGroup{Name: "ecommerce"}

	EnsurePermissions(group, Admins, []string{"ecommerce-admin"})
	EnsurePermissions(group, Operate, []string{"ecommerce-operator"})
	EnsurePermissions(group, View, []string{"ecommerce-operator"})

	assert.Equal(t, []string{"ecommerce-admin"}, group.Admins)
	assert.Equal(t, []string{"ecommerce-operator"}, group.Operators)
	assert.Equal(t, []string{"ecommerce-operator"}, group.Viewers)
}

func TestEnsurePermissions_Replaces(t *testing.T) {
	group := &gocd.PipelineGroup{Name: "ecommerce", Admins: []string{"old-admin"}}

	EnsurePermissions(group, Admins, []string{"new-admin"})

	assert.Equal(t, []string{"new-admin"}, group.Admins)
}
