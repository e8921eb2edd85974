package clubauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsOrgAdmin(t *testing.T) {
	admins := []string{"admin@igloo.is", "+3545551234"}

	assert.True(t, IsOrgAdmin([]string{"admin@igloo.is"}, admins))
	assert.True(t, IsOrgAdmin([]string{"other@example.com", "+3545551234"}, admins),
		"any matching identity grants access")
	assert.False(t, IsOrgAdmin([]string{"other@example.com"}, admins))
	assert.False(t, IsOrgAdmin(nil, admins))
	assert.False(t, IsOrgAdmin([]string{"admin@igloo.is"}, nil))
	assert.False(t, IsOrgAdmin(nil, nil))
}
