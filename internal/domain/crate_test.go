package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleOrdering(t *testing.T) {
	assert.True(t, RoleOwner.AtLeast(RoleManager))
	assert.True(t, RoleManager.AtLeast(RoleUploader))
	assert.True(t, RoleUploader.AtLeast(RoleViewer))
	assert.True(t, RoleViewer.AtLeast(RoleViewer))
	assert.False(t, RoleViewer.AtLeast(RoleUploader))
	assert.False(t, RoleNone.AtLeast(RoleViewer))
}

func TestRoleRoundTrip(t *testing.T) {
	for _, role := range []Role{RoleViewer, RoleUploader, RoleManager, RoleOwner} {
		parsed, err := ParseRole(role.String())
		require.NoError(t, err)
		assert.Equal(t, role, parsed)

		value, err := role.Value()
		require.NoError(t, err)

		var scanned Role
		require.NoError(t, scanned.Scan(value))
		assert.Equal(t, role, scanned)
	}

	_, err := ParseRole("admin")
	assert.Error(t, err)

	_, err = Role(42).Value()
	assert.Error(t, err)
}
