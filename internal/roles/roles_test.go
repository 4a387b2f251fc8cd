package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "USER", want: User},
		{in: "admin", want: Admin},
		{in: " super_admin ", want: SuperAdmin},
		{in: "editor", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSet_Permissions(t *testing.T) {
	t.Parallel()

	user := Set{User}
	assert.True(t, user.Can(ProfileRead))
	assert.False(t, user.Can(UsersRead))
	assert.False(t, user.IsAdmin())

	admin := Set{User, Admin}
	assert.True(t, admin.IsAdmin())
	assert.True(t, admin.Can(UsersWrite))
	assert.False(t, admin.Can(RolesWrite))
	assert.False(t, admin.Can(SettingsWrite))

	super := Set{SuperAdmin}
	assert.True(t, super.IsAdmin())
	assert.True(t, super.Can(RolesWrite))
	assert.True(t, super.Can(UsersRead))
}

func TestFromStrings_DropsUnknown(t *testing.T) {
	t.Parallel()

	s := FromStrings([]string{"USER", "OWNER", "ADMIN"})
	assert.Equal(t, Set{User, Admin}, s)
}

func TestSet_PermissionsUnionIsSorted(t *testing.T) {
	t.Parallel()

	perms := Set{User, Admin}.Permissions()
	require.NotEmpty(t, perms)
	for i := 1; i < len(perms); i++ {
		assert.Less(t, string(perms[i-1]), string(perms[i]))
	}
	assert.Len(t, perms, len(Admin.Permissions()))
}
