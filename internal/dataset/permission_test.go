package dataset

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDatasetAccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	creator := &Account{ID: "creator", TenantID: "tenant-1", Role: RoleNormal}
	member := &Account{ID: "member", TenantID: "tenant-1", Role: RoleNormal}
	grantee := &Account{ID: "grantee", TenantID: "tenant-1", Role: RoleNormal}
	admin := &Account{ID: "admin", TenantID: "tenant-1", Role: RoleAdmin}
	owner := &Account{ID: "owner", TenantID: "tenant-1", Role: RoleOwner}
	outsider := &Account{ID: "outsider", TenantID: "tenant-2", Role: RoleOwner}

	onlyMe := seedDataset(t, s, &Dataset{
		Name:       "private",
		Permission: PermissionOnlyMe,
		CreatedBy:  creator.ID,
	})
	team := seedDataset(t, s, &Dataset{
		Name:       "shared",
		Permission: PermissionAllTeamMembers,
		CreatedBy:  creator.ID,
	})
	partial := seedDataset(t, s, &Dataset{
		Name:       "selective",
		Permission: PermissionPartialMembers,
		CreatedBy:  creator.ID,
	})
	require.NoError(t, s.SavePermissionGrant(ctx, &PermissionGrant{
		ID:        uuid.NewString(),
		DatasetID: partial.ID,
		AccountID: grantee.ID,
		TenantID:  "tenant-1",
	}))

	tests := []struct {
		name    string
		dataset *Dataset
		account *Account
		wantErr bool
	}{
		{"cross-tenant always refused", team, outsider, true},
		{"only_me creator", onlyMe, creator, false},
		{"only_me other member", onlyMe, member, true},
		{"only_me admin bypasses", onlyMe, admin, false},
		{"only_me owner bypasses", onlyMe, owner, false},
		{"all_team_members any member", team, member, false},
		{"partial_members creator", partial, creator, false},
		{"partial_members grantee", partial, grantee, false},
		{"partial_members without grant", partial, member, true},
		{"partial_members admin bypasses", partial, admin, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.CheckDatasetAccess(ctx, tt.dataset, tt.account)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoPermission)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCheckDatasetAccessUnknownPermission(t *testing.T) {
	s := newTestStore(t)

	ds := &Dataset{
		ID:         uuid.NewString(),
		TenantID:   "tenant-1",
		Permission: "everyone",
	}
	account := &Account{ID: "member", TenantID: "tenant-1", Role: RoleNormal}

	err := s.CheckDatasetAccess(context.Background(), ds, account)
	assert.ErrorIs(t, err, ErrNoPermission)
}

func TestRoleIsPrivileged(t *testing.T) {
	assert.True(t, RoleOwner.IsPrivileged())
	assert.True(t, RoleAdmin.IsPrivileged())
	assert.False(t, RoleEditor.IsPrivileged())
	assert.False(t, RoleNormal.IsPrivileged())
	assert.False(t, RoleDatasetOperator.IsPrivileged())
}
