package dataset

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoPermission is returned when an account may not read a dataset. The
// message is part of the API contract and surfaces to callers verbatim.
var ErrNoPermission = errors.New("You do not have permission to access this dataset.")

// CheckDatasetAccess enforces the dataset read gate. Cross-tenant access is
// always refused. Within the tenant, privileged roles see everything;
// everyone else is bound by the dataset's permission mode.
func (s *Store) CheckDatasetAccess(ctx context.Context, ds *Dataset, account *Account) error {
	if ds.TenantID != account.TenantID {
		return ErrNoPermission
	}
	if account.Role.IsPrivileged() {
		return nil
	}

	switch ds.Permission {
	case PermissionOnlyMe:
		if ds.CreatedBy != account.ID {
			return ErrNoPermission
		}
	case PermissionAllTeamMembers:
		// Any tenant member may read.
	case PermissionPartialMembers:
		if ds.CreatedBy == account.ID {
			return nil
		}
		granted, err := s.HasPermissionGrant(ctx, ds.ID, account.ID)
		if err != nil {
			return fmt.Errorf("checking permission grant: %w", err)
		}
		if !granted {
			return ErrNoPermission
		}
	default:
		return ErrNoPermission
	}
	return nil
}
