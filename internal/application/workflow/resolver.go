package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/entity"
	domainwf "github.com/garyjia/docflow/internal/domain/workflow"
)

// DefaultSingletonRoles are roles held by exactly one principal organization-wide
var DefaultSingletonRoles = []string{entity.RoleRector, entity.RoleAdmin}

// DirectoryResolver resolves step roles against the user and department directory.
// Singleton roles resolve globally. Other roles walk up from the creator's
// department, preferring the department head when they hold the role, and fall
// back to a global lookup when no department on the chain has a holder.
type DirectoryResolver struct {
	users       port.UserRepository
	departments port.DepartmentRepository
	singletons  map[string]bool
}

// NewDirectoryResolver creates a resolver. An empty singletonRoles uses DefaultSingletonRoles.
func NewDirectoryResolver(users port.UserRepository, departments port.DepartmentRepository, singletonRoles []string) *DirectoryResolver {
	if len(singletonRoles) == 0 {
		singletonRoles = DefaultSingletonRoles
	}
	singletons := make(map[string]bool, len(singletonRoles))
	for _, role := range singletonRoles {
		singletons[role] = true
	}
	return &DirectoryResolver{
		users:       users,
		departments: departments,
		singletons:  singletons,
	}
}

// ResolveApprover returns the single principal who must act on doc for role
func (r *DirectoryResolver) ResolveApprover(ctx context.Context, doc *entity.Document, role string) (*entity.User, error) {
	holders, err := r.users.ListByRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to list holders of role %s: %w", role, err)
	}
	if r.singletons[role] {
		return exactlyOne(holders, role)
	}

	creator, err := r.users.GetByID(ctx, doc.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load creator of document %d: %w", doc.ID, err)
	}
	if creator.DepartmentID == nil {
		return exactlyOne(holders, role)
	}

	byDept := make(map[int64][]*entity.User)
	for _, u := range holders {
		if u.DepartmentID != nil {
			byDept[*u.DepartmentID] = append(byDept[*u.DepartmentID], u)
		}
	}

	visited := make(map[int64]bool)
	deptID := creator.DepartmentID
	for deptID != nil && !visited[*deptID] {
		visited[*deptID] = true
		dept, err := r.departments.GetByID(ctx, *deptID)
		if err != nil {
			return nil, fmt.Errorf("failed to load department %d: %w", *deptID, err)
		}

		if dept.HeadID != nil {
			for _, u := range holders {
				if u.ID == *dept.HeadID {
					return u, nil
				}
			}
		}

		switch inDept := byDept[dept.ID]; len(inDept) {
		case 0:
			deptID = dept.ParentID
		case 1:
			return inDept[0], nil
		default:
			return nil, fmt.Errorf("%w: %d holders of role %s in department %d",
				domainwf.ErrAmbiguousApprover, len(inDept), role, dept.ID)
		}
	}

	return exactlyOne(holders, role)
}

func exactlyOne(holders []*entity.User, role string) (*entity.User, error) {
	switch len(holders) {
	case 0:
		return nil, fmt.Errorf("%w: role %s", domainwf.ErrNoApprover, role)
	case 1:
		return holders[0], nil
	default:
		return nil, fmt.Errorf("%w: %d holders of role %s", domainwf.ErrAmbiguousApprover, len(holders), role)
	}
}
