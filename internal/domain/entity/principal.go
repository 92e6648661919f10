package entity

// Principal is an authenticated actor as supplied by the identity provider
type Principal struct {
	ID           int64  `json:"id"`
	Role         string `json:"role"`
	DepartmentID *int64 `json:"department_id,omitempty"`
}

// IsAdmin reports whether the principal holds the administrative override.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// IsManager reports whether the principal may assign work.
func (p Principal) IsManager() bool {
	return IsManagerRole(p.Role)
}

// SeesAllDocuments reports whether the principal's role grants visibility of every document.
func (p Principal) SeesAllDocuments() bool {
	switch p.Role {
	case RoleAdmin, RoleRector, RoleSecretary:
		return true
	}
	return false
}

// ViewsStatistics reports whether the principal may read the statistics overview.
func (p Principal) ViewsStatistics() bool {
	switch p.Role {
	case RoleAdmin, RoleRector, RoleProrector:
		return true
	}
	return false
}

// SeesDepartmentDocuments reports whether the principal sees documents created within their department.
func (p Principal) SeesDepartmentDocuments() bool {
	return (p.Role == RoleProrector || p.Role == RoleDeptHead) && p.DepartmentID != nil
}

// User is a directory record for a person
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	FullName     string `json:"full_name"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role"`
	DepartmentID *int64 `json:"department_id,omitempty"`
	SupervisorID *int64 `json:"supervisor_id,omitempty"`
	Active       bool   `json:"active"`
}

// Principal returns the identity view of the user.
func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Role: u.Role, DepartmentID: u.DepartmentID}
}

// DisplayName returns the full name, falling back to the username.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// Department is an organizational unit with an optional parent and head
type Department struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	ParentID *int64 `json:"parent_id,omitempty"`
	HeadID   *int64 `json:"head_id,omitempty"`
}
