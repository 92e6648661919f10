package service

import (
	"fmt"

	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

func unauthorized(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", workflow.ErrUnauthorized, fmt.Sprintf(format, args...))
}

func int64Ptr(v int64) *int64 {
	return &v
}

// canSee applies the document visibility rules for viewer. assignments are the
// document's assignments.
func canSee(viewer entity.Principal, doc *entity.Document, creator *entity.User, assignments []*entity.Assignment) bool {
	if viewer.SeesAllDocuments() {
		return true
	}
	if doc.CreatorID == viewer.ID || doc.IsCurrentApprover(viewer.ID) {
		return true
	}
	for _, a := range assignments {
		if a.AssigneeID == viewer.ID {
			return true
		}
		if viewer.IsManager() && a.AssignedByID == viewer.ID {
			return true
		}
	}
	if viewer.SeesDepartmentDocuments() && creator != nil && creator.DepartmentID != nil &&
		*creator.DepartmentID == *viewer.DepartmentID {
		return true
	}
	return false
}
