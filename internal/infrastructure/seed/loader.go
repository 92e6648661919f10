// Package seed loads reference data (departments, principals, document types
// and approval routes) from YAML. Loading is idempotent: records are matched by
// code or username and existing route steps are left in place.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/application/route"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/workflow"
)

// File is the YAML document layout
type File struct {
	Departments   []Department   `yaml:"departments"`
	Principals    []Principal    `yaml:"principals"`
	DocumentTypes []DocumentType `yaml:"document_types"`
	Routes        []Route        `yaml:"routes"`
}

// Department references its parent by code and its head by username
type Department struct {
	Code   string `yaml:"code"`
	Name   string `yaml:"name"`
	Parent string `yaml:"parent"`
	Head   string `yaml:"head"`
}

// Principal references its department by code and supervisor by username
type Principal struct {
	ID         int64  `yaml:"id"`
	Username   string `yaml:"username"`
	FullName   string `yaml:"full_name"`
	Email      string `yaml:"email"`
	Role       string `yaml:"role"`
	Department string `yaml:"department"`
	Supervisor string `yaml:"supervisor"`
	Inactive   bool   `yaml:"inactive"`
}

// DocumentType is a document classification
type DocumentType struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Route lists the approver roles of a type in step order, starting at 1
type Route struct {
	DocumentType string   `yaml:"document_type"`
	Steps        []string `yaml:"steps"`
}

// Result counts what a load touched
type Result struct {
	Departments   int
	Principals    int
	DocumentTypes int
	StepsAdded    int
}

// Loader writes seed data through the repositories
type Loader struct {
	departments port.DepartmentRepository
	users       port.UserRepository
	types       port.DocumentTypeRepository
	tx          port.TransactionManager
	registry    *route.Registry
	logger      *zap.Logger
}

// NewLoader creates a Loader
func NewLoader(
	departments port.DepartmentRepository,
	users port.UserRepository,
	types port.DocumentTypeRepository,
	tx port.TransactionManager,
	registry *route.Registry,
	logger *zap.Logger,
) *Loader {
	return &Loader{
		departments: departments,
		users:       users,
		types:       types,
		tx:          tx,
		registry:    registry,
		logger:      logger,
	}
}

// Parse decodes a seed document, rejecting unknown fields
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads and applies the seed file at path
func (l *Loader) LoadFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	res, err := l.Load(ctx, f)
	if err != nil {
		return nil, err
	}
	l.logger.Info("Seed data loaded",
		zap.String("path", path),
		zap.Int("departments", res.Departments),
		zap.Int("principals", res.Principals),
		zap.Int("document_types", res.DocumentTypes),
		zap.Int("steps_added", res.StepsAdded))
	return res, nil
}

// Load applies f. Directory records are written in one transaction; route
// steps go through the registry afterwards.
func (l *Loader) Load(ctx context.Context, f *File) (*Result, error) {
	res := &Result{}
	typeIDs := make(map[string]int64)

	err := l.tx.WithTransaction(ctx, func(ctx context.Context) error {
		depts := make(map[string]*entity.Department)
		for _, d := range f.Departments {
			dept := &entity.Department{Code: d.Code, Name: d.Name}
			if err := l.departments.Upsert(ctx, dept); err != nil {
				return err
			}
			depts[d.Code] = dept
		}

		userIDs := make(map[string]int64)
		for _, p := range f.Principals {
			u := &entity.User{
				ID:       p.ID,
				Username: p.Username,
				FullName: p.FullName,
				Email:    p.Email,
				Role:     p.Role,
				Active:   !p.Inactive,
			}
			if p.Department != "" {
				dept, ok := depts[p.Department]
				if !ok {
					return workflow.Validation("principal %s: unknown department %q", p.Username, p.Department)
				}
				u.DepartmentID = &dept.ID
			}
			if err := l.users.Upsert(ctx, u); err != nil {
				return err
			}
			userIDs[p.Username] = u.ID
		}

		// supervisors and heads may reference records declared later in the file
		for _, p := range f.Principals {
			if p.Supervisor == "" {
				continue
			}
			supervisor, ok := userIDs[p.Supervisor]
			if !ok {
				return workflow.Validation("principal %s: unknown supervisor %q", p.Username, p.Supervisor)
			}
			u, err := l.users.GetByID(ctx, userIDs[p.Username])
			if err != nil {
				return err
			}
			u.SupervisorID = &supervisor
			if err := l.users.Upsert(ctx, u); err != nil {
				return err
			}
		}
		for _, d := range f.Departments {
			dept := depts[d.Code]
			if d.Parent != "" {
				parent, ok := depts[d.Parent]
				if !ok {
					return workflow.Validation("department %s: unknown parent %q", d.Code, d.Parent)
				}
				dept.ParentID = &parent.ID
			}
			if d.Head != "" {
				head, ok := userIDs[d.Head]
				if !ok {
					return workflow.Validation("department %s: unknown head %q", d.Code, d.Head)
				}
				dept.HeadID = &head
			}
			if dept.ParentID == nil && dept.HeadID == nil {
				continue
			}
			if err := l.departments.Upsert(ctx, dept); err != nil {
				return err
			}
		}

		for _, t := range f.DocumentTypes {
			docType := &entity.DocumentType{Code: t.Code, Name: t.Name, Description: t.Description}
			if err := l.types.Upsert(ctx, docType); err != nil {
				return err
			}
			typeIDs[t.Code] = docType.ID
		}

		res.Departments = len(f.Departments)
		res.Principals = len(f.Principals)
		res.DocumentTypes = len(f.DocumentTypes)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("seed directory: %w", err)
	}

	for _, r := range f.Routes {
		typeID, ok := typeIDs[r.DocumentType]
		if !ok {
			t, err := l.types.GetByCode(ctx, r.DocumentType)
			if err != nil {
				return nil, fmt.Errorf("seed route %s: %w", r.DocumentType, err)
			}
			typeID = t.ID
		}
		added, err := l.seedRoute(ctx, typeID, r)
		if err != nil {
			return nil, err
		}
		res.StepsAdded += added
	}
	return res, nil
}

func (l *Loader) seedRoute(ctx context.Context, typeID int64, r Route) (int, error) {
	existing, err := l.registry.StepsFor(ctx, typeID)
	if err != nil {
		return 0, err
	}

	added := 0
	for i, role := range r.Steps {
		order := i + 1
		if step := route.Find(existing, order); step != nil {
			if step.ApproverRole != role {
				l.logger.Warn("Seed route differs from stored route, keeping stored step",
					zap.String("document_type", r.DocumentType),
					zap.Int("step_order", order),
					zap.String("stored_role", step.ApproverRole),
					zap.String("seed_role", role))
			}
			continue
		}
		_, err := l.registry.AddStep(ctx, typeID, order, role)
		if errors.Is(err, workflow.ErrDuplicateStepOrder) {
			continue
		}
		if err != nil {
			return added, fmt.Errorf("seed route %s step %d: %w", r.DocumentType, order, err)
		}
		added++
	}
	return added, nil
}

func (f *File) validate() error {
	seen := make(map[string]bool)
	for _, d := range f.Departments {
		if d.Code == "" || d.Name == "" {
			return workflow.Validation("department requires code and name")
		}
		if seen["d:"+d.Code] {
			return workflow.Validation("duplicate department %q", d.Code)
		}
		seen["d:"+d.Code] = true
	}
	for _, p := range f.Principals {
		if p.Username == "" {
			return workflow.Validation("principal requires a username")
		}
		if !entity.IsValidRole(p.Role) {
			return workflow.Validation("principal %s: unknown role %q", p.Username, p.Role)
		}
		if seen["p:"+p.Username] {
			return workflow.Validation("duplicate principal %q", p.Username)
		}
		seen["p:"+p.Username] = true
	}
	for _, t := range f.DocumentTypes {
		if t.Code == "" || t.Name == "" {
			return workflow.Validation("document type requires code and name")
		}
	}
	for _, r := range f.Routes {
		for _, role := range r.Steps {
			if !entity.IsValidRole(role) {
				return workflow.Validation("route %s: unknown role %q", r.DocumentType, role)
			}
		}
	}
	return nil
}
