package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/docflow/internal/application/service"
	"github.com/garyjia/docflow/internal/application/statistics"
	"github.com/garyjia/docflow/internal/application/workflow"
	"github.com/garyjia/docflow/internal/container"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/infrastructure/report"
	domainwf "github.com/garyjia/docflow/internal/domain/workflow"
)

const workbookContentType = report.ContentType

// RouteRegistry is the subset of the route registry served over HTTP
type RouteRegistry interface {
	AddStep(ctx context.Context, documentTypeID int64, order int, role string) (*entity.RouteStep, error)
	RemoveStep(ctx context.Context, id int64) error
	Routes(ctx context.Context) ([]*entity.Route, error)
}

// StatisticsProvider computes the statistics overview
type StatisticsProvider interface {
	Overview(ctx context.Context) (*statistics.Overview, error)
}

// WorkbookRenderer renders the overview as a spreadsheet
type WorkbookRenderer interface {
	Render(o *statistics.Overview) ([]byte, error)
}

// HealthChecker reports component health
type HealthChecker interface {
	Ready() bool
	Health(ctx context.Context) *container.HealthStatus
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	documents  service.DocumentService
	audit      service.AuditService
	engine     workflow.WorkflowEngine
	routes     RouteRegistry
	statistics StatisticsProvider
	workbook   WorkbookRenderer
	health     HealthChecker
	maxUpload  int64
	logger     Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Deps, maxUpload int64, logger Logger) *Handlers {
	if maxUpload <= 0 {
		maxUpload = DefaultServerConfig().MaxUploadBytes
	}
	return &Handlers{
		documents:  deps.Documents,
		audit:      deps.Audit,
		engine:     deps.Engine,
		routes:     deps.Routes,
		statistics: deps.Statistics,
		workbook:   deps.Workbook,
		health:     deps.Health,
		maxUpload:  maxUpload,
		logger:     logger,
	}
}

type createDocumentRequest struct {
	Title          string     `json:"title" binding:"required"`
	Content        string     `json:"content"`
	DocumentTypeID int64      `json:"document_type_id" binding:"required"`
	Priority       string     `json:"priority"`
	Deadline       *time.Time `json:"deadline"`
	FileRef        string     `json:"file_ref"`
}

type listDocumentsQuery struct {
	Status         string `form:"status"`
	DocumentTypeID int64  `form:"type"`
	Limit          int    `form:"limit"`
	Offset         int    `form:"offset"`
}

// Step or Version pins a decision to the document state the caller saw.
// Version may also arrive in an If-Match header.
type decisionRequest struct {
	Comment string `json:"comment"`
	FileRef string `json:"file_ref"`
	Step    int    `json:"step"`
	Version int64  `json:"version"`
}

type assignRequest struct {
	AssigneeID  int64      `json:"assignee_id" binding:"required"`
	Instruction string     `json:"instruction"`
	Deadline    *time.Time `json:"deadline"`
	Version     int64      `json:"version"`
}

type completeRequest struct {
	Response  string `json:"response"`
	Signature string `json:"signature"`
}

type declineRequest struct {
	Reason string `json:"reason"`
}

type addStepRequest struct {
	DocumentTypeID int64  `json:"document_type_id" binding:"required"`
	StepOrder      int    `json:"step_order" binding:"required"`
	ApproverRole   string `json:"approver_role" binding:"required"`
}

// Health handles GET /health
func (h *Handlers) Health(c *gin.Context) {
	if h.health == nil {
		respond(c, http.StatusOK, gin.H{"status": "healthy"})
		return
	}
	status := h.health.Health(c.Request.Context())
	code := http.StatusOK
	if !status.Overall {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, Response{Success: status.Overall, Data: status})
}

// Ready handles GET /ready
func (h *Handlers) Ready(c *gin.Context) {
	if h.health != nil && !h.health.Ready() {
		abortWith(c, http.StatusServiceUnavailable, "NOT_READY", "service is starting or stopping")
		return
	}
	respond(c, http.StatusOK, gin.H{"status": "ready"})
}

// CreateDocument handles POST /api/v1/documents
func (h *Handlers) CreateDocument(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	doc, err := h.documents.Create(c.Request.Context(), service.CreateDocumentRequest{
		Actor:          principalFrom(c),
		Title:          req.Title,
		Content:        req.Content,
		DocumentTypeID: req.DocumentTypeID,
		Priority:       req.Priority,
		Deadline:       req.Deadline,
		FileRef:        req.FileRef,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, doc)
}

// ListDocuments handles GET /api/v1/documents
func (h *Handlers) ListDocuments(c *gin.Context) {
	var q listDocumentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, err)
		return
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	docs, err := h.documents.List(c.Request.Context(), principalFrom(c), service.DocumentListFilter{
		Status:         q.Status,
		DocumentTypeID: q.DocumentTypeID,
		Limit:          q.Limit,
		Offset:         q.Offset,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	if docs == nil {
		docs = []*entity.Document{}
	}
	respond(c, http.StatusOK, docs)
}

// GetDocument handles GET /api/v1/documents/:id
func (h *Handlers) GetDocument(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	detail, err := h.documents.Get(c.Request.Context(), id, principalFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	setETag(c, detail.Document.Version)
	respond(c, http.StatusOK, detail)
}

// SubmitDocument handles POST /api/v1/documents/:id/submit
func (h *Handlers) SubmitDocument(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	version, ok := h.expectedVersion(c, 0)
	if !ok {
		return
	}
	doc, err := h.engine.Submit(c.Request.Context(), workflow.SubmitRequest{
		DocumentID:      id,
		Actor:           principalFrom(c),
		ExpectedVersion: version,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	setETag(c, doc.Version)
	respond(c, http.StatusOK, doc)
}

// ApproveDocument handles POST /api/v1/documents/:id/approve
func (h *Handlers) ApproveDocument(c *gin.Context) {
	h.decide(c, h.engine.Approve)
}

// RejectDocument handles POST /api/v1/documents/:id/reject
func (h *Handlers) RejectDocument(c *gin.Context) {
	h.decide(c, h.engine.Reject)
}

// ReopenDocument handles POST /api/v1/documents/:id/reopen
func (h *Handlers) ReopenDocument(c *gin.Context) {
	h.decide(c, h.engine.Reopen)
}

// ArchiveDocument handles POST /api/v1/documents/:id/archive
func (h *Handlers) ArchiveDocument(c *gin.Context) {
	h.decide(c, h.engine.Archive)
}

func (h *Handlers) decide(c *gin.Context, op func(context.Context, workflow.DecisionRequest) (*entity.Document, error)) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req decisionRequest
	if !h.bindOptional(c, &req) {
		return
	}
	version, ok := h.expectedVersion(c, req.Version)
	if !ok {
		return
	}

	doc, err := op(c.Request.Context(), workflow.DecisionRequest{
		DocumentID:      id,
		Actor:           principalFrom(c),
		Comment:         req.Comment,
		FileRef:         req.FileRef,
		Step:            req.Step,
		ExpectedVersion: version,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	setETag(c, doc.Version)
	respond(c, http.StatusOK, doc)
}

// AssignDocument handles POST /api/v1/documents/:id/assign
func (h *Handlers) AssignDocument(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	version, ok := h.expectedVersion(c, req.Version)
	if !ok {
		return
	}

	result, err := h.engine.Assign(c.Request.Context(), workflow.AssignRequest{
		DocumentID:      id,
		Actor:           principalFrom(c),
		AssigneeID:      req.AssigneeID,
		Instruction:     req.Instruction,
		Deadline:        req.Deadline,
		ExpectedVersion: version,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, result)
}

// UploadAttachment handles POST /api/v1/documents/:id/attachments
func (h *Handlers) UploadAttachment(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)
	header, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, fmt.Errorf("multipart field \"file\" is required"))
		return
	}
	if header.Size > h.maxUpload {
		h.respondError(c, domainwf.Validation("attachment exceeds %d bytes", h.maxUpload))
		return
	}

	file, err := header.Open()
	if err != nil {
		h.badRequest(c, err)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		h.badRequest(c, err)
		return
	}
	if int64(len(content)) > h.maxUpload {
		h.respondError(c, domainwf.Validation("attachment exceeds %d bytes", h.maxUpload))
		return
	}

	version, err := h.documents.Attach(c.Request.Context(), id, principalFrom(c), header.Filename, content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, version)
}

// DocumentHistory handles GET /api/v1/documents/:id/history
func (h *Handlers) DocumentHistory(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	entries, err := h.audit.History(c.Request.Context(), id, principalFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if entries == nil {
		entries = []*entity.HistoryEntry{}
	}
	respond(c, http.StatusOK, entries)
}

// ListAssignments handles GET /api/v1/assignments
func (h *Handlers) ListAssignments(c *gin.Context) {
	assignments, err := h.documents.ListAssignments(c.Request.Context(), principalFrom(c), c.Query("status"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if assignments == nil {
		assignments = []*entity.Assignment{}
	}
	respond(c, http.StatusOK, assignments)
}

// AcceptAssignment handles POST /api/v1/assignments/:id/accept
func (h *Handlers) AcceptAssignment(c *gin.Context) {
	h.progress(c, h.engine.AcceptAssignment)
}

// StartAssignment handles POST /api/v1/assignments/:id/start
func (h *Handlers) StartAssignment(c *gin.Context) {
	h.progress(c, h.engine.StartAssignment)
}

func (h *Handlers) progress(c *gin.Context, op func(context.Context, workflow.AssignmentRequest) (*workflow.AssignmentResult, error)) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	result, err := op(c.Request.Context(), workflow.AssignmentRequest{AssignmentID: id, Actor: principalFrom(c)})
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// CompleteAssignment handles POST /api/v1/assignments/:id/complete
func (h *Handlers) CompleteAssignment(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req completeRequest
	if !h.bindOptional(c, &req) {
		return
	}

	result, err := h.engine.CompleteAssignment(c.Request.Context(), workflow.CompleteRequest{
		AssignmentID: id,
		Actor:        principalFrom(c),
		Response:     req.Response,
		Signature:    req.Signature,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// RejectAssignment handles POST /api/v1/assignments/:id/reject
func (h *Handlers) RejectAssignment(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req declineRequest
	if !h.bindOptional(c, &req) {
		return
	}

	result, err := h.engine.RejectAssignment(c.Request.Context(), workflow.DeclineRequest{
		AssignmentID: id,
		Actor:        principalFrom(c),
		Reason:       req.Reason,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// ListRoutes handles GET /api/v1/routes
func (h *Handlers) ListRoutes(c *gin.Context) {
	routes, err := h.routes.Routes(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if routes == nil {
		routes = []*entity.Route{}
	}
	respond(c, http.StatusOK, routes)
}

// AddRouteStep handles POST /api/v1/routes
func (h *Handlers) AddRouteStep(c *gin.Context) {
	var req addStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	step, err := h.routes.AddStep(c.Request.Context(), req.DocumentTypeID, req.StepOrder, req.ApproverRole)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("Route step added",
		"step_id", step.ID,
		"document_type_id", step.DocumentTypeID,
		"step_order", step.StepOrder,
		"actor_id", principalFrom(c).ID)
	respond(c, http.StatusCreated, step)
}

// RemoveRouteStep handles DELETE /api/v1/routes/:id
func (h *Handlers) RemoveRouteStep(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.routes.RemoveStep(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("Route step removed", "step_id", id, "actor_id", principalFrom(c).ID)
	respond(c, http.StatusOK, gin.H{"id": id})
}

// Statistics handles GET /api/v1/statistics
func (h *Handlers) Statistics(c *gin.Context) {
	overview, ok := h.overview(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, overview)
}

// ExportStatistics handles GET /api/v1/statistics/export
func (h *Handlers) ExportStatistics(c *gin.Context) {
	overview, ok := h.overview(c)
	if !ok {
		return
	}
	data, err := h.workbook.Render(overview)
	if err != nil {
		h.respondError(c, err)
		return
	}
	filename := fmt.Sprintf("statistics-%s.xlsx", overview.GeneratedAt.Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, workbookContentType, data)
}

func (h *Handlers) overview(c *gin.Context) (*statistics.Overview, bool) {
	p := principalFrom(c)
	if !p.ViewsStatistics() {
		h.respondError(c, fmt.Errorf("%w: role %s may not view statistics", domainwf.ErrUnauthorized, p.Role))
		return nil, false
	}
	overview, err := h.statistics.Overview(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return overview, true
}

// pathID parses the :id parameter; it writes the error response itself
func (h *Handlers) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(c, domainwf.Validation("id must be a positive integer"))
		return 0, false
	}
	return id, true
}

// expectedVersion merges the body version with an If-Match header. Both may be absent;
// when both are present they must agree.
func (h *Handlers) expectedVersion(c *gin.Context, body int64) (int64, bool) {
	raw := strings.TrimSpace(c.GetHeader("If-Match"))
	if raw == "" {
		return body, true
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		h.respondError(c, domainwf.Validation("If-Match must carry a positive document version"))
		return 0, false
	}
	if body != 0 && body != v {
		h.respondError(c, domainwf.Validation("If-Match and body version disagree"))
		return 0, false
	}
	return v, true
}

func setETag(c *gin.Context, version int64) {
	c.Header("ETag", strconv.Quote(strconv.FormatInt(version, 10)))
}

// bindOptional binds a JSON body that may be absent
func (h *Handlers) bindOptional(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(c, err)
		return false
	}
	return true
}

// requireAdmin restricts a route to the admin role
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principalFrom(c)
		if !p.IsAdmin() {
			abortWith(c, http.StatusForbidden, string(domainwf.CodeUnauthorized), "administrator role required")
			return
		}
		c.Next()
	}
}
