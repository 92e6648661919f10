// Package statistics aggregates documents, assignments and the audit log into
// read-only overview figures. Compute is pure; Service loads its input.
package statistics

import (
	"math"
	"sort"
	"time"

	"github.com/garyjia/docflow/internal/domain/entity"
)

const (
	DefaultTrendMonths    = 6
	DefaultTopExecutors   = 5
	DefaultActivityWindow = 7 * 24 * time.Hour
)

// Snapshot is the input of Compute
type Snapshot struct {
	Documents   []*entity.Document
	Assignments []*entity.Assignment
	Types       []*entity.DocumentType
	// RecentLogs holds entries at or after now minus the activity window
	RecentLogs []*entity.WorkflowLog
}

// Options bounds the windowed figures. Zero values select the defaults.
type Options struct {
	TrendMonths    int
	TopExecutors   int
	ActivityWindow time.Duration
}

func (o Options) normalize() Options {
	if o.TrendMonths <= 0 {
		o.TrendMonths = DefaultTrendMonths
	}
	if o.TopExecutors <= 0 {
		o.TopExecutors = DefaultTopExecutors
	}
	if o.ActivityWindow <= 0 {
		o.ActivityWindow = DefaultActivityWindow
	}
	return o
}

// TypeCount is the number of documents of one type
type TypeCount struct {
	DocumentTypeID int64  `json:"document_type_id"`
	Name           string `json:"name"`
	Count          int    `json:"count"`
}

// MonthCount is the number of documents created in one calendar month (YYYY-MM)
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// ExecutorCount ranks a principal by completed assignments
type ExecutorCount struct {
	PrincipalID int64  `json:"principal_id"`
	Name        string `json:"name,omitempty"`
	Completed   int    `json:"completed"`
}

// Overview is the aggregate result
type Overview struct {
	TotalDocuments      int             `json:"total_documents"`
	TotalAssignments    int             `json:"total_assignments"`
	OverdueDocuments    int             `json:"overdue_documents"`
	OverdueAssignments  int             `json:"overdue_assignments"`
	DocumentsThisMonth  int             `json:"documents_this_month"`
	CompletionRate      float64         `json:"completion_rate"`
	DocumentsByStatus   map[string]int  `json:"documents_by_status"`
	DocumentsByType     []TypeCount     `json:"documents_by_type"`
	AssignmentsByStatus map[string]int  `json:"assignments_by_status"`
	MonthlyTrend        []MonthCount    `json:"monthly_trend"`
	TopExecutors        []ExecutorCount `json:"top_executors"`
	RecentActivity      map[string]int  `json:"recent_activity"`
	GeneratedAt         time.Time       `json:"generated_at"`
}

// Compute derives the overview as of now
func Compute(s Snapshot, now time.Time, opts Options) *Overview {
	opts = opts.normalize()
	now = now.UTC()

	o := &Overview{
		TotalDocuments:      len(s.Documents),
		TotalAssignments:    len(s.Assignments),
		DocumentsByStatus:   make(map[string]int),
		AssignmentsByStatus: make(map[string]int),
		RecentActivity:      make(map[string]int),
		GeneratedAt:         now,
	}

	thisMonth := monthKey(now)
	typeCounts := make(map[int64]int)
	completed := 0
	for _, doc := range s.Documents {
		o.DocumentsByStatus[doc.Status]++
		typeCounts[doc.DocumentTypeID]++
		if doc.IsOverdue(now) {
			o.OverdueDocuments++
		}
		if monthKey(doc.CreatedAt) == thisMonth {
			o.DocumentsThisMonth++
		}
		if doc.Status == entity.DocumentStatusApproved || doc.Status == entity.DocumentStatusCompleted {
			completed++
		}
	}
	o.CompletionRate = CompletionRate(completed, len(s.Documents))
	o.DocumentsByType = byType(typeCounts, s.Types)

	executors := make(map[int64]int)
	for _, a := range s.Assignments {
		o.AssignmentsByStatus[a.Status]++
		if a.IsOverdue(now) {
			o.OverdueAssignments++
		}
		if a.Status == entity.AssignmentStatusCompleted {
			executors[a.AssigneeID]++
		}
	}
	o.TopExecutors = TopExecutors(executors, opts.TopExecutors)
	o.MonthlyTrend = MonthlyTrend(s.Documents, now, opts.TrendMonths)

	since := now.Add(-opts.ActivityWindow)
	for _, entry := range s.RecentLogs {
		if !entry.Timestamp.Before(since) {
			o.RecentActivity[entry.Action]++
		}
	}

	return o
}

// CompletionRate is done/total as a percentage rounded to one decimal, 0 when total is 0
func CompletionRate(done, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(done)*1000/float64(total)) / 10
}

// TopExecutors ranks principals by completed count descending, ties by id ascending
func TopExecutors(completed map[int64]int, limit int) []ExecutorCount {
	out := make([]ExecutorCount, 0, len(completed))
	for id, n := range completed {
		out = append(out, ExecutorCount{PrincipalID: id, Completed: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Completed != out[j].Completed {
			return out[i].Completed > out[j].Completed
		}
		return out[i].PrincipalID < out[j].PrincipalID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MonthlyTrend counts documents per calendar month over the last months months
// ending with the month of now, oldest first, including empty months.
func MonthlyTrend(docs []*entity.Document, now time.Time, months int) []MonthCount {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month()-time.Month(months-1), 1, 0, 0, 0, 0, time.UTC)

	trend := make([]MonthCount, months)
	index := make(map[string]int, months)
	for i := 0; i < months; i++ {
		key := monthKey(start.AddDate(0, i, 0))
		trend[i] = MonthCount{Month: key}
		index[key] = i
	}
	for _, doc := range docs {
		if i, ok := index[monthKey(doc.CreatedAt)]; ok {
			trend[i].Count++
		}
	}
	return trend
}

func byType(counts map[int64]int, types []*entity.DocumentType) []TypeCount {
	names := make(map[int64]string, len(types))
	for _, t := range types {
		names[t.ID] = t.Name
	}
	out := make([]TypeCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, TypeCount{DocumentTypeID: id, Name: names[id], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].DocumentTypeID < out[j].DocumentTypeID
	})
	return out
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
