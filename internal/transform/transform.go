// Package transform turns source records into target-shaped payloads.
package transform

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/kazz187/taskmirror/internal/source"
	"github.com/kazz187/taskmirror/internal/task"
)

const DefaultTitle = "Untitled"

// Resolver maps source assignees to target user ids.
type Resolver interface {
	Resolve(ctx context.Context, refs []source.Assignee) []task.UserID
}

// Transformer converts source records into normalized tasks. It never fails;
// unknown labels and unparsable dates fall back to defaults.
type Transformer struct {
	resolver Resolver
}

func New(resolver Resolver) *Transformer {
	return &Transformer{resolver: resolver}
}

// Transform never fails: absent or unrecognized fields fall back to their
// defaults.
func (t *Transformer) Transform(ctx context.Context, rec *source.Record) *task.Normalized {
	n := &task.Normalized{
		SourceID:    rec.ID,
		Title:       strings.TrimSpace(rec.Title),
		Status:      MapStatus(rec.Status),
		Priority:    MapPriority(rec.Priority),
		Description: rec.Description,
	}
	if n.Title == "" {
		n.Title = DefaultTitle
	}
	if rec.Due != "" {
		due, hasTime, ok := ParseDue(rec.Due)
		if ok {
			n.Due = &due
			n.DueHasTime = hasTime
		} else {
			slog.WarnContext(ctx, "dropping unparseable due date", "source_id", rec.ID, "due", rec.Due)
		}
	}
	if t.resolver != nil && len(rec.Assignees) > 0 {
		for _, id := range t.resolver.Resolve(ctx, rec.Assignees) {
			n.AddAssignee(id)
		}
	}
	return n
}

var fold = cases.Fold()

func foldLabel(s string) string {
	return fold.String(norm.NFC.String(strings.TrimSpace(s)))
}

type statusGroup struct {
	status task.Status
	labels []string
}

// Groups are checked in order and the first group with a label contained in
// the input wins.
var statusGroups = []statusGroup{
	{task.StatusToDo, []string{"chưa bắt đầu", "not started", "to do", "todo", "backlog"}},
	{task.StatusInProgress, []string{"đang thực hiện", "đang làm", "in progress", "doing", "in review"}},
	{task.StatusComplete, []string{"hoàn thành", "complete", "done"}},
	{task.StatusClosed, []string{"đóng", "closed", "cancel", "hủy"}},
}

func MapStatus(label string) task.Status {
	s := foldLabel(label)
	if s == "" {
		return task.StatusToDo
	}
	for _, g := range statusGroups {
		for _, l := range g.labels {
			if strings.Contains(s, foldLabel(l)) {
				return g.status
			}
		}
	}
	return task.StatusToDo
}

var (
	urgentLabels = []string{"cao", "high", "urgent", "khẩn"}
	lowLabels    = []string{"thấp", "low"}
)

// MapPriority matches the urgent labels before the low ones, so a label such
// as "Cao (High)" is urgent and "Thấp (Low)" is low. Anything else is normal.
func MapPriority(label string) task.Priority {
	s := foldLabel(label)
	if s == "" {
		return task.PriorityNormal
	}
	for _, l := range urgentLabels {
		if strings.Contains(s, foldLabel(l)) {
			return task.PriorityUrgent
		}
	}
	for _, l := range lowLabels {
		if strings.Contains(s, foldLabel(l)) {
			return task.PriorityLow
		}
	}
	return task.PriorityNormal
}

var (
	zonedLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04Z07:00"}
	localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04"}
)

// ParseDue accepts an ISO-8601 date or date-time. Date-times without a zone
// are taken as UTC; a bare date is midnight UTC with hasTime false.
func ParseDue(raw string) (due time.Time, hasTime bool, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, true, true
		}
	}
	if t, err := time.ParseInLocation(time.DateOnly, raw, time.UTC); err == nil {
		return t, false, true
	}
	return time.Time{}, false, false
}
