package sqlstore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/warden/internal/domain"
)

type projectRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	OwnerID   string `db:"owner_id"`
	ParentID  string `db:"parent_id"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func projectRowFrom(p domain.Project) projectRow {
	return projectRow{
		ID:        p.ID,
		Name:      p.Name,
		OwnerID:   p.OwnerID,
		ParentID:  p.ParentID,
		CreatedAt: ts(p.CreatedAt),
		UpdatedAt: ts(p.UpdatedAt),
	}
}

func (r projectRow) toDomain() domain.Project {
	return domain.Project{
		ID:        r.ID,
		Name:      r.Name,
		OwnerID:   r.OwnerID,
		ParentID:  r.ParentID,
		CreatedAt: parseTS(r.CreatedAt),
		UpdatedAt: parseTS(r.UpdatedAt),
	}
}

type membershipRow struct {
	ProjectID string `db:"project_id"`
	UserID    string `db:"user_id"`
	Role      string `db:"role"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func membershipRowFrom(m domain.Membership) membershipRow {
	return membershipRow{
		ProjectID: m.ProjectID,
		UserID:    m.UserID,
		Role:      m.Role.String(),
		CreatedAt: ts(m.CreatedAt),
		UpdatedAt: ts(m.UpdatedAt),
	}
}

func (r membershipRow) toDomain() (domain.Membership, error) {
	role, err := domain.ParseRole(r.Role)
	if err != nil {
		return domain.Membership{}, fmt.Errorf("decode memberships.role: %w", err)
	}
	return domain.Membership{
		ProjectID: r.ProjectID,
		UserID:    r.UserID,
		Role:      role,
		CreatedAt: parseTS(r.CreatedAt),
		UpdatedAt: parseTS(r.UpdatedAt),
	}, nil
}

type taskRow struct {
	ID          string `db:"id"`
	ProjectID   string `db:"project_id"`
	ParentID    string `db:"parent_id"`
	StatusID    string `db:"status_id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	CreatedAt   string `db:"created_at"`
	UpdatedAt   string `db:"updated_at"`
}

func taskRowFrom(t domain.Task) taskRow {
	return taskRow{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		ParentID:    t.ParentID,
		StatusID:    t.StatusID,
		Title:       t.Title,
		Description: t.Description,
		CreatedAt:   ts(t.CreatedAt),
		UpdatedAt:   ts(t.UpdatedAt),
	}
}

func (r taskRow) toDomain() domain.Task {
	return domain.Task{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		ParentID:    r.ParentID,
		StatusID:    r.StatusID,
		Title:       r.Title,
		Description: r.Description,
		CreatedAt:   parseTS(r.CreatedAt),
		UpdatedAt:   parseTS(r.UpdatedAt),
	}
}

type statusRow struct {
	ID                string `db:"id"`
	ProjectID         string `db:"project_id"`
	Label             string `db:"label"`
	Color             string `db:"color"`
	Order             int    `db:"sort_order"`
	ShowStrikeThrough int    `db:"show_strike_through"`
	Hidden            int    `db:"hidden"`
	RequiresComment   int    `db:"requires_comment"`
	AllowsComment     int    `db:"allows_comment"`
	CreatedAt         string `db:"created_at"`
	UpdatedAt         string `db:"updated_at"`
}

func statusRowFrom(s domain.TaskStatus) statusRow {
	return statusRow{
		ID:                s.ID,
		ProjectID:         s.ProjectID,
		Label:             s.Label,
		Color:             s.Color,
		Order:             s.Order,
		ShowStrikeThrough: boolInt(s.Flags.ShowStrikeThrough),
		Hidden:            boolInt(s.Flags.Hidden),
		RequiresComment:   boolInt(s.Flags.RequiresComment),
		AllowsComment:     boolInt(s.Flags.AllowsComment),
		CreatedAt:         ts(s.CreatedAt),
		UpdatedAt:         ts(s.UpdatedAt),
	}
}

func (r statusRow) toDomain() domain.TaskStatus {
	color := r.Color
	if strings.TrimSpace(color) == "" {
		color = domain.BackfillColor(r.Label)
	}
	return domain.TaskStatus{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		Label:     r.Label,
		Color:     color,
		Order:     r.Order,
		Flags: domain.StatusFlags{
			ShowStrikeThrough: r.ShowStrikeThrough != 0,
			Hidden:            r.Hidden != 0,
			RequiresComment:   r.RequiresComment != 0,
			AllowsComment:     r.AllowsComment != 0,
		},
		CreatedAt: parseTS(r.CreatedAt),
		UpdatedAt: parseTS(r.UpdatedAt),
	}
}

type commentRow struct {
	ID        string `db:"id"`
	ProjectID string `db:"project_id"`
	TaskID    string `db:"task_id"`
	AuthorID  string `db:"author_id"`
	Body      string `db:"body"`
	StatusID  string `db:"status_id"`
	CreatedAt string `db:"created_at"`
}

func commentRowFrom(c domain.Comment) commentRow {
	return commentRow{
		ID:        c.ID,
		ProjectID: c.ProjectID,
		TaskID:    c.TaskID,
		AuthorID:  c.AuthorID,
		Body:      c.Body,
		StatusID:  c.StatusID,
		CreatedAt: ts(c.CreatedAt),
	}
}

func (r commentRow) toDomain() domain.Comment {
	return domain.Comment{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		TaskID:    r.TaskID,
		AuthorID:  r.AuthorID,
		Body:      r.Body,
		StatusID:  r.StatusID,
		CreatedAt: parseTS(r.CreatedAt),
	}
}

type changeEventRow struct {
	ID           int64  `db:"id"`
	ProjectID    string `db:"project_id"`
	EntityType   string `db:"entity_type"`
	EntityID     string `db:"entity_id"`
	Operation    string `db:"operation"`
	ActorID      string `db:"actor_id"`
	MetadataJSON string `db:"metadata_json"`
	CreatedAt    string `db:"created_at"`
}

func changeEventRowFrom(event domain.ChangeEvent) (changeEventRow, error) {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return changeEventRow{}, fmt.Errorf("encode change event metadata: %w", err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return changeEventRow{
		ProjectID:    event.ProjectID,
		EntityType:   string(event.EntityType),
		EntityID:     event.EntityID,
		Operation:    string(event.Operation),
		ActorID:      event.ActorID,
		MetadataJSON: string(raw),
		CreatedAt:    ts(occurred),
	}, nil
}

func (r changeEventRow) toDomain() (domain.ChangeEvent, error) {
	raw := r.MetadataJSON
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	metadata := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("decode change_events.metadata_json: %w", err)
	}
	return domain.ChangeEvent{
		ID:         r.ID,
		ProjectID:  r.ProjectID,
		EntityType: domain.EntityType(r.EntityType),
		EntityID:   r.EntityID,
		Operation:  domain.ChangeOperation(r.Operation),
		ActorID:    r.ActorID,
		Metadata:   metadata,
		OccurredAt: parseTS(r.CreatedAt),
	}, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// ts formats a timestamp for storage.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses a stored timestamp, yielding the zero time on malformed input.
func parseTS(v string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
