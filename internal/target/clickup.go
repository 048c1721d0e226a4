package target

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kazz187/taskmirror/internal/task"
	"github.com/kazz187/taskmirror/pkg/cerr"
	"github.com/kazz187/taskmirror/pkg/restclient"
)

const DefaultClickUpBaseURL = "https://api.clickup.com/api/v2"

// maxListPages guards against an API that never reports the last page.
const maxListPages = 1000

type ClickUpConfig struct {
	Token         string
	ListID        string
	TeamID        string
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
}

type ClickUpClient struct {
	api    *restclient.Client
	listID string
	teamID string
}

var _ Client = (*ClickUpClient)(nil)

func NewClickUpClient(cfg ClickUpConfig) *ClickUpClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultClickUpBaseURL
	}
	return &ClickUpClient{
		api: restclient.New(restclient.Config{
			BaseURL:       cfg.BaseURL,
			Header:        http.Header{"Authorization": []string{cfg.Token}},
			Timeout:       cfg.Timeout,
			RatePerSecond: cfg.RatePerSecond,
		}),
		listID: cfg.ListID,
		teamID: cfg.TeamID,
	}
}

type clickUpTask struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type clickUpTaskPage struct {
	Tasks    []clickUpTask `json:"tasks"`
	LastPage *bool         `json:"last_page"`
}

func (c *ClickUpClient) ListTasks(ctx context.Context) ([]*Task, error) {
	var tasks []*Task
	for page := 0; page < maxListPages; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("include_closed", "true")
		q.Set("subtasks", "true")
		path := fmt.Sprintf("/list/%s/task?%s", c.listID, q.Encode())

		var res clickUpTaskPage
		if err := c.api.Do(ctx, http.MethodGet, path, nil, &res); err != nil {
			return nil, cerr.WrapTransportError("clickup list tasks", err)
		}
		for _, t := range res.Tasks {
			tasks = append(tasks, &Task{ID: t.ID, Name: t.Name, Description: t.Description})
		}
		// Older responses omit last_page; an empty page ends the listing then.
		if res.LastPage != nil && *res.LastPage {
			return tasks, nil
		}
		if res.LastPage == nil && len(res.Tasks) == 0 {
			return tasks, nil
		}
	}
	slog.WarnContext(ctx, "clickup: list pagination stopped at page limit", "pages", maxListPages)
	return tasks, nil
}

type createTaskBody struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Priority    int     `json:"priority"`
	DueDate     *int64  `json:"due_date,omitempty"`
	DueDateTime bool    `json:"due_date_time,omitempty"`
	Assignees   []int64 `json:"assignees,omitempty"`
}

type assigneeDelta struct {
	Add []int64 `json:"add"`
}

type updateTaskBody struct {
	Name        string         `json:"name"`
	Status      string         `json:"status"`
	Priority    int            `json:"priority"`
	DueDate     *int64         `json:"due_date,omitempty"`
	DueDateTime bool           `json:"due_date_time,omitempty"`
	Assignees   *assigneeDelta `json:"assignees,omitempty"`
}

func dueMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func userIDs(ids []task.UserID) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func (c *ClickUpClient) CreateTask(ctx context.Context, p *Payload) (*Task, error) {
	body := createTaskBody{
		Name:        p.Name,
		Description: p.Description,
		Status:      p.Status.String(),
		Priority:    int(p.Priority),
		DueDate:     dueMillis(p.Due),
		DueDateTime: p.Due != nil && p.DueHasTime,
		Assignees:   userIDs(p.Assignees),
	}
	var res clickUpTask
	path := fmt.Sprintf("/list/%s/task", c.listID)
	if err := c.api.Do(ctx, http.MethodPost, path, body, &res); err != nil {
		return nil, cerr.WrapTransportError("clickup create task", err)
	}
	if res.ID == "" {
		return nil, cerr.NewError(cerr.Unavailable, "clickup create task returned no id", nil)
	}
	return &Task{ID: res.ID, Name: res.Name, Description: res.Description}, nil
}

func (c *ClickUpClient) UpdateTask(ctx context.Context, id string, p *Payload) error {
	body := updateTaskBody{
		Name:        p.Name,
		Status:      p.Status.String(),
		Priority:    int(p.Priority),
		DueDate:     dueMillis(p.Due),
		DueDateTime: p.Due != nil && p.DueHasTime,
	}
	if ids := userIDs(p.Assignees); len(ids) > 0 {
		body.Assignees = &assigneeDelta{Add: ids}
	}
	if err := c.api.Do(ctx, http.MethodPut, "/task/"+url.PathEscape(id), body, nil); err != nil {
		return cerr.WrapTransportError("clickup update task", err)
	}
	return nil
}

type clickUpUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type clickUpTeam struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Members []struct {
		User clickUpUser `json:"user"`
	} `json:"members"`
}

type clickUpTeams struct {
	Teams []clickUpTeam `json:"teams"`
}

// ListMembers returns the members of the configured team, or of the first
// team the token can see when none is configured.
func (c *ClickUpClient) ListMembers(ctx context.Context) ([]*Member, error) {
	var res clickUpTeams
	if err := c.api.Do(ctx, http.MethodGet, "/team", nil, &res); err != nil {
		return nil, cerr.WrapTransportError("clickup list teams", err)
	}
	if len(res.Teams) == 0 {
		return nil, cerr.NewError(cerr.NotFound, "clickup token has no teams", nil)
	}
	team := &res.Teams[0]
	if c.teamID != "" {
		team = nil
		for i := range res.Teams {
			if res.Teams[i].ID == c.teamID {
				team = &res.Teams[i]
				break
			}
		}
		if team == nil {
			return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("clickup team %s not found", c.teamID), nil)
		}
	}

	members := make([]*Member, 0, len(team.Members))
	for _, m := range team.Members {
		if m.User.ID == 0 {
			continue
		}
		members = append(members, &Member{
			ID:       task.UserID(m.User.ID),
			Username: m.User.Username,
			Email:    m.User.Email,
		})
	}
	return members, nil
}
