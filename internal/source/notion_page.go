package source

import (
	"strings"
	"time"
)

// Property names are tried in order; the first one present on the page wins.
var (
	titleProperties       = []string{"Tên công việc", "Name", "Task"}
	statusProperties      = []string{"Trạng thái", "Status"}
	priorityProperties    = []string{"Mức độ ưu tiên", "Priority"}
	dueProperties         = []string{"Deadline", "Due Date"}
	assigneeProperties    = []string{"Phân công", "Assign", "Assignee"}
	descriptionProperties = []string{"Ghi chú", "Description"}
)

type notionPage struct {
	ID          string                    `json:"id"`
	CreatedTime string                    `json:"created_time"`
	Archived    bool                      `json:"archived"`
	InTrash     bool                      `json:"in_trash"`
	Properties  map[string]notionProperty `json:"properties"`
}

type notionText struct {
	PlainText string `json:"plain_text"`
	Text      *struct {
		Content string `json:"content"`
	} `json:"text"`
}

type notionOption struct {
	Name string `json:"name"`
}

type notionDate struct {
	Start string `json:"start"`
}

type notionPerson struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Person *struct {
		Email string `json:"email"`
	} `json:"person"`
}

// notionProperty covers the property shapes the mirror reads. Fields that do
// not apply to a given property type stay empty.
type notionProperty struct {
	Type     string         `json:"type"`
	Title    []notionText   `json:"title"`
	RichText []notionText   `json:"rich_text"`
	Status   *notionOption  `json:"status"`
	Select   *notionOption  `json:"select"`
	Date     *notionDate    `json:"date"`
	People   []notionPerson `json:"people"`
}

func joinText(segments []notionText) string {
	var b strings.Builder
	for _, s := range segments {
		switch {
		case s.PlainText != "":
			b.WriteString(s.PlainText)
		case s.Text != nil:
			b.WriteString(s.Text.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

func (p notionPage) property(names []string) (notionProperty, bool) {
	for _, name := range names {
		if prop, ok := p.Properties[name]; ok {
			return prop, true
		}
	}
	return notionProperty{}, false
}

func (p notionPage) text(names []string) string {
	prop, ok := p.property(names)
	if !ok {
		return ""
	}
	if len(prop.Title) > 0 {
		return joinText(prop.Title)
	}
	return joinText(prop.RichText)
}

func (p notionPage) option(names []string) string {
	prop, ok := p.property(names)
	if !ok {
		return ""
	}
	if prop.Status != nil {
		return prop.Status.Name
	}
	if prop.Select != nil {
		return prop.Select.Name
	}
	return ""
}

// record converts the page. Pages without an id, archived or trashed pages
// yield nil.
func (p notionPage) record() *Record {
	if p.ID == "" || p.Archived || p.InTrash {
		return nil
	}
	rec := &Record{
		ID:          p.ID,
		Title:       p.text(titleProperties),
		Status:      p.option(statusProperties),
		Priority:    p.option(priorityProperties),
		Description: p.text(descriptionProperties),
	}
	if t, err := time.Parse(time.RFC3339Nano, p.CreatedTime); err == nil {
		rec.CreatedAt = t
	}
	if prop, ok := p.property(dueProperties); ok && prop.Date != nil {
		rec.Due = prop.Date.Start
	}
	if prop, ok := p.property(assigneeProperties); ok {
		for _, person := range prop.People {
			a := Assignee{Name: person.Name, Email: person.Email}
			if a.Email == "" && person.Person != nil {
				a.Email = person.Person.Email
			}
			if a.Name == "" && a.Email == "" {
				continue
			}
			rec.Assignees = append(rec.Assignees, a)
		}
	}
	return rec
}
