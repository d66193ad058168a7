package gateway

import "time"

// Issue is the normalized record shape consumed by the launcher. The
// remote's wire schema is mapped into this on the way in and never leaks
// past this package.
type Issue struct {
	Key         string `json:"key"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Resolved    bool   `json:"resolved"`
}

// SearchKey returns the string the launcher matches queries against.
func (i Issue) SearchKey() string {
	return i.Key + " " + i.Summary
}

// IssueType is a creatable issue type within a project.
type IssueType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Project is a normalized tracker project.
type Project struct {
	ID         string      `json:"id"`
	Key        string      `json:"key"`
	Name       string      `json:"name"`
	IssueTypes []IssueType `json:"issue_types,omitempty"`
}

// SearchKey returns the string the launcher matches queries against.
func (p Project) SearchKey() string {
	return p.Key + " " + p.Name
}

// User is an assignable tracker user.
type User struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// Comment is a normalized issue comment.
type Comment struct {
	Body              string    `json:"body"`
	Author            string    `json:"author"`
	AuthorDisplayName string    `json:"author_display_name"`
	Created           time.Time `json:"created"`
}

// Wire types below mirror the tracker's REST payloads.

type wireSearchResponse struct {
	Total  int         `json:"total"`
	Issues []wireIssue `json:"issues"`
}

type wireIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		IssueType   struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Status struct {
			Name string `json:"name"`
		} `json:"status"`
		Resolution *struct {
			Name string `json:"name"`
		} `json:"resolution"`
	} `json:"fields"`
}

func (w wireIssue) normalize() Issue {
	return Issue{
		Key:         w.Key,
		Summary:     w.Fields.Summary,
		Description: w.Fields.Description,
		Type:        w.Fields.IssueType.Name,
		Status:      w.Fields.Status.Name,
		Resolved:    w.Fields.Resolution != nil,
	}
}

func normalizeIssues(wire []wireIssue) []Issue {
	issues := make([]Issue, len(wire))
	for i, w := range wire {
		issues[i] = w.normalize()
	}
	return issues
}

type wireProject struct {
	ID         string `json:"id"`
	Key        string `json:"key"`
	Name       string `json:"name"`
	IssueTypes []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Subtask bool   `json:"subtask"`
	} `json:"issueTypes"`
}

func (w wireProject) normalize() Project {
	p := Project{
		ID:   w.ID,
		Key:  w.Key,
		Name: w.Name,
	}
	for _, it := range w.IssueTypes {
		if it.Subtask {
			continue
		}
		p.IssueTypes = append(p.IssueTypes, IssueType{ID: it.ID, Name: it.Name})
	}
	return p
}

type wireUser struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type wireCommentsResponse struct {
	Comments []wireComment `json:"comments"`
}

type wireComment struct {
	Body   string `json:"body"`
	Author struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	} `json:"author"`
	Created string `json:"created"`
}
