package query

import (
	"github.com/sahilm/fuzzy"

	"github.com/issuedeck/issuedeck/pkg/gateway"
)

// issueSource implements fuzzy.Source over issue search keys.
type issueSource []gateway.Issue

func (s issueSource) String(i int) string { return s[i].SearchKey() }
func (s issueSource) Len() int            { return len(s) }

// projectSource implements fuzzy.Source over project search keys.
type projectSource []gateway.Project

func (s projectSource) String(i int) string { return s[i].SearchKey() }
func (s projectSource) Len() int            { return len(s) }

// FilterIssues returns the issues fuzzy-matching q against "KEY summary",
// best match first. An empty query returns the input unchanged.
func FilterIssues(issues []gateway.Issue, q string) []gateway.Issue {
	if q == "" {
		return issues
	}
	matches := fuzzy.FindFrom(q, issueSource(issues))
	filtered := make([]gateway.Issue, len(matches))
	for i, m := range matches {
		filtered[i] = issues[m.Index]
	}
	return filtered
}

// FilterProjects returns the projects fuzzy-matching q against "KEY name",
// best match first. An empty query returns the input unchanged.
func FilterProjects(projects []gateway.Project, q string) []gateway.Project {
	if q == "" {
		return projects
	}
	matches := fuzzy.FindFrom(q, projectSource(projects))
	filtered := make([]gateway.Project, len(matches))
	for i, m := range matches {
		filtered[i] = projects[m.Index]
	}
	return filtered
}
