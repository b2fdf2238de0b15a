package entity

import (
	"sort"
	"strconv"
)

// Payload is data returned by a provider, expressed as the columns to write.
type Payload interface {
	Columns() map[string]any
}

// RepositoryStats holds the basic statistics of a git repository.
type RepositoryStats struct {
	License        *string
	StarCount      int64
	ForkCount      int64
	OpenIssueCount int64
	Archived       *bool
}

// Columns implements Payload.
func (s RepositoryStats) Columns() map[string]any {
	cols := map[string]any{
		"license":          s.License,
		"star_count":       s.StarCount,
		"fork_count":       s.ForkCount,
		"open_issue_count": s.OpenIssueCount,
	}
	if s.Archived != nil {
		cols["archived"] = *s.Archived
	}
	return cols
}

// Languages maps a programming language to its share of the repository, in
// bytes for GitHub and in percent for GitLab.
type Languages map[string]float64

// Columns implements Payload.
func (l Languages) Columns() map[string]any {
	return map[string]any{"languages": map[string]float64(l)}
}

// CommitHistory maps the unix timestamp of the start of a week to the number of
// commits in that week.
type CommitHistory map[int64]int64

const secondsPerWeek = 7 * 24 * 60 * 60

// AddMissingZeros fills every week between the first and last recorded week
// that has no entry with an explicit zero.
func (h CommitHistory) AddMissingZeros() {
	if len(h) < 2 {
		return
	}
	weeks := h.sortedWeeks()
	first, last := weeks[0], weeks[len(weeks)-1]
	for w := first + secondsPerWeek; w < last; w += secondsPerWeek {
		if _, ok := h[w]; !ok {
			h[w] = 0
		}
	}
}

func (h CommitHistory) sortedWeeks() []int64 {
	weeks := make([]int64, 0, len(h))
	for w := range h {
		weeks = append(weeks, w)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i] < weeks[j] })
	return weeks
}

// Columns implements Payload.
func (h CommitHistory) Columns() map[string]any {
	out := make(map[string]int64, len(h))
	for w, c := range h {
		out[strconv.FormatInt(w, 10)] = c
	}
	return map[string]any{"commit_history": out}
}

// ContributorCount is the number of contributors of a repository.
type ContributorCount int64

// Columns implements Payload.
func (c ContributorCount) Columns() map[string]any {
	return map[string]any{"contributor_count": int64(c)}
}

// OrganisationLocation is the location an organisation registry reports.
type OrganisationLocation struct {
	Country *string
	City    *string
}

// Columns implements Payload.
func (l OrganisationLocation) Columns() map[string]any {
	return map[string]any{"country": l.Country, "city": l.City}
}

// DownloadCount is the number of downloads a package registry reports.
type DownloadCount int64

// Columns implements Payload.
func (d DownloadCount) Columns() map[string]any {
	return map[string]any{"download_count": int64(d)}
}

// ReverseDependencyCount is the number of packages depending on a package.
type ReverseDependencyCount int64

// Columns implements Payload.
func (r ReverseDependencyCount) Columns() map[string]any {
	return map[string]any{"reverse_dependency_count": int64(r)}
}

// Citations is the set of works citing a reference paper. The reference
// paper row itself only receives a fresh timestamp.
type Citations []*MentionRecord

// Columns implements Payload.
func (Citations) Columns() map[string]any {
	return map[string]any{}
}
