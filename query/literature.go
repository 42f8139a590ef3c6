package query

import "time"

// LiteratureQuery targets the PubMed literature search.
type LiteratureQuery struct {
	Term             string `json:"term,omitempty"`
	Author           string `json:"author,omitempty"`
	PublishedAfter   string `json:"published_after,omitempty"`
	PublishedBefore  string `json:"published_before,omitempty"`
	IncludeAbstracts bool   `json:"include_abstracts,omitempty"`
	Size             int    `json:"page_size,omitempty"`
	Token            string `json:"page_token,omitempty"`
}

func (q *LiteratureQuery) SourceKind() SourceKind { return SourceLiterature }

func (q *LiteratureQuery) Filters() map[string]string {
	filters := map[string]string{}
	if q.Term != "" {
		filters["term"] = q.Term
	}
	if q.Author != "" {
		filters["author"] = q.Author
	}
	if q.PublishedAfter != "" {
		filters["published_after"] = q.PublishedAfter
	}
	if q.PublishedBefore != "" {
		filters["published_before"] = q.PublishedBefore
	}
	if q.IncludeAbstracts {
		filters["include_abstracts"] = "true"
	}
	return filters
}

func (q *LiteratureQuery) PageSize() int             { return clampPageSize(q.Size) }
func (q *LiteratureQuery) SetPageSize(size int)      { q.Size = clampPageSize(size) }
func (q *LiteratureQuery) PageToken() string         { return q.Token }
func (q *LiteratureQuery) SetPageToken(token string) { q.Token = token }

func (q *LiteratureQuery) Clone() Descriptor {
	clone := *q
	return &clone
}

// DropAbstracts removes abstract text from the projection, typically the
// dominant contributor to literature payload size.
func (q *LiteratureQuery) DropAbstracts() {
	q.IncludeAbstracts = false
}

// NarrowPublicationWindow restricts publication dates to the last n years.
// PubMed date parameters use the YYYY/MM/DD form.
func (q *LiteratureQuery) NarrowPublicationWindow(years int) {
	if years < 1 {
		years = 1
	}
	q.PublishedAfter = time.Now().UTC().AddDate(-years, 0, 0).Format("2006/01/02")
}
