package query

// DrugQuery targets the openFDA drug label search.
type DrugQuery struct {
	Name       string   `json:"name,omitempty"`
	Ingredient string   `json:"ingredient,omitempty"`
	Route      string   `json:"route,omitempty"`
	Exact      bool     `json:"exact,omitempty"`
	Sections   []string `json:"sections,omitempty"`
	Size       int      `json:"page_size,omitempty"`
	Token      string   `json:"page_token,omitempty"`
}

func (q *DrugQuery) SourceKind() SourceKind { return SourceDrugs }

func (q *DrugQuery) Filters() map[string]string {
	filters := map[string]string{}
	if q.Name != "" {
		filters["name"] = q.Name
	}
	if q.Ingredient != "" {
		filters["ingredient"] = q.Ingredient
	}
	if q.Route != "" {
		filters["route"] = q.Route
	}
	if q.Exact {
		filters["exact"] = "true"
	}
	return filters
}

func (q *DrugQuery) PageSize() int             { return clampPageSize(q.Size) }
func (q *DrugQuery) SetPageSize(size int)      { q.Size = clampPageSize(size) }
func (q *DrugQuery) PageToken() string         { return q.Token }
func (q *DrugQuery) SetPageToken(token string) { q.Token = token }

func (q *DrugQuery) Clone() Descriptor {
	clone := *q
	clone.Sections = append([]string(nil), q.Sections...)
	return &clone
}

// RequireExactMatch switches the name/ingredient match from substring to
// exact, cutting the candidate set sharply.
func (q *DrugQuery) RequireExactMatch() {
	q.Exact = true
}

// TrimLabelSections projects only the core label sections instead of the
// full structured product label.
func (q *DrugQuery) TrimLabelSections() {
	q.Sections = []string{"indications_and_usage", "dosage_and_administration", "warnings"}
}
