package query

import (
	"strings"
	"time"
)

// ClinicalTrialQuery targets the ClinicalTrials.gov study search.
type ClinicalTrialQuery struct {
	Condition     string   `json:"condition,omitempty"`
	Intervention  string   `json:"intervention,omitempty"`
	Status        []string `json:"status,omitempty"`
	StudyType     string   `json:"study_type,omitempty"`
	StartedAfter  string   `json:"started_after,omitempty"`
	StartedBefore string   `json:"started_before,omitempty"`
	Fields        []string `json:"fields,omitempty"`
	Size          int      `json:"page_size,omitempty"`
	Token         string   `json:"page_token,omitempty"`
}

func (q *ClinicalTrialQuery) SourceKind() SourceKind { return SourceClinicalTrials }

func (q *ClinicalTrialQuery) Filters() map[string]string {
	filters := map[string]string{}
	if q.Condition != "" {
		filters["condition"] = q.Condition
	}
	if q.Intervention != "" {
		filters["intervention"] = q.Intervention
	}
	if len(q.Status) > 0 {
		filters["status"] = strings.Join(q.Status, ",")
	}
	if q.StudyType != "" {
		filters["study_type"] = q.StudyType
	}
	if q.StartedAfter != "" {
		filters["started_after"] = q.StartedAfter
	}
	if q.StartedBefore != "" {
		filters["started_before"] = q.StartedBefore
	}
	return filters
}

func (q *ClinicalTrialQuery) PageSize() int             { return clampPageSize(q.Size) }
func (q *ClinicalTrialQuery) SetPageSize(size int)      { q.Size = clampPageSize(size) }
func (q *ClinicalTrialQuery) PageToken() string         { return q.Token }
func (q *ClinicalTrialQuery) SetPageToken(token string) { q.Token = token }

func (q *ClinicalTrialQuery) Clone() Descriptor {
	clone := *q
	clone.Status = append([]string(nil), q.Status...)
	clone.Fields = append([]string(nil), q.Fields...)
	return &clone
}

// RestrictToRecruiting narrows the status filter to actively recruiting
// studies.
func (q *ClinicalTrialQuery) RestrictToRecruiting() {
	q.Status = []string{"RECRUITING"}
}

// RequireInterventional adds the interventional study-type filter.
func (q *ClinicalTrialQuery) RequireInterventional() {
	q.StudyType = "INTERVENTIONAL"
}

// NarrowStartWindow restricts study start dates to the last n years.
func (q *ClinicalTrialQuery) NarrowStartWindow(years int) {
	if years < 1 {
		years = 1
	}
	q.StartedAfter = time.Now().UTC().AddDate(-years, 0, 0).Format("2006-01-02")
}

// TrimFields reduces field projection to the compact study summary set.
func (q *ClinicalTrialQuery) TrimFields() {
	q.Fields = []string{"NCTId", "BriefTitle", "OverallStatus", "StartDate"}
}
