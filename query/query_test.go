package query

import (
	"encoding/json"
	"testing"
)

func TestSourceKindValid(t *testing.T) {
	for _, kind := range []SourceKind{SourceClinicalTrials, SourceLiterature, SourceDrugs} {
		if !kind.Valid() {
			t.Fatalf("%s must be valid", kind)
		}
	}
	if SourceKind("genomics").Valid() {
		t.Fatal("unknown kind reported valid")
	}
}

func TestDecodePerSource(t *testing.T) {
	raw := json.RawMessage(`{"condition":"melanoma","page_size":50}`)
	q, err := Decode(SourceClinicalTrials, raw)
	if err != nil {
		t.Fatal(err)
	}
	ct, ok := q.(*ClinicalTrialQuery)
	if !ok {
		t.Fatalf("expected *ClinicalTrialQuery, got %T", q)
	}
	if ct.Condition != "melanoma" || ct.PageSize() != 50 {
		t.Fatalf("decoded wrong values: %+v", ct)
	}

	q, err = Decode(SourceLiterature, json.RawMessage(`{"term":"sepsis","include_abstracts":true}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := q.(*LiteratureQuery); !ok {
		t.Fatalf("expected *LiteratureQuery, got %T", q)
	}

	q, err = Decode(SourceDrugs, json.RawMessage(`{"name":"metformin"}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := q.(*DrugQuery); !ok {
		t.Fatalf("expected *DrugQuery, got %T", q)
	}

	if _, err := Decode(SourceKind("genomics"), raw); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if _, err := Decode(SourceClinicalTrials, json.RawMessage(`{broken`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestPageSizeClamped(t *testing.T) {
	q := &ClinicalTrialQuery{}
	if q.PageSize() != 1 {
		t.Fatalf("zero size must clamp to 1, got %d", q.PageSize())
	}
	q.SetPageSize(0)
	if q.Size != 1 {
		t.Fatalf("SetPageSize(0) must store 1, got %d", q.Size)
	}
	q.SetPageSize(-3)
	if q.Size != 1 {
		t.Fatalf("negative size must clamp to 1, got %d", q.Size)
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := &ClinicalTrialQuery{
		Condition: "asthma",
		Status:    []string{"RECRUITING", "COMPLETED"},
		Fields:    []string{"NCTId"},
		Size:      25,
	}
	clone := original.Clone().(*ClinicalTrialQuery)
	clone.Status[0] = "TERMINATED"
	clone.Fields[0] = "BriefTitle"
	clone.Condition = "copd"

	if original.Status[0] != "RECRUITING" {
		t.Fatal("clone shares status slice with original")
	}
	if original.Fields[0] != "NCTId" {
		t.Fatal("clone shares fields slice with original")
	}
	if original.Condition != "asthma" {
		t.Fatal("clone mutation leaked into original")
	}

	drug := &DrugQuery{Sections: []string{"warnings"}}
	drugClone := drug.Clone().(*DrugQuery)
	drugClone.Sections[0] = "overdosage"
	if drug.Sections[0] != "warnings" {
		t.Fatal("drug clone shares sections slice")
	}
}

func TestFiltersReturnsCopy(t *testing.T) {
	q := &LiteratureQuery{Term: "sepsis", IncludeAbstracts: true}
	filters := q.Filters()
	if filters["term"] != "sepsis" || filters["include_abstracts"] != "true" {
		t.Fatalf("unexpected filters: %v", filters)
	}
	filters["term"] = "mutated"
	if q.Term != "sepsis" {
		t.Fatal("filter map mutation leaked into query")
	}
}

func TestNarrowings(t *testing.T) {
	ct := &ClinicalTrialQuery{}
	ct.RestrictToRecruiting()
	if len(ct.Status) != 1 || ct.Status[0] != "RECRUITING" {
		t.Fatalf("unexpected status: %v", ct.Status)
	}
	ct.RequireInterventional()
	if ct.StudyType != "INTERVENTIONAL" {
		t.Fatalf("unexpected study type: %s", ct.StudyType)
	}
	ct.NarrowStartWindow(5)
	if ct.StartedAfter == "" {
		t.Fatal("expected start window set")
	}
	ct.TrimFields()
	if len(ct.Fields) != 4 || ct.Fields[0] != "NCTId" {
		t.Fatalf("unexpected fields: %v", ct.Fields)
	}

	lit := &LiteratureQuery{IncludeAbstracts: true}
	lit.DropAbstracts()
	if lit.IncludeAbstracts {
		t.Fatal("abstracts still included")
	}
	lit.NarrowPublicationWindow(0)
	if lit.PublishedAfter == "" {
		t.Fatal("expected publication window set")
	}

	drug := &DrugQuery{}
	drug.RequireExactMatch()
	if !drug.Exact {
		t.Fatal("exact match not set")
	}
	drug.TrimLabelSections()
	if len(drug.Sections) != 3 {
		t.Fatalf("unexpected sections: %v", drug.Sections)
	}
}
