package refine

// PromptTemplate is a static descriptor used when presenting refinement
// choices to a human or a calling agent.
type PromptTemplate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var promptTemplates = []PromptTemplate{
	{
		Name:        "overflow-summary",
		Description: "Explain that the result exceeded the size budget, by how much, and which fields contributed most.",
	},
	{
		Name:        "refinement-choices",
		Description: "Present the ranked narrowing options and ask the caller to pick one or more before retrying.",
	},
	{
		Name:        "progressive-offer",
		Description: "Offer progressive page-by-page loading with an explicit size budget as an alternative to narrowing.",
	},
}

// PromptTemplates returns the static presentation descriptors. Pure data;
// callers may not rely on mutating the returned slice.
func PromptTemplates() []PromptTemplate {
	out := make([]PromptTemplate, len(promptTemplates))
	copy(out, promptTemplates)
	return out
}
