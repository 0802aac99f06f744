package completion

// Recognized completion models. Requests naming anything else are
// rejected before any persistence happens.

// DefaultModel is used when an exchange request does not name a model.
const DefaultModel = "llama3-8b-8192"

// ModelInfo describes one selectable completion model.
type ModelInfo struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

var models = []ModelInfo{
	{ID: DefaultModel, Label: "Llama 3 8B", Description: "Default - fast general-purpose model"},
	{ID: "openai/gpt-oss-20b", Label: "Open AI", Description: "Fast & balanced - great for most tasks"},
	{ID: "llama-3.3-70b-versatile", Label: "Llama 3.3 70B", Description: "More powerful - better reasoning"},
	{ID: "moonshotai/kimi-k2-instruct", Label: "Moonshot AI", Description: "Creative & long context"},
	{ID: "llama-3.1-8b-instant", Label: "Llama Instant", Description: "Meta's low-latency llama model"},
}

// Models returns the fixed set of selectable models.
func Models() []ModelInfo {
	out := make([]ModelInfo, len(models))
	copy(out, models)
	return out
}

// IsKnownModel reports whether modelID is in the fixed model set.
func IsKnownModel(modelID string) bool {
	for _, m := range models {
		if m.ID == modelID {
			return true
		}
	}
	return false
}
