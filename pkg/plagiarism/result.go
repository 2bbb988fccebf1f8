package plagiarism

// Source is a single external match reported by the provider.
type Source struct {
	URL        string  `json:"url"`
	Title      string  `json:"title,omitempty"`
	Similarity float64 `json:"similarity"`
}

// Result is the provider-independent outcome of a detection call.
type Result struct {
	SimilarityScore        float64                `json:"similarity_score"`
	Sources                []Source               `json:"sources"`
	AIGeneratedProbability *float64               `json:"ai_generated_probability,omitempty"`
	Provider               string                 `json:"provider"`
	Raw                    map[string]interface{} `json:"raw,omitempty"`
}

// NormalizeScore maps a fraction or a percentage into [0,1].
func NormalizeScore(value float64) float64 {
	if value > 1 {
		value = value / 100
	}
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
