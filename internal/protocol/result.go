package protocol

// OptimizedQuery is one proposed rewrite with its rationale.
type OptimizedQuery struct {
	Query       string `json:"query" yaml:"query"`
	Explanation string `json:"explanation" yaml:"explanation"`
}

// OptimizationResult is the payload of the terminal message. Order is
// significant: the first query is the primary recommendation.
type OptimizationResult struct {
	OptimizedQueriesAndExplanations []OptimizedQuery `json:"optimized_queries_and_explanations" yaml:"optimized_queries_and_explanations"`
	Suggestions                     []string         `json:"suggestions" yaml:"suggestions"`
}

// Data returns the wire form of the result.
func (r OptimizationResult) Data() map[string]any {
	queries := make([]any, len(r.OptimizedQueriesAndExplanations))
	for i, q := range r.OptimizedQueriesAndExplanations {
		queries[i] = map[string]any{keyQuery: q.Query, keyExplanation: q.Explanation}
	}
	return map[string]any{
		keyOptimizedQueriesAndExplanations: queries,
		keySuggestions:                     stringsToAny(r.Suggestions),
	}
}
