package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Validate checks data against the shape required by kind. It is pure and
// never touches the database.
func Validate(kind QueryType, data map[string]any) error {
	if kind.IsTerminal() {
		_, err := DecodeFinished(data)
		return err
	}
	_, err := DecodeRequest(kind, data)
	return err
}

// CheckAllowed rejects kinds the agent may not send in the current dialect.
func CheckAllowed(kind QueryType, allowed []QueryType) error {
	for _, a := range allowed {
		if a == kind {
			return nil
		}
	}
	return schemaErrorf(reasonKindNotAllowed, kind, joinKinds(allowed))
}

// DecodeFinished validates an OPTIMIZE_FINISHED payload and builds the
// result. String values are copied unchanged.
func DecodeFinished(data map[string]any) (OptimizationResult, error) {
	raw, ok := data[keyOptimizedQueriesAndExplanations]
	if !ok {
		return OptimizationResult{}, &SchemaError{Reason: reasonMissingOptimized}
	}
	items, ok := raw.([]any)
	if !ok {
		return OptimizationResult{}, &SchemaError{Reason: reasonOptimizedNotList}
	}

	queries := make([]OptimizedQuery, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return OptimizationResult{}, schemaErrorf(reasonOptimizedNotObject, i)
		}
		q, err := decodeOptimizedQuery(i, obj)
		if err != nil {
			return OptimizationResult{}, err
		}
		queries = append(queries, q)
	}

	rawSuggestions, ok := data[keySuggestions]
	if !ok {
		return OptimizationResult{}, &SchemaError{Reason: reasonMissingSuggestions}
	}
	list, ok := rawSuggestions.([]any)
	if !ok {
		return OptimizationResult{}, &SchemaError{Reason: reasonSuggestionsNotList}
	}
	suggestions := make([]string, 0, len(list))
	for _, s := range list {
		suggestions = append(suggestions, suggestionText(s))
	}

	if err := rejectUnexpected(QueryTypeOptimizeFinished, data, keyOptimizedQueriesAndExplanations, keySuggestions); err != nil {
		return OptimizationResult{}, err
	}

	return OptimizationResult{
		OptimizedQueriesAndExplanations: queries,
		Suggestions:                     suggestions,
	}, nil
}

func decodeOptimizedQuery(i int, data map[string]any) (OptimizedQuery, error) {
	rawQuery, ok := data[keyQuery]
	if !ok {
		return OptimizedQuery{}, &SchemaError{Reason: reasonMissingOQQuery}
	}
	query, ok := rawQuery.(string)
	if !ok {
		return OptimizedQuery{}, &SchemaError{Reason: reasonOQQueryNotStr}
	}
	rawExplanation, ok := data[keyExplanation]
	if !ok {
		return OptimizedQuery{}, &SchemaError{Reason: reasonMissingOQExplain}
	}
	explanation, ok := rawExplanation.(string)
	if !ok {
		return OptimizedQuery{}, &SchemaError{Reason: reasonOQExplainNotStr}
	}
	if key, ok := firstUnexpected(data, keyQuery, keyExplanation); ok {
		return OptimizedQuery{}, schemaErrorf(reasonOQUnexpectedKey, i, key, quoteJoin([]string{keyQuery, keyExplanation}))
	}
	return OptimizedQuery{Query: query, Explanation: explanation}, nil
}

// suggestionText keeps strings as they are and encodes anything else as JSON.
func suggestionText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// DecodeRequest validates data for a request kind and returns the typed
// request.
func DecodeRequest(kind QueryType, data map[string]any) (Request, error) {
	switch shapes[kind] {
	case shapeCountNodes:
		labels, err := requireLabels(kind, data, keyLabels)
		if err != nil {
			return nil, err
		}
		if err := rejectUnexpected(kind, data, keyLabels); err != nil {
			return nil, err
		}
		return CountNodesRequest{Type: kind, Labels: labels}, nil

	case shapeProperties:
		labels, err := requireLabels(kind, data, keyLabels)
		if err != nil {
			return nil, err
		}
		if err := rejectUnexpected(kind, data, keyLabels); err != nil {
			return nil, err
		}
		return PropertiesRequest{Type: kind, Labels: labels}, nil

	case shapeRelationshipCount:
		from, err := requireLabels(kind, data, keyFromNodeLabels)
		if err != nil {
			return nil, err
		}
		to, err := requireLabels(kind, data, keyToNodeLabels)
		if err != nil {
			return nil, err
		}
		relType, err := requireString(kind, data, keyRelType)
		if err != nil {
			return nil, err
		}
		if err := rejectUnexpected(kind, data, keyFromNodeLabels, keyToNodeLabels, keyRelType); err != nil {
			return nil, err
		}
		return RelationshipCountRequest{Type: kind, FromNodeLabels: from, ToNodeLabels: to, RelType: relType}, nil

	case shapeExplain:
		query, err := requireString(kind, data, keyQuery)
		if err != nil {
			return nil, err
		}
		if err := rejectUnexpected(kind, data, keyQuery); err != nil {
			return nil, err
		}
		return ExplainRequest{Type: kind, Query: query}, nil
	}

	return nil, schemaErrorf(reasonKindNotAllowed, kind, joinKinds(requestKinds()))
}

func requireLabels(kind QueryType, data map[string]any, key string) ([]string, error) {
	raw, ok := data[key]
	if !ok {
		return nil, schemaErrorf(reasonMissingKey, kind, key)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, schemaErrorf(reasonLabelsNotList, key, kind)
	}
	if len(list) == 0 {
		return nil, schemaErrorf(reasonLabelsEmpty, key, kind)
	}
	labels := make([]string, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok || s == "" {
			return nil, schemaErrorf(reasonLabelNotStr, i, key, kind)
		}
		labels[i] = s
	}
	return labels, nil
}

func requireString(kind QueryType, data map[string]any, key string) (string, error) {
	raw, ok := data[key]
	if !ok {
		return "", schemaErrorf(reasonMissingKey, kind, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", schemaErrorf(reasonValueNotStr, key, kind)
	}
	if strings.TrimSpace(s) == "" {
		return "", schemaErrorf(reasonValueEmpty, key, kind)
	}
	return s, nil
}

// rejectUnexpected reports the first unknown key in sorted order.
func rejectUnexpected(kind QueryType, data map[string]any, allowed ...string) error {
	if key, ok := firstUnexpected(data, allowed...); ok {
		return schemaErrorf(reasonUnexpectedKey, kind, key, quoteJoin(allowed))
	}
	return nil
}

func firstUnexpected(data map[string]any, allowed ...string) (string, bool) {
	var extra []string
	for k := range data {
		known := false
		for _, a := range allowed {
			if k == a {
				known = true
				break
			}
		}
		if !known {
			extra = append(extra, k)
		}
	}
	if len(extra) == 0 {
		return "", false
	}
	sort.Strings(extra)
	return extra[0], true
}

func requestKinds() []QueryType {
	var out []QueryType
	for _, q := range KnownQueryTypes() {
		if q.IsRequest() {
			out = append(out, q)
		}
	}
	return out
}

func joinKinds(kinds []QueryType) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

func quoteJoin(keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = "'" + k + "'"
	}
	return strings.Join(parts, ", ")
}
