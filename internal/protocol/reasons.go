package protocol

// Wire keys.
const (
	keyQueryType = "query_type"
	keyData      = "data"

	keyOptimizedQueriesAndExplanations = "optimized_queries_and_explanations"
	keySuggestions                     = "suggestions"
	keyQuery                           = "query"
	keyExplanation                     = "explanation"
	keyLabels                          = "labels"
	keyFromNodeLabels                  = "from_node_labels"
	keyToNodeLabels                    = "to_node_labels"
	keyRelType                         = "rel_type"
	keyResult                          = "result"

	KeyOriginalQuery = "original_query"
	KeyDBStats       = "db_stats"
)

// Reason formats. Every failure mode has its own wording; the agent sees
// these strings verbatim.
const (
	reasonEmptyMessage     = "Message is empty. Send exactly one JSON object with the keys 'query_type' and 'data'."
	reasonInvalidJSON      = "Message is not valid JSON: %s. Send exactly one JSON object with the keys 'query_type' and 'data' and no other text."
	reasonNotObject        = "Message must be a JSON object with the keys 'query_type' and 'data'."
	reasonTrailingContent  = "Message must contain exactly one JSON object and no other text."
	reasonMissingQueryType = "Message must contain the 'query_type' key."
	reasonMissingData      = "Message must contain the 'data' key."
	reasonUnexpectedTopKey = "Message must contain only the keys 'query_type' and 'data', found unexpected key '%s'."
	reasonQueryTypeNotStr  = "Value of key 'query_type' must be str."
	reasonUnknownQueryType = "Unknown query_type: %s. Allowed values: %s."
	reasonDataNotObject    = "Value of key 'data' in request with query_type: %s must be an object."
	reasonKindNotAllowed   = "query_type: %s cannot be sent by you. Allowed values: %s."

	reasonMissingOptimized   = "Request with query_type: OPTIMIZE_FINISHED must contain 'optimized_queries_and_explanations' key in data."
	reasonOptimizedNotList   = "Value of key 'optimized_queries_and_explanations' in data of request with query_type: OPTIMIZE_FINISHED must be list."
	reasonOptimizedNotObject = "Item %d of 'optimized_queries_and_explanations' in data of request with query_type: OPTIMIZE_FINISHED must be an object with 'query' and 'explanation' keys."
	reasonMissingOQQuery     = "Request with query_type: OPTIMIZE_FINISHED data must contain 'query' key in each item of its optimized_queries_and_explanations field."
	reasonOQQueryNotStr      = "'query' key in data of request type OPTIMIZE_FINISHED must be str"
	reasonMissingOQExplain   = "Request with query_type: OPTIMIZE_FINISHED data must contain 'explanation' key in each item of its optimized_queries_and_explanations field."
	reasonOQExplainNotStr    = "'explanation' key in data of request type OPTIMIZE_FINISHED must be str"
	reasonOQUnexpectedKey    = "Item %d of 'optimized_queries_and_explanations' in data of request with query_type: OPTIMIZE_FINISHED contains unexpected key '%s'. Allowed keys: %s."
	reasonMissingSuggestions = "Request with query_type: OPTIMIZE_FINISHED must contain 'suggestions' key in data."
	reasonSuggestionsNotList = "Value of key 'suggestions' in data of request with query_type: OPTIMIZE_FINISHED must be list of str."

	reasonMissingKey    = "Request with query_type: %s must contain '%s' key in data."
	reasonLabelsNotList = "Value of key '%s' in data of request with query_type: %s must be list of str."
	reasonLabelsEmpty   = "Value of key '%s' in data of request with query_type: %s must contain at least one label."
	reasonLabelNotStr   = "Item %d of key '%s' in data of request with query_type: %s must be a non-empty str."
	reasonValueNotStr   = "Value of key '%s' in data of request with query_type: %s must be str."
	reasonValueEmpty    = "Value of key '%s' in data of request with query_type: %s must not be empty."
	reasonUnexpectedKey = "Data of request with query_type: %s contains unexpected key '%s'. Allowed keys: %s."
)
