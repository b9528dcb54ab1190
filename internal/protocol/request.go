package protocol

// Request is a schema-valid evidence request from the agent. The set of
// implementations is closed; values are only produced by DecodeRequest or
// by the constructors below.
type Request interface {
	Kind() QueryType
	// Data returns the wire form of the request.
	Data() map[string]any
	isRequest()
}

// CountNodesRequest asks how many nodes carry all Labels.
type CountNodesRequest struct {
	Type   QueryType
	Labels []string
}

func (r CountNodesRequest) Kind() QueryType { return r.Type }

func (r CountNodesRequest) Data() map[string]any {
	return map[string]any{keyLabels: stringsToAny(r.Labels)}
}

func (CountNodesRequest) isRequest() {}

// PropertiesRequest asks for the property type distribution of nodes
// carrying all Labels.
type PropertiesRequest struct {
	Type   QueryType
	Labels []string
}

func (r PropertiesRequest) Kind() QueryType { return r.Type }

func (r PropertiesRequest) Data() map[string]any {
	return map[string]any{keyLabels: stringsToAny(r.Labels)}
}

func (PropertiesRequest) isRequest() {}

// RelationshipCountRequest asks for the average number of RelType
// relationships from FromNodeLabels nodes to ToNodeLabels nodes.
type RelationshipCountRequest struct {
	Type           QueryType
	FromNodeLabels []string
	ToNodeLabels   []string
	RelType        string
}

func (r RelationshipCountRequest) Kind() QueryType { return r.Type }

func (r RelationshipCountRequest) Data() map[string]any {
	return map[string]any{
		keyFromNodeLabels: stringsToAny(r.FromNodeLabels),
		keyToNodeLabels:   stringsToAny(r.ToNodeLabels),
		keyRelType:        r.RelType,
	}
}

func (RelationshipCountRequest) isRequest() {}

// ExplainRequest asks for the plan of a candidate query.
type ExplainRequest struct {
	Type  QueryType
	Query string
}

func (r ExplainRequest) Kind() QueryType { return r.Type }

func (r ExplainRequest) Data() map[string]any {
	return map[string]any{keyQuery: r.Query}
}

func (ExplainRequest) isRequest() {}

// NewResultMessage wraps provider output as the response to req.
func NewResultMessage(req Request, result any) Message {
	return NewMessage(req.Kind().ResultKind(), map[string]any{keyResult: result})
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
