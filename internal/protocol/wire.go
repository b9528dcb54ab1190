package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
)

// Parse turns raw agent text into a candidate message. Only the envelope is
// checked here; data is checked by Validate. A single surrounding markdown
// code fence is tolerated because models routinely add one.
func Parse(raw string) (Message, error) {
	text := stripCodeFence(strings.TrimSpace(raw))
	if text == "" {
		return Message{}, &SchemaError{Reason: reasonEmptyMessage}
	}

	dec := json.NewDecoder(strings.NewReader(text))
	var envelope any
	if err := dec.Decode(&envelope); err != nil {
		return Message{}, schemaErrorf(reasonInvalidJSON, err.Error())
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Message{}, &SchemaError{Reason: reasonTrailingContent}
	}

	obj, ok := envelope.(map[string]any)
	if !ok {
		return Message{}, &SchemaError{Reason: reasonNotObject}
	}

	rawKind, ok := obj[keyQueryType]
	if !ok {
		return Message{}, &SchemaError{Reason: reasonMissingQueryType}
	}
	rawData, ok := obj[keyData]
	if !ok {
		return Message{}, &SchemaError{Reason: reasonMissingData}
	}
	if extra := unexpectedTopLevel(obj); extra != "" {
		return Message{}, schemaErrorf(reasonUnexpectedTopKey, extra)
	}

	kindStr, ok := rawKind.(string)
	if !ok {
		return Message{}, &SchemaError{Reason: reasonQueryTypeNotStr}
	}
	kind := QueryType(kindStr)
	if !kind.Known() {
		return Message{}, schemaErrorf(reasonUnknownQueryType, kindStr, joinKinds(KnownQueryTypes()))
	}

	data, ok := rawData.(map[string]any)
	if !ok {
		return Message{}, schemaErrorf(reasonDataNotObject, kind)
	}

	return Message{kind: kind, data: data}, nil
}

func unexpectedTopLevel(obj map[string]any) string {
	var extra []string
	for k := range obj {
		if k != keyQueryType && k != keyData {
			extra = append(extra, k)
		}
	}
	if len(extra) == 0 {
		return ""
	}
	sort.Strings(extra)
	return extra[0]
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}
	body := text[3 : len(text)-3]
	// drop the info string (e.g. "json") on the opening line
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		info := strings.TrimSpace(body[:nl])
		if !strings.ContainsAny(info, "{[") {
			body = body[nl+1:]
		}
	}
	return strings.TrimSpace(body)
}

// Encode renders a message in wire form. Keys are emitted in sorted order so
// the same message always yields the same text.
func Encode(m Message) (string, error) {
	b, err := m.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// marshalNoEscape keeps Cypher operators such as <> readable.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
