package evidence

import (
	"fmt"
	"regexp"
	"strings"

	"optiquery/internal/graphdb"
	"optiquery/internal/graphdb/graphdbtest"
)

// memGraph is a tiny property graph that understands exactly the
// statements the providers in this package emit.
type memGraph struct {
	nodes []memNode
	rels  []memRel
}

type memNode struct {
	labels []string
	props  map[string]any
}

type memRel struct {
	from, to int
	typ      string
}

var (
	quotedName   = regexp.MustCompile("`((?:[^`]|``)+)`")
	countNodesRe = regexp.MustCompile("^MATCH \\(n((?::`(?:[^`]|``)+`)+)\\) RETURN count\\(n\\) AS (count|total)$")
	keysRe       = regexp.MustCompile("^MATCH \\(n((?::`(?:[^`]|``)+`)+)\\) UNWIND keys\\(n\\) AS key RETURN key, valueType\\(n\\[key\\]\\) AS type, count\\(\\*\\) AS count$")
	relRe        = regexp.MustCompile("^MATCH \\(a((?::`(?:[^`]|``)+`)+)\\) OPTIONAL MATCH \\(a\\)-\\[r:(`(?:[^`]|``)+`)\\]->\\(((?::`(?:[^`]|``)+`)+)\\) WITH a, count\\(r\\) AS rels RETURN count\\(a\\) AS sources, sum\\(rels\\) AS total$")
)

func (g *memGraph) reader() *graphdbtest.Reader {
	return &graphdbtest.Reader{OnRun: g.run}
}

func names(pattern string) []string {
	var out []string
	for _, m := range quotedName.FindAllStringSubmatch(pattern, -1) {
		out = append(out, strings.ReplaceAll(m[1], "``", "`"))
	}
	return out
}

func (n memNode) has(labels []string) bool {
	for _, want := range labels {
		found := false
		for _, l := range n.labels {
			if l == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (g *memGraph) matching(labels []string) []int {
	var out []int
	for i, n := range g.nodes {
		if n.has(labels) {
			out = append(out, i)
		}
	}
	return out
}

func (g *memGraph) run(cypher string, _ map[string]any) ([]graphdb.Record, error) {
	if m := countNodesRe.FindStringSubmatch(cypher); m != nil {
		return []graphdb.Record{{m[2]: int64(len(g.matching(names(m[1]))))}}, nil
	}

	if m := keysRe.FindStringSubmatch(cypher); m != nil {
		type keyType struct{ key, typ string }
		counts := map[keyType]int64{}
		var order []keyType
		for _, i := range g.matching(names(m[1])) {
			for k, v := range g.nodes[i].props {
				kt := keyType{k, valueType(v)}
				if counts[kt] == 0 {
					order = append(order, kt)
				}
				counts[kt]++
			}
		}
		rows := make([]graphdb.Record, 0, len(order))
		for _, kt := range order {
			rows = append(rows, graphdb.Record{"key": kt.key, "type": kt.typ, "count": counts[kt]})
		}
		return rows, nil
	}

	if m := relRe.FindStringSubmatch(cypher); m != nil {
		from, relType, to := names(m[1]), names(m[2])[0], names(m[3])
		sources := g.matching(from)
		var total int64
		for _, s := range sources {
			for _, r := range g.rels {
				if r.from == s && r.typ == relType && g.nodes[r.to].has(to) {
					total++
				}
			}
		}
		return []graphdb.Record{{"sources": int64(len(sources)), "total": total}}, nil
	}

	switch cypher {
	case nodeCountsCypher:
		counts := map[string]int64{}
		var order []string
		for _, n := range g.nodes {
			for _, l := range n.labels {
				if counts[l] == 0 {
					order = append(order, l)
				}
				counts[l]++
			}
		}
		rows := make([]graphdb.Record, 0, len(order))
		for _, l := range order {
			rows = append(rows, graphdb.Record{"label": l, "count": counts[l]})
		}
		return rows, nil
	case relCountsCypher:
		counts := map[string]int64{}
		var order []string
		for _, r := range g.rels {
			if counts[r.typ] == 0 {
				order = append(order, r.typ)
			}
			counts[r.typ]++
		}
		rows := make([]graphdb.Record, 0, len(order))
		for _, t := range order {
			rows = append(rows, graphdb.Record{"type": t, "count": counts[t]})
		}
		return rows, nil
	case indexesCypher, constraintsCypher:
		return nil, nil
	}

	return nil, &graphdb.StatementError{Code: "Neo.ClientError.Statement.SyntaxError", Message: "memGraph cannot run: " + cypher}
}

func valueType(v any) string {
	switch v.(type) {
	case string:
		return "STRING NOT NULL"
	case int, int64:
		return "INTEGER NOT NULL"
	case float64:
		return "FLOAT NOT NULL"
	case bool:
		return "BOOLEAN NOT NULL"
	case []any:
		return "LIST<ANY NOT NULL> NOT NULL"
	}
	panic(fmt.Sprintf("memGraph: unsupported property value %T", v))
}

// socialGraph:
//
//	alice -KNOWS-> bob, alice -KNOWS-> carol, bob -KNOWS-> carol,
//	bob -WORKS_AT-> acme; dave knows nobody.
func socialGraph() *memGraph {
	return &memGraph{
		nodes: []memNode{
			{labels: []string{"Person", "Employee"}, props: map[string]any{"name": "alice", "age": int64(34)}},
			{labels: []string{"Person", "Employee"}, props: map[string]any{"name": "bob", "age": int64(41), "nickname": "b"}},
			{labels: []string{"Person"}, props: map[string]any{"name": "carol", "age": "unknown"}},
			{labels: []string{"Person"}, props: map[string]any{"name": "dave", "age": int64(19)}},
			{labels: []string{"Company"}, props: map[string]any{"name": "acme"}},
		},
		rels: []memRel{
			{from: 0, to: 1, typ: "KNOWS"},
			{from: 0, to: 2, typ: "KNOWS"},
			{from: 1, to: 2, typ: "KNOWS"},
			{from: 1, to: 4, typ: "WORKS_AT"},
		},
	}
}
