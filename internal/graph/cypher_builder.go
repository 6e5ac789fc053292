package graph

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/rohankatakam/mailgraph/internal/entity"
)

// UniqueKey is the node property every MERGE matches on
const UniqueKey = "key"

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidIdentifier validates that a string can be safely used as a Cypher identifier.
// Labels and relationship types cannot be parameterized, so they are checked here.
func isValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// BuildMergeNodes returns an UNWIND query merging $nodes onto label by key.
// Existing properties are overwritten with the values in the row.
func BuildMergeNodes(label string) (string, error) {
	if !isValidIdentifier(label) {
		return "", fmt.Errorf("invalid node label: %s (must be alphanumeric + underscore)", label)
	}
	return fmt.Sprintf(
		"UNWIND $nodes AS node MERGE (n:%s {%s: node.%s}) SET n += node.props RETURN count(n) AS merged",
		label, UniqueKey, UniqueKey,
	), nil
}

// BuildMergeEdges returns an UNWIND query merging $edges of one kind between
// two labels. Endpoints are merged by key too, so an edge whose node was
// reported in an earlier batch, or never reached Neo4j, is still written.
func BuildMergeEdges(fromLabel string, kind entity.Kind, toLabel string) (string, error) {
	if !isValidIdentifier(fromLabel) {
		return "", fmt.Errorf("invalid from label: %s", fromLabel)
	}
	if !isValidIdentifier(toLabel) {
		return "", fmt.Errorf("invalid to label: %s", toLabel)
	}
	if !isValidIdentifier(string(kind)) {
		return "", fmt.Errorf("invalid edge label: %s", kind)
	}
	return fmt.Sprintf(
		"UNWIND $edges AS edge "+
			"MERGE (from:%s {%s: edge.from}) "+
			"MERGE (to:%s {%s: edge.to}) "+
			"MERGE (from)-[r:%s]->(to) SET r.key = edge.key, r.type = edge.type "+
			"RETURN count(r) AS merged",
		fromLabel, UniqueKey, toLabel, UniqueKey, kind,
	), nil
}

// BuildConstraint returns the uniqueness constraint statement for label
func BuildConstraint(label string) (string, error) {
	if !isValidIdentifier(label) {
		return "", fmt.Errorf("invalid node label: %s", label)
	}
	return fmt.Sprintf(
		"CREATE CONSTRAINT %s_%s_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		toSnake(label), UniqueKey, label, UniqueKey,
	), nil
}

// edgeGroup is the set of relationships sharing endpoint labels and kind
type edgeGroup struct {
	FromLabel string
	Kind      entity.Kind
	ToLabel   string
}

// groupNodes splits entities into UNWIND rows per label. Labels are returned
// sorted so the statement order is stable.
func groupNodes(entities []entity.Entity) ([]string, map[string][]map[string]any) {
	rows := make(map[string][]map[string]any)
	for _, e := range entities {
		label := e.Type.Label()
		rows[label] = append(rows[label], map[string]any{
			UniqueKey: e.Key,
			"props":   nodeProperties(e),
		})
	}

	labels := make([]string, 0, len(rows))
	for label := range rows {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels, rows
}

func groupEdges(relationships []entity.Relationship) ([]edgeGroup, map[edgeGroup][]map[string]any) {
	rows := make(map[edgeGroup][]map[string]any)
	for _, r := range relationships {
		g := edgeGroup{FromLabel: r.FromType.Label(), Kind: r.Kind, ToLabel: r.ToType.Label()}
		rows[g] = append(rows[g], map[string]any{
			"key":  r.Key,
			"type": r.Type(),
			"from": r.FromKey,
			"to":   r.ToKey,
		})
	}

	groups := make([]edgeGroup, 0, len(rows))
	for g := range rows {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.FromLabel != b.FromLabel {
			return a.FromLabel < b.FromLabel
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.ToLabel < b.ToLabel
	})
	return groups, rows
}

// nodeProperties flattens entity attributes into Neo4j property values.
// Neo4j rejects nested maps and nulls, so those are dropped. Raw payloads
// stay in the store.
func nodeProperties(e entity.Entity) map[string]any {
	props := map[string]any{
		UniqueKey: e.Key,
		"type":    string(e.Type),
	}
	for name, value := range e.Attributes {
		if !isValidIdentifier(name) {
			continue
		}
		switch v := value.(type) {
		case string, bool, int, int32, int64, float32, float64:
			props[name] = v
		case []string:
			props[name] = v
		}
	}
	return props
}

func toSnake(label string) string {
	out := make([]byte, 0, len(label)+4)
	for i := 0; i < len(label); i++ {
		c := label[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
