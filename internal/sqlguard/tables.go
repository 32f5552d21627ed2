package sqlguard

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/sql"
)

const (
	nodeObjectReference = "object_reference"
	nodeRelation        = "relation"
	nodeInsert          = "insert"
	nodeUpdate          = "update"
	nodeFrom            = "from"
	nodeCTE             = "cte"
	nodeIdentifier      = "identifier"
)

// tableParents are the node types whose object_reference children name a
// table. References under invocation or field nodes are functions and
// column qualifiers.
var tableParents = map[string]bool{
	nodeRelation: true,
	nodeInsert:   true,
	nodeUpdate:   true,
	nodeFrom:     true,
}

// ExtractTables lists the distinct tables sql reads or writes, in order of
// first appearance. Schema qualifiers and quotes are dropped and CTE names
// are not reported. Statements the grammar cannot parse fall back to a
// token scan.
func ExtractTables(sql string) []string {
	if tables, ok := parseTables(sql); ok {
		return tables
	}
	return scanTables(sql)
}

func parseTables(text string) ([]string, bool) {
	src := []byte(text)
	parser := sitter.NewParser()
	parser.SetLanguage(sql.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		return nil, false
	}

	ctes := map[string]bool{}
	var refs []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case nodeCTE:
			for i := 0; i < int(n.NamedChildCount()); i++ {
				if c := n.NamedChild(i); c.Type() == nodeIdentifier {
					ctes[strings.ToLower(tableName(c.Content(src)))] = true
					break
				}
			}
		case nodeObjectReference:
			if p := n.Parent(); p != nil && tableParents[p.Type()] {
				refs = append(refs, tableName(n.Content(src)))
			}
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)

	seen := map[string]bool{}
	var tables []string
	for _, name := range refs {
		if name == "" || seen[name] || ctes[strings.ToLower(name)] {
			continue
		}
		seen[name] = true
		tables = append(tables, name)
	}
	return tables, true
}

// tableName strips schema qualifiers and identifier quotes.
func tableName(ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.HasSuffix(ref, `"`) {
		if i := strings.LastIndex(ref[:len(ref)-1], `"`); i >= 0 {
			return ref[i+1 : len(ref)-1]
		}
	}
	if i := strings.LastIndex(ref, "."); i >= 0 {
		ref = ref[i+1:]
	}
	return strings.Trim(ref, `"`)
}

// ValidateTables reports whether every table sql references is in allowed,
// returning the ones that are not.
func ValidateTables(sql string, allowed []string) (bool, []string) {
	permitted := make(map[string]bool, len(allowed))
	for _, t := range allowed {
		permitted[strings.ToLower(t)] = true
	}
	var invalid []string
	for _, t := range ExtractTables(sql) {
		if !permitted[strings.ToLower(t)] {
			invalid = append(invalid, t)
		}
	}
	return len(invalid) == 0, invalid
}
