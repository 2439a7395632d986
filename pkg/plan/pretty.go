// Plan tree formatting for VanirDB.
// Used by the EXPLAIN surface of the CLI and by golden tests; output is
// deterministic for a deterministic plan.

package plan

import (
	"fmt"
	"strings"

	"github.com/vanirdb/vanirdb/pkg/symbols"
)

// Format renders the plan as an indented tree, root first. Every line
// shows the operator name and the symbols it introduces; Optional and
// Merge branches are nested under their operator.
func Format(op LogicalOperator, table *symbols.Table) string {
	var sb strings.Builder
	formatChain(&sb, op, table, 0)
	return sb.String()
}

func formatChain(sb *strings.Builder, op LogicalOperator, table *symbols.Table, depth int) {
	if op == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	sb.WriteString(indent)
	sb.WriteString("* ")
	sb.WriteString(describe(op, table))
	sb.WriteString("\n")
	switch o := op.(type) {
	case *Optional:
		sb.WriteString(indent)
		sb.WriteString("  |optional:\n")
		formatChain(sb, o.Branch, table, depth+1)
	case *Merge:
		sb.WriteString(indent)
		sb.WriteString("  |on match:\n")
		formatChain(sb, o.MergeMatch, table, depth+1)
		sb.WriteString(indent)
		sb.WriteString("  |on create:\n")
		formatChain(sb, o.MergeCreate, table, depth+1)
	}
	formatChain(sb, op.Input(), table, depth)
}

func describe(op LogicalOperator, table *symbols.Table) string {
	name := op.Name()
	switch o := op.(type) {
	case *ScanAllByLabel:
		return fmt.Sprintf("%s (%s :%s)", name, symbolNames(o.IntroducedSymbols(table)), o.Label)
	case *ScanAllByLabelPropertyValue:
		return fmt.Sprintf("%s (%s :%s {%s})", name, symbolNames(o.IntroducedSymbols(table)),
			o.Label, o.Property)
	case *ScanAllByLabelPropertyRange:
		return fmt.Sprintf("%s (%s :%s {%s})", name, symbolNames(o.IntroducedSymbols(table)),
			o.Label, o.Property)
	case *Expand:
		return fmt.Sprintf("%s (%s)-[%s]-(%s)", name, o.InputSymbol.Name,
			o.EdgeSymbol.Name, o.NodeSymbol.Name)
	case *ExpandVariable:
		return fmt.Sprintf("%s (%s)-[%s*]-(%s)", name, o.InputSymbol.Name,
			o.EdgeSymbol.Name, o.NodeSymbol.Name)
	case *Aggregate:
		ops := make([]string, 0, len(o.Aggregations))
		for _, el := range o.Aggregations {
			ops = append(ops, el.Op.String())
		}
		return fmt.Sprintf("%s {%s}", name, strings.Join(ops, ", "))
	case *CreateIndex:
		return fmt.Sprintf("%s (:%s {%s})", name, o.Label, o.Property)
	}
	if syms := op.IntroducedSymbols(table); len(syms) > 0 {
		return fmt.Sprintf("%s (%s)", name, symbolNames(syms))
	}
	return name
}

func symbolNames(syms []symbols.Symbol) string {
	names := make([]string, 0, len(syms))
	for _, sym := range syms {
		names = append(names, sym.Name)
	}
	return strings.Join(names, ", ")
}
