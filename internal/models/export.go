package models

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ExportDOT writes one tree as a Graphviz digraph: split nodes show the
// condition, leaves the class distribution. featureNames may be nil.
func ExportDOT(w io.Writer, dt *DecisionTree, featureNames []string) error {
	if dt.Root == nil {
		return fmt.Errorf("árvore não treinada")
	}
	var b strings.Builder
	b.WriteString("digraph Tree {\n")
	b.WriteString("node [shape=box, style=\"rounded\", fontname=\"helvetica\"] ;\n")
	b.WriteString("edge [fontname=\"helvetica\"] ;\n")
	next := 0
	var walk func(n *DTNode) int
	walk = func(n *DTNode) int {
		id := next
		next++
		fmt.Fprintf(&b, "%d [label=\"%s\"] ;\n", id, nodeLabel(dt, n, featureNames))
		if n.IsLeaf {
			return id
		}
		l := walk(n.Left)
		fmt.Fprintf(&b, "%d -> %d [labeldistance=2.5, headlabel=\"True\"] ;\n", id, l)
		r := walk(n.Right)
		fmt.Fprintf(&b, "%d -> %d [labeldistance=2.5, headlabel=\"False\"] ;\n", id, r)
		return id
	}
	walk(dt.Root)
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func nodeLabel(dt *DecisionTree, n *DTNode, featureNames []string) string {
	var parts []string
	if !n.IsLeaf {
		name := "x[" + strconv.Itoa(n.Feature) + "]"
		if n.Feature < len(featureNames) {
			name = featureNames[n.Feature]
		}
		parts = append(parts, fmt.Sprintf("%s <= %.4g", name, n.Threshold))
	}
	parts = append(parts,
		fmt.Sprintf("gini = %.3f", n.Impurity),
		fmt.Sprintf("samples = %d", n.Samples),
	)
	counts := make([]string, len(n.Proba))
	for c, p := range n.Proba {
		counts[c] = strconv.Itoa(int(p*float64(n.Samples) + 0.5))
	}
	parts = append(parts, "value = ["+strings.Join(counts, ", ")+"]")
	parts = append(parts, "class = "+strconv.Itoa(dt.ClassLabels[Argmax(n.Proba)]))
	return strings.Join(parts, "\\n")
}
