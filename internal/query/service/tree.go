package service

import (
	"sort"

	"github.com/ariadne-io/ariadne/internal/storage/model"
)

// TraceNode is one span in an assembled trace tree.
type TraceNode struct {
	Span     model.Span
	Children []*TraceNode
}

// BuildTraceTree links spans into trees by their parent span ids. A span
// whose declared parent has not arrived becomes an additional root rather
// than being dropped; a trace is never provably complete, so the assembly
// works with whatever subset is stored. Roots and children are ordered by
// start time, ties by span id, so repeated reads see the same tree.
func BuildTraceTree(spans []model.Span) []*TraceNode {
	nodes := make(map[string]*TraceNode, len(spans))
	for _, span := range spans {
		if _, exists := nodes[span.SpanID]; exists {
			continue
		}
		nodes[span.SpanID] = &TraceNode{Span: span}
	}

	var roots []*TraceNode
	for _, node := range nodes {
		if node.Span.ParentSpanID != "" {
			if parent, ok := nodes[node.Span.ParentSpanID]; ok && parent != node {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	for _, node := range nodes {
		sortNodes(node.Children)
	}
	sortNodes(roots)
	return roots
}

func sortNodes(nodes []*TraceNode) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Span.StartTime.Equal(nodes[j].Span.StartTime) {
			return nodes[i].Span.SpanID < nodes[j].Span.SpanID
		}
		return nodes[i].Span.StartTime.Before(nodes[j].Span.StartTime)
	})
}
