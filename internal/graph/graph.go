package graph

import (
	"fmt"
	"strings"
)

// Node is one operation with its inputs and computed output duration.
type Node struct {
	ID       int     `json:"id"`
	Op       Op      `json:"op"`
	Stream   Stream  `json:"stream"`
	Inputs   []int   `json:"inputs,omitempty"`
	Duration float64 `json:"duration"`
}

// Kind is shorthand for n.Op.Kind().
func (n *Node) Kind() Kind {
	return n.Op.Kind()
}

// Graph is an acyclic operation graph. Nodes are stored in creation order,
// which is also a valid topological order: a node only references nodes
// created before it.
type Graph struct {
	Nodes []*Node `json:"nodes"`
	// Video and Audio are the terminal streams feeding Output.
	Video  int `json:"video"`
	Audio  int `json:"audio"`
	Output int `json:"output"`
}

// Node returns the node with id.
func (g *Graph) Node(id int) *Node {
	if id < 0 || id >= len(g.Nodes) {
		return nil
	}
	return g.Nodes[id]
}

// Duration is the length of the output.
func (g *Graph) Duration() float64 {
	return g.Nodes[g.Output].Duration
}

// Count returns how many nodes have kind k.
func (g *Graph) Count(k Kind) int {
	n := 0
	for _, node := range g.Nodes {
		if node.Kind() == k {
			n++
		}
	}
	return n
}

// OfKind returns the nodes with kind k in graph order.
func (g *Graph) OfKind(k Kind) []*Node {
	var out []*Node
	for _, node := range g.Nodes {
		if node.Kind() == k {
			out = append(out, node)
		}
	}
	return out
}

func (g *Graph) add(op Op, stream Stream, duration float64, inputs ...int) int {
	id := len(g.Nodes)
	g.Nodes = append(g.Nodes, &Node{ID: id, Op: op, Stream: stream, Inputs: inputs, Duration: duration})
	return id
}

// Check verifies the structural invariants: inputs point backwards, and
// there is exactly one Output fed by one video and one audio stream.
func (g *Graph) Check() error {
	outputs := 0
	for _, n := range g.Nodes {
		for _, in := range n.Inputs {
			if in < 0 || in >= n.ID {
				return fmt.Errorf("node %d (%s) references invalid input %d", n.ID, n.Kind(), in)
			}
		}
		if n.Kind() == KindOutput {
			outputs++
		}
	}
	if outputs != 1 {
		return fmt.Errorf("graph has %d output nodes, want 1", outputs)
	}
	out := g.Node(g.Output)
	if out == nil || out.Kind() != KindOutput || len(out.Inputs) != 2 {
		return fmt.Errorf("output node is malformed")
	}
	if g.Nodes[out.Inputs[0]].Stream != StreamVideo || g.Nodes[out.Inputs[1]].Stream != StreamAudio {
		return fmt.Errorf("output must take one video and one audio stream")
	}
	return nil
}

// String renders one node per line, for logs and the CLI.
func (g *Graph) String() string {
	var b strings.Builder
	for _, n := range g.Nodes {
		fmt.Fprintf(&b, "%3d %-12s %-5s %8.3fs", n.ID, n.Kind(), n.Stream, n.Duration)
		if len(n.Inputs) > 0 {
			fmt.Fprintf(&b, " <- %v", n.Inputs)
		}
		fmt.Fprintf(&b, " %+v\n", n.Op)
	}
	return b.String()
}
