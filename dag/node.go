package dag

import "context"

// Node is one executable stage in the graph.
type Node interface {
	Name() string
	Run(ctx context.Context, state *State) error
}

// NodeFunc adapts a function to the Node interface.
type NodeFunc struct {
	NodeName string
	Fn       func(ctx context.Context, state *State) error
}

func (n NodeFunc) Name() string { return n.NodeName }

func (n NodeFunc) Run(ctx context.Context, state *State) error {
	return n.Fn(ctx, state)
}
