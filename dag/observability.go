package dag

import (
	"context"
	"time"

	"github.com/neuralnotes/neuralnotes/logger"
	"github.com/neuralnotes/neuralnotes/observability"
)

// WithTracing wraps a node so each run creates a span "{prefix}.{name}".
func WithTracing(node Node, prefix string) Node {
	return &tracingNode{inner: node, prefix: prefix}
}

type tracingNode struct {
	inner  Node
	prefix string
}

func (n *tracingNode) Name() string { return n.inner.Name() }

func (n *tracingNode) Run(ctx context.Context, state *State) error {
	ctx, span := observability.StartSpan(ctx, n.prefix+"."+n.inner.Name())
	defer span.End()
	observability.SetSpanAttribute(ctx, "dag.node", n.inner.Name())

	err := n.inner.Run(ctx, state)
	if err != nil {
		observability.SetSpanError(ctx, err)
	}
	return err
}

// WithLogging wraps a node with duration and outcome logging.
func WithLogging(node Node, log *logger.Logger) Node {
	return &loggingNode{inner: node, log: log}
}

type loggingNode struct {
	inner Node
	log   *logger.Logger
}

func (n *loggingNode) Name() string { return n.inner.Name() }

func (n *loggingNode) Run(ctx context.Context, state *State) error {
	start := time.Now()
	err := n.inner.Run(ctx, state)
	duration := time.Since(start)

	fields := logger.Fields(
		"node", n.inner.Name(),
		"duration", duration.String(),
	)
	if err != nil {
		fields[logger.FieldError] = err.Error()
		n.log.Error("stage node failed", fields)
	} else {
		n.log.Debug("stage node completed", fields)
	}
	return err
}
