package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/BTreeMap/BotRouter/internal/cache"
	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/store"
)

// MaxDepth is the hop budget of one execution. The start node is depth 0,
// so at most MaxDepth+1 nodes are visited.
const MaxDepth = 50

// Execution errors. The decision engine treats all of them as "no flow response".
var (
	ErrFlowNotFound  = errors.New("flow not found")
	ErrFlowInactive  = errors.New("flow is inactive")
	ErrNoStartNode   = errors.New("flow has no start node")
	ErrDepthExceeded = errors.New("flow execution depth exceeded")
)

// Result is the outcome of a successful execution. Content may be empty when
// the walk ended on a false condition.
type Result struct {
	FlowID        int64             `json:"flow_id"`
	FlowName      string            `json:"flow_name"`
	Content       string            `json:"content"`
	ExecutionPath []Step            `json:"execution_path"`
	Variables     map[string]string `json:"variables"`
}

// Executor loads flow graphs and walks them.
type Executor struct {
	flows     store.FlowRepo
	graphs    cache.Cache[models.FlowGraph]
	evaluator *Evaluator
}

// NewExecutor creates an Executor. Loaded graphs are kept in graphs until
// ClearCache is called or the entry expires.
func NewExecutor(flows store.FlowRepo, graphs cache.Cache[models.FlowGraph]) *Executor {
	return &Executor{flows: flows, graphs: graphs, evaluator: NewEvaluator()}
}

// HasActiveFlows reports whether any flow is active. Storage errors yield false.
func (e *Executor) HasActiveFlows(ctx context.Context) bool {
	ok, err := e.flows.HasActiveFlows()
	if err != nil {
		slog.Error("Executor.HasActiveFlows: query failed", "error", err)
		return false
	}
	return ok
}

// FindMatchingFlow selects the flow to run for message. The current policy
// returns the first active flow by id regardless of the message.
func (e *Executor) FindMatchingFlow(ctx context.Context, message string, userID int64) (int64, bool) {
	flows, err := e.flows.ListActiveFlows()
	if err != nil {
		slog.Error("Executor.FindMatchingFlow: query failed", "error", err)
		return 0, false
	}
	if len(flows) == 0 {
		slog.Debug("Executor.FindMatchingFlow: no active flow")
		return 0, false
	}
	slog.Debug("Executor.FindMatchingFlow: selected", "flow_id", flows[0].ID, "name", flows[0].Name, "user_id", userID)
	return flows[0].ID, true
}

// ExecuteFlow runs flow flowID against message.
func (e *Executor) ExecuteFlow(ctx context.Context, flowID int64, message string, userID int64) (*Result, error) {
	g, err := e.graph(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if !g.Flow.IsActive {
		slog.Warn("Executor.ExecuteFlow: flow is inactive", "flow_id", flowID)
		return nil, ErrFlowInactive
	}

	start, ok := findStartNode(g)
	if !ok {
		slog.Error("Executor.ExecuteFlow: no start node", "flow_id", flowID)
		return nil, ErrNoStartNode
	}

	w := newWalk(g)
	ec := NewExecutionContext(userID, message)
	if err := e.walk(ctx, w, start, ec); err != nil {
		slog.Error("Executor.ExecuteFlow: execution aborted", "flow_id", flowID, "visited", len(ec.Path), "error", err)
		return nil, err
	}

	slog.Info("Executor.ExecuteFlow: flow executed", "flow_id", flowID, "visited", len(ec.Path))
	return &Result{
		FlowID:        flowID,
		FlowName:      g.Flow.Name,
		Content:       ec.Response(),
		ExecutionPath: ec.Path,
		Variables:     ec.Variables,
	}, nil
}

// ValidateGuards checks that every connection guard compiles.
func (e *Executor) ValidateGuards(g *models.FlowGraph) error {
	for _, c := range g.Connections {
		if c.Condition == "" {
			continue
		}
		if err := e.evaluator.Compile(c.Condition); err != nil {
			return fmt.Errorf("connection %d->%d: %w", c.SourceNodeID, c.TargetNodeID, err)
		}
	}
	return nil
}

// ClearCache drops every cached graph.
func (e *Executor) ClearCache(ctx context.Context) {
	e.graphs.Clear(ctx)
}

func (e *Executor) graph(ctx context.Context, flowID int64) (*models.FlowGraph, error) {
	key := strconv.FormatInt(flowID, 10)
	if g, ok := e.graphs.Get(ctx, key); ok {
		return &g, nil
	}
	g, err := e.flows.GetFlowGraph(flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow %d: %w", flowID, err)
	}
	if g == nil {
		return nil, ErrFlowNotFound
	}
	e.graphs.Set(ctx, key, *g)
	return g, nil
}

// walk holds the indexed graph for one execution.
type walk struct {
	nodes    map[int64]models.FlowNode
	outgoing map[int64][]models.NodeConnection
}

func newWalk(g *models.FlowGraph) *walk {
	w := &walk{
		nodes:    make(map[int64]models.FlowNode, len(g.Nodes)),
		outgoing: make(map[int64][]models.NodeConnection),
	}
	for _, n := range g.Nodes {
		w.nodes[n.ID] = n
	}
	for _, c := range g.Connections {
		w.outgoing[c.SourceNodeID] = append(w.outgoing[c.SourceNodeID], c)
	}
	for id := range w.outgoing {
		edges := w.outgoing[id]
		sort.SliceStable(edges, func(i, j int) bool {
			if edges[i].Priority != edges[j].Priority {
				return edges[i].Priority < edges[j].Priority
			}
			return edges[i].ID < edges[j].ID
		})
	}
	return w
}

// walk visits nodes from start until a node yields no successor.
func (e *Executor) walk(ctx context.Context, w *walk, start models.FlowNode, ec *ExecutionContext) error {
	current, ok := start, true
	for depth := 0; ok; depth++ {
		if depth > MaxDepth {
			return ErrDepthExceeded
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		ec.visit(current)

		var next models.FlowNode
		if current.Type == models.NodeTypeCondition {
			next, ok = e.branch(w, current, ec)
			current = next
			continue
		}
		if err := handle(ctx, current, ec); err != nil {
			return err
		}
		next, ok = e.follow(w, current, ec)
		current = next
	}
	return nil
}

// branch takes the first outgoing edge of a condition node when it holds.
// A false condition ends the walk without error.
func (e *Executor) branch(w *walk, node models.FlowNode, ec *ExecutionContext) (models.FlowNode, bool) {
	cfg, ok := node.Config.(models.ConditionConfig)
	if !ok {
		slog.Warn("Executor.branch: condition node has no usable config", "node_id", node.ID)
		return models.FlowNode{}, false
	}
	result := e.evaluator.Condition(cfg, ec.UserMessage, ec.Variables)
	slog.Debug("Executor.branch: condition evaluated", "node_id", node.ID, "operator", cfg.EffectiveOperator(), "result", result)

	edges := w.outgoing[node.ID]
	if len(edges) == 0 {
		slog.Warn("Executor.branch: condition node without outgoing connection", "node_id", node.ID)
		return models.FlowNode{}, false
	}
	if !result {
		return models.FlowNode{}, false
	}
	next, ok := w.nodes[edges[0].TargetNodeID]
	return next, ok
}

// follow takes the first outgoing edge whose guard is empty or true.
func (e *Executor) follow(w *walk, node models.FlowNode, ec *ExecutionContext) (models.FlowNode, bool) {
	for _, c := range w.outgoing[node.ID] {
		if c.Condition != "" {
			pass, err := e.evaluator.Expression(c.Condition, ec.UserMessage, ec.Variables)
			if err != nil {
				slog.Error("Executor.follow: guard failed", "connection_id", c.ID, "error", err)
				continue
			}
			if !pass {
				continue
			}
		}
		next, ok := w.nodes[c.TargetNodeID]
		return next, ok
	}
	return models.FlowNode{}, false
}

// findStartNode picks the node without incoming connections, preferring the
// smallest position_y then the smallest id. When every node has an incoming
// connection the smallest position_y overall is used.
func findStartNode(g *models.FlowGraph) (models.FlowNode, bool) {
	if len(g.Nodes) == 0 {
		return models.FlowNode{}, false
	}
	incoming := make(map[int64]bool, len(g.Connections))
	for _, c := range g.Connections {
		incoming[c.TargetNodeID] = true
	}
	var candidates []models.FlowNode
	for _, n := range g.Nodes {
		if !incoming[n.ID] {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		candidates = g.Nodes
	}
	best := candidates[0]
	for _, n := range candidates[1:] {
		if n.PositionY < best.PositionY || (n.PositionY == best.PositionY && n.ID < best.ID) {
			best = n
		}
	}
	return best, true
}
