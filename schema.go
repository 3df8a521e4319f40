package chainz

import (
	"encoding/json"
	"strconv"
)

// NodeKind identifies what an operation is in a Schema.
type NodeKind string

// Node kinds.
const (
	KindPipeline  NodeKind = "pipeline"
	KindScope     NodeKind = "scope"
	KindRetry     NodeKind = "retry"
	KindBackoff   NodeKind = "backoff"
	KindTimeout   NodeKind = "timeout"
	KindWhen      NodeKind = "when"
	KindHandle    NodeKind = "handle"
	KindOperation NodeKind = "operation"
)

// Node describes one operation and, for scopes and decorators, what it wraps.
type Node struct {
	Metadata map[string]string `json:"metadata,omitempty"`
	Name     Name              `json:"name"`
	Kind     NodeKind          `json:"kind"`
	Children []Node            `json:"children,omitempty"`
	Required bool              `json:"required,omitempty"`
}

// Schema is the structure of a pipeline, suitable for display or export.
type Schema struct {
	Root Node `json:"root"`
}

// Schema describes the pipeline's current operations.
func (p *Pipeline) Schema() Schema {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Schema{Root: Node{
		Name:     p.name,
		Kind:     KindPipeline,
		Children: describeAll(p.operations),
		Metadata: switches(p.breakOnFail, p.forceRollback, p.propagate),
	}}
}

// Describe returns the schema node for op. Unknown operation types are
// leaves of KindOperation.
func Describe(op Operation) Node {
	switch o := op.(type) {
	case *Scope:
		o.mu.RLock()
		defer o.mu.RUnlock()
		return Node{
			Name:     o.name,
			Kind:     KindScope,
			Children: describeAll(o.operations),
			Metadata: switches(o.breakOnFail, o.forceRollback, o.propagate),
		}
	case *RetryOperation:
		return wrapper(o, KindRetry, o.op, map[string]string{
			"max_attempts": strconv.Itoa(o.MaxAttempts()),
		})
	case *BackoffOperation:
		return wrapper(o, KindBackoff, o.op, map[string]string{
			"max_attempts": strconv.Itoa(o.MaxAttempts()),
			"base_delay":   o.BaseDelay().String(),
		})
	case *TimeoutOperation:
		return wrapper(o, KindTimeout, o.op, map[string]string{
			"duration": o.Duration().String(),
		})
	case *WhenOperation:
		return wrapper(o, KindWhen, o.op, nil)
	case *HandleOperation:
		return wrapper(o, KindHandle, o.op, nil)
	}
	return Node{Name: op.Name(), Kind: KindOperation, Required: op.Required()}
}

func wrapper(op Operation, kind NodeKind, inner Operation, metadata map[string]string) Node {
	return Node{
		Name:     op.Name(),
		Kind:     kind,
		Required: op.Required(),
		Children: []Node{Describe(inner)},
		Metadata: metadata,
	}
}

func describeAll(ops []Operation) []Node {
	nodes := make([]Node, len(ops))
	for i, op := range ops {
		nodes[i] = Describe(op)
	}
	return nodes
}

func switches(breakOnFail, forceRollback, propagate bool) map[string]string {
	return map[string]string{
		"break_on_fail":   strconv.FormatBool(breakOnFail),
		"force_rollback":  strconv.FormatBool(forceRollback),
		"allow_propagate": strconv.FormatBool(propagate),
	}
}

// Walk traverses the schema depth-first, pre-order.
func (s Schema) Walk(fn func(Node)) {
	walkNode(s.Root, fn)
}

func walkNode(node Node, fn func(Node)) {
	fn(node)
	for _, child := range node.Children {
		walkNode(child, fn)
	}
}

// Find returns the first node matching the predicate, or nil if not found.
func (s Schema) Find(predicate func(Node) bool) *Node {
	var result *Node
	s.Walk(func(node Node) {
		if result == nil && predicate(node) {
			result = &node
		}
	})
	return result
}

// FindByName returns the first node with the given name, or nil if not found.
func (s Schema) FindByName(name Name) *Node {
	return s.Find(func(n Node) bool {
		return n.Name == name
	})
}

// FindByKind returns all nodes of the given kind.
func (s Schema) FindByKind(kind NodeKind) []Node {
	var results []Node
	s.Walk(func(node Node) {
		if node.Kind == kind {
			results = append(results, node)
		}
	})
	return results
}

// Count returns the total number of nodes in the schema.
func (s Schema) Count() int {
	count := 0
	s.Walk(func(_ Node) {
		count++
	})
	return count
}

// JSON renders the schema as indented JSON.
func (s Schema) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
