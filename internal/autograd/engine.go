package autograd

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

var gradEnabled = true

// GradEnabled reports whether ops are currently recorded.
func GradEnabled() bool {
	return gradEnabled
}

// WithGrad runs fn with op recording switched on or off and restores the
// previous mode afterwards.
func WithGrad(enabled bool, fn func() error) error {
	prev := gradEnabled
	gradEnabled = enabled
	defer func() { gradEnabled = prev }()
	return fn()
}

func record(out *Tensor, op string, parents []*Tensor, backward func(g *Tensor) []*Tensor) *Tensor {
	if !gradEnabled {
		return out
	}
	for _, p := range parents {
		if p.requiresGrad {
			out.requiresGrad = true
			out.op = op
			out.parents = parents
			out.backward = backward
			break
		}
	}
	return out
}

// topoOrder returns the differentiable nodes reachable from roots, parents
// before children.
func topoOrder(roots []*Tensor) []*Tensor {
	var order []*Tensor
	visited := make(map[*Tensor]bool)
	var visit func(t *Tensor)
	visit = func(t *Tensor) {
		if visited[t] || !t.requiresGrad {
			return
		}
		visited[t] = true
		for _, p := range t.parents {
			visit(p)
		}
		order = append(order, t)
	}
	for _, r := range roots {
		visit(r)
	}
	return order
}

// propagate runs the reverse sweep and returns the gradient of every reached
// node. With createGraph the sweep itself is recorded.
func propagate(roots, seeds []*Tensor, createGraph bool) map[*Tensor]*Tensor {
	grads := make(map[*Tensor]*Tensor)
	_ = WithGrad(createGraph, func() error {
		order := topoOrder(roots)
		for i, r := range roots {
			accumulate(grads, r, seeds[i])
		}
		for i := len(order) - 1; i >= 0; i-- {
			node := order[i]
			g := grads[node]
			if g == nil || node.backward == nil {
				continue
			}
			parentGrads := node.backward(g)
			for j, p := range node.parents {
				if !p.requiresGrad || parentGrads[j] == nil {
					continue
				}
				accumulate(grads, p, parentGrads[j])
			}
		}
		return nil
	})
	return grads
}

func accumulate(grads map[*Tensor]*Tensor, t, g *Tensor) {
	if prev, ok := grads[t]; ok {
		grads[t] = Add(prev, g)
		return
	}
	grads[t] = g
}

// Backward differentiates a scalar loss and adds the result to the Grad of
// every leaf that requires grad.
func Backward(loss *Tensor) error {
	if len(loss.data) != 1 {
		return fmt.Errorf("%w: backward needs a scalar loss, got shape %v", ErrShapeMismatch, loss.shape)
	}
	if !loss.requiresGrad {
		return fmt.Errorf("%w: loss has no recorded graph", ErrNotDifferentiable)
	}
	grads := propagate([]*Tensor{loss}, []*Tensor{Full(1, loss.shape...)}, false)
	for node, g := range grads {
		if !node.IsLeaf() {
			continue
		}
		if node.grad == nil {
			node.grad = newTensor(append([]float64(nil), g.data...), node.shape)
			continue
		}
		floats.Add(node.grad.data, g.data)
	}
	return nil
}

// Grad returns the gradients of sum(output) with respect to inputs without
// touching any accumulated Grad. With createGraph the returned tensors are
// recorded and can be differentiated again.
func Grad(output *Tensor, inputs []*Tensor, createGraph bool) ([]*Tensor, error) {
	if !output.requiresGrad {
		return nil, fmt.Errorf("%w: output has no recorded graph", ErrNotDifferentiable)
	}
	grads := propagate([]*Tensor{output}, []*Tensor{Full(1, output.shape...)}, createGraph)
	out := make([]*Tensor, len(inputs))
	for i, in := range inputs {
		g, ok := grads[in]
		if !ok {
			return nil, fmt.Errorf("%w: input %d is not part of the graph", ErrNotDifferentiable, i)
		}
		out[i] = g
	}
	return out, nil
}
