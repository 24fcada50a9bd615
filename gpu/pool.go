// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpu

import (
	"errors"
	"fmt"

	"github.com/Nuthatch-Inc/nuthatch-compositor/kms"
)

var (
	ErrNodeExists  = errors.New("render node already registered")
	ErrNodeUnknown = errors.New("render node not registered")
)

// Pool is the process-wide registry of render contexts, keyed by render
// node. Multi-GPU systems render on one node and display through another;
// the pool is the single shared resource both sides resolve against. It is
// only ever touched from the reactor thread.
type Pool struct {
	renderers map[kms.DeviceNode]*Renderer
}

func NewPool() *Pool {
	return &Pool{renderers: make(map[kms.DeviceNode]*Renderer)}
}

// AddNode creates a render context for the node.
func (p *Pool) AddNode(node kms.DeviceNode) error {
	if _, exists := p.renderers[node]; exists {
		return fmt.Errorf("%w: %s", ErrNodeExists, node)
	}
	p.renderers[node] = newRenderer(node)
	return nil
}

// DropNode discards the node's render context on device removal.
func (p *Pool) DropNode(node kms.DeviceNode) {
	delete(p.renderers, node)
}

// Renderer resolves the render context for a node.
func (p *Pool) Renderer(node kms.DeviceNode) (*Renderer, error) {
	r, ok := p.renderers[node]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeUnknown, node)
	}
	return r, nil
}

// Nodes lists the registered render nodes.
func (p *Pool) Nodes() []kms.DeviceNode {
	out := make([]kms.DeviceNode, 0, len(p.renderers))
	for node := range p.renderers {
		out = append(out, node)
	}
	return out
}
