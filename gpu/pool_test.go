package gpu

import (
	"errors"
	"testing"

	"github.com/Nuthatch-Inc/nuthatch-compositor/kms"
)

func TestPoolAddDropNode(t *testing.T) {
	pool := NewPool()
	node := kms.DeviceNode{Major: 226, Minor: 128}

	if err := pool.AddNode(node); err != nil {
		t.Fatalf("add failed: %s", err)
	}
	if err := pool.AddNode(node); !errors.Is(err, ErrNodeExists) {
		t.Errorf("expected ErrNodeExists, got %v", err)
	}

	renderer, err := pool.Renderer(node)
	if err != nil {
		t.Fatalf("renderer lookup failed: %s", err)
	}
	if renderer.Node() != node {
		t.Errorf("renderer bound to %v, want %v", renderer.Node(), node)
	}

	pool.DropNode(node)
	if _, err := pool.Renderer(node); !errors.Is(err, ErrNodeUnknown) {
		t.Errorf("expected ErrNodeUnknown after drop, got %v", err)
	}
}
