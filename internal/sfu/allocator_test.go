package sfu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickRoundRobin(t *testing.T) {
	t.Parallel()

	nodes := []string{"sfu-a", "sfu-b", "sfu-c"}
	a := New(nodes)

	for i := 0; i < 10; i++ {
		assert.Equal(t, nodes[i%len(nodes)], a.Pick(), "call %d", i)
	}
}

func TestNewFallsBackToDefaultNode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		nodes []string
	}{
		{name: "nil pool", nodes: nil},
		{name: "empty pool", nodes: []string{}},
		{name: "only blanks", nodes: []string{"", ""}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := New(tc.nodes)
			assert.Equal(t, DefaultNode, a.Pick())
			assert.Equal(t, DefaultNode, a.Pick())
		})
	}
}

func TestAllocatorsAreIndependent(t *testing.T) {
	t.Parallel()

	a := New([]string{"n1", "n2"})
	b := New([]string{"n1", "n2"})

	assert.Equal(t, "n1", a.Pick())
	assert.Equal(t, "n2", a.Pick())
	// b's counter is untouched by a's picks.
	assert.Equal(t, "n1", b.Pick())
}

func TestNodesReturnsCopy(t *testing.T) {
	t.Parallel()

	a := New([]string{"n1", "n2"})
	got := a.Nodes()
	got[0] = "mutated"

	assert.Equal(t, []string{"n1", "n2"}, a.Nodes())
}
