package rics

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeTableAllocatorProperty(t *testing.T) {
	table := NewNodeTable()

	ids := make([]int32, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, table.NewNode(&bytes.Buffer{}))
	}
	assert.Equal(t, []int32{0, 1, 2, 3, 4}, ids)

	// Deleting the most recently allocated id steps the allocator back.
	table.Delete(ids[4])
	next := table.NewNode(&bytes.Buffer{})
	assert.Equal(t, int32(4), next)

	// Deleting a non-most-recent id leaves a hole; the allocator keeps
	// climbing regardless.
	table.Delete(ids[1])
	holeNext := table.NewNode(&bytes.Buffer{})
	assert.Equal(t, int32(5), holeNext)
}

func TestAddRouteIdempotent(t *testing.T) {
	table := NewNodeTable()
	a := table.NewNode(&bytes.Buffer{})
	b := table.NewNode(&bytes.Buffer{})

	table.AddRoute(a, b)
	table.AddRoute(a, b)

	routes := table.Routes(a)
	assert.Equal(t, []int32{b}, routes)
}

func TestDelRouteRemoves(t *testing.T) {
	table := NewNodeTable()
	a := table.NewNode(&bytes.Buffer{})
	b := table.NewNode(&bytes.Buffer{})

	table.AddRoute(a, b)
	table.DelRoute(a, b)

	assert.Empty(t, table.Routes(a))
}

func TestAddRouteNoOpOnUnknownSource(t *testing.T) {
	table := NewNodeTable()
	table.AddRoute(99, 1)
	assert.Empty(t, table.Routes(99))
}

func TestRenameUnknownNodeIsNoOp(t *testing.T) {
	table := NewNodeTable()
	table.Rename(42, "ghost")
	for _, n := range table.List() {
		assert.NotEqual(t, int32(42), n.ID)
	}
}

func TestListSnapshotsNamesAndSurvivesDelete(t *testing.T) {
	table := NewNodeTable()
	a := table.NewNode(&bytes.Buffer{})
	table.Rename(a, "alpha")

	names := table.List()
	assert.Len(t, names, 1)
	assert.Equal(t, "alpha", names[0].Name)

	table.Delete(a)
	assert.Empty(t, table.List())
	assert.Equal(t, "alpha", names[0].Name)
}

func TestWriterAbsentAfterDelete(t *testing.T) {
	table := NewNodeTable()
	a := table.NewNode(&bytes.Buffer{})
	table.Delete(a)

	_, ok := table.Writer(a)
	assert.False(t, ok)
}
