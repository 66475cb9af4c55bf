package bitset_test

import (
	"testing"

	"github.com/onesync/core/pkg/bitset"
	"github.com/stretchr/testify/assert"
)

func TestSetClearGet(t *testing.T) {
	s := bitset.New(128)
	assert.False(t, s.Get(5))
	s.Set(5)
	assert.True(t, s.Get(5))
	s.Clear(5)
	assert.False(t, s.Get(5))
}

func TestCountAndVisit(t *testing.T) {
	s := bitset.New(70)
	s.Set(0)
	s.Set(63)
	s.Set(64)
	s.Set(69)

	assert.Equal(t, 4, s.Count())

	var visited []int
	s.Visit(func(i int) bool {
		visited = append(visited, i)
		return true
	})
	assert.Equal(t, []int{0, 63, 64, 69}, visited)
}

func TestNextClear(t *testing.T) {
	s := bitset.New(4)
	s.SetAll()
	assert.Equal(t, -1, s.NextClear(0))
	s.Clear(2)
	assert.Equal(t, 2, s.NextClear(0))
	assert.Equal(t, -1, s.NextClear(3))
}

func TestOutOfRangePanics(t *testing.T) {
	s := bitset.New(4)
	assert.Panics(t, func() { s.Get(4) })
	assert.Panics(t, func() { s.Set(-1) })
}
