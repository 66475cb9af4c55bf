package scripthandle_test

import (
	"testing"

	"github.com/onesync/core/pkg/scripthandle"
	"github.com/stretchr/testify/assert"
)

func TestGetIsStableAndOffset(t *testing.T) {
	p := scripthandle.New()
	h1, ok := p.Get(42)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, h1, uint32(scripthandle.Base))

	h2, ok := p.Get(42)
	assert.True(t, ok)
	assert.Equal(t, h1, h2)
}

func TestFreeAllowsReuse(t *testing.T) {
	p := scripthandle.New()
	h1, _ := p.Get(1)
	p.Free(1)
	h2, ok := p.Get(2)
	assert.True(t, ok)
	assert.Equal(t, h1, h2)
}

func TestExhaustion(t *testing.T) {
	p := scripthandle.New()
	for i := uint32(0); i < scripthandle.PoolSize; i++ {
		_, ok := p.Get(i)
		assert.True(t, ok)
	}
	_, ok := p.Get(scripthandle.PoolSize)
	assert.False(t, ok)
}
