package generic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type scratch struct {
	data []byte
}

func TestPool_GetGenerates(t *testing.T) {
	calls := 0
	p := NewPool(func() *scratch {
		calls++
		return &scratch{data: make([]byte, 0, 16)}
	})

	s := p.Get()
	assert.NotNil(t, s)
	assert.Equal(t, 16, cap(s.data))
	assert.GreaterOrEqual(t, calls, 1)
}

func TestResetPool_ResetsOnPut(t *testing.T) {
	p := NewResetPool(
		func() *scratch { return &scratch{} },
		func(s *scratch) { s.data = s.data[:0] },
	)

	s := p.Get()
	s.data = append(s.data, 1, 2, 3)
	p.Put(s)

	assert.Empty(t, s.data, "reset runs before the value is pooled")
}
