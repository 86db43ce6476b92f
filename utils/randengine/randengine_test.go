package randengine_test

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/randengine"
)

func TestSample(t *testing.T) {
	e := randengine.New(1)
	s := e.Sample(1000, 500)
	assert.Len(t, s, 500)
	assert.Len(t, lo.Uniq(s), 500)
	for _, i := range s {
		assert.GreaterOrEqual(t, i, 0)
		assert.Less(t, i, 1000)
	}

	assert.ElementsMatch(t, []int{0, 1, 2}, e.Sample(3, 10))
	assert.Empty(t, e.Sample(3, 0))
}

func TestDeterministic(t *testing.T) {
	a := randengine.Derive(42, 7)
	b := randengine.Derive(42, 7)
	c := randengine.Derive(42, 8)
	sa := []int{a.Intn(1 << 30), a.Intn(1 << 30)}
	sb := []int{b.Intn(1 << 30), b.Intn(1 << 30)}
	sc := []int{c.Intn(1 << 30), c.Intn(1 << 30)}
	assert.Equal(t, sa, sb)
	assert.NotEqual(t, sa, sc)
}

func TestChoice(t *testing.T) {
	e := randengine.New(3)
	assert.Equal(t, -1, e.Choice(0))
	for range 100 {
		i := e.Choice(4)
		assert.True(t, i >= 0 && i < 4)
	}
	assert.False(t, e.PTrue(0))
	assert.True(t, e.PTrue(1))
}
