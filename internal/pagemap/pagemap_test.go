package pagemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		skip     int
		want     []int
		fallback bool
	}{
		{name: "skip second of five", total: 5, skip: 2, want: []int{1, 3, 4, 5}},
		{name: "single page untouched", total: 1, skip: 2, want: []int{1}},
		{name: "single page excluded falls back", total: 1, skip: 1, want: []int{1}, fallback: true},
		{name: "skip beyond range", total: 3, skip: 9, want: []int{1, 2, 3}},
		{name: "skip disabled", total: 3, skip: 0, want: []int{1, 2, 3}},
		{name: "skip last", total: 2, skip: 2, want: []int{1}},
		{name: "empty document", total: 0, skip: 2, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Build(tt.total, tt.skip)
			assert.Equal(t, tt.want, m.Pages())
			assert.Equal(t, len(tt.want), m.Len())
			assert.Equal(t, tt.fallback, m.Fallback())
		})
	}
}

func TestBuildLengthProperty(t *testing.T) {
	for n := 0; n <= 12; n++ {
		for k := -1; k <= 14; k++ {
			m := Build(n, k)
			want := n
			if k >= 1 && k <= n && n > 1 {
				want = n - 1
			}
			require.Equalf(t, want, m.Len(), "N=%d k=%d", n, k)

			pages := m.Pages()
			for i := 1; i < len(pages); i++ {
				require.Lessf(t, pages[i-1], pages[i], "N=%d k=%d not increasing", n, k)
			}
			if n > 1 && k >= 1 && k <= n {
				require.NotContains(t, pages, k)
			}
		}
	}
}

func TestSourceAndLogical(t *testing.T) {
	m := Build(5, 2)

	src, ok := m.Source(3)
	require.True(t, ok)
	assert.Equal(t, 5, src)

	_, ok = m.Source(4)
	assert.False(t, ok)
	_, ok = m.Source(-1)
	assert.False(t, ok)

	idx, ok := m.Logical(4)
	require.True(t, ok)
	assert.Equal(t, 2, idx)

	_, ok = m.Logical(2)
	assert.False(t, ok, "excluded page has no logical index")
}

func TestClamp(t *testing.T) {
	m := Build(5, 2)
	assert.Equal(t, 0, m.Clamp(-3))
	assert.Equal(t, 2, m.Clamp(2))
	assert.Equal(t, 3, m.Clamp(99))
	assert.Equal(t, 0, Map{}.Clamp(4))
}

func TestPagesIsCopy(t *testing.T) {
	m := Build(3, 0)
	p := m.Pages()
	p[0] = 42
	src, _ := m.Source(0)
	assert.Equal(t, 1, src)
}
