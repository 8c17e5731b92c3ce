package util

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	out := Map([]int{3, 4, 5}, func(item int, i uint64) string {
		return strconv.Itoa(item) + ":" + strconv.FormatUint(i, 10)
	})
	assert.Equal(t, []string{"3:0", "4:1", "5:2"}, out)
	assert.Empty(t, Map([]int{}, func(item int, i uint64) int { return item }))
}

func TestFilter(t *testing.T) {
	out := Filter([]int{1, 2, 3, 4, 5, 6}, func(item int) bool { return item%2 == 0 })
	assert.Equal(t, []int{2, 4, 6}, out)
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name     string
		items    []int
		size     int
		expected [][]int
	}{
		{"empty", nil, 3, nil},
		{"exact", []int{1, 2, 3, 4}, 2, [][]int{{1, 2}, {3, 4}}},
		{"remainder", []int{1, 2, 3, 4, 5}, 2, [][]int{{1, 2}, {3, 4}, {5}}},
		{"larger than input", []int{1, 2}, 10, [][]int{{1, 2}}},
		{"zero size", []int{1, 2, 3}, 0, [][]int{{1, 2, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Chunk(tt.items, tt.size))
		})
	}
}

func TestWindows(t *testing.T) {
	tests := []struct {
		name     string
		from, to uint64
		size     uint64
		expected [][2]uint64
	}{
		{"single block", 5, 5, 10, [][2]uint64{{5, 5}}},
		{"exact", 0, 19, 10, [][2]uint64{{0, 9}, {10, 19}}},
		{"remainder", 100, 125, 10, [][2]uint64{{100, 109}, {110, 119}, {120, 125}}},
		{"empty range", 10, 9, 10, nil},
		{"zero size", 0, 10, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Windows(tt.from, tt.to, tt.size))
		})
	}

	// windows cover the range without gaps or overlap
	windows := Windows(12178618, 12300000, 10000)
	require.NotEmpty(t, windows)
	assert.Equal(t, uint64(12178618), windows[0][0])
	assert.Equal(t, uint64(12300000), windows[len(windows)-1][1])
	for i := 1; i < len(windows); i++ {
		assert.Equal(t, windows[i-1][1]+1, windows[i][0])
	}
}
