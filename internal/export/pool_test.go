package export

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapOrderedPreservesInputOrder(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	got, err := mapOrdered(items, 7, func(i int) (string, error) {
		return fmt.Sprintf("item-%d", i), nil
	})
	require.NoError(t, err)
	require.Len(t, got, 100)
	for i, s := range got {
		assert.Equal(t, fmt.Sprintf("item-%d", i), s)
	}
}

func TestMapOrderedEmptyInput(t *testing.T) {
	got, err := mapOrdered(nil, 4, func(int) (int, error) { return 0, nil })
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMapOrderedSingleWorkerFloor(t *testing.T) {
	got, err := mapOrdered([]int{1, 2, 3}, 0, func(i int) (int, error) {
		return i * 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, got)
}

func TestMapOrderedReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	_, err := mapOrdered([]int{1, 2, 3, 4}, 2, func(i int) (int, error) {
		if i%2 == 0 {
			return 0, boom
		}
		return i, nil
	})
	assert.ErrorIs(t, err, boom)
}
