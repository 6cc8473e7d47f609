package finalizer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type namedCloser struct {
	order *[]string
	name  string
	err   error
}

func (c *namedCloser) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestCleanupReverseOrder(t *testing.T) {
	var order []string
	fin := NewFinalizer()
	fin.Add(&namedCloser{order: &order, name: "first"})
	fin.Add(&namedCloser{order: &order, name: "second"})
	fin.AddFn(func() { order = append(order, "third") })

	require.NoError(t, fin.Cleanup(nil))
	require.Equal(t, []string{"third", "second", "first"}, order)

	// A second cleanup has nothing left to close.
	require.NoError(t, fin.Cleanup(nil))
	require.Len(t, order, 3)
}

func TestCleanupfFoldsErrors(t *testing.T) {
	var order []string
	fin := NewFinalizer()
	fin.Add(&namedCloser{order: &order, name: "res", err: errors.New("close failed")})

	err := fin.Cleanupf("stopping: %v", errors.New("cause"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "stopping: cause")
	require.Contains(t, err.Error(), "close failed")

	// A nil cause reports only the resource errors.
	fin.Add(&namedCloser{order: &order, name: "res2", err: errors.New("another")})
	err = fin.Cleanupf("stopping: %v", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "another")
}

func TestContextCloser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fin := NewFinalizer()
	fin.Add(NewContextCloser(cancel))

	require.NoError(t, fin.Cleanup(nil))
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}
