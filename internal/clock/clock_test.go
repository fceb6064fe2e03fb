package clock

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonotonicAdvances(t *testing.T) {
	a := Monotonic.Ticks()
	time.Sleep(time.Millisecond)
	b := Monotonic.Ticks()
	require.Greater(t, b, a)
}

func TestWallTime(t *testing.T) {
	wall, err := WallTime(Monotonic.Ticks())
	if errors.Is(err, ErrNotImplemented) {
		t.Skip("boot time not available on this platform")
	}
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), wall, time.Second)
}

func TestFunc(t *testing.T) {
	var c Clock = Func(func() uint64 { return 42 })
	require.EqualValues(t, 42, c.Ticks())
}
