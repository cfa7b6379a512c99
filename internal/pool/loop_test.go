package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoopRunsInPostOrder(t *testing.T) {
	l := NewLoop()
	var got []int
	for i := range 3 {
		l.Post(func() { got = append(got, i) })
	}
	assert.Equal(t, 3, l.Pending())
	assert.Equal(t, 3, l.Drain())
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Zero(t, l.Drain())
}

func TestLoopDrainRunsNestedPosts(t *testing.T) {
	l := NewLoop()
	var got []string
	l.Post(func() {
		got = append(got, "outer")
		l.Post(func() { got = append(got, "inner") })
	})
	l.Drain()
	assert.Equal(t, []string{"outer", "inner"}, got)
}

func TestLoopRunStopsOnCancel(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{})
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()

	l.Post(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("posted function did not run")
	}
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}
