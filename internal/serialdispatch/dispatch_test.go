package serialdispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchReturnsResult(t *testing.T) {
	d := New(1)
	defer d.Close()

	want := errors.New("boom")
	err := d.Dispatch(context.Background(), func() error { return want })
	assert.ErrorIs(t, err, want)
	assert.NoError(t, d.Dispatch(context.Background(), func() error { return nil }))
}

func TestDispatchIsSerial(t *testing.T) {
	d := New(16)
	defer d.Close()

	var running, maxRunning atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Dispatch(context.Background(), func() error {
				n := running.Add(1)
				for {
					m := maxRunning.Load()
					if n <= m || maxRunning.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestDispatchRecoversPanic(t *testing.T) {
	d := New(1)
	defer d.Close()

	err := d.Dispatch(context.Background(), func() error { panic("bad") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")

	assert.NoError(t, d.Dispatch(context.Background(), func() error { return nil }), "dispatcher survives a panic")
}

func TestDispatchAfterClose(t *testing.T) {
	d := New(1)
	d.Close()
	d.Close()

	err := d.Dispatch(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseWaitsForQueued(t *testing.T) {
	d := New(4)
	var ran atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = d.Dispatch(context.Background(), func() error {
			close(started)
			<-release
			ran.Add(1)
			return nil
		})
	}()
	<-started
	time.AfterFunc(10*time.Millisecond, func() { close(release) })
	d.Close()
	assert.Equal(t, int32(1), ran.Load())
}

func TestDispatchContextCanceled(t *testing.T) {
	d := New(0)
	defer d.Close()

	block := make(chan struct{})
	go func() {
		_ = d.Dispatch(context.Background(), func() error { <-block; return nil })
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Dispatch(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(block)
}
