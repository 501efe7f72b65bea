package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationLocks_MutualExclusion(t *testing.T) {
	locks := NewConversationLocks()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Lock("conv-1")
			defer release()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locks.Len(), "released locks must be reclaimed")
}

func TestConversationLocks_IndependentKeys(t *testing.T) {
	locks := NewConversationLocks()

	releaseA := locks.Lock("conv-a")
	// A held lock on one conversation must not block another.
	done := make(chan struct{})
	go func() {
		releaseB := locks.Lock("conv-b")
		releaseB()
		close(done)
	}()
	<-done
	releaseA()

	assert.Equal(t, 0, locks.Len())
}

func TestConversationLocks_ReleaseIsIdempotent(t *testing.T) {
	locks := NewConversationLocks()
	release := locks.Lock("conv-1")
	release()
	assert.NotPanics(t, func() { release() })
	assert.Equal(t, 0, locks.Len())
}
