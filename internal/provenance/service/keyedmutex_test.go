package service

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestKeyedMutex_serialisesPerKey(t *testing.T) {
	k := newKeyedMutex()
	id := uuid.New()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(id)
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter: got %d, want 50", counter)
	}
	if k.size() != 0 {
		t.Errorf("expected lock table to be empty, got %d entries", k.size())
	}
}

func TestKeyedMutex_independentKeys(t *testing.T) {
	k := newKeyedMutex()
	a, b := uuid.New(), uuid.New()

	unlockA := k.Lock(a)
	done := make(chan struct{})
	go func() {
		unlockB := k.Lock(b)
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}
