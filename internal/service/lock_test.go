package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestKeyedMutex_SameKey проверяет взаимное исключение по одному ключу.
func TestKeyedMutex_SameKey(t *testing.T) {
	km := NewKeyedMutex()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("h")
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("одновременно в критической секции: %d, ожидалось 1", maxInside)
	}
	if km.Len() != 0 {
		t.Errorf("Len = %d, записи должны удаляться после освобождения", km.Len())
	}
}

// TestKeyedMutex_DifferentKeys проверяет, что разные ключи не блокируют друг друга.
func TestKeyedMutex_DifferentKeys(t *testing.T) {
	km := NewKeyedMutex()

	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("блокировка ключа b ждала освобождения ключа a")
	}
	if km.Len() != 1 {
		t.Errorf("Len = %d, ожидалось 1", km.Len())
	}
}
