package clock

import (
	"testing"
	"time"
)

func TestNowNonDecreasing(t *testing.T) {
	c := New()
	var last uint64
	for i := 0; i < 100; i++ {
		now := c.Now()
		if now < last {
			t.Fatalf("Now went backwards: %d after %d", now, last)
		}
		last = now
	}
}

func TestNowAdvances(t *testing.T) {
	c := New()
	start := c.Now()
	time.Sleep(20 * time.Millisecond)
	elapsed := c.Now() - start
	if elapsed < 10 || elapsed > 500 {
		t.Errorf("elapsed = %d ms, want roughly 20", elapsed)
	}
}
