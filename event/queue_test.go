package event

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRingFIFO(t *testing.T) {
	r := NewRing[int](64, nil)
	for i := 0; i < 10; i++ {
		r.Push(i)
	}
	if r.Len() != 10 {
		t.Errorf("Expected Len 10, got %d", r.Len())
	}

	got := r.Consume()
	if len(got) != 10 {
		t.Fatalf("Expected 10 entries, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Errorf("Expected %d at position %d, got %d", i, i, v)
		}
	}
	if r.Consume() != nil {
		t.Error("Expected nil from empty ring")
	}
}

func TestRingCapacityRounding(t *testing.T) {
	if got := NewRing[int](100, nil).Cap(); got != 128 {
		t.Errorf("Expected capacity 128, got %d", got)
	}
	if got := NewRing[int](1, nil).Cap(); got != 64 {
		t.Errorf("Expected minimum capacity 64, got %d", got)
	}
}

func TestRingOverflowDropsOldest(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_overwrites"})
	r := NewRing[int](64, counter)

	for i := 0; i < 70; i++ {
		r.Push(i)
	}

	got := r.Consume()
	if len(got) != 64 {
		t.Fatalf("Expected full ring of 64, got %d", len(got))
	}
	if got[0] != 6 {
		t.Errorf("Expected oldest survivor 6, got %d", got[0])
	}
	if got[len(got)-1] != 69 {
		t.Errorf("Expected newest 69, got %d", got[len(got)-1])
	}
	if testutil.ToFloat64(counter) == 0 {
		t.Error("Expected overwrite metric to count losses")
	}
}
