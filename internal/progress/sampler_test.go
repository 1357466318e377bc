package progress

import (
	"sync/atomic"
	"testing"
)

func TestSamplerDeliversSamplesInOrder(t *testing.T) {
	s := NewSampler(8)

	var got []Sample
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Drain(func(sm Sample) { got = append(got, sm) })
	}()

	s.Publish("downloading", 10, 100)
	s.Publish("downloading", 50, 100)
	s.Publish("downloading", 100, 100)
	s.Close()
	<-done

	if len(got) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(got))
	}
	last := got[len(got)-1]
	if last.Current != 100 || last.Total != 100 {
		t.Errorf("expected final sample 100/100, got %d/%d", last.Current, last.Total)
	}
}

func TestSamplerKeepsNewestWhenFull(t *testing.T) {
	// Buffer of 1 with no drain running: every publish displaces the
	// previous sample.
	s := NewSampler(1)

	for i := int64(1); i <= 50; i++ {
		s.Publish("uploading", i, 50)
	}

	var got []Sample
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Drain(func(sm Sample) { got = append(got, sm) })
	}()
	s.Close()
	<-done

	if len(got) != 1 {
		t.Fatalf("expected 1 buffered sample, got %d", len(got))
	}
	if got[0].Current != 50 {
		t.Errorf("expected the newest sample (50) to survive, got %d", got[0].Current)
	}
}

func TestSamplerCloseWaitsForDrain(t *testing.T) {
	s := NewSampler(64)

	var processed atomic.Int64
	go s.Drain(func(Sample) { processed.Add(1) })

	for i := int64(0); i < 20; i++ {
		s.Publish("downloading", i, 20)
	}
	s.Close()

	if processed.Load() != 20 {
		t.Errorf("expected all 20 samples processed before Close returned, got %d", processed.Load())
	}
}
