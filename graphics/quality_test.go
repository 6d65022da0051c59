package graphics

import (
	"testing"
	"time"
)

func TestParseRenderQuality(t *testing.T) {
	for _, s := range []string{"", "auto"} {
		if q, ok := ParseRenderQuality(s); q != QualityAuto || !ok {
			t.Errorf("Expected %q to parse as auto, got %v ok=%v", s, q, ok)
		}
	}
	if q, ok := ParseRenderQuality("high"); q != QualityHigh || !ok {
		t.Errorf("Expected high, got %v ok=%v", q, ok)
	}

	// Unknown values report failure but still hand back the fallback;
	// callers log and keep going.
	q, ok := ParseRenderQuality("ultra")
	if ok {
		t.Error("Expected unknown quality string to report failure")
	}
	if q != QualityAuto {
		t.Errorf("Expected auto fallback, got %v", q)
	}
}

func TestBuilderStampsQualityAndBenchmark(t *testing.T) {
	ctx := newTestContext()
	b := NewBuilder(ctx, Options{})
	b.SetRenderQuality(QualityHigh)
	b.SetBenchmark(true)

	def := buildAt(t, b, 16*time.Millisecond)
	if def.Quality != QualityHigh {
		t.Errorf("Expected quality high on the built frame, got %v", def.Quality)
	}
	if !def.Benchmark {
		t.Error("Expected benchmark flag stamped on the built frame")
	}
	b.ReturnCompletedFrameDef(def)

	// A recycled def carries the builder's current settings, not the
	// previous frame's.
	b.SetRenderQuality(QualityLow)
	b.SetBenchmark(false)
	def = buildAt(t, b, 32*time.Millisecond)
	if def.Quality != QualityLow || def.Benchmark {
		t.Errorf("Expected low/false on the recycled frame, got %v/%v",
			def.Quality, def.Benchmark)
	}
}
