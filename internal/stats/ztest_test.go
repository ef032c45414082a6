package stats_test

import (
	"testing"

	"github.com/carsuggester/roadtest/internal/stats"
)

func TestZTest_ClearWinner(t *testing.T) {
	// 10% vs 5% over 1000 exposures each is a decisive difference.
	z, level, significant := stats.ZTest(100, 1000, 50, 1000)
	if !significant {
		t.Errorf("expected significance, got z=%f level=%f", z, level)
	}
	if level != 95 {
		t.Errorf("expected 95%% tier, got %f", level)
	}
}

func TestZTest_EqualRates(t *testing.T) {
	z, level, significant := stats.ZTest(50, 1000, 50, 1000)
	if significant {
		t.Error("equal rates must not be significant")
	}
	if z != 0 {
		t.Errorf("expected z=0 for equal rates, got %f", z)
	}
	if level > 10 {
		t.Errorf("expected near-zero level for equal rates, got %f", level)
	}
}

func TestZTest_SmallSample(t *testing.T) {
	// The same rates that are decisive at n=1000 tell us nothing at n=20.
	_, _, significant := stats.ZTest(2, 20, 1, 20)
	if significant {
		t.Error("small samples must not reach significance")
	}
}

func TestZTest_ZeroExposures(t *testing.T) {
	if _, _, significant := stats.ZTest(0, 0, 0, 0); significant {
		t.Error("zero exposures must not be significant")
	}
	if _, _, significant := stats.ZTest(10, 100, 0, 0); significant {
		t.Error("one-sided data must not be significant")
	}
}

func TestZTest_ZeroStandardError(t *testing.T) {
	// Zero conversions on both sides gives a pooled proportion of 0 and
	// se == 0; the guard must report not significant instead of Inf.
	z, level, significant := stats.ZTest(0, 500, 0, 500)
	if significant || z != 0 || level != 0 {
		t.Errorf("expected guarded zero result, got z=%f level=%f sig=%t", z, level, significant)
	}
}

func TestZTest_Symmetric(t *testing.T) {
	// |p1-p2| makes the test direction-free; winner selection happens on
	// rates, not on z.
	z1, _, _ := stats.ZTest(100, 1000, 50, 1000)
	z2, _, _ := stats.ZTest(50, 1000, 100, 1000)
	if z1 != z2 {
		t.Errorf("z should be symmetric: %f vs %f", z1, z2)
	}
}

func TestZTest_Tiers(t *testing.T) {
	// 60 vs 45 conversions over 1000: z ~1.5, inside the 80 tier.
	_, level, significant := stats.ZTest(60, 1000, 45, 1000)
	if significant {
		t.Errorf("z in the 80 tier must not be significant, level=%f", level)
	}
	if level != 80 && level != 90 {
		t.Errorf("expected a mid tier for a moderate difference, got %f", level)
	}
}
