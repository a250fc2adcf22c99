package biome

import (
	"errors"
	"image/color"
	"testing"

	"terracell.ai/internal/sim/tuning"
)

func TestClassify_DefaultThreshold(t *testing.T) {
	c, err := FromConfig(tuning.DefaultMapGen())
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	cases := []struct {
		e    float64
		want string
	}{
		{-1, "low"},
		{0.64999, "low"},
		{0.65, "high"},
		{1.2, "high"},
	}
	for _, tc := range cases {
		if got := c.Name(tc.e); got != tc.want {
			t.Fatalf("Name(%v)=%q want %q", tc.e, got, tc.want)
		}
	}
}

func TestClassify_MultipleBands(t *testing.T) {
	c, err := New([]float64{0.3, 0.5, 0.8}, []string{"deep", "shallow", "land", "peak"})
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	got := c.ClassifyAll([]float64{0.1, 0.3, 0.49, 0.5, 0.79, 0.8, 2})
	want := []uint16{0, 1, 1, 2, 2, 3, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("band[%d]=%d want %d", i, got[i], want[i])
		}
	}
}

func TestNew_Rejects(t *testing.T) {
	if _, err := New(nil, []string{"only"}); !errors.Is(err, tuning.ErrOutOfRange) {
		t.Fatalf("empty thresholds: %v", err)
	}
	if _, err := New([]float64{0.5}, []string{"a"}); !errors.Is(err, tuning.ErrOutOfRange) {
		t.Fatalf("name mismatch: %v", err)
	}
	if _, err := New([]float64{0.5, 0.5}, []string{"a", "b", "c"}); !errors.Is(err, tuning.ErrOutOfRange) {
		t.Fatalf("equal thresholds: %v", err)
	}
}

func TestColors_LowWaterHighLand(t *testing.T) {
	c, err := FromConfig(tuning.DefaultMapGen())
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	low := c.Category(0)
	high := c.Category(1)
	if low.Color != (color.RGBA{R: 89, G: 89, B: 166, A: 255}) {
		t.Fatalf("low color=%v", low.Color)
	}
	if high.Color != (color.RGBA{R: 128, G: 166, B: 89, A: 255}) {
		t.Fatalf("high color=%v", high.Color)
	}
	if low.Fill != "hsl(240,30%,50%)" || high.Fill != "hsl(90,30%,50%)" {
		t.Fatalf("fills=%q %q", low.Fill, high.Fill)
	}
	if c.Category(9).Name != "unknown" {
		t.Fatalf("out of range category should be unknown")
	}
}
