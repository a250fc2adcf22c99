package tuning

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RepoConfig(t *testing.T) {
	tune, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.MapGen.Seed != 0xDEADBEEF {
		t.Fatalf("seed=%#x want 0xDEADBEEF", tune.MapGen.Seed)
	}
	if tune.MapGen.GridSize != 20 || tune.MapGen.Jitter != 1.0 || tune.MapGen.ElevationThreshold != 0.65 {
		t.Fatalf("unexpected mapgen: %+v", tune.MapGen)
	}
}

func TestLoad_OmittedKeysKeepDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("mapgen:\n  grid_size: 5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tune, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := DefaultMapGen()
	if tune.MapGen.GridSize != 5 {
		t.Fatalf("grid_size=%d want 5", tune.MapGen.GridSize)
	}
	if tune.MapGen.Seed != def.Seed || tune.MapGen.ElevationThreshold != def.ElevationThreshold {
		t.Fatalf("defaults lost: %+v", tune.MapGen)
	}
	if tune.TickRateHz != 10 {
		t.Fatalf("tick_rate_hz=%d want 10", tune.TickRateHz)
	}
}

func TestLoad_RejectsNegativeJitter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("mapgen:\n  jitter: -0.5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("err=%v want ErrOutOfRange", err)
	}
}

func TestMapGenValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*MapGen)
		ok   bool
	}{
		{"defaults", func(*MapGen) {}, true},
		{"empty grid", func(m *MapGen) { m.GridSize = 0 }, true},
		{"negative grid", func(m *MapGen) { m.GridSize = -1 }, false},
		{"huge grid", func(m *MapGen) { m.GridSize = MaxGridSize + 1 }, false},
		{"negative jitter", func(m *MapGen) { m.Jitter = -1 }, false},
		{"nan threshold", func(m *MapGen) { m.ElevationThreshold = math.NaN() }, false},
		{"negative extent", func(m *MapGen) { m.ElevationExtent = -1 }, false},
		{"unknown noise", func(m *MapGen) { m.Noise = "worley" }, false},
		{"negative relax", func(m *MapGen) { m.RelaxIterations = -1 }, false},
		{"ascending list", func(m *MapGen) {
			m.Thresholds = []float64{0.3, 0.65}
			m.Biomes = []string{"water", "sand", "land"}
		}, true},
		{"descending list", func(m *MapGen) { m.Thresholds = []float64{0.65, 0.3} }, false},
		{"biome count mismatch", func(m *MapGen) {
			m.Thresholds = []float64{0.3, 0.65}
			m.Biomes = []string{"water", "land"}
		}, false},
	}
	for _, tc := range cases {
		m := DefaultMapGen()
		tc.mut(&m)
		err := m.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("%s: err=%v want ErrOutOfRange", tc.name, err)
		}
	}
}

func TestBiomeNames(t *testing.T) {
	m := DefaultMapGen()
	names := m.BiomeNames()
	if len(names) != 2 || names[0] != "low" || names[1] != "high" {
		t.Fatalf("default names=%v", names)
	}
	m.Thresholds = []float64{0.2, 0.4, 0.6}
	if got := len(m.BiomeNames()); got != 4 {
		t.Fatalf("names for 3 thresholds: %d", got)
	}
}

func TestSameGeometry(t *testing.T) {
	a := DefaultMapGen()
	b := a
	b.ElevationThreshold = 0.4
	if !SameGeometry(a, b) {
		t.Fatalf("threshold-only change should keep geometry")
	}
	b.Jitter = 0.5
	if SameGeometry(a, b) {
		t.Fatalf("jitter change should alter geometry")
	}
	c := a
	c.Noise = ""
	if !SameGeometry(a, c) {
		t.Fatalf("empty noise should mean simplex")
	}
}
