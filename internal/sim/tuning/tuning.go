package tuning

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrOutOfRange marks a configuration value the generator refuses to run with.
var ErrOutOfRange = errors.New("config out of range")

const (
	MaxGridSize        = 1024
	MaxRelaxIterations = 1000

	NoiseSimplex = "simplex"
	NoisePerlin  = "perlin"
	NoiseNone    = "none"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int `yaml:"tick_rate_hz"`

	// SnapshotOnRegen writes a snapshot after every successful regeneration.
	SnapshotOnRegen bool `yaml:"snapshot_on_regen"`

	MapGen MapGen `yaml:"mapgen"`
}

// MapGen is the per-run generation record. A value is never mutated once handed to a run.
type MapGen struct {
	Seed               uint64  `yaml:"seed" json:"seed"`
	GridSize           int     `yaml:"grid_size" json:"grid_size"`
	Jitter             float64 `yaml:"jitter" json:"jitter"`
	ElevationThreshold float64 `yaml:"elevation_threshold" json:"elevation_threshold"`

	// Thresholds, when set, replaces ElevationThreshold with an ascending list; Biomes then
	// names len(Thresholds)+1 categories from lowest to highest.
	Thresholds []float64 `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
	Biomes     []string  `yaml:"biomes,omitempty" json:"biomes,omitempty"`

	// ElevationExtent is the normalization distance D. Zero means "use the grid extent".
	ElevationExtent float64 `yaml:"elevation_extent" json:"elevation_extent"`
	Noise           string  `yaml:"noise" json:"noise"`
	RelaxIterations int     `yaml:"relax_iterations" json:"relax_iterations"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		TickRateHz:      10,
		MapGen:          DefaultMapGen(),
	}
}

func DefaultMapGen() MapGen {
	return MapGen{
		Seed:               0xDEADBEEF,
		GridSize:           20,
		Jitter:             1.0,
		ElevationThreshold: 0.65,
		ElevationExtent:    25,
		Noise:              NoiseSimplex,
	}
}

// Load reads a tuning file on top of Defaults, so omitted keys keep their default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("%w: tick_rate_hz=%d", ErrOutOfRange, t.TickRateHz)
	}
	return t.MapGen.Validate()
}

func (m MapGen) Validate() error {
	if m.GridSize < 0 || m.GridSize > MaxGridSize {
		return fmt.Errorf("%w: grid_size=%d (want 0..%d)", ErrOutOfRange, m.GridSize, MaxGridSize)
	}
	if m.Jitter < 0 || !finite(m.Jitter) {
		return fmt.Errorf("%w: jitter=%v", ErrOutOfRange, m.Jitter)
	}
	if !finite(m.ElevationThreshold) {
		return fmt.Errorf("%w: elevation_threshold=%v", ErrOutOfRange, m.ElevationThreshold)
	}
	if m.ElevationExtent < 0 || !finite(m.ElevationExtent) {
		return fmt.Errorf("%w: elevation_extent=%v", ErrOutOfRange, m.ElevationExtent)
	}
	if m.RelaxIterations < 0 || m.RelaxIterations > MaxRelaxIterations {
		return fmt.Errorf("%w: relax_iterations=%d", ErrOutOfRange, m.RelaxIterations)
	}
	switch m.Noise {
	case "", NoiseSimplex, NoisePerlin, NoiseNone:
	default:
		return fmt.Errorf("%w: noise=%q", ErrOutOfRange, m.Noise)
	}

	th := m.ThresholdList()
	for i, v := range th {
		if !finite(v) {
			return fmt.Errorf("%w: thresholds[%d]=%v", ErrOutOfRange, i, v)
		}
		if i > 0 && v <= th[i-1] {
			return fmt.Errorf("%w: thresholds must be strictly ascending", ErrOutOfRange)
		}
	}
	if len(m.Biomes) > 0 && len(m.Biomes) != len(th)+1 {
		return fmt.Errorf("%w: %d biomes for %d thresholds", ErrOutOfRange, len(m.Biomes), len(th))
	}
	return nil
}

// ThresholdList returns the effective ascending threshold list.
func (m MapGen) ThresholdList() []float64 {
	if len(m.Thresholds) > 0 {
		return append([]float64(nil), m.Thresholds...)
	}
	return []float64{m.ElevationThreshold}
}

// BiomeNames returns one category name per elevation band, lowest first.
func (m MapGen) BiomeNames() []string {
	if len(m.Biomes) > 0 {
		return append([]string(nil), m.Biomes...)
	}
	n := len(m.ThresholdList()) + 1
	if n == 2 {
		return []string{"low", "high"}
	}
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("band%d", i)
	}
	return out
}

// SameGeometry reports whether a and b produce identical sites and elevation, so only the
// classification differs between them.
func SameGeometry(a, b MapGen) bool {
	return a.Seed == b.Seed &&
		a.GridSize == b.GridSize &&
		a.Jitter == b.Jitter &&
		a.ElevationExtent == b.ElevationExtent &&
		a.noiseKind() == b.noiseKind() &&
		a.RelaxIterations == b.RelaxIterations
}

func (m MapGen) noiseKind() string {
	if m.Noise == "" {
		return NoiseSimplex
	}
	return m.Noise
}

// NoiseKind returns the configured noise source, defaulting to simplex.
func (m MapGen) NoiseKind() string { return m.noiseKind() }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
