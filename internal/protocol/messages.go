package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type              string            `json:"type"`
	ProtocolVersion   string            `json:"protocol_version"`
	SupportedVersions []string          `json:"supported_versions,omitempty"`
	ClientName        string            `json:"client_name"`
	Capabilities      HelloCapabilities `json:"capabilities,omitempty"`
}

type HelloCapabilities struct {
	// CompactElevation asks for MAP elevation as base64 float32 instead of a JSON array.
	CompactElevation bool `json:"compact_elevation,omitempty"`
	// RecolorUpdates asks for BIOMES messages on threshold changes; otherwise a full MAP is sent.
	RecolorUpdates bool `json:"recolor_updates,omitempty"`
	// Control enables REGEN and CONFIG from this session.
	Control bool `json:"control,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	MapID           string     `json:"map_id"`
	Generation      uint64     `json:"generation"`
	TickRateHz      int        `json:"tick_rate_hz"`
	Control         bool       `json:"control"`
	MapGen          MapGen     `json:"mapgen"`
	Biomes          []BiomeRef `json:"biomes"`
}

type MapGen struct {
	Seed               uint64    `json:"seed"`
	GridSize           int       `json:"grid_size"`
	Jitter             float64   `json:"jitter"`
	ElevationThreshold float64   `json:"elevation_threshold"`
	Thresholds         []float64 `json:"thresholds,omitempty"`
	Biomes             []string  `json:"biomes,omitempty"`
	ElevationExtent    float64   `json:"elevation_extent"`
	Noise              string    `json:"noise"`
	RelaxIterations    int       `json:"relax_iterations"`
}

type BiomeRef struct {
	ID   uint16 `json:"id"`
	Name string `json:"name"`
	Fill string `json:"fill"`
}

// MAP (server -> client): a complete replacement; the client discards every previous cell.
type MapMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	MapID           string     `json:"map_id"`
	Generation      uint64     `json:"generation"`
	Digest          string     `json:"digest"`
	Bounds          [4]float64 `json:"bounds"` // min x, min y, max x, max y
	Cells           []CellMsg  `json:"cells"`
	Elevation       []float64  `json:"elevation,omitempty"`
	ElevationF32    string     `json:"elevation_f32,omitempty"`
	Biomes          []BiomeRef `json:"biomes"`
}

type CellMsg struct {
	Site      int          `json:"site"`
	Vertices  [][2]float64 `json:"vertices"`
	Closed    bool         `json:"closed"`
	Elevation float64      `json:"elevation"`
	Biome     uint16       `json:"biome"`
}

// BIOMES (server -> client): same geometry, new per-site category ids.
type BiomesMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	MapID           string     `json:"map_id"`
	Generation      uint64     `json:"generation"`
	Digest          string     `json:"digest"`
	Encoding        string     `json:"encoding"`
	Data            string     `json:"data"`
	Sites           int        `json:"sites"`
	Biomes          []BiomeRef `json:"biomes"`
}

// EncodingRLE is base64(uvarint(id), uvarint(run))... in site order.
const EncodingRLE = "RLE_UVARINT_B64"

// REGEN (client -> server)
type RegenMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id,omitempty"`
}

// CONFIG (client -> server): only the fields present are changed.
type ConfigMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	RequestID       string      `json:"request_id,omitempty"`
	MapGen          MapGenPatch `json:"mapgen"`
	Regenerate      bool        `json:"regenerate,omitempty"`
}

type MapGenPatch struct {
	Seed               *uint64   `json:"seed,omitempty"`
	GridSize           *int      `json:"grid_size,omitempty"`
	Jitter             *float64  `json:"jitter,omitempty"`
	ElevationThreshold *float64  `json:"elevation_threshold,omitempty"`
	Thresholds         []float64 `json:"thresholds,omitempty"`
	Biomes             []string  `json:"biomes,omitempty"`
	ElevationExtent    *float64  `json:"elevation_extent,omitempty"`
	Noise              *string   `json:"noise,omitempty"`
	RelaxIterations    *int      `json:"relax_iterations,omitempty"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	RequestID       string `json:"request_id,omitempty"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Generation      uint64 `json:"generation,omitempty"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string     `json:"protocol_version"`
	MapID           string     `json:"map_id"`
	Generation      uint64     `json:"generation"`
	Digest          string     `json:"digest"`
	State           string     `json:"state"`
	MapGen          MapGen     `json:"mapgen"`
	Sites           int        `json:"sites"`
	Cells           int        `json:"cells"`
	Triangles       int        `json:"triangles"`
	Bounds          [4]float64 `json:"bounds"`
	Biomes          []BiomeRef `json:"biomes"`
	Histogram       []int      `json:"histogram"`
}
