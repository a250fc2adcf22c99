package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeMap     = "MAP"
	TypeBiomes  = "BIOMES"
	TypeRegen   = "REGEN"
	TypeConfig  = "CONFIG"
	TypeAck     = "ACK"
	TypeError   = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// SupportsVersion reports whether a client-advertised version can be served.
func SupportsVersion(v string) bool {
	return v == "" || v == Version
}
