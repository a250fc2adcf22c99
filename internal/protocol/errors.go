package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Generator.
	ErrBadConfig  = "E_BAD_CONFIG"
	ErrDegenerate = "E_DEGENERATE"
	ErrRateLimit  = "E_RATE_LIMIT"
	ErrNotAllowed = "E_NOT_ALLOWED"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrBadConfig:       {},
	ErrDegenerate:      {},
	ErrRateLimit:       {},
	ErrNotAllowed:      {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
