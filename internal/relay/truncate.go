package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
)

// maxLoggedPayload caps how much of a raw payload goes into a log line.
const maxLoggedPayload = 512

// payloadAttrs describes a raw payload for logging. Payloads over the cap are
// cut and carry their full size and sha256 so repeats can be correlated.
func payloadAttrs(in []byte) slog.Attr {
	if len(in) <= maxLoggedPayload {
		return slog.Group("payload", "raw", string(in), "size", len(in))
	}
	sum := sha256.Sum256(in)
	return slog.Group("payload",
		"raw", string(in[:maxLoggedPayload]),
		"size", len(in),
		"truncated", true,
		"sha256", hex.EncodeToString(sum[:]),
	)
}
