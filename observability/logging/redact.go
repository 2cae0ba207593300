package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"block_id":  {},
	"msg_type":  {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted. The original key casing is preserved for readability.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// PeerField abbreviates a peer identity instead of fully redacting it: bans and
// disconnects are investigated per peer, so logs keep the tail of the id.
func PeerField[T ~string](key string, peerID T) slog.Attr {
	return slog.String(key, abbreviatePeer(string(peerID)))
}

// isPeerKey reports whether an attribute key names a peer identity.
func isPeerKey(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	return normalized == "peer" || strings.HasSuffix(normalized, "_peer") ||
		strings.HasPrefix(normalized, "peer_")
}

func abbreviatePeer(peerID string) string {
	trimmed := strings.TrimSpace(peerID)
	if len(trimmed) <= 10 {
		return trimmed
	}
	return trimmed[:6] + "…" + trimmed[len(trimmed)-6:]
}
