package logger

import "strings"

// knownStatus lists the status values dashboards group by.
var knownStatus = map[string]bool{
	"ok":           true,
	"fail":         true,
	"skip":         true,
	"retry":        true,
	"rate_limited": true,
	"cancelled":    true,
	"timeout":      true,
}

// normalizeStatus lowercases known status values and leaves others as given.
func normalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	if knownStatus[s] {
		return s
	}
	return status
}

// defaultKeyOrder puts identifying fields first, then the shopping list and
// dialog fields, then transport details.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"conversation_id",
	"handler",
	"command",
	"kind",
	"dialog",
	"dialog_run",
	"state",
	"next_state",
	"transition",
	"reason",
	"cb_key",
	"item_id",
	"items",
	"count",
	"duration_ms",
	"timeout_ms",
	"messages",
	"kb",
	"payload",
	"lang",
	"username",
	"action",
	"endpoint",
	"attempt",
	"delay_ms",
	"mode",
	"listen",
	"public_url",
	"backend",
	"driver",
	"db",
	"host",
	"port",
	"err",
	"error_kind",
	"cause",
}
