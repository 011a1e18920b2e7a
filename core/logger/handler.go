package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler writes one flat line per record, either JSON or
// key=value, with well-known keys first in keyOrder.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	groups []string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = slices.Clone(defaultKeyOrder)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}
	asJSON := h.cfg.format == formatJSON

	ts := r.Time.UTC()
	e := entry{
		"ts":    ts.Truncate(time.Millisecond).Format(timeFormatMillis),
		"level": r.Level.String(),
	}
	if asJSON {
		e["ts_unix_nano"] = ts.UnixNano()
	}
	for _, a := range h.attrs {
		h.add(e, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.add(e, a)
		return true
	})
	addContextFields(ctx, e)

	// long request ids are shortened; JSON keeps the full id next to it
	if rid := e.str("rid"); rid != "" {
		if short := CompactRID(rid); short != "" && short != rid {
			if asJSON {
				e.setDefault("rid_full", rid, true)
			}
			e["rid"] = short
		}
	}
	if e.str("event") == "" {
		e["event"] = "unknown"
		if r.Message != "" {
			e["event"] = r.Message
		}
	}
	if e.str("component") == "" {
		e["component"] = CompApp
	}
	if s := e.str("status"); s != "" {
		e["status"] = normalizeStatus(s)
	}
	e.prune()

	var line []byte
	if asJSON {
		var err error
		if line, err = encodeJSON(e, h.cfg.keyOrder); err != nil {
			return err
		}
	} else {
		line = encodeKV(e, h.cfg.keyOrder)
	}
	return h.cfg.writer.Write(append(line, '\n'), r.Level >= slog.LevelError)
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(slices.Clip(h.attrs), attrs...)
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(slices.Clip(h.groups), name)
	return &clone
}

// add flattens a into e using dotted group paths.
func (h *structuredHandler) add(e entry, a slog.Attr) {
	flatten(strings.Join(h.groups, "."), a, func(key string, v slog.Value) {
		if k, val, ok := normalizeAttr(key, v); ok {
			e[k] = val
		}
	})
}

func flatten(prefix string, a slog.Attr, fn func(string, slog.Value)) {
	key := a.Key
	switch {
	case key == "":
		key = prefix
	case prefix != "":
		key = prefix + "." + key
	}
	v := a.Value.Resolve()
	if v.Kind() != slog.KindGroup {
		if key != "" {
			fn(key, v)
		}
		return
	}
	for _, child := range v.Group() {
		flatten(key, child, fn)
	}
}

// normalizeAttr converts v into a JSON friendly value. Durations are
// written in milliseconds under a key ending in _ms.
func normalizeAttr(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return "", nil, false
	case error:
		return key, x.Error(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	}
	return key + "_ms"
}

// entry holds the fields of one log line.
type entry map[string]any

func (e entry) str(key string) string {
	switch v := e[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// setDefault stores val under key when ok holds and key is still unset.
func (e entry) setDefault(key string, val any, ok bool) {
	if !ok {
		return
	}
	if _, exists := e[key]; !exists {
		e[key] = val
	}
}

// prune drops empty values.
func (e entry) prune() {
	for k, v := range e {
		switch x := v.(type) {
		case nil:
			delete(e, k)
		case string:
			if x == "" {
				delete(e, k)
			}
		}
	}
}

// keys lists the keys of e: those named in order first, the rest sorted.
func (e entry) keys(order []string) []string {
	out := make([]string, 0, len(e))
	placed := make(map[string]bool, len(e))
	for _, k := range order {
		if _, ok := e[k]; ok && !placed[k] {
			out = append(out, k)
			placed[k] = true
		}
	}
	rest := make([]string, 0, len(e)-len(out))
	for k := range e {
		if !placed[k] {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

func encodeJSON(e entry, order []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range e.keys(order) {
		val, err := json.Marshal(e[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %q: %w", k, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(k))
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeKV(e entry, order []string) []byte {
	var buf bytes.Buffer
	for i, k := range e.keys(order) {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(kvValue(e[k]))
	}
	return buf.Bytes()
}

func kvValue(v any) string {
	var s string
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		s = x
	default:
		s = fmt.Sprint(x)
	}
	if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

// addContextFields copies request metadata from ctx without overriding
// attributes set on the record.
func addContextFields(ctx context.Context, e entry) {
	if ctx == nil {
		return
	}
	rid := RIDFrom(ctx)
	e.setDefault("rid", rid, rid != "")
	uid := UserIDFrom(ctx)
	e.setDefault("user_id", uid, uid != 0)
	upd := UpdateIDFrom(ctx)
	e.setDefault("update_id", upd, upd != 0)
	cid := ChatIDFrom(ctx)
	e.setDefault("chat_id", cid, cid != 0)
	hid := HandlerFrom(ctx)
	e.setDefault("handler", hid, hid != "")
	conv := ConversationFrom(ctx)
	e.setDefault("conversation_id", conv, conv != "")
	dlg, state := DialogFrom(ctx)
	e.setDefault("dialog", dlg, dlg != "")
	e.setDefault("state", state, state != "")
	run := DialogRunFrom(ctx)
	e.setDefault("dialog_run", run, run != "")
}
