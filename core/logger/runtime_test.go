package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextMetadata(t *testing.T) {
	ctx := WithUpdateMeta(WithRID(Background(), "1:2:3"), 10, 20, 30)
	ctx = WithHandler(ctx, "cmd.add")
	ctx = WithHandler(ctx, "")
	ctx = WithConversation(ctx, "30")
	ctx = WithDialog(ctx, "shopping", "picking")

	assert.Equal(t, "1:2:3", RIDFrom(ctx))
	assert.Equal(t, 10, UpdateIDFrom(ctx))
	assert.Equal(t, int64(20), UserIDFrom(ctx))
	assert.Equal(t, int64(30), ChatIDFrom(ctx))
	assert.Equal(t, "cmd.add", HandlerFrom(ctx))
	assert.Equal(t, "30", ConversationFrom(ctx))
	name, state := DialogFrom(ctx)
	assert.Equal(t, "shopping", name)
	assert.Equal(t, "picking", state)

	assert.Zero(t, ChatIDFrom(Background()))
	assert.Same(t, L, FromContext(Background()))
}

func TestCompactRID(t *testing.T) {
	assert.Equal(t, "a.b.c", CompactRID("10:11:12"))
	assert.Equal(t, "-1.0.z", CompactRID("-1:0:35"))
	assert.Equal(t, "abc", CompactRID("abc"))
	assert.Equal(t, "1:x:3", CompactRID("1:x:3"))
}

func TestSanitizeLimit(t *testing.T) {
	assert.Equal(t, "milk\tand eggs", Sanitize("milk\t\u200band\x00 eggs"))
	assert.Equal(t, "мол", SanitizeLimit("молоко", 3))
	assert.Empty(t, SanitizeLimit("x", 0))
}
