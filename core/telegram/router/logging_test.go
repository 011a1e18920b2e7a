package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	tele "gopkg.in/telebot.v4"
)

func TestCommandToken(t *testing.T) {
	cases := map[string]string{
		"/List":             "list",
		"/add@ShopBot milk": "add",
		"milk":              "",
		"/":                 "",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, commandToken(in), in)
	}
}

func TestParseCallback(t *testing.T) {
	key, payload := parseCallback(&tele.Callback{Data: "\fsel|12"})
	assert.Equal(t, "sel", key)
	assert.Equal(t, "12", payload)

	key, payload = parseCallback(&tele.Callback{Unique: "sel", Data: "7"})
	assert.Equal(t, "sel", key)
	assert.Equal(t, "7", payload)

	key, _ = parseCallback(nil)
	assert.Empty(t, key)
}

func TestNormalizeHandlerName(t *testing.T) {
	assert.Equal(t, "unknown", normalizeHandlerName(" "))
	assert.Equal(t, "multi_add", normalizeHandlerName("/Multi Add"))
}
