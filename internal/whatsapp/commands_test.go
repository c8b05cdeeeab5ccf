package whatsapp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchIgnoresCase(t *testing.T) {
	cases := map[string]string{
		"/start":      "start",
		"/START":      "start",
		"привіт":      "start",
		"ПРИВІТ":      "start",
		"Hello":       "start",
		"/help":       "help",
		"/HeLp":       "help",
		"Допомога":    "help",
		"/catalog":    "catalog",
		"/CATALOG":    "catalog",
		"Каталог":     "catalog",
		"/orders":     "orders",
		"ЗАМОВЛЕННЯ":  "orders",
		"  /help  ":   "help",
		"where is it": fallbackCommand,
		"/catalogue":  fallbackCommand,
		"привіт!":     fallbackCommand,
	}
	for input, expected := range cases {
		if got := DefaultCommands.Match(input).Name; got != expected {
			t.Fatalf("Match(%q)=%s, expected %s", input, got, expected)
		}
	}
}

func TestKeywordsAreLowerCase(t *testing.T) {
	for _, cmd := range DefaultCommands {
		for _, kw := range cmd.Keywords {
			assert.Equal(t, strings.ToLower(kw), kw, "command %s", cmd.Name)
		}
	}
}

func TestRepliesUseContext(t *testing.T) {
	rc := ReplyContext{ContactName: "Olena", StoreURL: "https://shop.example"}

	assert.Contains(t, DefaultCommands.Match("/start").Reply(rc), "Привіт, Olena!")
	assert.Contains(t, DefaultCommands.Match("/catalog").Reply(rc), "https://shop.example")
	assert.Contains(t, DefaultCommands.Match("/orders").Reply(rc), "https://shop.example/profile/orders")
	assert.Contains(t, DefaultCommands.Match("???").Reply(rc), "/help")
}

func TestSelectNonText(t *testing.T) {
	tests := []struct {
		msg  InboundMessage
		kind string
	}{
		{InboundMessage{Type: TypeImage, Image: &Media{ID: "m1"}}, "зображення"},
		{InboundMessage{Type: TypeDocument}, "документ"},
		{InboundMessage{Type: TypeVideo}, "відео"},
		{InboundMessage{Type: TypeReaction}, "повідомлення"},
		{InboundMessage{Type: "unsupported"}, "повідомлення"},
		{InboundMessage{Type: TypeText}, "повідомлення"},
	}
	for _, tc := range tests {
		cmd := DefaultCommands.Select(tc.msg)
		assert.Equal(t, mediaCommand, cmd.Name, "type %s", tc.msg.Type)
		assert.Contains(t, cmd.Reply(ReplyContext{Type: tc.msg.Type}), "ваше "+tc.kind)
	}
}

func TestCommandTableIsExtensible(t *testing.T) {
	table := append(Commands{}, DefaultCommands...)
	table = append(table, Command{
		Name:     "delivery",
		Keywords: []string{"/delivery"},
		Reply:    func(ReplyContext) string { return "Нова Пошта" },
	})

	cmd := table.Select(textMessage("1", "a", "/DELIVERY"))
	assert.Equal(t, "delivery", cmd.Name)
	assert.Equal(t, "Нова Пошта", cmd.Reply(ReplyContext{}))
}
