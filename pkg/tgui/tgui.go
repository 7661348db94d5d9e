// Package tgui holds small Telegram UI helpers: an inline keyboard builder,
// callback-data packing, and HTML escaping for ParseMode="HTML" messages.
package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Inline is a builder for inline keyboards (ReplyMarkup).
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a row of buttons to the keyboard.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Markup returns the underlying reply markup.
func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button with raw callback_data. Use Data to build
// the "action:arg:arg" payload.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}
