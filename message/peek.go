package message

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Peek reads one value from a JSON body without decoding the whole
// message.
func Peek(body []byte, selector string) gjson.Result {
	return gjson.GetBytes(body, selector)
}

// PairOf returns the raw "chain:dex:pair" key of a body, or false when it
// names no pair. Opportunities use their buy side venue.
func PairOf(body []byte) (string, bool) {
	results := gjson.GetManyBytes(body, "chain", "dex", "buy_dex", "pair")
	pair := results[3].String()
	if pair == "" {
		return "", false
	}
	dex := results[1].String()
	if dex == "" {
		dex = results[2].String()
	}
	var sb strings.Builder
	sb.Grow(len(results[0].Raw) + len(dex) + len(pair) + 2)
	sb.WriteString(results[0].String())
	sb.WriteByte(':')
	sb.WriteString(dex)
	sb.WriteByte(':')
	sb.WriteString(pair)
	return sb.String(), true
}
