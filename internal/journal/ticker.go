// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package journal

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// tickerPaths are tried in order against metadata, then args.
var tickerPaths = []string{"ticker", "symbol", "tickers.0", "symbols.0"}

// ExtractTicker finds the instrument a tool call is about. The agent puts it
// in metadata for CLI tools; other tools may carry it in their args.
func ExtractTicker(metadata, args json.RawMessage) string {
	for _, doc := range []json.RawMessage{metadata, args} {
		if len(doc) == 0 || !gjson.ValidBytes(doc) {
			continue
		}
		for _, p := range tickerPaths {
			v := gjson.GetBytes(doc, p)
			if v.Type == gjson.String {
				if s := strings.ToUpper(strings.TrimSpace(v.String())); s != "" {
					return s
				}
			}
		}
	}
	return ""
}
