package pricing

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Coerce converts a raw JSON value into a decimal. JSON numbers and numeric
// strings are accepted; absent, null or malformed values become zero so a bad
// price never aborts a cart read.
func Coerce(raw json.RawMessage) decimal.Decimal {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return decimal.Zero
		}
		s = strings.TrimSpace(str)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// CoerceInt is Coerce truncated to an int.
func CoerceInt(raw json.RawMessage) int {
	return int(Coerce(raw).IntPart())
}
