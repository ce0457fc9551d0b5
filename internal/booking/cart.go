package booking

import (
	"encoding/json"
	"net/url"
	"strings"
)

// CartLine is a pending, unpaid reservation intent the browser holds until
// checkout. It only exists server-side for the duration of a request, parsed
// out of the cart cookie the client sends along.
type CartLine struct {
	Treatment string  `json:"treatment"`
	Zone      string  `json:"zone"`
	Sessions  int     `json:"sessions"`
	Date      string  `json:"date"`
	Time      string  `json:"time"`
	Price     float64 `json:"price"`
}

// ParseCart decodes the client-held cart state. The value may be URL-encoded
// (cookies usually are) and may use older field spellings. This is a
// best-effort read of state we do not own: anything unparseable yields an
// empty cart, never an error.
func ParseCart(raw string) []CartLine {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if decoded, err := url.QueryUnescape(raw); err == nil {
		raw = decoded
	}

	var loose []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return nil
	}

	var lines []CartLine
	for _, m := range loose {
		var line CartLine
		line.Treatment = looseString(m, "treatment", "tratamiento", "service")
		line.Zone = looseString(m, "zone", "zona")
		line.Date = looseString(m, "date", "fecha")
		line.Time = looseString(m, "time", "hora")
		if line.Date == "" || line.Time == "" {
			continue
		}
		_ = json.Unmarshal(m["sessions"], &line.Sessions)
		_ = json.Unmarshal(m["price"], &line.Price)
		lines = append(lines, line)
	}
	return lines
}

func looseString(m map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}
