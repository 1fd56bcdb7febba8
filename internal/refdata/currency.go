// Package refdata loads the reference tables the conversation needs:
// fiat currency codes and the quote collection behind /satoshi.
package refdata

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"satsalert/internal/config"
	"satsalert/internal/storage"
)

// CurrencyTable is the set of canonical currency codes. The source file maps
// exchange ids to codes ({"1": "USD", "2": "EUR", ...}); only the values matter.
type CurrencyTable struct {
	codes map[string]struct{}
}

func NewCurrencyTable(codes ...string) CurrencyTable {
	t := CurrencyTable{codes: make(map[string]struct{}, len(codes))}
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			t.codes[c] = struct{}{}
		}
	}
	return t
}

// LoadCurrencies reads a JSON or YAML map of id -> code.
func LoadCurrencies(path string) (CurrencyTable, error) {
	b, err := config.ReadJSONOrYAML(path)
	if err != nil {
		return CurrencyTable{}, fmt.Errorf("currency table: %w", err)
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return CurrencyTable{}, fmt.Errorf("currency table %s: %w", path, err)
	}
	codes := make([]string, 0, len(m))
	for _, v := range m {
		codes = append(codes, v)
	}
	return NewCurrencyTable(codes...), nil
}

// Lookup normalises input and reports whether it is ANY or a known code.
func (t CurrencyTable) Lookup(input string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(input))
	if code == storage.AnyCurrency {
		return code, true
	}
	_, ok := t.codes[code]
	return code, ok
}

func (t CurrencyTable) Len() int { return len(t.codes) }

func (t CurrencyTable) Codes() []string {
	out := make([]string, 0, len(t.codes))
	for c := range t.codes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
