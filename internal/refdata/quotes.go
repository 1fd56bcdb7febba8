package refdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"satsalert/internal/config"
)

var (
	ErrQuotesUnavailable = errors.New("refdata: quotes unavailable")
	ErrNoQuotes          = errors.New("refdata: no quotes")
)

type Quote struct {
	Text   string `json:"text"`
	Medium string `json:"medium"`
	Date   string `json:"date"`
}

func (q Quote) complete() bool {
	return strings.TrimSpace(q.Text) != "" && strings.TrimSpace(q.Medium) != "" && strings.TrimSpace(q.Date) != ""
}

// QuoteFile serves random quotes from a JSON or YAML list. The file is read
// on every call so edits show up without a restart.
type QuoteFile struct {
	Path string
	// Intn picks an index in [0,n); defaults to math/rand.
	Intn func(n int) int
}

// LoadQuotes returns the complete records of path.
func LoadQuotes(path string) ([]Quote, error) {
	b, err := config.ReadJSONOrYAML(path)
	if err != nil {
		return nil, err
	}
	var all []Quote
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, fmt.Errorf("quotes %s: %w", path, err)
	}
	out := all[:0]
	for _, q := range all {
		if q.complete() {
			out = append(out, q)
		}
	}
	return out, nil
}

// Random returns ErrQuotesUnavailable when the file cannot be read or parsed
// and ErrNoQuotes when it holds no complete record.
func (f QuoteFile) Random() (Quote, error) {
	quotes, err := LoadQuotes(f.Path)
	if err != nil {
		return Quote{}, errors.Join(ErrQuotesUnavailable, err)
	}
	if len(quotes) == 0 {
		return Quote{}, ErrNoQuotes
	}
	intn := f.Intn
	if intn == nil {
		intn = rand.Intn
	}
	return quotes[intn(len(quotes))], nil
}
