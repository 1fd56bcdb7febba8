package refdata

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCurrencyLookup(t *testing.T) {
	p := write(t, "currency.json", `{"1": "USD", "2": "EUR", "3": "jpy"}`)
	tbl, err := LoadCurrencies(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tbl.Len() != 3 {
		t.Fatalf("len = %d", tbl.Len())
	}
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"usd", "USD", true},
		{" Eur ", "EUR", true},
		{"JPY", "JPY", true},
		{"any", "ANY", true},
		{"XYZ", "XYZ", false},
		{"1", "1", false},
	}
	for _, tc := range cases {
		got, ok := tbl.Lookup(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("Lookup(%q) = %q %v, want %q %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCurrencyYAML(t *testing.T) {
	p := write(t, "currency.yaml", "\"1\": USD\n\"2\": EUR\n")
	tbl, err := LoadCurrencies(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := tbl.Lookup("eur"); !ok {
		t.Fatalf("EUR missing: %v", tbl.Codes())
	}
}

func TestMissingCurrencyFile(t *testing.T) {
	tbl, err := LoadCurrencies(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := tbl.Lookup("USD"); ok {
		t.Fatalf("empty table must only accept ANY")
	}
	if _, ok := tbl.Lookup("any"); !ok {
		t.Fatalf("ANY must always be accepted")
	}
}

func TestQuotesFilterIncomplete(t *testing.T) {
	p := write(t, "quotes.json", `[
		{"text": "a", "medium": "m", "date": "d"},
		{"text": "b", "medium": "", "date": "d"},
		{"text": "c", "medium": "m"}
	]`)
	qs, err := LoadQuotes(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(qs) != 1 || qs[0].Text != "a" {
		t.Fatalf("quotes = %+v", qs)
	}

	q, err := QuoteFile{Path: p, Intn: func(int) int { return 0 }}.Random()
	if err != nil || q.Text != "a" {
		t.Fatalf("random = %+v %v", q, err)
	}
}

func TestQuoteErrors(t *testing.T) {
	_, err := QuoteFile{Path: filepath.Join(t.TempDir(), "missing.json")}.Random()
	if !errors.Is(err, ErrQuotesUnavailable) {
		t.Fatalf("missing file: %v", err)
	}
	empty := write(t, "quotes.json", `[{"text": "only text"}]`)
	_, err = QuoteFile{Path: empty}.Random()
	if !errors.Is(err, ErrNoQuotes) {
		t.Fatalf("empty list: %v", err)
	}
}
