package app

import (
	"context"
	"time"

	"satsalert/internal/refdata"
	"satsalert/internal/storage"
	"satsalert/pkg/logx"
)

// loadCurrencies never fails: a missing or broken table leaves only "ANY"
// accepted and is reported as a warning.
func loadCurrencies(path string, log logx.Logger) refdata.CurrencyTable {
	t, err := refdata.LoadCurrencies(path)
	if err != nil {
		log.Warn("currency table unavailable; only ANY will be accepted", logx.String("path", path), logx.Err(err))
		return refdata.NewCurrencyTable()
	}
	log.Info("currency table loaded", logx.String("path", path), logx.Int("codes", t.Len()))
	return t
}

// checkQuotes reports problems with the quote file early. /satoshi re-reads
// it on every call, so this is informational only.
func checkQuotes(path string, log logx.Logger) {
	qs, err := refdata.LoadQuotes(path)
	switch {
	case err != nil:
		log.Warn("quote file unreadable", logx.String("path", path), logx.Err(err))
	case len(qs) == 0:
		log.Warn("quote file has no complete records", logx.String("path", path))
	default:
		log.Debug("quote file ok", logx.String("path", path), logx.Int("quotes", len(qs)))
	}
}

func openStore(cfg storage.Config, log logx.Logger) (storage.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return storage.Open(ctx, cfg, log)
}
