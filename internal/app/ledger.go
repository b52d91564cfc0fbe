package app

import (
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/finreport/internal/ledger"
)

// NewLedgerSource builds the configured ledger source: the remote accounting API
// when LEDGER_BASE_URL is set, the SQLite ledger otherwise. A non-nil Redis
// client adds the dataset cache. The returned closer releases the SQLite handle.
func NewLedgerSource(cfg *Config, rdb *redis.Client, logger *slog.Logger) (ledger.Source, io.Closer, error) {
	var (
		source ledger.Source
		closer io.Closer = nopCloser{}
	)
	if cfg.UsesRemoteLedger() {
		var tokens ledger.TokenProvider = ledger.StaticToken(cfg.LedgerToken)
		if cfg.LedgerTokenURL != "" {
			tokens = ledger.NewClientCredentials(cfg.LedgerTokenURL, cfg.LedgerClientID, cfg.LedgerClientSecret, cfg.LedgerTimeout)
		}
		source = ledger.NewHTTPSource(cfg.LedgerBaseURL, tokens, cfg.LedgerTimeout, logger)
	} else {
		sqlite, err := ledger.OpenSQLite(cfg.LedgerSQLitePath)
		if err != nil {
			return nil, nil, err
		}
		source, closer = sqlite, sqlite
	}
	if rdb != nil && cfg.LedgerCacheTTL > 0 {
		source = ledger.NewCachedSource(source, rdb, cfg.LedgerCacheTTL)
	}
	return source, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
