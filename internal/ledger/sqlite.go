package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteSource reads balances from a local ledger export. Expected schema:
//
//	ledger_balances(account, sub_account, branch, organization, ledger,
//	                period /* YYYY-MM */, ending_balance, debit, credit,
//	                beginning_balance, description)
//
// Amount columns are stored as text to keep exact decimals.
type SQLiteSource struct {
	db *sql.DB
}

// OpenSQLite opens a ledger export in read-only mode.
func OpenSQLite(path string) (*SQLiteSource, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: ping sqlite: %w", err)
	}
	return &SQLiteSource{db: db}, nil
}

// NewSQLiteSource wraps an existing handle.
func NewSQLiteSource(db *sql.DB) *SQLiteSource {
	return &SQLiteSource{db: db}
}

// Close closes the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// Fetch implements Source.
func (s *SQLiteSource) Fetch(ctx context.Context, q Query) (Dataset, error) {
	if err := q.Validate(); err != nil {
		return Dataset{}, err
	}
	from, to, err := sqlitePeriodRange(q)
	if err != nil {
		return Dataset{}, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT account, COALESCE(sub_account, ''), COALESCE(branch, ''),
		       COALESCE(organization, ''), COALESCE(ledger, ''), period,
		       COALESCE(ending_balance, '0'), COALESCE(debit, '0'),
		       COALESCE(credit, '0'), COALESCE(beginning_balance, '0'),
		       COALESCE(description, '')
		FROM ledger_balances
		WHERE UPPER(ledger) = UPPER(?)
		  AND (? = '' OR UPPER(branch) = UPPER(?))
		  AND (? = '' OR UPPER(organization) = UPPER(?))
		  AND period BETWEEN ? AND ?
		ORDER BY account, period
	`, q.Ledger, q.Branch, q.Branch, q.Organization, q.Organization, from, to)
	if err != nil {
		return Dataset{}, fmt.Errorf("ledger: query balances: %w", err)
	}
	defer rows.Close()

	ds := NewDataset()
	for rows.Next() {
		var row balanceRow
		var period string
		var ending, debit, credit, beginning string
		if err := rows.Scan(&row.Account, &row.SubAccount, &row.Branch, &row.Organization, &row.Ledger, &period,
			&ending, &debit, &credit, &beginning, &row.Description); err != nil {
			return Dataset{}, fmt.Errorf("ledger: scan balance: %w", err)
		}
		amounts := []*decimal.Decimal{&row.EndingBalance, &row.Debit, &row.Credit, &row.BeginningBalance}
		for i, raw := range []string{ending, debit, credit, beginning} {
			v, err := decimal.NewFromString(strings.TrimSpace(raw))
			if err != nil {
				return Dataset{}, fmt.Errorf("ledger: account %s period %s: %w", row.Account, period, err)
			}
			*amounts[i] = v
		}
		row.Period = mmyyyy(period)
		single := toDataset(q, []balanceRow{row})
		for k, v := range single.Accounts {
			ds.AddAccount(k, v)
		}
		for k, v := range single.Composite {
			ds.AddComposite(k, v)
		}
	}
	return ds, rows.Err()
}

func sqlitePeriodRange(q Query) (string, string, error) {
	month, year, err := ParsePeriod(q.Period)
	if err != nil {
		return "", "", err
	}
	switch q.Kind {
	case KindBeginning:
		p := fmt.Sprintf("%04d-01", year)
		return p, p, nil
	case KindCumulative:
		toMonth, toYear, err := ParsePeriod(q.PeriodTo)
		if err != nil {
			return "", "", err
		}
		return fmt.Sprintf("%04d-%02d", year, month), fmt.Sprintf("%04d-%02d", toYear, toMonth), nil
	default:
		p := fmt.Sprintf("%04d-%02d", year, month)
		return p, p, nil
	}
}

// mmyyyy converts YYYY-MM into the MMYYYY period code used in composite keys.
func mmyyyy(period string) string {
	if len(period) == 7 && period[4] == '-' {
		return period[5:] + period[:4]
	}
	return period
}
