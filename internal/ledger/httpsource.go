package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HTTPSource fetches datasets from the remote accounting API.
type HTTPSource struct {
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPSource constructs a source against baseURL.
func NewHTTPSource(baseURL string, tokens TokenProvider, timeout time.Duration, logger *slog.Logger) *HTTPSource {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type balanceRow struct {
	Account          string          `json:"account"`
	SubAccount       string          `json:"sub_account"`
	Branch           string          `json:"branch"`
	Organization     string          `json:"organization"`
	Ledger           string          `json:"ledger"`
	Period           string          `json:"period"`
	EndingBalance    decimal.Decimal `json:"ending_balance"`
	Debit            decimal.Decimal `json:"debit"`
	Credit           decimal.Decimal `json:"credit"`
	BeginningBalance decimal.Decimal `json:"beginning_balance"`
	Description      string          `json:"description"`
}

type balanceResponse struct {
	Rows []balanceRow `json:"rows"`
}

// Fetch implements Source. A 401 triggers one token refresh and a single retry.
func (s *HTTPSource) Fetch(ctx context.Context, q Query) (Dataset, error) {
	if s == nil || s.tokens == nil {
		return Dataset{}, fmt.Errorf("ledger: http source not configured")
	}
	if err := q.Validate(); err != nil {
		return Dataset{}, err
	}
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return Dataset{}, fmt.Errorf("ledger: token: %w", err)
	}
	resp, status, err := s.do(ctx, q, token)
	if err != nil {
		return Dataset{}, err
	}
	if status == http.StatusUnauthorized {
		s.log().Info("ledger token rejected, refreshing", slog.String("query", q.Key()))
		token, err = s.tokens.Refresh(ctx)
		if err != nil {
			return Dataset{}, fmt.Errorf("ledger: refresh token: %w", err)
		}
		resp, status, err = s.do(ctx, q, token)
		if err != nil {
			return Dataset{}, err
		}
		if status == http.StatusUnauthorized {
			return Dataset{}, ErrUnauthorized
		}
	}
	return toDataset(q, resp.Rows), nil
}

func (s *HTTPSource) do(ctx context.Context, q Query, token string) (balanceResponse, int, error) {
	params := url.Values{}
	params.Set("kind", strings.ToLower(string(q.Kind)))
	params.Set("branch", q.Branch)
	params.Set("organization", q.Organization)
	params.Set("ledger", q.Ledger)
	params.Set("period", q.Period)
	if q.PeriodTo != "" {
		params.Set("period_to", q.PeriodTo)
	}
	endpoint := fmt.Sprintf("%s/v1/balances?%s", s.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return balanceResponse{}, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return balanceResponse{}, 0, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusUnauthorized {
		return balanceResponse{}, resp.StatusCode, nil
	}
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return balanceResponse{}, resp.StatusCode, nil
	}
	if resp.StatusCode >= 400 {
		return balanceResponse{}, resp.StatusCode, fmt.Errorf("%w: status %d for %s", ErrUpstream, resp.StatusCode, q.Key())
	}
	var payload balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return balanceResponse{}, resp.StatusCode, fmt.Errorf("ledger: decode balances: %w", err)
	}
	return payload, resp.StatusCode, nil
}

func (s *HTTPSource) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

func toDataset(q Query, rows []balanceRow) Dataset {
	ds := NewDataset()
	for _, row := range rows {
		data := PeriodData{
			EndingBalance:    row.EndingBalance,
			Debit:            row.Debit,
			Credit:           row.Credit,
			BeginningBalance: row.BeginningBalance,
			Description:      strings.TrimSpace(row.Description),
		}
		if q.Kind == KindComposite {
			period := row.Period
			if period == "" {
				period = q.Period
			}
			ds.AddComposite(CompositeKey(row.Account, row.SubAccount, row.Branch, row.Organization, row.Ledger, period, q.LedgerSegment), data)
			continue
		}
		ds.AddAccount(row.Account, data)
	}
	return ds
}
