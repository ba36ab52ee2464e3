package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/udoglabs/wager-engine/internal/model"
)

// Resource families exposed by the hosted gateway.
const (
	usersResource        = "users-api"
	marketsResource      = "markets-api"
	positionsResource    = "positions-api"
	balancesResource     = "balances-api"
	transactionsResource = "transactions-api"
)

const (
	remoteRatePerSec  = 10
	remoteBurst       = 20
	remoteMaxRetries  = 3
	remoteBaseWait    = 500 * time.Millisecond
	remoteHTTPTimeout = 10 * time.Second
)

// envelope is the uniform response shape of the hosted gateway. A call
// either succeeded with Data set, or failed with Error set; the two are
// never mixed.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// RemoteGateway implements Gateway against the hosted HTTP gateway, with
// rate limiting and bounded retries on transient failures.
type RemoteGateway struct {
	http    *http.Client
	baseURL string
	limiter *rate.Limiter
}

// NewRemoteGateway creates a client for the hosted gateway at baseURL.
func NewRemoteGateway(baseURL string) *RemoteGateway {
	return &RemoteGateway{
		http:    &http.Client{Timeout: remoteHTTPTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(remoteRatePerSec, remoteBurst),
	}
}

// call performs one request against a resource path, unwraps the envelope,
// and decodes Data into out (out may be nil when the payload is ignored).
func (g *RemoteGateway) call(ctx context.Context, method, path string, body, out any) error {
	var raw json.RawMessage
	err := g.doWithRetry(ctx, func() (*http.Request, error) {
		var reader io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("marshal body: %w", err)
			}
			reader = bytes.NewReader(b)
		}
		req, err := http.NewRequestWithContext(ctx, method, g.baseURL+"/"+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, &raw)
	if err != nil {
		return err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return nil
}

// doWithRetry executes the request with exponential backoff on transient
// failures (network errors, 429, 5xx). 4xx responses are terminal.
func (g *RemoteGateway) doWithRetry(ctx context.Context, build func() (*http.Request, error), out *json.RawMessage) error {
	for attempt := 0; attempt <= remoteMaxRetries; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := build()
		if err != nil {
			return err
		}

		resp, err := g.http.Do(req)
		if err != nil {
			if attempt == remoteMaxRetries {
				return fmt.Errorf("gateway request failed after %d retries: %w", remoteMaxRetries, err)
			}
			g.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == remoteMaxRetries {
				return fmt.Errorf("gateway error %d after %d retries", resp.StatusCode, remoteMaxRetries)
			}
			slog.Warn("gateway returned transient error", "status", resp.StatusCode, "attempt", attempt+1)
			g.sleep(ctx, attempt)
			continue
		}

		var env envelope
		decodeErr := json.NewDecoder(resp.Body).Decode(&env)
		notFoundStatus := resp.StatusCode == http.StatusNotFound
		resp.Body.Close()

		if decodeErr != nil {
			return fmt.Errorf("decode gateway envelope: %w", decodeErr)
		}
		if !env.Success {
			if notFoundStatus {
				return fmt.Errorf("%s: %w", env.Error, ErrNotFound)
			}
			if strings.Contains(strings.ToLower(env.Error), "insufficient") {
				return fmt.Errorf("%s: %w", env.Error, ErrInsufficientBalance)
			}
			return fmt.Errorf("gateway: %s", env.Error)
		}
		*out = env.Data
		return nil
	}
	return fmt.Errorf("exhausted %d retries", remoteMaxRetries)
}

// sleep waits with exponential backoff, respecting the context.
func (g *RemoteGateway) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * remoteBaseWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

// --- Users ---

// CreateUser submits the record and adopts the ID the gateway assigned.
func (g *RemoteGateway) CreateUser(ctx context.Context, u *model.User) error {
	var created model.User
	if err := g.call(ctx, http.MethodPost, usersResource, u, &created); err != nil {
		return err
	}
	u.ID = created.ID
	return nil
}

func (g *RemoteGateway) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := g.call(ctx, http.MethodGet, usersResource+"/"+id, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserByIdentity scans the user collection for a matching identity id;
// the hosted gateway offers no lookup by that field.
func (g *RemoteGateway) FindUserByIdentity(ctx context.Context, identityID string) (*model.User, error) {
	var users []model.User
	if err := g.call(ctx, http.MethodGet, usersResource, nil, &users); err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].IdentityID == identityID {
			return &users[i], nil
		}
	}
	return nil, fmt.Errorf("identity %s: %w", identityID, ErrNotFound)
}

func (g *RemoteGateway) UpdateUser(ctx context.Context, u *model.User) error {
	return g.call(ctx, http.MethodPut, usersResource+"/"+u.ID, u, nil)
}

// --- Markets ---

func (g *RemoteGateway) CreateMarket(ctx context.Context, m *model.Market) error {
	var created model.Market
	if err := g.call(ctx, http.MethodPost, marketsResource, m, &created); err != nil {
		return err
	}
	m.ID = created.ID
	return nil
}

func (g *RemoteGateway) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	var m model.Market
	if err := g.call(ctx, http.MethodGet, marketsResource+"/"+id, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (g *RemoteGateway) ListMarkets(ctx context.Context) ([]model.Market, error) {
	var markets []model.Market
	if err := g.call(ctx, http.MethodGet, marketsResource, nil, &markets); err != nil {
		return nil, err
	}
	return markets, nil
}

// --- Positions ---

func (g *RemoteGateway) CreatePosition(ctx context.Context, p *model.Position) error {
	var created model.Position
	if err := g.call(ctx, http.MethodPost, positionsResource, p, &created); err != nil {
		return err
	}
	p.ID = created.ID
	return nil
}

func (g *RemoteGateway) ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	var positions []model.Position
	path := positionsResource + "?user_id=" + url.QueryEscape(userID)
	if err := g.call(ctx, http.MethodGet, path, nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// --- Transactions ---

func (g *RemoteGateway) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	var created model.Transaction
	if err := g.call(ctx, http.MethodPost, transactionsResource, t, &created); err != nil {
		return err
	}
	t.ID = created.ID
	return nil
}

func (g *RemoteGateway) ListTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	var txs []model.Transaction
	path := transactionsResource + "?user_id=" + url.QueryEscape(userID)
	if err := g.call(ctx, http.MethodGet, path, nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// --- Balances ---

// balanceUpdate is the PUT payload for balance mutations. The gateway
// applies the named operation server-side.
type balanceUpdate struct {
	UserID      string          `json:"user_id"`
	TokenSymbol string          `json:"token_symbol"`
	Operation   string          `json:"operation"` // "add" or "subtract"
	Amount      decimal.Decimal `json:"amount"`
}

func (g *RemoteGateway) CreateBalance(ctx context.Context, b *model.Balance) error {
	return g.call(ctx, http.MethodPost, balancesResource, b, nil)
}

func (g *RemoteGateway) GetBalance(ctx context.Context, userID, tokenSymbol string) (*model.Balance, error) {
	balances, err := g.ListBalances(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range balances {
		if balances[i].TokenSymbol == tokenSymbol {
			return &balances[i], nil
		}
	}
	return nil, fmt.Errorf("balance %s/%s: %w", userID, tokenSymbol, ErrNotFound)
}

func (g *RemoteGateway) ListBalances(ctx context.Context, userID string) ([]model.Balance, error) {
	var balances []model.Balance
	if err := g.call(ctx, http.MethodGet, balancesResource+"/"+userID, nil, &balances); err != nil {
		return nil, err
	}
	return balances, nil
}

func (g *RemoteGateway) AddBalance(ctx context.Context, userID, tokenSymbol string, amount decimal.Decimal) error {
	return g.call(ctx, http.MethodPut, balancesResource, balanceUpdate{
		UserID:      userID,
		TokenSymbol: tokenSymbol,
		Operation:   "add",
		Amount:      amount,
	}, nil)
}

func (g *RemoteGateway) SubtractBalance(ctx context.Context, userID, tokenSymbol string, amount decimal.Decimal) error {
	return g.call(ctx, http.MethodPut, balancesResource, balanceUpdate{
		UserID:      userID,
		TokenSymbol: tokenSymbol,
		Operation:   "subtract",
		Amount:      amount,
	}, nil)
}
