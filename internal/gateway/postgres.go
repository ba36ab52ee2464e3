package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/udoglabs/wager-engine/internal/model"
)

// PostgresGateway implements Gateway with PostgreSQL as the source of truth
// for self-hosted deployments. All monetary values are stored as NUMERIC
// for exact decimal precision.
type PostgresGateway struct {
	pool *pgxpool.Pool
}

// NewPostgresGateway creates a new PostgreSQL-backed gateway.
func NewPostgresGateway(pool *pgxpool.Pool) *PostgresGateway {
	return &PostgresGateway{pool: pool}
}

func notFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// --- Users ---

func (g *PostgresGateway) CreateUser(ctx context.Context, u *model.User) error {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO users (id, identity_id, wallet_address, email, username, avatar_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.IdentityID, u.WalletAddress, u.Email, u.Username, u.AvatarURL, u.CreatedAt,
	)
	return err
}

func (g *PostgresGateway) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := g.pool.QueryRow(ctx,
		`SELECT id, identity_id, wallet_address, email, username, avatar_url, created_at
		 FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.IdentityID, &u.WalletAddress, &u.Email, &u.Username, &u.AvatarURL, &u.CreatedAt)
	if notFound(err) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &u, nil
}

func (g *PostgresGateway) FindUserByIdentity(ctx context.Context, identityID string) (*model.User, error) {
	var u model.User
	err := g.pool.QueryRow(ctx,
		`SELECT id, identity_id, wallet_address, email, username, avatar_url, created_at
		 FROM users WHERE identity_id = $1`, identityID).
		Scan(&u.ID, &u.IdentityID, &u.WalletAddress, &u.Email, &u.Username, &u.AvatarURL, &u.CreatedAt)
	if notFound(err) {
		return nil, fmt.Errorf("identity %s: %w", identityID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find user by identity %s: %w", identityID, err)
	}
	return &u, nil
}

func (g *PostgresGateway) UpdateUser(ctx context.Context, u *model.User) error {
	tag, err := g.pool.Exec(ctx,
		`UPDATE users
		 SET username = $2, email = $3, avatar_url = $4, wallet_address = $5
		 WHERE id = $1`,
		u.ID, u.Username, u.Email, u.AvatarURL, u.WalletAddress,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", u.ID, ErrNotFound)
	}
	return nil
}

// --- Markets ---

func (g *PostgresGateway) CreateMarket(ctx context.Context, m *model.Market) error {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO markets (id, title, description, category, status, yes_price, no_price, total_volume, deadline, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10)`,
		m.ID, m.Title, m.Description, m.Category, m.Status,
		m.YesPrice.String(), m.NoPrice.String(), m.TotalVolume.String(),
		m.Deadline, m.CreatedAt,
	)
	return err
}

func (g *PostgresGateway) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	var m model.Market
	var yesPrice, noPrice, volume string

	err := g.pool.QueryRow(ctx,
		`SELECT id, title, description, category, status,
		        yes_price::TEXT, no_price::TEXT, total_volume::TEXT,
		        deadline, created_at
		 FROM markets WHERE id = $1`, id).
		Scan(&m.ID, &m.Title, &m.Description, &m.Category, &m.Status,
			&yesPrice, &noPrice, &volume,
			&m.Deadline, &m.CreatedAt)
	if notFound(err) {
		return nil, fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}

	m.YesPrice, _ = decimal.NewFromString(yesPrice)
	m.NoPrice, _ = decimal.NewFromString(noPrice)
	m.TotalVolume, _ = decimal.NewFromString(volume)
	return &m, nil
}

func (g *PostgresGateway) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT id, title, description, category, status,
		        yes_price::TEXT, no_price::TEXT, total_volume::TEXT,
		        deadline, created_at
		 FROM markets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		var m model.Market
		var yesPrice, noPrice, volume string
		if err := rows.Scan(&m.ID, &m.Title, &m.Description, &m.Category, &m.Status,
			&yesPrice, &noPrice, &volume,
			&m.Deadline, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.YesPrice, _ = decimal.NewFromString(yesPrice)
		m.NoPrice, _ = decimal.NewFromString(noPrice)
		m.TotalVolume, _ = decimal.NewFromString(volume)
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// --- Positions ---

// CreatePosition inserts the position and bumps the market's total volume
// in a single database transaction.
func (g *PostgresGateway) CreatePosition(ctx context.Context, p *model.Position) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO positions (id, user_id, market_id, side, shares, price, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7)`,
		p.ID, p.UserID, p.MarketID, p.Side,
		p.Shares.String(), p.Price.String(), p.CreatedAt,
	)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE markets SET total_volume = total_volume + $2::NUMERIC WHERE id = $1`,
		p.MarketID, p.Shares.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("market %s: %w", p.MarketID, ErrNotFound)
	}

	return tx.Commit(ctx)
}

func (g *PostgresGateway) ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT id, user_id, market_id, side, shares::TEXT, price::TEXT, created_at
		 FROM positions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var shares, price string
		if err := rows.Scan(&p.ID, &p.UserID, &p.MarketID, &p.Side, &shares, &price, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Shares, _ = decimal.NewFromString(shares)
		p.Price, _ = decimal.NewFromString(price)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// --- Transactions ---

func (g *PostgresGateway) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO transactions (id, user_id, market_id, position_id, type, side, shares, price, total_amount, tx_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11)`,
		t.ID, t.UserID, t.MarketID, t.PositionID, t.Type, t.Side,
		t.Shares.String(), t.Price.String(), t.TotalAmount.String(),
		t.TxHash, t.CreatedAt,
	)
	return err
}

func (g *PostgresGateway) ListTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT id, user_id, market_id, position_id, type, side,
		        shares::TEXT, price::TEXT, total_amount::TEXT, tx_hash, created_at
		 FROM transactions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var shares, price, total string
		if err := rows.Scan(&t.ID, &t.UserID, &t.MarketID, &t.PositionID, &t.Type, &t.Side,
			&shares, &price, &total, &t.TxHash, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Shares, _ = decimal.NewFromString(shares)
		t.Price, _ = decimal.NewFromString(price)
		t.TotalAmount, _ = decimal.NewFromString(total)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// --- Balances ---

func (g *PostgresGateway) CreateBalance(ctx context.Context, b *model.Balance) error {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO balances (user_id, token_symbol, balance, updated_at)
		 VALUES ($1, $2, $3::NUMERIC, NOW())`,
		b.UserID, b.TokenSymbol, b.Balance.String(),
	)
	return err
}

func (g *PostgresGateway) GetBalance(ctx context.Context, userID, tokenSymbol string) (*model.Balance, error) {
	var b model.Balance
	var amount string

	err := g.pool.QueryRow(ctx,
		`SELECT user_id, token_symbol, balance::TEXT, updated_at
		 FROM balances WHERE user_id = $1 AND token_symbol = $2`, userID, tokenSymbol).
		Scan(&b.UserID, &b.TokenSymbol, &amount, &b.UpdatedAt)
	if notFound(err) {
		return nil, fmt.Errorf("balance %s/%s: %w", userID, tokenSymbol, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get balance %s/%s: %w", userID, tokenSymbol, err)
	}

	b.Balance, _ = decimal.NewFromString(amount)
	return &b, nil
}

func (g *PostgresGateway) ListBalances(ctx context.Context, userID string) ([]model.Balance, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT user_id, token_symbol, balance::TEXT, updated_at
		 FROM balances WHERE user_id = $1 ORDER BY token_symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []model.Balance
	for rows.Next() {
		var b model.Balance
		var amount string
		if err := rows.Scan(&b.UserID, &b.TokenSymbol, &amount, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.Balance, _ = decimal.NewFromString(amount)
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (g *PostgresGateway) AddBalance(ctx context.Context, userID, tokenSymbol string, amount decimal.Decimal) error {
	tag, err := g.pool.Exec(ctx,
		`UPDATE balances SET balance = balance + $3::NUMERIC, updated_at = NOW()
		 WHERE user_id = $1 AND token_symbol = $2`,
		userID, tokenSymbol, amount.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("balance %s/%s: %w", userID, tokenSymbol, ErrNotFound)
	}
	return nil
}

// SubtractBalance debits with a guard in the WHERE clause so the balance
// can never be observed negative, even under concurrent debits.
func (g *PostgresGateway) SubtractBalance(ctx context.Context, userID, tokenSymbol string, amount decimal.Decimal) error {
	tag, err := g.pool.Exec(ctx,
		`UPDATE balances SET balance = balance - $3::NUMERIC, updated_at = NOW()
		 WHERE user_id = $1 AND token_symbol = $2 AND balance >= $3::NUMERIC`,
		userID, tokenSymbol, amount.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing row from insufficient funds.
		if _, gerr := g.GetBalance(ctx, userID, tokenSymbol); gerr != nil {
			return gerr
		}
		return fmt.Errorf("balance %s/%s: %w", userID, tokenSymbol, ErrInsufficientBalance)
	}
	return nil
}
