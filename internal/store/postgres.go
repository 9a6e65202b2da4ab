package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const marketColumns = `id, ticker, kind,
	        q_yes::TEXT, q_no::TEXT, b::TEXT, alpha::TEXT,
	        price_yes::TEXT, price_no::TEXT,
	        trade_count, status, created_at`

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, ticker, kind, q_yes, q_no, b, alpha, price_yes, price_no, trade_count, status, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11, $12)`,
		m.ID, m.Ticker, m.Kind,
		m.QYes.String(), m.QNo.String(), m.B.String(), m.Alpha.String(),
		m.PriceYes.String(), m.PriceNo.String(),
		m.TradeCount, m.Status, m.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetMarket(ctx context.Context, id int64) (*model.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get market %d: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) GetMarketByTicker(ctx context.Context, ticker string) (*model.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE ticker = $1`, ticker)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get market by ticker %s: %w", ticker, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) UpdateMarketState(ctx context.Context, id int64, qYes, qNo, priceYes, priceNo decimal.Decimal, tradeCount int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE markets
		 SET q_yes = $2::NUMERIC, q_no = $3::NUMERIC,
		     price_yes = $4::NUMERIC, price_no = $5::NUMERIC,
		     trade_count = $6
		 WHERE id = $1`,
		id, qYes.String(), qNo.String(), priceYes.String(), priceNo.String(), tradeCount,
	)
	return err
}

func (s *PostgresStore) SetMarketStatus(ctx context.Context, id int64, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_entries (id, market_id, ticker, agent_id, counterparty_id, side, quantity, price, cost, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10)`,
		e.ID, e.MarketID, e.Ticker, e.AgentID, e.CounterpartyID, e.Side,
		e.Quantity.String(), e.Price.String(), e.Cost.String(),
		e.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetLedgerEntriesByMarket(ctx context.Context, marketID int64) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, ticker, agent_id, counterparty_id, side,
		        quantity::TEXT, price::TEXT, cost::TEXT, timestamp
		 FROM ledger_entries WHERE market_id = $1 ORDER BY timestamp`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) GetLedgerEntriesByAgent(ctx context.Context, agentID int64) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, ticker, agent_id, counterparty_id, side,
		        quantity::TEXT, price::TEXT, cost::TEXT, timestamp
		 FROM ledger_entries WHERE agent_id = $1 ORDER BY timestamp`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) GetAgentPositions(ctx context.Context, agentID int64) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT
			le.market_id,
			m.ticker,
			COALESCE(SUM(CASE WHEN le.side IN ('YES','GOOD') THEN le.quantity ELSE 0 END), 0)::TEXT AS yes_qty,
			COALESCE(SUM(CASE WHEN le.side = 'NO' THEN le.quantity ELSE 0 END), 0)::TEXT AS no_qty,
			COALESCE(SUM(le.cost), 0)::TEXT AS cost_basis,
			m.price_yes::TEXT AS price_yes
		 FROM ledger_entries le
		 JOIN markets m ON m.id = le.market_id
		 WHERE le.agent_id = $1
		 GROUP BY le.market_id, m.ticker, m.price_yes`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	one := decimal.NewFromInt(1)
	var positions []model.Position

	for rows.Next() {
		var p model.Position
		var yesQtyS, noQtyS, costBasisS, priceYesS string

		if err := rows.Scan(&p.MarketID, &p.Ticker,
			&yesQtyS, &noQtyS, &costBasisS, &priceYesS); err != nil {
			return nil, err
		}

		p.AgentID = agentID
		p.YesQty, _ = decimal.NewFromString(yesQtyS)
		p.NoQty, _ = decimal.NewFromString(noQtyS)
		p.CostBasis, _ = decimal.NewFromString(costBasisS)
		priceYes, _ := decimal.NewFromString(priceYesS)
		priceNo := one.Sub(priceYes)

		p.NetQty = p.YesQty.Sub(p.NoQty)
		p.CurrentValue = priceYes.Mul(p.YesQty).Add(priceNo.Mul(p.NoQty))
		p.UnrealizedPnL = p.CurrentValue.Sub(p.CostBasis)

		positions = append(positions, p)
	}

	return positions, rows.Err()
}

func (s *PostgresStore) GetAgentKindExposures(ctx context.Context, agentID int64) (map[string]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT CASE WHEN le.side IN ('YES','NO') THEN 'PRED' ELSE 'GOOD' END AS kind,
		        COALESCE(SUM(CASE WHEN le.side = 'NO' THEN -le.quantity
		                          ELSE le.quantity END), 0)::TEXT AS net_exposure
		 FROM ledger_entries le
		 WHERE le.agent_id = $1
		 GROUP BY 1`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exposures := make(map[string]decimal.Decimal)
	for rows.Next() {
		var kind, expStr string
		if err := rows.Scan(&kind, &expStr); err != nil {
			return nil, err
		}
		exp, _ := decimal.NewFromString(expStr)
		exposures[kind] = exp
	}

	return exposures, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// scanLedgerEntries reads pgx rows into LedgerEntry slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanMarket(row pgxRow) (*model.Market, error) {
	var m model.Market
	var qYes, qNo, b, alpha, priceYes, priceNo string

	if err := row.Scan(&m.ID, &m.Ticker, &m.Kind,
		&qYes, &qNo, &b, &alpha,
		&priceYes, &priceNo,
		&m.TradeCount, &m.Status, &m.CreatedAt); err != nil {
		return nil, err
	}

	m.QYes, _ = decimal.NewFromString(qYes)
	m.QNo, _ = decimal.NewFromString(qNo)
	m.B, _ = decimal.NewFromString(b)
	m.Alpha, _ = decimal.NewFromString(alpha)
	m.PriceYes, _ = decimal.NewFromString(priceYes)
	m.PriceNo, _ = decimal.NewFromString(priceNo)
	return &m, nil
}

func scanLedgerEntries(rows pgxRows) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var qtyS, priceS, costS string

		if err := rows.Scan(&e.ID, &e.MarketID, &e.Ticker, &e.AgentID, &e.CounterpartyID, &e.Side,
			&qtyS, &priceS, &costS, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Quantity, _ = decimal.NewFromString(qtyS)
		e.Price, _ = decimal.NewFromString(priceS)
		e.Cost, _ = decimal.NewFromString(costS)

		entries = append(entries, e)
	}
	return entries, nil
}
