// Package trade provides the HTTP administration and query surface:
// creating markets and auctions, quoting prices, closing markets against an
// outcome, and reading histories and portfolios.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/asset"
	"github.com/amx/agent-exchange/internal/auction"
	"github.com/amx/agent-exchange/internal/bank"
	"github.com/amx/agent-exchange/internal/exchange"
	"github.com/amx/agent-exchange/internal/instrument"
	"github.com/amx/agent-exchange/internal/lmsr"
	"github.com/amx/agent-exchange/internal/metrics"
	"github.com/amx/agent-exchange/internal/model"
	"github.com/amx/agent-exchange/internal/server"
	"github.com/amx/agent-exchange/internal/store"
)

// MarketCloser settles a market against a terminal world state. The
// dispatcher implements it under the lock that serializes agent
// settlement, so a close cannot interleave with an in-flight purchase.
type MarketCloser interface {
	CloseMarket(id int64, terminal asset.WorldState) ([]exchange.Payout, error)
}

// Service handles the administrative operations. Agents trade over the
// WebSocket dispatcher; this surface is for operators and read-only
// clients.
type Service struct {
	store  store.Store
	bank   *bank.Bank
	exch   *exchange.Exchange
	house  *server.AuctionHouse
	closer MarketCloser
	push   server.Pusher // optional, nil disables broadcasts
	nextID atomic.Int64
}

// NewService creates the service and seeds the market id sequence from the
// store.
func NewService(st store.Store, b *bank.Bank, ex *exchange.Exchange, house *server.AuctionHouse, closer MarketCloser, push server.Pusher) *Service {
	s := &Service{store: st, bank: b, exch: ex, house: house, closer: closer, push: push}
	if markets, err := st.ListMarkets(context.Background()); err == nil {
		for _, m := range markets {
			if m.ID > s.nextID.Load() {
				s.nextID.Store(m.ID)
			}
		}
	}
	return s
}

// --- Request/Response types ---

// CreateMarketRequest is the JSON body for market creation.
type CreateMarketRequest struct {
	Kind            string                      `json:"kind"`   // "lmsr", "lmsr_ls", "cda"
	Expiry          string                      `json:"expiry"` // YYYYMMDD
	B               decimal.Decimal             `json:"b"`      // liquidity; 0 → derived or default 100
	Alpha           decimal.Decimal             `json:"alpha"`  // sensitivity; 0 → derived
	ExpectedTraders int64                       `json:"expected_traders"`
	Activity        *instrument.ActivityProfile `json:"activity,omitempty"`
	BaseVolume      decimal.Decimal             `json:"base_volume"`
}

// CreateAuctionRequest is the JSON body for auction creation.
type CreateAuctionRequest struct {
	Kind      string                    `json:"kind"` // "sealed", "open_outcry"
	Goods     []server.HoldingSpec      `json:"goods"`
	Reserve   map[int64]decimal.Decimal `json:"reserve,omitempty"` // good id → floor price
	Vickrey   bool                      `json:"vickrey"`           // second-price payments
	Budget    int                       `json:"budget"`            // sealed: ticks until close
	Patience  int                       `json:"patience"`          // open outcry: idle ticks until close
	Increment decimal.Decimal           `json:"increment"`         // open outcry: minimum raise
}

// CloseMarketRequest is the JSON body for settling a market.
type CloseMarketRequest struct {
	Outcome bool `json:"outcome"`
}

// --- HTTP Handlers ---

// CreateMarket handles POST /api/v1/markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	expiry := time.Now().UTC().AddDate(0, 1, 0)
	if req.Expiry != "" {
		parsed, err := time.Parse("20060102", req.Expiry)
		if err != nil {
			writeError(w, "invalid expiry, expected YYYYMMDD", http.StatusBadRequest)
			return
		}
		expiry = parsed
	}

	id := s.nextID.Add(1)
	var (
		market exchange.Market
		kind   string
		ticker string
		b      decimal.Decimal
		alpha  decimal.Decimal
	)

	switch req.Kind {
	case "lmsr":
		b = req.B
		if b.LessThanOrEqual(decimal.Zero) && req.Activity != nil {
			derived, err := instrument.DeriveLiquidity(*req.Activity, req.BaseVolume)
			if err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			b = derived
		}
		if b.LessThanOrEqual(decimal.Zero) {
			b = decimal.NewFromInt(100) // default liquidity
		}
		mm, err := lmsr.NewBackend(b)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		market, kind = exchange.NewPredictionMarket(id, mm), "lmsr"
		ticker = instrument.Ticker(instrument.KindPrediction, id, expiry)

	case "lmsr_ls":
		alpha = req.Alpha
		if alpha.LessThanOrEqual(decimal.Zero) {
			alpha = instrument.DeriveAlpha(req.ExpectedTraders)
		}
		mm, err := lmsr.NewLiquiditySensitive(alpha)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		market, kind = exchange.NewPredictionMarket(id, mm), "lmsr_ls"
		ticker = instrument.Ticker(instrument.KindPrediction, id, expiry)

	case "cda":
		typ := asset.FullType{Kind: asset.KindGood, ID: id}
		market, kind = exchange.NewCDA(id, typ), "cda"
		ticker = instrument.Ticker(instrument.KindGood, id, expiry)

	default:
		writeError(w, "kind must be lmsr, lmsr_ls, or cda", http.StatusBadRequest)
		return
	}

	half := decimal.NewFromFloat(0.5)
	record := &model.Market{
		ID:        id,
		Ticker:    ticker,
		Kind:      kind,
		B:         b,
		Alpha:     alpha,
		Status:    model.StatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	if kind != "cda" {
		snap := market.Snapshot()
		record.QYes, record.QNo = snap.QYes, snap.QNo
		record.B = snap.B
		record.PriceYes, record.PriceNo = half, half
	}

	ctx := r.Context()
	if err := s.store.CreateMarket(ctx, record); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err := s.exch.Open(market); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	metrics.ActiveMarkets.Inc()

	slog.Info("market created",
		"id", id,
		"ticker", ticker,
		"kind", kind,
		"b", record.B.String(),
		"alpha", alpha.String(),
	)

	if s.push != nil {
		s.push.Broadcast(server.NewEnvelope(server.TypeMarketUpdate, server.MarketUpdateMessage{
			Snapshot: market.Snapshot(),
		}))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(record)
}

// GetMarket handles GET /api/v1/markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "marketID"), 10, 64)
	if err != nil {
		writeError(w, "invalid market id", http.StatusBadRequest)
		return
	}

	market, err := s.store.GetMarket(r.Context(), id)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(market)
}

// GetMarketByTicker handles GET /api/v1/tickers/{ticker}
func (s *Service) GetMarketByTicker(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	if _, err := instrument.ParseTicker(ticker); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	market, err := s.store.GetMarketByTicker(r.Context(), ticker)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(market)
}

// GetPrice handles GET /api/v1/markets/{marketID}/price
// Returns the live snapshot from the exchange; settled markets fall back to
// the persisted record.
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "marketID"), 10, 64)
	if err != nil {
		writeError(w, "invalid market id", http.StatusBadRequest)
		return
	}

	if m, err := s.exch.Get(id); err == nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Snapshot())
		return
	}

	market, err := s.store.GetMarket(r.Context(), id)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(exchange.Snapshot{
		MarketID: market.ID,
		Kind:     market.Kind,
		PriceYes: market.PriceYes,
		PriceNo:  market.PriceNo,
	})
}

// ListMarkets handles GET /api/v1/markets
// Returns all markets, optionally filtered by ?status=open|settled.
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := []model.Market{}
		for _, m := range markets {
			if m.Status == status {
				filtered = append(filtered, m)
			}
		}
		markets = filtered
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(markets)
}

// GetMarketHistory handles GET /api/v1/markets/{marketID}/history
// Returns ledger entries to reconstruct price history.
func (s *Service) GetMarketHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "marketID"), 10, 64)
	if err != nil {
		writeError(w, "invalid market id", http.StatusBadRequest)
		return
	}

	entries, err := s.store.GetLedgerEntriesByMarket(r.Context(), id)
	if err != nil {
		writeError(w, "failed to get market history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// GetMarketTrades handles GET /api/v1/markets/{marketID}/trades
// Returns the live execution history held by the listed market itself; the
// persisted ledger at /history outlives delisting.
func (s *Service) GetMarketTrades(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "marketID"), 10, 64)
	if err != nil {
		writeError(w, "invalid market id", http.StatusBadRequest)
		return
	}

	m, err := s.exch.Get(id)
	if err != nil {
		writeError(w, "market not listed", http.StatusNotFound)
		return
	}

	trades := m.History()
	if trades == nil {
		trades = []asset.Transaction{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trades)
}

// CloseMarket handles POST /api/v1/markets/{marketID}/close
// Freezes the market, delists it, and settles every holding against the
// outcome.
func (s *Service) CloseMarket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "marketID"), 10, 64)
	if err != nil {
		writeError(w, "invalid market id", http.StatusBadRequest)
		return
	}
	var req CloseMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	payouts, err := s.closer.CloseMarket(id, asset.WorldState{Outcome: req.Outcome})
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err := s.store.SetMarketStatus(r.Context(), id, model.StatusSettled); err != nil && err != store.ErrNotFound {
		slog.Error("marking market settled failed", "id", id, "error", err)
	}
	metrics.ActiveMarkets.Dec()

	slog.Info("market settled",
		"id", id,
		"outcome", req.Outcome,
		"payouts", len(payouts),
	)

	if payouts == nil {
		payouts = []exchange.Payout{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payouts)
}

// CreateAuction handles POST /api/v1/auctions
func (s *Service) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req CreateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Goods) == 0 {
		writeError(w, "auction needs at least one good", http.StatusBadRequest)
		return
	}

	items := make([]asset.Tradeable, 0, len(req.Goods))
	for _, g := range req.Goods {
		count := g.Count
		if count.LessThanOrEqual(decimal.Zero) {
			count = decimal.NewFromInt(1)
		}
		items = append(items, asset.NewGoodItem(count, asset.FullType{Kind: asset.KindGood, ID: g.ID}))
	}

	floors := make(map[asset.FullType]decimal.Decimal, len(req.Reserve))
	for goodID, price := range req.Reserve {
		floors[asset.FullType{Kind: asset.KindGood, ID: goodID}] = price
	}

	var alloc auction.AllocationRule
	switch req.Kind {
	case "sealed":
		budget := req.Budget
		if budget <= 0 {
			budget = 10
		}
		alloc = auction.NewSealedBidRule(budget)
	case "open_outcry":
		patience := req.Patience
		if patience <= 0 {
			patience = 3
		}
		alloc = auction.NewOpenOutcryRule(req.Increment, patience)
	default:
		writeError(w, "kind must be sealed or open_outcry", http.StatusBadRequest)
		return
	}

	var payment auction.PaymentRule = auction.FirstPriceRule{}
	if req.Vickrey {
		payment = auction.SecondPriceRule{}
	}

	a := s.house.Create(items, auction.ReserveBundle(floors), alloc, payment)

	slog.Info("auction created",
		"id", a.ID,
		"kind", req.Kind,
		"goods", len(items),
		"vickrey", req.Vickrey,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(a.BidRequestFor(asset.ExchangeID))
}

// ListAuctions handles GET /api/v1/auctions
func (s *Service) ListAuctions(w http.ResponseWriter, r *http.Request) {
	open := s.house.Open()
	out := make([]auction.BidRequest, 0, len(open))
	for _, a := range open {
		out = append(out, a.BidRequestFor(asset.ExchangeID))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// GetPortfolio handles GET /api/v1/portfolio/{agentID}
// Returns cash, positions, P&L, and exposure per instrument kind.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	agentID, err := strconv.ParseInt(chi.URLParam(r, "agentID"), 10, 64)
	if err != nil {
		writeError(w, "invalid agent id", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	acct, err := s.bank.Get(agentID)
	if err != nil {
		writeError(w, "agent not found", http.StatusNotFound)
		return
	}

	positions, err := s.store.GetAgentPositions(ctx, agentID)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}
	exposures, err := s.store.GetAgentKindExposures(ctx, agentID)
	if err != nil {
		writeError(w, "failed to load exposures", http.StatusInternalServerError)
		return
	}

	totalPnL := decimal.Zero
	totalExposure := decimal.Zero
	for _, p := range positions {
		totalPnL = totalPnL.Add(p.UnrealizedPnL)
		totalExposure = totalExposure.Add(p.NetQty.Abs())
	}

	portfolio := model.Portfolio{
		AgentID:        agentID,
		Monies:         acct.Monies,
		Positions:      positions,
		TotalPnL:       totalPnL,
		TotalExposure:  totalExposure,
		ExposureByKind: exposures,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(portfolio)
}

// GetAgentHistory handles GET /api/v1/agents/{agentID}/history
func (s *Service) GetAgentHistory(w http.ResponseWriter, r *http.Request) {
	agentID, err := strconv.ParseInt(chi.URLParam(r, "agentID"), 10, 64)
	if err != nil {
		writeError(w, "invalid agent id", http.StatusBadRequest)
		return
	}

	entries, err := s.store.GetLedgerEntriesByAgent(r.Context(), agentID)
	if err != nil {
		writeError(w, "failed to get agent history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
