package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"tradesync/internal/accounts"
	"tradesync/internal/aggregation"
	"tradesync/internal/httputil"
	"tradesync/internal/journal"
	"tradesync/internal/model"
	"tradesync/internal/pricing"
	"tradesync/internal/settlement"
	"tradesync/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// FeedControl is the slice of the feed manager the handlers drive.
type FeedControl interface {
	OAuthURL(state string) string
	Authorize(ctx context.Context, code, accountID string) (string, int64, error)
	Attach(ctx context.Context, ref model.SubAccountReference) error
	DetachReference(referenceID string)
}

type Handler struct {
	accounts   *accounts.Service
	engine     *settlement.Engine
	aggregator *aggregation.Aggregator
	journal    *journal.Store
	feed       FeedControl // nil when the live feed is not configured
	log        zerolog.Logger
}

func NewHandler(accountsSvc *accounts.Service, engine *settlement.Engine, aggregator *aggregation.Aggregator, journalStore *journal.Store, feed FeedControl, log zerolog.Logger) *Handler {
	return &Handler{
		accounts:   accountsSvc,
		engine:     engine,
		aggregator: aggregator,
		journal:    journalStore,
		feed:       feed,
		log:        log.With().Str("component", "http").Logger(),
	}
}

// tradeRecord is the API shape of a journal record: the stored fields
// plus the reporting figures derived from them.
type tradeRecord struct {
	model.Trade
	GrossPnL decimal.Decimal `json:"gross_pnl"`
	Points   decimal.Decimal `json:"points"`
	Ticks    decimal.Decimal `json:"ticks"`
}

func tradeRecords(list []model.Trade) []tradeRecord {
	out := make([]tradeRecord, 0, len(list))
	for _, t := range list {
		out = append(out, tradeRecord{
			Trade:    t,
			GrossPnL: t.GrossPnL(),
			Points:   pricing.Points(t),
			Ticks:    pricing.Ticks(t),
		})
	}
	return out
}

type fillPayload struct {
	Security     string          `json:"security"`
	Direction    string          `json:"direction"`
	Time         time.Time       `json:"time"`
	Price        decimal.Decimal `json:"price"`
	Volume       decimal.Decimal `json:"volume"`
	Commission   decimal.Decimal `json:"commission"`
	ExecutionID  string          `json:"execution_id"`
	StopLoss     decimal.Decimal `json:"stop_loss"`
	ProfitTarget decimal.Decimal `json:"profit_target"`
	Image        string          `json:"image"`
	CaptureEntry bool            `json:"capture_entry"`
	CaptureExit  bool            `json:"capture_exit"`
}

type syncFillRequest struct {
	AccountID   string `json:"account_id"`
	AlternateID string `json:"alternate_id"`
	AuthKey     string `json:"auth_key"`
	Broker      string `json:"broker"`
	fillPayload
}

// SyncFill ingests a fill pushed by a broker sync client. The client
// authenticates with the reference auth key, not a user token.
func (h *Handler) SyncFill(w http.ResponseWriter, r *http.Request) {
	var req syncFillRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	resolution, err := h.accounts.Resolve(r.Context(), req.AccountID, req.AuthKey, req.Broker, req.AlternateID)
	if err != nil {
		if errors.Is(err, settlement.ErrUnresolvedAccount) {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "account not recognized"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	h.processFill(w, r, resolution.SubAccount, req.fillPayload)
}

type manualFillRequest struct {
	SubAccountID string `json:"sub_account_id"`
	fillPayload
}

// Fill ingests a manually entered fill for one of the user's own
// sub-accounts.
func (h *Handler) Fill(w http.ResponseWriter, r *http.Request, userID string) {
	var req manualFillRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	sub, err := h.accounts.GetSubAccount(r.Context(), userID, req.SubAccountID)
	if err != nil {
		if errors.Is(err, settlement.ErrUnresolvedAccount) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "sub account not found"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	h.processFill(w, r, sub, req.fillPayload)
}

func (h *Handler) processFill(w http.ResponseWriter, r *http.Request, sub model.SubAccount, p fillPayload) {
	touched, err := h.engine.ProcessFill(r.Context(), settlement.Fill{
		SubAccount:   sub,
		SecurityID:   p.Security,
		Direction:    types.Direction(p.Direction),
		Time:         p.Time,
		Price:        p.Price,
		Volume:       p.Volume,
		Commission:   p.Commission,
		ExecutionID:  p.ExecutionID,
		StopLoss:     p.StopLoss,
		ProfitTarget: p.ProfitTarget,
		Image:        p.Image,
		CaptureEntry: p.CaptureEntry,
		CaptureExit:  p.CaptureExit,
	})
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrDuplicateExecution):
			httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: "execution already settled"})
		case errors.Is(err, pricing.ErrRateUnavailable):
			httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.ErrorResponse{Error: "exchange rate unavailable"})
		default:
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		}
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"records": tradeRecords(touched)})
}

type riskLevelRequest struct {
	SubAccountID string          `json:"sub_account_id"`
	Security     string          `json:"security"`
	Mode         string          `json:"mode"`
	Price        decimal.Decimal `json:"price"`
}

// RiskLevel annotates the open position on a security with a stop loss
// or profit target.
func (h *Handler) RiskLevel(w http.ResponseWriter, r *http.Request, userID string) {
	var req riskLevelRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	sub, err := h.accounts.GetSubAccount(r.Context(), userID, req.SubAccountID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "sub account not found"})
		return
	}
	mode := types.RiskLevelType(req.Mode)
	if mode != types.RiskLevelAuto && mode != types.RiskLevelStopLoss && mode != types.RiskLevelProfitTarget {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid risk level mode"})
		return
	}
	if err := h.engine.ApplyRiskLevel(r.Context(), sub.ID, req.Security, mode, req.Price); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

type aggregateRequest struct {
	SubAccountID string `json:"sub_account_id"`
}

// Aggregate consolidates adjacent same-side closed records for a
// sub-account.
func (h *Handler) Aggregate(w http.ResponseWriter, r *http.Request, userID string) {
	var req aggregateRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	sub, err := h.accounts.GetSubAccount(r.Context(), userID, req.SubAccountID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "sub account not found"})
		return
	}
	records, err := h.aggregator.AggregateContracts(r.Context(), sub.ID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": tradeRecords(records)})
}

// Trades lists a sub-account's journal records, newest first.
func (h *Handler) Trades(w http.ResponseWriter, r *http.Request, userID string) {
	subAccountID := r.URL.Query().Get("sub_account_id")
	sub, err := h.accounts.GetSubAccount(r.Context(), userID, subAccountID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "sub account not found"})
		return
	}
	status := types.TradeStatus(r.URL.Query().Get("status"))
	records, err := h.journal.ListBySubAccount(r.Context(), sub.ID, status, 500)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": tradeRecords(records)})
}

type attachReferenceRequest struct {
	ID           string `json:"id"`
	SubAccountID string `json:"sub_account_id"`
	AccountID    string `json:"account_id"`
	AlternateID  string `json:"alternate_id"`
	Broker       string `json:"broker"`
	AuthKey      string `json:"auth_key"`
	Code         string `json:"code"`
	BrokerUserID int64  `json:"broker_user_id"`
}

// oauthState rides through the broker consent redirect so the callback
// can name the reference it completes.
type oauthState struct {
	ID           string `json:"id"`
	Broker       string `json:"broker"`
	SubAccountID string `json:"sub_account_id"`
	AccountID    string `json:"account_id"`
}

// AttachReference links an external broker account to a sub-account.
// Feed brokers go through a two-step OAuth handshake: the first call
// records a pending reference and returns the broker consent URL, the
// second call carries the code back, exchanges it and opens the live
// session. Other brokers are attached directly.
func (h *Handler) AttachReference(w http.ResponseWriter, r *http.Request, userID string) {
	var req attachReferenceRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if h.feed != nil && req.Broker == accounts.BrokerNinjaTrader {
		if req.Code == "" {
			h.startReferenceAuth(w, r, userID, req)
		} else {
			h.completeReferenceAuth(w, r, userID, req)
		}
		return
	}
	ref, err := h.accounts.AttachReference(r.Context(), userID, model.SubAccountReference{
		SubAccountID: req.SubAccountID,
		AccountID:    req.AccountID,
		AlternateID:  req.AlternateID,
		Broker:       req.Broker,
		AuthKey:      req.AuthKey,
		BrokerUserID: req.BrokerUserID,
	})
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ref)
}

func (h *Handler) startReferenceAuth(w http.ResponseWriter, r *http.Request, userID string, req attachReferenceRequest) {
	ref, err := h.accounts.AttachPendingReference(r.Context(), userID, model.SubAccountReference{
		SubAccountID: req.SubAccountID,
		AccountID:    req.AccountID,
		AlternateID:  req.AlternateID,
		Broker:       req.Broker,
	})
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	state, err := json.Marshal(oauthState{
		ID:           ref.ID,
		Broker:       ref.Broker,
		SubAccountID: ref.SubAccountID,
		AccountID:    ref.AccountID,
	})
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"url": h.feed.OAuthURL(string(state))})
}

func (h *Handler) completeReferenceAuth(w http.ResponseWriter, r *http.Request, userID string, req attachReferenceRequest) {
	if req.ID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "reference id required"})
		return
	}
	token, brokerUserID, err := h.feed.Authorize(r.Context(), req.Code, req.AccountID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	ref, err := h.accounts.ActivateReference(r.Context(), userID, req.ID, token, brokerUserID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.feed.Attach(r.Context(), ref); err != nil {
		h.log.Warn().Err(err).Str("reference", ref.ID).Msg("feed session not started")
	}
	httputil.WriteJSON(w, http.StatusCreated, ref)
}

// DetachReference deactivates a reference and closes its feed session.
func (h *Handler) DetachReference(w http.ResponseWriter, r *http.Request, userID string) {
	referenceID := chi.URLParam(r, "id")
	if err := h.accounts.DetachReference(r.Context(), userID, referenceID); err != nil {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if h.feed != nil {
		h.feed.DetachReference(referenceID)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "detached"})
}
