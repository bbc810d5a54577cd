package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"tradesync/internal/accounts"
	"tradesync/internal/model"
	"tradesync/internal/settlement"
	"tradesync/internal/types"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BrokerName is the reference broker served by the live feed.
const BrokerName = accounts.BrokerNinjaTrader

// AccountResolver attributes a broker account to a journal sub-account.
type AccountResolver interface {
	Resolve(ctx context.Context, accountID, authKey, broker, alternateID string) (accounts.Resolution, error)
}

// FillSink receives settled executions and risk level updates.
type FillSink interface {
	ProcessFill(ctx context.Context, f settlement.Fill) ([]model.Trade, error)
	ApplyRiskLevel(ctx context.Context, subAccountID, securityID string, mode types.RiskLevelType, price decimal.Decimal) error
}

type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// frameResponse is one entry of an 'a' frame's JSON array.
type frameResponse struct {
	Status    int             `json:"s"`
	RequestID int64           `json:"i"`
	Data      json.RawMessage `json:"d"`
}

type syncPayload struct {
	Accounts []Account `json:"accounts"`
}

type eventPayload struct {
	EntityType string          `json:"entityType"`
	EventType  string          `json:"eventType"`
	Entity     json.RawMessage `json:"entity"`
}

type orderEntity struct {
	ID         int64 `json:"id"`
	AccountID  int64 `json:"accountId"`
	ContractID int64 `json:"contractId"`
}

type executionEntity struct {
	AccountID  int64           `json:"accountId"`
	OrderID    int64           `json:"orderId"`
	ContractID int64           `json:"contractId"`
	OrdStatus  string          `json:"ordStatus"`
	Action     string          `json:"action"`
	AvgPx      decimal.Decimal `json:"avgPx"`
	CumQty     decimal.Decimal `json:"cumQty"`
}

type orderVersionEntity struct {
	OrderID   int64           `json:"orderId"`
	OrderType string          `json:"orderType"`
	Price     decimal.Decimal `json:"price"`
	StopPrice decimal.Decimal `json:"stopPrice"`
}

// Session is one live websocket connection for a single broker user. All
// connection state lives on the session, so detaching a user tears its
// state down with the connection.
type Session struct {
	brokerUserID int64
	rest         *Client
	resolver     AccountResolver
	sink         FillSink
	log          zerolog.Logger

	conn wsConn

	mu      sync.Mutex
	token   string
	nextID  int64
	pending map[int64]string           // in-flight request id -> endpoint
	tokens  map[int64]string           // broker account id -> access token
	refs    map[int64]accounts.Resolution
	orders  map[int64]map[int64]int64 // broker account id -> order id -> contract id
	done    chan struct{}
	closed  bool
}

func newSession(brokerUserID int64, token string, rest *Client, resolver AccountResolver, sink FillSink, log zerolog.Logger) *Session {
	return &Session{
		brokerUserID: brokerUserID,
		token:        token,
		rest:         rest,
		resolver:     resolver,
		sink:         sink,
		log:          log.With().Int64("broker_user", brokerUserID).Logger(),
		pending:      map[int64]string{},
		tokens:       map[int64]string{},
		refs:         map[int64]accounts.Resolution{},
		orders:       map[int64]map[int64]int64{},
		done:         make(chan struct{}),
	}
}

func (s *Session) registerAccount(accountID int64, token string) {
	s.mu.Lock()
	s.tokens[accountID] = token
	s.mu.Unlock()
}

func (s *Session) dropAccount(accountID int64) (empty bool) {
	s.mu.Lock()
	delete(s.tokens, accountID)
	delete(s.refs, accountID)
	delete(s.orders, accountID)
	empty = len(s.tokens) == 0
	s.mu.Unlock()
	return empty
}

func (s *Session) dial(ctx context.Context, wsURL string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial broker feed: %w", err)
	}
	s.conn = conn
	go s.readLoop()
	return nil
}

func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *Session) readLoop() {
	defer s.close()
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.log.Warn().Err(err).Msg("feed connection lost")
			}
			return
		}
		if err := s.handleFrame(context.Background(), raw); err != nil {
			s.log.Error().Err(err).Msg("feed frame failed")
		}
	}
}

// handleFrame dispatches one wire frame: 'o' opens the session, 'h' is
// the heartbeat, 'a' carries response and event payloads.
func (s *Session) handleFrame(ctx context.Context, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	kind := raw[0]
	var responses []frameResponse
	if len(raw) > 1 {
		if err := json.Unmarshal(raw[1:], &responses); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
	}

	switch kind {
	case 'o':
		s.log.Info().Msg("feed open, authorizing")
		return s.send("authorize", "", s.accessToken())
	case 'h':
		return s.conn.WriteMessage(websocket.TextMessage, []byte("[]"))
	case 'c':
		s.close()
		return nil
	case 'a':
		for _, res := range responses {
			if err := s.handleResponse(ctx, res); err != nil {
				s.log.Error().Err(err).Int64("request", res.RequestID).Msg("feed response failed")
			}
		}
	}
	return nil
}

func (s *Session) handleResponse(ctx context.Context, res frameResponse) error {
	switch s.popPending(res.RequestID) {
	case "authorize":
		s.log.Info().Msg("feed authorized, requesting user sync")
		body, _ := json.Marshal(map[string]any{"users": []int64{s.brokerUserID}})
		return s.send("user/syncrequest", "", string(body))
	case "user/syncrequest":
		var payload syncPayload
		if err := json.Unmarshal(res.Data, &payload); err != nil {
			return fmt.Errorf("decode sync payload: %w", err)
		}
		s.resolveAccounts(ctx, payload.Accounts)
		return nil
	default:
		if len(res.Data) == 0 {
			return nil
		}
		var event eventPayload
		if err := json.Unmarshal(res.Data, &event); err != nil {
			return nil // not an entity event
		}
		return s.handleEvent(ctx, event)
	}
}

// resolveAccounts attributes each synced broker account to a journal
// sub-account. Accounts without an attached reference are skipped.
func (s *Session) resolveAccounts(ctx context.Context, list []Account) {
	for _, acc := range list {
		if acc.UserID != s.brokerUserID {
			continue
		}
		s.mu.Lock()
		token, tracked := s.tokens[acc.ID]
		s.mu.Unlock()
		if !tracked {
			continue
		}
		resolution, err := s.resolver.Resolve(ctx, acc.Name, token, BrokerName, acc.Nickname)
		if err != nil {
			s.log.Warn().Str("account", acc.Name).Msg("synced account has no active reference")
			continue
		}
		s.mu.Lock()
		s.refs[acc.ID] = resolution
		s.mu.Unlock()
		s.log.Info().Str("account", acc.Name).Str("sub_account", resolution.SubAccount.ID).Msg("feed account attributed")
	}
}

func (s *Session) handleEvent(ctx context.Context, event eventPayload) error {
	switch event.EntityType {
	case "order":
		if event.EventType != "Created" {
			return nil
		}
		var order orderEntity
		if err := json.Unmarshal(event.Entity, &order); err != nil {
			return err
		}
		s.trackOrder(order)
		return nil
	case "executionReport":
		if event.EventType != "Created" {
			return nil
		}
		var exec executionEntity
		if err := json.Unmarshal(event.Entity, &exec); err != nil {
			return err
		}
		return s.handleExecution(ctx, exec)
	case "orderVersion":
		if event.EventType != "Created" {
			return nil
		}
		var version orderVersionEntity
		if err := json.Unmarshal(event.Entity, &version); err != nil {
			return err
		}
		return s.handleOrderVersion(ctx, version)
	}
	return nil
}

func (s *Session) trackOrder(order orderEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byOrder, ok := s.orders[order.AccountID]
	if !ok {
		byOrder = map[int64]int64{}
		s.orders[order.AccountID] = byOrder
	}
	if _, ok := byOrder[order.ID]; !ok {
		byOrder[order.ID] = order.ContractID
	}
}

// handleExecution settles a filled execution report against the journal.
// Only orders observed on this session are accepted; fills for unknown
// orders belong to clients syncing through another channel.
func (s *Session) handleExecution(ctx context.Context, exec executionEntity) error {
	if exec.OrdStatus != "Filled" {
		return nil
	}
	s.mu.Lock()
	byOrder, ok := s.orders[exec.AccountID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if _, tracked := byOrder[exec.OrderID]; !tracked {
		s.mu.Unlock()
		return nil
	}
	delete(byOrder, exec.OrderID)
	resolution, attributed := s.refs[exec.AccountID]
	s.mu.Unlock()

	contract, err := s.rest.ContractItem(ctx, exec.ContractID, s.accessToken())
	if err != nil {
		return fmt.Errorf("resolve contract %d: %w", exec.ContractID, err)
	}
	if !attributed {
		s.log.Warn().Str("security", contract.Name).Msg("fill for unattributed account dropped")
		return nil
	}

	s.log.Info().
		Str("security", contract.Name).
		Str("action", exec.Action).
		Str("price", exec.AvgPx.String()).
		Str("volume", exec.CumQty.String()).
		Msg("execution captured")

	_, err = s.sink.ProcessFill(ctx, settlement.Fill{
		SubAccount:  resolution.SubAccount,
		SecurityID:  contract.Name,
		Direction:   types.Direction(exec.Action),
		Time:        time.Now().UTC(),
		Price:       exec.AvgPx,
		Volume:      exec.CumQty,
		ExecutionID: strconv.FormatInt(exec.OrderID, 10),
	})
	return err
}

// handleOrderVersion annotates the open position when a protective
// Limit or Stop order is placed after entry.
func (s *Session) handleOrderVersion(ctx context.Context, version orderVersionEntity) error {
	if version.OrderType != "Limit" && version.OrderType != "Stop" {
		return nil
	}

	s.mu.Lock()
	var contractID int64
	var resolution accounts.Resolution
	var attributed bool
	for accountID, byOrder := range s.orders {
		if id, ok := byOrder[version.OrderID]; ok {
			contractID = id
			resolution, attributed = s.refs[accountID]
			break
		}
	}
	s.mu.Unlock()
	if contractID == 0 || !attributed {
		return nil
	}

	price := version.Price
	if price.IsZero() {
		price = version.StopPrice
	}
	contract, err := s.rest.ContractItem(ctx, contractID, s.accessToken())
	if err != nil {
		return fmt.Errorf("resolve contract %d: %w", contractID, err)
	}
	s.log.Info().
		Str("security", contract.Name).
		Str("price", price.String()).
		Str("order_type", version.OrderType).
		Msg("protective order captured")
	return s.sink.ApplyRiskLevel(ctx, resolution.SubAccount.ID, contract.Name, types.RiskLevelAuto, price)
}

func (s *Session) accessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) setToken(token string) {
	s.mu.Lock()
	s.token = token
	for id := range s.tokens {
		s.tokens[id] = token
	}
	s.mu.Unlock()
}

// send frames a request as endpoint, request id, query and body on
// separate lines, remembering the id so the response can be routed.
func (s *Session) send(endpoint, query, body string) error {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.pending[id] = endpoint
	s.mu.Unlock()
	msg := fmt.Sprintf("%s\n%d\n%s\n%s", endpoint, id, query, body)
	return s.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (s *Session) popPending(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	endpoint := s.pending[id]
	delete(s.pending, id)
	return endpoint
}
