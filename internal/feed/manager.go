package feed

import (
	"context"
	"errors"
	"sync"

	"tradesync/internal/model"

	"github.com/rs/zerolog"
)

// ReferenceStore is the slice of the accounts service the manager needs
// to restore and rotate broker references.
type ReferenceStore interface {
	ListActiveReferences(ctx context.Context, broker string) ([]model.SubAccountReference, error)
	UpdateReferenceKey(ctx context.Context, referenceID, authKey string) error
}

// Manager owns one Session per broker user and keeps their access
// tokens fresh.
type Manager struct {
	rest     *Client
	wsURL    string
	resolver AccountResolver
	refs     ReferenceStore
	sink     FillSink
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[int64]*Session
	attached map[string]attachment // reference id -> broker user/account
}

type attachment struct {
	userID    int64
	accountID int64
}

func NewManager(rest *Client, wsURL string, resolver AccountResolver, refs ReferenceStore, sink FillSink, log zerolog.Logger) *Manager {
	return &Manager{
		rest:     rest,
		wsURL:    wsURL,
		resolver: resolver,
		refs:     refs,
		sink:     sink,
		log:      log.With().Str("component", "feed").Logger(),
		sessions: map[int64]*Session{},
		attached: map[string]attachment{},
	}
}

// OAuthURL builds the broker consent URL carrying the caller's state.
func (m *Manager) OAuthURL(state string) string {
	return m.rest.OAuthURL(state)
}

// Authorize exchanges an OAuth code and locates the named broker
// account among the accounts the fresh token can see. It returns the
// access token and the broker user owning the account.
func (m *Manager) Authorize(ctx context.Context, code, accountID string) (string, int64, error) {
	token, err := m.rest.ExchangeCode(ctx, code)
	if err != nil {
		return "", 0, err
	}
	list, err := m.rest.AccountsList(ctx, token.AccessToken)
	if err != nil {
		return "", 0, err
	}
	for _, acc := range list {
		if acc.Name == accountID || acc.Nickname == accountID {
			return token.AccessToken, acc.UserID, nil
		}
	}
	return "", 0, errors.New("account not visible to this token")
}

// Attach starts (or joins) the feed session for the reference's broker
// user. The reference's auth key must be a valid access token; the
// broker account it names must be visible to that token.
func (m *Manager) Attach(ctx context.Context, ref model.SubAccountReference) error {
	if ref.AuthKey == "" || ref.AuthKey == "-" {
		return errors.New("reference has no access token")
	}
	list, err := m.rest.AccountsList(ctx, ref.AuthKey)
	if err != nil {
		return err
	}
	var account *Account
	for i := range list {
		acc := list[i]
		if acc.UserID == ref.BrokerUserID && (acc.Name == ref.AccountID || acc.Nickname == ref.AccountID) {
			account = &acc
			break
		}
	}
	if account == nil {
		return errors.New("account not visible to this token")
	}

	m.mu.Lock()
	m.attached[ref.ID] = attachment{userID: ref.BrokerUserID, accountID: account.ID}
	session, ok := m.sessions[ref.BrokerUserID]
	if ok {
		session.registerAccount(account.ID, ref.AuthKey)
		m.mu.Unlock()
		return nil
	}
	session = newSession(ref.BrokerUserID, ref.AuthKey, m.rest, m.resolver, m.sink, m.log)
	session.registerAccount(account.ID, ref.AuthKey)
	m.sessions[ref.BrokerUserID] = session
	m.mu.Unlock()

	if err := session.dial(ctx, m.wsURL); err != nil {
		m.mu.Lock()
		delete(m.sessions, ref.BrokerUserID)
		delete(m.attached, ref.ID)
		m.mu.Unlock()
		return err
	}
	m.log.Info().Int64("broker_user", ref.BrokerUserID).Str("account", ref.AccountID).Msg("feed session started")
	return nil
}

// DetachReference closes the feed side of a detached reference.
func (m *Manager) DetachReference(referenceID string) {
	m.mu.Lock()
	at, ok := m.attached[referenceID]
	delete(m.attached, referenceID)
	m.mu.Unlock()
	if ok {
		m.Detach(at.userID, at.accountID)
	}
}

// Detach drops one broker account from its session; the session closes
// once its last account is gone.
func (m *Manager) Detach(brokerUserID, brokerAccountID int64) {
	m.mu.Lock()
	session, ok := m.sessions[brokerUserID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if session.dropAccount(brokerAccountID) {
		delete(m.sessions, brokerUserID)
		m.mu.Unlock()
		session.close()
		m.log.Info().Int64("broker_user", brokerUserID).Msg("feed session closed")
		return
	}
	m.mu.Unlock()
}

// Restore renews every stored token and reopens the sessions for all
// active references, typically at process start.
func (m *Manager) Restore(ctx context.Context) error {
	if err := m.RenewTokens(ctx); err != nil {
		return err
	}
	list, err := m.refs.ListActiveReferences(ctx, BrokerName)
	if err != nil {
		return err
	}
	for _, ref := range list {
		if err := m.Attach(ctx, ref); err != nil {
			m.log.Warn().Err(err).Str("reference", ref.ID).Msg("feed restore skipped reference")
		}
	}
	return nil
}

// RenewTokens rotates the access token of every active reference. One
// renewal per broker user is performed; references sharing the user
// reuse the fresh token. References whose token cannot be renewed are
// deactivated.
func (m *Manager) RenewTokens(ctx context.Context) error {
	list, err := m.refs.ListActiveReferences(ctx, BrokerName)
	if err != nil {
		return err
	}
	renewed := map[int64]string{}
	for _, ref := range list {
		if ref.AuthKey == "-" || ref.AuthKey == "" {
			continue
		}
		token, ok := renewed[ref.BrokerUserID]
		if !ok {
			fresh, userID, err := m.rest.RenewToken(ctx, ref.AuthKey)
			if err != nil {
				m.log.Warn().Err(err).Str("reference", ref.ID).Msg("token renewal failed, deactivating reference")
				if err := m.refs.UpdateReferenceKey(ctx, ref.ID, ""); err != nil {
					m.log.Error().Err(err).Str("reference", ref.ID).Msg("reference deactivation failed")
				}
				continue
			}
			token = fresh
			renewed[userID] = fresh
			if ref.BrokerUserID != userID {
				renewed[ref.BrokerUserID] = fresh
			}
		}
		if err := m.refs.UpdateReferenceKey(ctx, ref.ID, token); err != nil {
			m.log.Error().Err(err).Str("reference", ref.ID).Msg("token rotation failed")
			continue
		}
		m.mu.Lock()
		if session, ok := m.sessions[ref.BrokerUserID]; ok {
			session.setToken(token)
		}
		m.mu.Unlock()
	}
	m.log.Info().Int("references", len(list)).Msg("access tokens renewed")
	return nil
}

// TokenRenewalJob adapts RenewTokens to the scheduler.
type TokenRenewalJob struct {
	Manager *Manager
}

func (j TokenRenewalJob) Name() string { return "feed-token-renewal" }

func (j TokenRenewalJob) Run(ctx context.Context) error {
	return j.Manager.RenewTokens(ctx)
}
