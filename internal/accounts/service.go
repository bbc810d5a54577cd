// Package accounts resolves which sub-account a fill belongs to and
// manages the broker references that link external accounts to it.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradesync/internal/model"
	"tradesync/internal/settlement"
	"tradesync/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BrokerNinjaTrader is the broker served by the live feed; its
// references are authorized through the broker's OAuth flow rather than
// a caller-supplied key.
const BrokerNinjaTrader = "Ninja Trader"

// AllowedBrokers are the sync clients a reference may be attached for.
var AllowedBrokers = []string{"Atas", BrokerNinjaTrader, "MT5", "MT4"}

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Resolution is the outcome of attributing a broker account to a user.
type Resolution struct {
	User       model.User
	SubAccount model.SubAccount
}

// Resolve authorizes a fill against the reference table: the account id
// (or its alternate) together with the broker and auth key must map to an
// active reference. Failure is ErrUnresolvedAccount.
func (s *Service) Resolve(ctx context.Context, accountID, authKey, broker, alternateID string) (Resolution, error) {
	var out Resolution
	var costing string
	err := s.pool.QueryRow(ctx, `
		select u.id, u.email, coalesce(u.time_zone, ''), a.id, a.user_id, a.name, coalesce(a.time_zone, ''), a.costing_mode
		from sub_account_references r
		join sub_accounts a on a.id = r.sub_account_id
		join users u on u.id = a.user_id
		where r.auth_key = $1 and r.broker = $2 and r.status = 'active' and (r.account_id = $3 or ($4 != '' and r.account_id = $4))
		limit 1`,
		authKey, broker, accountID, alternateID).
		Scan(&out.User.ID, &out.User.Email, &out.User.TimeZone, &out.SubAccount.ID, &out.SubAccount.UserID, &out.SubAccount.Name, &out.SubAccount.TimeZone, &costing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return out, settlement.ErrUnresolvedAccount
		}
		return out, err
	}
	out.SubAccount.CostingMode = types.CostingMode(costing)
	if out.SubAccount.CostingMode == "" {
		out.SubAccount.CostingMode = types.CostingModeFIFO
	}
	return out, nil
}

// GetSubAccount loads a sub-account owned by userID.
func (s *Service) GetSubAccount(ctx context.Context, userID, subAccountID string) (model.SubAccount, error) {
	var out model.SubAccount
	var costing string
	err := s.pool.QueryRow(ctx, "select id, user_id, name, coalesce(time_zone, ''), costing_mode from sub_accounts where id = $1 and user_id = $2",
		subAccountID, userID).
		Scan(&out.ID, &out.UserID, &out.Name, &out.TimeZone, &costing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return out, settlement.ErrUnresolvedAccount
		}
		return out, err
	}
	out.CostingMode = types.CostingMode(costing)
	if out.CostingMode == "" {
		out.CostingMode = types.CostingModeFIFO
	}
	return out, nil
}

// checkAttachable validates the reference fields, sub-account ownership
// and the no-duplicate-active-reference rule.
func (s *Service) checkAttachable(ctx context.Context, userID string, ref model.SubAccountReference) error {
	if ref.SubAccountID == "" || ref.AccountID == "" || ref.Broker == "" {
		return errors.New("sub account, account id and broker required")
	}
	allowed := false
	for _, b := range AllowedBrokers {
		if b == ref.Broker {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("broker %q not allowed", ref.Broker)
	}

	if _, err := s.GetSubAccount(ctx, userID, ref.SubAccountID); err != nil {
		return err
	}

	var existing string
	err := s.pool.QueryRow(ctx, `
		select r.id from sub_account_references r
		join sub_accounts a on a.id = r.sub_account_id
		where a.user_id = $1 and r.account_id = $2 and r.broker = $3 and r.status = 'active' limit 1`,
		userID, ref.AccountID, ref.Broker).Scan(&existing)
	if err == nil {
		return errors.New("cannot attach same account again")
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return nil
}

// AttachReference activates a broker reference for the sub-account.
// Re-attaching an account that already has an active reference is
// rejected. An empty auth key gets a generated sync key.
func (s *Service) AttachReference(ctx context.Context, userID string, ref model.SubAccountReference) (model.SubAccountReference, error) {
	if err := s.checkAttachable(ctx, userID, ref); err != nil {
		return ref, err
	}
	if ref.AuthKey == "" {
		ref.AuthKey = uuid.NewString()
	}
	err := s.pool.QueryRow(ctx, "insert into sub_account_references (sub_account_id, account_id, alternate_id, broker, auth_key, status, broker_user_id, created_at) values ($1,$2,$3,$4,$5,'active',$6,$7) returning id",
		ref.SubAccountID, ref.AccountID, ref.AlternateID, ref.Broker, ref.AuthKey, ref.BrokerUserID, time.Now().UTC()).Scan(&ref.ID)
	if err != nil {
		return ref, err
	}
	ref.Status = "active"
	return ref, nil
}

// AttachPendingReference records an inactive reference awaiting broker
// authorization. If the account already has an inactive reference for
// the broker it is reused.
func (s *Service) AttachPendingReference(ctx context.Context, userID string, ref model.SubAccountReference) (model.SubAccountReference, error) {
	if err := s.checkAttachable(ctx, userID, ref); err != nil {
		return ref, err
	}
	err := s.pool.QueryRow(ctx, `
		select r.id from sub_account_references r
		join sub_accounts a on a.id = r.sub_account_id
		where a.user_id = $1 and r.account_id = $2 and r.broker = $3 and r.status = 'inactive' limit 1`,
		userID, ref.AccountID, ref.Broker).Scan(&ref.ID)
	if err == nil {
		ref.Status = "inactive"
		ref.AuthKey = "-"
		return ref, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ref, err
	}
	err = s.pool.QueryRow(ctx, "insert into sub_account_references (sub_account_id, account_id, alternate_id, broker, auth_key, status, created_at) values ($1,$2,$3,$4,'-','inactive',$5) returning id",
		ref.SubAccountID, ref.AccountID, ref.AlternateID, ref.Broker, time.Now().UTC()).Scan(&ref.ID)
	if err != nil {
		return ref, err
	}
	ref.Status = "inactive"
	ref.AuthKey = "-"
	return ref, nil
}

// ActivateReference stores the exchanged broker token on a pending
// reference and flips it active.
func (s *Service) ActivateReference(ctx context.Context, userID, referenceID, authKey string, brokerUserID int64) (model.SubAccountReference, error) {
	var ref model.SubAccountReference
	if authKey == "" {
		return ref, errors.New("auth key required")
	}
	err := s.pool.QueryRow(ctx, `
		update sub_account_references set auth_key = $1, status = 'active', broker_user_id = $2
		where id = $3 and sub_account_id in (select id from sub_accounts where user_id = $4)
		returning id, sub_account_id, account_id, coalesce(alternate_id, ''), broker, auth_key, status, coalesce(broker_user_id, 0), created_at`,
		authKey, brokerUserID, referenceID, userID).
		Scan(&ref.ID, &ref.SubAccountID, &ref.AccountID, &ref.AlternateID, &ref.Broker, &ref.AuthKey, &ref.Status, &ref.BrokerUserID, &ref.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ref, errors.New("reference not found")
		}
		return ref, err
	}
	return ref, nil
}

// DetachReference deactivates a reference owned by userID.
func (s *Service) DetachReference(ctx context.Context, userID, referenceID string) error {
	tag, err := s.pool.Exec(ctx, `
		update sub_account_references set status = 'inactive'
		where id = $1 and sub_account_id in (select id from sub_accounts where user_id = $2)`,
		referenceID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("reference not found")
	}
	return nil
}

// ListActiveReferences returns every active reference for a broker, used
// by the feed to restore sessions on startup.
func (s *Service) ListActiveReferences(ctx context.Context, broker string) ([]model.SubAccountReference, error) {
	rows, err := s.pool.Query(ctx, "select id, sub_account_id, account_id, coalesce(alternate_id, ''), broker, auth_key, status, coalesce(broker_user_id, 0), created_at from sub_account_references where broker = $1 and status = 'active'",
		broker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SubAccountReference
	for rows.Next() {
		var r model.SubAccountReference
		if err := rows.Scan(&r.ID, &r.SubAccountID, &r.AccountID, &r.AlternateID, &r.Broker, &r.AuthKey, &r.Status, &r.BrokerUserID, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateReferenceKey rotates the stored broker access token; an empty
// key deactivates the reference.
func (s *Service) UpdateReferenceKey(ctx context.Context, referenceID, authKey string) error {
	status := "active"
	if authKey == "" {
		authKey = "-"
		status = "inactive"
	}
	_, err := s.pool.Exec(ctx, "update sub_account_references set auth_key = $1, status = $2 where id = $3", authKey, status, referenceID)
	return err
}

// ListSubAccountIDs returns every sub-account id, used by the nightly
// aggregation sweep.
func (s *Service) ListSubAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "select id from sub_accounts")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
