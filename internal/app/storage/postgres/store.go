// Package postgres implements the storage interfaces backed by PostgreSQL.
//
// The claim-and-mark semantics of BeginBundle rely on single-statement
// UPDATEs: PostgreSQL evaluates the WHERE predicate and the assignment
// atomically per row, so two concurrent finalizers can never claim the same
// entry even across orchestrator instances.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/account"
	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/entity"
	"github.com/ProvChain-Network/provenance_layer/internal/app/storage"
	apperrors "github.com/ProvChain-Network/provenance_layer/internal/errors"
)

// Store implements storage.Store on a sqlx database handle.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// --- AccountStore -----------------------------------------------------------

func (s *Store) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM accounts`); err != nil {
		return 0, apperrors.Unavailable("count accounts", err)
	}
	return count, nil
}

type accountRow struct {
	Address      string         `db:"address"`
	Permissions  pq.StringArray `db:"permissions"`
	AccessLevel  int            `db:"access_level"`
	RegisteredBy string         `db:"registered_by"`
	RegisteredOn int64          `db:"registered_on"`
}

func (r accountRow) toDomain() account.Account {
	return account.Account{
		Address:      r.Address,
		Permissions:  append([]string(nil), r.Permissions...),
		AccessLevel:  r.AccessLevel,
		RegisteredBy: r.RegisteredBy,
		RegisteredOn: r.RegisteredOn,
	}
}

func (s *Store) GetAccount(ctx context.Context, address string) (account.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `
		SELECT address, permissions, access_level, registered_by, registered_on
		FROM accounts
		WHERE address = $1
	`, address)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, apperrors.NewNotFoundError("account", address)
	}
	if err != nil {
		return account.Account{}, apperrors.Unavailable("get account", err)
	}
	return row.toDomain(), nil
}

func (s *Store) StoreAccount(ctx context.Context, acct account.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (address, permissions, access_level, registered_by, registered_on)
		VALUES ($1, $2, $3, $4, $5)
	`, acct.Address, pq.StringArray(acct.Permissions), acct.AccessLevel, acct.RegisteredBy, acct.RegisteredOn)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return apperrors.NewValidationError("address", "account already registered")
		}
		return apperrors.Unavailable("store account", err)
	}
	return nil
}

func (s *Store) UpdateAccount(ctx context.Context, address string, upd account.Update) (account.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE accounts
		SET permissions  = COALESCE($2, permissions),
		    access_level = COALESCE($3, access_level)
		WHERE address = $1
		RETURNING address, permissions, access_level, registered_by, registered_on
	`, address, permissionsArg(upd.Permissions), accessLevelArg(upd.AccessLevel))
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, apperrors.NewNotFoundError("account", address)
	}
	if err != nil {
		return account.Account{}, apperrors.Unavailable("update account", err)
	}
	return row.toDomain(), nil
}

func permissionsArg(p *[]string) interface{} {
	if p == nil {
		return nil
	}
	return pq.StringArray(*p)
}

func accessLevelArg(l *int) interface{} {
	if l == nil {
		return nil
	}
	return *l
}

// --- EntityStore ------------------------------------------------------------

func (s *Store) StoreAsset(ctx context.Context, a entity.Asset) error {
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assets (asset_id, body, created_by, ts)
		VALUES ($1, $2, $3, $4)
	`, a.AssetID, body, a.Content.IDData.CreatedBy, a.Content.IDData.Timestamp)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return apperrors.NewValidationError("assetId", "asset already stored")
		}
		return apperrors.Unavailable("store asset", err)
	}
	return nil
}

func (s *Store) GetAsset(ctx context.Context, id string) (entity.Asset, error) {
	var row struct {
		Body     []byte         `db:"body"`
		BundleID sql.NullString `db:"bundle_id"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT body, bundle_id FROM assets WHERE asset_id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Asset{}, apperrors.NewNotFoundError("asset", id)
	}
	if err != nil {
		return entity.Asset{}, apperrors.Unavailable("get asset", err)
	}

	var a entity.Asset
	if err := json.Unmarshal(row.Body, &a); err != nil {
		return entity.Asset{}, err
	}
	return stampAsset(a, row.BundleID), nil
}

func (s *Store) StoreEvent(ctx context.Context, e entity.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	idData := e.Content.IDData
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (event_id, body, asset_id, created_by, ts, access_level)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.EventID, body, idData.AssetID, idData.CreatedBy, idData.Timestamp, idData.AccessLevel)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return apperrors.NewValidationError("eventId", "event already stored")
		}
		return apperrors.Unavailable("store event", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id string, accessLevel int) (entity.Event, error) {
	var row struct {
		Body     []byte         `db:"body"`
		BundleID sql.NullString `db:"bundle_id"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT body, bundle_id FROM events
		WHERE event_id = $1 AND access_level <= $2
	`, id, accessLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Event{}, apperrors.NewNotFoundError("event", id)
	}
	if err != nil {
		return entity.Event{}, apperrors.Unavailable("get event", err)
	}

	var e entity.Event
	if err := json.Unmarshal(row.Body, &e); err != nil {
		return entity.Event{}, err
	}
	return stampEvent(e, row.BundleID), nil
}

func (s *Store) FindEvents(ctx context.Context, q entity.FindEventsQuery, accessLevel int) ([]entity.Event, error) {
	query := `
		SELECT body, bundle_id FROM events
		WHERE access_level <= $1
		  AND ($2 = '' OR asset_id = $2)
		  AND ($3 = '' OR created_by = $3)
		  AND ($4::bigint IS NULL OR ts >= $4)
		  AND ($5::bigint IS NULL OR ts <= $5)
		ORDER BY ts DESC, event_id ASC
	`
	// Payload filters resolve in Go, so pagination can only be pushed into
	// the query when none are present.
	pageInSQL := len(q.Data) == 0 && q.PerPage > 0
	if pageInSQL {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", q.PerPage, q.Page*q.PerPage)
	}
	rows, err := s.db.QueryxContext(ctx, query,
		accessLevel, q.AssetID, q.CreatedBy, q.FromTimestamp, q.ToTimestamp)
	if err != nil {
		return nil, apperrors.Unavailable("find events", err)
	}
	defer rows.Close()

	matched := make([]entity.Event, 0)
	for rows.Next() {
		var row struct {
			Body     []byte         `db:"body"`
			BundleID sql.NullString `db:"bundle_id"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, apperrors.Unavailable("find events", err)
		}
		var e entity.Event
		if err := json.Unmarshal(row.Body, &e); err != nil {
			return nil, err
		}
		if !storage.MatchEvent(e, q) {
			continue
		}
		matched = append(matched, stampEvent(e, row.BundleID))
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("find events", err)
	}

	if pageInSQL {
		return matched, nil
	}
	return paginate(matched, q.Page, q.PerPage), nil
}

func paginate(events []entity.Event, page, perPage int) []entity.Event {
	if perPage <= 0 {
		return events
	}
	start := page * perPage
	if start >= len(events) {
		return []entity.Event{}
	}
	end := start + perPage
	if end > len(events) {
		end = len(events)
	}
	return events[start:end]
}

// BeginBundle claims every unbundled asset and event under stubID. The
// UPDATE's WHERE clause only matches unclaimed rows, so the claim is
// exclusive; the SELECT then returns the stub's full claim set including
// rows claimed by an earlier attempt with the same stub.
func (s *Store) BeginBundle(ctx context.Context, stubID string) (entity.Claim, error) {
	var claim entity.Claim

	for _, table := range []string{"assets", "events"} {
		_, err := s.db.ExecContext(ctx, `
			UPDATE `+table+` SET bundle_stub_id = $1
			WHERE bundle_stub_id IS NULL AND bundle_id IS NULL
		`, stubID)
		if err != nil {
			return entity.Claim{}, apperrors.Unavailable("begin bundle", err)
		}
	}

	assetRows, err := s.db.QueryContext(ctx, `
		SELECT body FROM assets
		WHERE bundle_stub_id = $1 AND bundle_id IS NULL
		ORDER BY asset_id
	`, stubID)
	if err != nil {
		return entity.Claim{}, apperrors.Unavailable("begin bundle", err)
	}
	defer assetRows.Close()
	for assetRows.Next() {
		var body []byte
		if err := assetRows.Scan(&body); err != nil {
			return entity.Claim{}, apperrors.Unavailable("begin bundle", err)
		}
		var a entity.Asset
		if err := json.Unmarshal(body, &a); err != nil {
			return entity.Claim{}, err
		}
		claim.Assets = append(claim.Assets, a)
	}
	if err := assetRows.Err(); err != nil {
		return entity.Claim{}, apperrors.Unavailable("begin bundle", err)
	}

	eventRows, err := s.db.QueryContext(ctx, `
		SELECT body FROM events
		WHERE bundle_stub_id = $1 AND bundle_id IS NULL
		ORDER BY event_id
	`, stubID)
	if err != nil {
		return entity.Claim{}, apperrors.Unavailable("begin bundle", err)
	}
	defer eventRows.Close()
	for eventRows.Next() {
		var body []byte
		if err := eventRows.Scan(&body); err != nil {
			return entity.Claim{}, apperrors.Unavailable("begin bundle", err)
		}
		var e entity.Event
		if err := json.Unmarshal(body, &e); err != nil {
			return entity.Claim{}, err
		}
		claim.Events = append(claim.Events, e)
	}
	if err := eventRows.Err(); err != nil {
		return entity.Claim{}, apperrors.Unavailable("begin bundle", err)
	}

	return claim, nil
}

func (s *Store) EndBundle(ctx context.Context, stubID, bundleID string) error {
	for _, table := range []string{"assets", "events"} {
		_, err := s.db.ExecContext(ctx, `
			UPDATE `+table+` SET bundle_id = $2, bundle_stub_id = NULL
			WHERE bundle_stub_id = $1 AND bundle_id IS NULL
		`, stubID, bundleID)
		if err != nil {
			return apperrors.Unavailable("end bundle", err)
		}
	}
	return nil
}

func (s *Store) StoreBundle(ctx context.Context, b entity.Bundle) error {
	body, err := json.Marshal(b)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bundles (bundle_id, body)
		VALUES ($1, $2)
	`, b.BundleID, body)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return apperrors.NewValidationError("bundleId", "bundle already stored")
		}
		return apperrors.Unavailable("store bundle", err)
	}
	return nil
}

func (s *Store) GetBundle(ctx context.Context, id string) (entity.Bundle, error) {
	var row struct {
		Body       []byte        `db:"body"`
		ProofBlock sql.NullInt64 `db:"proof_block"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT body, proof_block FROM bundles WHERE bundle_id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Bundle{}, apperrors.NewNotFoundError("bundle", id)
	}
	if err != nil {
		return entity.Bundle{}, apperrors.Unavailable("get bundle", err)
	}

	var b entity.Bundle
	if err := json.Unmarshal(row.Body, &b); err != nil {
		return entity.Bundle{}, err
	}
	if row.ProofBlock.Valid {
		meta := b.Metadata.Clone()
		if meta == nil {
			meta = entity.Metadata{}
		}
		meta[entity.MetaBundleProofBlock] = row.ProofBlock.Int64
		b.Metadata = meta
	}
	return b, nil
}

func (s *Store) StoreBundleProofBlock(ctx context.Context, bundleID string, blockNumber int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bundles SET proof_block = $2 WHERE bundle_id = $1
	`, bundleID, blockNumber)
	if err != nil {
		return apperrors.Unavailable("store bundle proof block", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperrors.NewNotFoundError("bundle", bundleID)
	}
	return nil
}

func stampAsset(a entity.Asset, bundleID sql.NullString) entity.Asset {
	if !bundleID.Valid {
		return a
	}
	meta := a.Metadata.Clone()
	if meta == nil {
		meta = entity.Metadata{}
	}
	meta[entity.MetaBundleID] = bundleID.String
	a.Metadata = meta
	return a
}

func stampEvent(e entity.Event, bundleID sql.NullString) entity.Event {
	if !bundleID.Valid {
		return e
	}
	meta := e.Metadata.Clone()
	if meta == nil {
		meta = entity.Metadata{}
	}
	meta[entity.MetaBundleID] = bundleID.String
	e.Metadata = meta
	return e
}
