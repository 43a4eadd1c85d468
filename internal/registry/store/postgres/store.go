// Package postgres is the PostgreSQL ledger store.
//
// Writers are serialised with a transaction-scoped advisory lock, so sequence
// numbers and token ids are allocated as MAX+1 inside the writer's
// transaction and roll back with it.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"certify/internal/registry/ledger"
	"certify/internal/registry/models"
	"certify/pkg/domain"
	"certify/pkg/platform/sentinel"
	txcontext "certify/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// writerLockKey identifies the advisory lock held by every writing transaction.
const writerLockKey int64 = 0x63657274

const uniqueViolation = "23505"

// Store implements ledger.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// New creates a store over db. Call Migrate before first use.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the ledger tables if they do not exist and assigns the
// database its instance id on first run.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply ledger schema: %w", mapErr(err))
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_instance (instance_id) VALUES ($1) ON CONFLICT (singleton) DO NOTHING`,
		uuid.NewString())
	if err != nil {
		return fmt.Errorf("assign ledger instance: %w", mapErr(err))
	}
	return nil
}

// InstanceID returns the id assigned by Migrate. A fresh database gets a new
// one, so ids from a previous database never match.
func (s *Store) InstanceID(ctx context.Context) (string, error) {
	var id string
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT instance_id FROM ledger_instance`).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("ledger instance: %w", mapErr(err))
	}
	return id, nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// RunInTx opens a transaction holding the writer lock, or joins the one
// already carried by ctx.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Store) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx, s)
	}
	var fnErr error
	err := txcontext.Run(ctx, s.db, nil, func(ctx context.Context) error {
		if _, err := s.execer(ctx).ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, writerLockKey); err != nil {
			return fmt.Errorf("acquire writer lock: %w", mapErr(err))
		}
		fnErr = fn(ctx, s)
		return fnErr
	})
	if err != nil && fnErr == nil {
		return mapErr(err)
	}
	return err
}

func (s *Store) write(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.RunInTx(ctx, func(ctx context.Context, _ ledger.Store) error {
		return fn(ctx)
	})
}

func (s *Store) FindIssuer(ctx context.Context, account domain.AccountID) (*models.Issuer, error) {
	query := `
		SELECT account_id, name, website, status, registered_at_sequence, registered_at
		FROM issuers WHERE account_id = $1
	`
	var (
		issuer models.Issuer
		seq    int64
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, string(account)).Scan(
		&issuer.AccountID, &issuer.Name, &issuer.Website, &issuer.Status, &seq, &issuer.RegisteredAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find issuer: %w", mapErr(err))
	}
	issuer.RegisteredAtSequence = uint64(seq)
	issuer.RegisteredAt = issuer.RegisteredAt.UTC()
	return &issuer, nil
}

func (s *Store) CreateIssuer(ctx context.Context, issuer *models.Issuer) error {
	return s.write(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO issuers (account_id, name, website, status, registered_at_sequence, registered_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		_, err := s.execer(ctx).ExecContext(ctx, query,
			string(issuer.AccountID),
			issuer.Name,
			issuer.Website,
			int16(issuer.Status),
			int64(issuer.RegisteredAtSequence),
			issuer.RegisteredAt,
		)
		if err != nil {
			return fmt.Errorf("create issuer: %w", mapErr(err))
		}
		return nil
	})
}

func (s *Store) UpdateIssuerStatus(ctx context.Context, account domain.AccountID, status models.Status) error {
	return s.write(ctx, func(ctx context.Context) error {
		res, err := s.execer(ctx).ExecContext(ctx,
			`UPDATE issuers SET status = $2 WHERE account_id = $1`, string(account), int16(status))
		if err != nil {
			return fmt.Errorf("update issuer status: %w", mapErr(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update issuer status: %w", mapErr(err))
		}
		if n == 0 {
			return fmt.Errorf("update issuer status: %w", sentinel.ErrNotFound)
		}
		return nil
	})
}

func (s *Store) HasCapability(ctx context.Context, account domain.AccountID, c models.Capability) (bool, error) {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM capabilities WHERE account_id = $1 AND capability = $2)`,
		string(account), string(c),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check capability: %w", mapErr(err))
	}
	return exists, nil
}

func (s *Store) SetCapability(ctx context.Context, account domain.AccountID, c models.Capability, present bool) error {
	return s.write(ctx, func(ctx context.Context) error {
		query := `DELETE FROM capabilities WHERE account_id = $1 AND capability = $2`
		if present {
			query = `
				INSERT INTO capabilities (account_id, capability) VALUES ($1, $2)
				ON CONFLICT (account_id, capability) DO NOTHING
			`
		}
		if _, err := s.execer(ctx).ExecContext(ctx, query, string(account), string(c)); err != nil {
			return fmt.Errorf("set capability: %w", mapErr(err))
		}
		return nil
	})
}

func (s *Store) NextTokenID(ctx context.Context) (domain.TokenID, error) {
	var next int64
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(token_id) + 1, 0) FROM credentials`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next token id: %w", mapErr(err))
	}
	return domain.TokenID(next), nil
}

func (s *Store) SaveCredential(ctx context.Context, credential *models.Credential) error {
	return s.write(ctx, func(ctx context.Context) error {
		next, err := s.NextTokenID(ctx)
		if err != nil {
			return err
		}
		if credential.TokenID != next {
			return fmt.Errorf("save credential %d, expected %d: %w", credential.TokenID, next, sentinel.ErrConflict)
		}
		query := `
			INSERT INTO credentials (token_id, issuer_account, recipient_account, recipient_name, course_title, issued_at_sequence, issued_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		_, err = s.execer(ctx).ExecContext(ctx, query,
			int64(credential.TokenID),
			string(credential.IssuerAccountID),
			string(credential.RecipientAccountID),
			credential.RecipientName,
			credential.CourseTitle,
			int64(credential.IssuedAtSequence),
			credential.IssuedAt,
		)
		if err != nil {
			return fmt.Errorf("save credential: %w", mapErr(err))
		}
		return nil
	})
}

func (s *Store) FindCredential(ctx context.Context, tokenID domain.TokenID) (*models.Credential, error) {
	query := `
		SELECT token_id, issuer_account, recipient_account, recipient_name, course_title, issued_at_sequence, issued_at
		FROM credentials WHERE token_id = $1
	`
	var (
		c       models.Credential
		id, seq int64
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, int64(tokenID)).Scan(
		&id, &c.IssuerAccountID, &c.RecipientAccountID, &c.RecipientName, &c.CourseTitle, &seq, &c.IssuedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find credential: %w", mapErr(err))
	}
	c.TokenID = domain.TokenID(id)
	c.IssuedAtSequence = uint64(seq)
	c.IssuedAt = c.IssuedAt.UTC()
	return &c, nil
}

func (s *Store) CountCredentialsByOwner(ctx context.Context, account domain.AccountID) (int, error) {
	var n int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credentials WHERE recipient_account = $1`, string(account)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count credentials: %w", mapErr(err))
	}
	return n, nil
}

func (s *Store) AppendEvents(ctx context.Context, events ...models.Event) ([]models.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	stored := make([]models.Event, 0, len(events))
	err := s.write(ctx, func(ctx context.Context) error {
		head, err := s.LatestSequence(ctx)
		if err != nil {
			return err
		}
		query := `
			INSERT INTO ledger_events (sequence, kind, account, old_status, new_status, capability, token_id, issuer_account, recipient_account, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		for _, e := range events {
			head++
			e.Sequence = head
			e.RecordedAt = e.RecordedAt.UTC()
			_, err := s.execer(ctx).ExecContext(ctx, query,
				int64(e.Sequence),
				string(e.Kind),
				string(e.Account),
				int16(e.OldStatus),
				int16(e.NewStatus),
				string(e.Capability),
				int64(e.TokenID),
				string(e.IssuerAccount),
				string(e.RecipientAccount),
				e.RecordedAt,
			)
			if err != nil {
				return fmt.Errorf("append event: %w", mapErr(err))
			}
			stored = append(stored, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *Store) QueryEvents(ctx context.Context, q models.EventQuery) ([]models.Event, error) {
	query, args := buildEventQuery(q)
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", mapErr(err))
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var (
			e            models.Event
			seq, tokenID int64
			old, next    int16
		)
		if err := rows.Scan(&seq, &e.Kind, &e.Account, &old, &next, &e.Capability,
			&tokenID, &e.IssuerAccount, &e.RecipientAccount, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", mapErr(err))
		}
		e.Sequence = uint64(seq)
		e.TokenID = domain.TokenID(tokenID)
		e.OldStatus = models.Status(old)
		e.NewStatus = models.Status(next)
		e.RecordedAt = e.RecordedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", mapErr(err))
	}
	return out, nil
}

func buildEventQuery(q models.EventQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	add("sequence >= $%d", int64(q.FromSequence))
	if q.ToSequence > 0 {
		add("sequence <= $%d", int64(q.ToSequence))
	}
	if len(q.Kinds) > 0 {
		kinds := make([]string, len(q.Kinds))
		for i, k := range q.Kinds {
			kinds[i] = string(k)
		}
		add("kind = ANY($%d)", pq.Array(kinds))
	}
	if !q.Filter.Account.IsNil() {
		add("account = $%d", string(q.Filter.Account))
	}
	if !q.Filter.Issuer.IsNil() {
		add("issuer_account = $%d", string(q.Filter.Issuer))
	}
	if !q.Filter.Recipient.IsNil() {
		add("recipient_account = $%d", string(q.Filter.Recipient))
	}

	query := `
		SELECT sequence, kind, account, old_status, new_status, capability, token_id, issuer_account, recipient_account, recorded_at
		FROM ledger_events
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY sequence ASC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func (s *Store) LatestSequence(ctx context.Context) (uint64, error) {
	var head int64
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM ledger_events`).Scan(&head)
	if err != nil {
		return 0, fmt.Errorf("latest sequence: %w", mapErr(err))
	}
	return uint64(head), nil
}

// mapErr translates driver errors into store sentinels. Context errors and
// errors already carrying a sentinel pass through.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound),
		errors.Is(err, sentinel.ErrConflict),
		errors.Is(err, sentinel.ErrUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return sentinel.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == uniqueViolation {
			return fmt.Errorf("%s: %w", pqErr.Message, sentinel.ErrConflict)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
	}
	return err
}
