package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	auditmodels "profileclaim/internal/audit/models"
	identitymodels "profileclaim/internal/identity/models"
	id "profileclaim/pkg/domain"
)

type pgIdentity struct{ q querierFunc }

func (r *pgIdentity) Append(ctx context.Context, rec *identitymodels.VerificationRecord) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO identity_verifications
			(id, user_id, national_id_hash, first_name, last_name, birth_year, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(rec.ID), uuid.UUID(rec.UserID), rec.NationalIDHash,
		rec.FirstName, rec.LastName, rec.BirthYear, rec.Verified, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append identity verification: %w", err)
	}
	return nil
}

func (r *pgIdentity) LatestByUser(ctx context.Context, userID id.UserID) (*identitymodels.VerificationRecord, error) {
	var (
		rec identitymodels.VerificationRecord
		rid uuid.UUID
		uid uuid.UUID
	)
	err := r.q(ctx).QueryRowContext(ctx, `
		SELECT id, user_id, national_id_hash, first_name, last_name, birth_year, verified, created_at
		FROM identity_verifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, uuid.UUID(userID),
	).Scan(&rid, &uid, &rec.NationalIDHash, &rec.FirstName, &rec.LastName, &rec.BirthYear, &rec.Verified, &rec.CreatedAt)
	if err != nil {
		return nil, notFound(err, "latest identity verification")
	}
	rec.ID = id.VerificationID(rid)
	rec.UserID = id.UserID(uid)
	return &rec, nil
}

type pgAudit struct{ q querierFunc }

// Append writes the ledger row and its outbox row through the same executor,
// so inside RunInTx both commit or neither does.
func (r *pgAudit) Append(ctx context.Context, e *auditmodels.Entry) error {
	var meta []byte
	if len(e.Meta) > 0 {
		var err error
		if meta, err = json.Marshal(e.Meta); err != nil {
			return fmt.Errorf("encode audit meta: %w", err)
		}
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}

	q := r.q(ctx)
	if _, err := q.ExecContext(ctx, `
		INSERT INTO admin_audit_log (id, admin_id, action, target_type, target_id, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(e.ID), uuid.UUID(e.AdminID), string(e.Action), e.TargetType, e.TargetID, jsonArg(meta), e.CreatedAt,
	); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), e.TargetType, e.TargetID, string(e.Action), jsonArg(payload), e.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (r *pgAudit) List(ctx context.Context, offset, limit int) ([]*auditmodels.Entry, error) {
	if offset < 0 {
		offset = 0
	}
	rows, err := r.q(ctx).QueryContext(ctx, `
		SELECT id, admin_id, action, target_type, target_id, meta, created_at
		FROM admin_audit_log
		ORDER BY created_at DESC, id
		OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []*auditmodels.Entry
	for rows.Next() {
		var (
			e       auditmodels.Entry
			eid     uuid.UUID
			adminID uuid.UUID
			action  string
			meta    []byte
		)
		if err := rows.Scan(&eid, &adminID, &action, &e.TargetType, &e.TargetID, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = id.AuditEntryID(eid)
		e.AdminID = id.UserID(adminID)
		e.Action = auditmodels.Action(action)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, fmt.Errorf("decode audit meta: %w", err)
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

func (r *pgAudit) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.q(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_audit_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// jsonArg passes JSON as text; lib/pq would otherwise send []byte as bytea.
func jsonArg(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
