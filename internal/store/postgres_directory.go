package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	dirmodels "profileclaim/internal/directory/models"
	id "profileclaim/pkg/domain"
	"profileclaim/pkg/platform/sentinel"
)

type pgUsers struct{ q querierFunc }

const userColumns = `id, email, role, verification_status, claim_attempts, claimed_player_id, created_at`

func scanUser(row rowScanner) (*dirmodels.User, error) {
	var (
		u        dirmodels.User
		uid      uuid.UUID
		role     string
		status   string
		playerID uuid.NullUUID
	)
	if err := row.Scan(&uid, &u.Email, &role, &status, &u.ClaimAttempts, &playerID, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.ID = id.UserID(uid)
	u.Role = dirmodels.Role(role)
	u.VerificationStatus = dirmodels.VerificationStatus(status)
	if playerID.Valid {
		pid := id.PlayerID(playerID.UUID)
		u.ClaimedPlayerID = &pid
	}
	return &u, nil
}

func (r *pgUsers) FindByID(ctx context.Context, userID id.UserID) (*dirmodels.User, error) {
	u, err := scanUser(r.q(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID)))
	if err != nil {
		return nil, notFound(err, "find user")
	}
	return u, nil
}

func (r *pgUsers) List(ctx context.Context, offset, limit int, role *dirmodels.Role) ([]*dirmodels.User, error) {
	if offset < 0 {
		offset = 0
	}
	var roleArg *string
	if role != nil {
		s := string(*role)
		roleArg = &s
	}
	rows, err := r.q(ctx).QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE $1::text IS NULL OR role = $1
		ORDER BY created_at DESC, id
		OFFSET $2 LIMIT $3`, roleArg, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*dirmodels.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

func (r *pgUsers) ConsumeClaimAttempt(ctx context.Context, userID id.UserID, max int) error {
	res, err := r.q(ctx).ExecContext(ctx, `
		UPDATE users
		SET claim_attempts = claim_attempts + 1,
		    verification_status = 'pending_identity'
		WHERE id = $1 AND role = 'premium' AND claim_attempts < $2`,
		uuid.UUID(userID), max,
	)
	if err != nil {
		return fmt.Errorf("consume claim attempt: %w", err)
	}
	return requireOneRow(res, fmt.Errorf("consume claim attempt for %s: %w", userID, sentinel.ErrStateChanged))
}

func (r *pgUsers) SetVerificationStatus(ctx context.Context, userID id.UserID, status dirmodels.VerificationStatus) error {
	res, err := r.q(ctx).ExecContext(ctx,
		`UPDATE users SET verification_status = $2 WHERE id = $1`,
		uuid.UUID(userID), string(status),
	)
	if err != nil {
		return fmt.Errorf("set verification status: %w", err)
	}
	return requireOneRow(res, fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound))
}

func (r *pgUsers) AssignClaimedPlayer(ctx context.Context, userID id.UserID, playerID id.PlayerID) error {
	res, err := r.q(ctx).ExecContext(ctx, `
		UPDATE users
		SET claimed_player_id = $2, verification_status = 'approved'
		WHERE id = $1`,
		uuid.UUID(userID), uuid.UUID(playerID),
	)
	if err != nil {
		return fmt.Errorf("assign claimed player: %w", err)
	}
	return requireOneRow(res, fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound))
}

func (r *pgUsers) SetRole(ctx context.Context, userID id.UserID, role dirmodels.Role) error {
	res, err := r.q(ctx).ExecContext(ctx,
		`UPDATE users SET role = $2 WHERE id = $1`, uuid.UUID(userID), string(role))
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return requireOneRow(res, fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound))
}

func (r *pgUsers) Count(ctx context.Context, role *dirmodels.Role) (int, error) {
	var n int
	var err error
	if role == nil {
		err = r.q(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	} else {
		err = r.q(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, string(*role)).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

type pgPlayers struct{ q querierFunc }

func (r *pgPlayers) FindByID(ctx context.Context, playerID id.PlayerID) (*dirmodels.Player, error) {
	var (
		p         dirmodels.Player
		pid       uuid.UUID
		claimedBy uuid.NullUUID
	)
	err := r.q(ctx).QueryRowContext(ctx, `
		SELECT id, first_name, last_name, birth_year, club, position, league, is_claimed, claimed_by_id
		FROM players WHERE id = $1`, uuid.UUID(playerID),
	).Scan(&pid, &p.FirstName, &p.LastName, &p.BirthYear, &p.Club, &p.Position, &p.League, &p.IsClaimed, &claimedBy)
	if err != nil {
		return nil, notFound(err, "find player")
	}
	p.ID = id.PlayerID(pid)
	if claimedBy.Valid {
		uid := id.UserID(claimedBy.UUID)
		p.ClaimedByID = &uid
	}
	return &p, nil
}

func (r *pgPlayers) MarkClaimed(ctx context.Context, playerID id.PlayerID, userID id.UserID) error {
	res, err := r.q(ctx).ExecContext(ctx, `
		UPDATE players
		SET is_claimed = TRUE, claimed_by_id = $2
		WHERE id = $1 AND is_claimed = FALSE`,
		uuid.UUID(playerID), uuid.UUID(userID),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s already owns a player: %w", userID, sentinel.ErrDuplicate)
		}
		return fmt.Errorf("mark player claimed: %w", err)
	}
	return requireOneRow(res, fmt.Errorf("player %s already claimed: %w", playerID, sentinel.ErrStateChanged))
}

func (r *pgPlayers) Count(ctx context.Context, claimedOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM players`
	if claimedOnly {
		query += ` WHERE is_claimed`
	}
	var n int
	if err := r.q(ctx).QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count players: %w", err)
	}
	return n, nil
}

func (r *pgPlayers) FindProfile(ctx context.Context, playerID id.PlayerID) (*dirmodels.PlayerProfile, error) {
	var data []byte
	err := r.q(ctx).QueryRowContext(ctx,
		`SELECT data FROM player_profiles WHERE player_id = $1`, uuid.UUID(playerID),
	).Scan(&data)
	if err != nil {
		return nil, notFound(err, "find profile")
	}
	var profile dirmodels.PlayerProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &profile, nil
}

func (r *pgPlayers) SaveProfile(ctx context.Context, profile *dirmodels.PlayerProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	_, err = r.q(ctx).ExecContext(ctx, `
		INSERT INTO player_profiles (player_id, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (player_id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`,
		uuid.UUID(profile.PlayerID), jsonArg(data), profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}
