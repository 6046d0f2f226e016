package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	auditmodels "profileclaim/internal/audit/models"
	claimmodels "profileclaim/internal/claims/models"
	dirmodels "profileclaim/internal/directory/models"
	identitymodels "profileclaim/internal/identity/models"
	id "profileclaim/pkg/domain"
	"profileclaim/pkg/platform/sentinel"
)

// Memory is an in-process Store for tests and local development.
//
// RunInTx holds the write lock for the whole callback and works on a copy of
// the state; the copy replaces the committed state only when fn succeeds.
// Records are never mutated in place, so the copy only duplicates maps and
// slices, not the records themselves.
type Memory struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	users    map[id.UserID]*dirmodels.User
	players  map[id.PlayerID]*dirmodels.Player
	profiles map[id.PlayerID]*dirmodels.PlayerProfile
	claims   map[id.ClaimID]*claimmodels.ClaimRequest
	identity []*identitymodels.VerificationRecord
	audit    []*auditmodels.Entry
	outbox   []*memOutboxRow
}

type memOutboxRow struct {
	msg       OutboxMessage
	published bool
}

func NewMemory() *Memory {
	return &Memory{state: &memState{
		users:    make(map[id.UserID]*dirmodels.User),
		players:  make(map[id.PlayerID]*dirmodels.Player),
		profiles: make(map[id.PlayerID]*dirmodels.PlayerProfile),
		claims:   make(map[id.ClaimID]*claimmodels.ClaimRequest),
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		users:    make(map[id.UserID]*dirmodels.User, len(s.users)),
		players:  make(map[id.PlayerID]*dirmodels.Player, len(s.players)),
		profiles: make(map[id.PlayerID]*dirmodels.PlayerProfile, len(s.profiles)),
		claims:   make(map[id.ClaimID]*claimmodels.ClaimRequest, len(s.claims)),
		identity: append([]*identitymodels.VerificationRecord(nil), s.identity...),
		audit:    append([]*auditmodels.Entry(nil), s.audit...),
		outbox:   make([]*memOutboxRow, len(s.outbox)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.players {
		c.players[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.claims {
		c.claims[k] = v
	}
	for i, row := range s.outbox {
		cp := *row
		c.outbox[i] = &cp
	}
	return c
}

// SeedUser inserts or replaces a user. Directory data is owned elsewhere;
// this exists for tests and the dev bootstrap.
func (m *Memory) SeedUser(u *dirmodels.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.state.users[u.ID] = &cp
}

// SeedPlayer inserts or replaces a player.
func (m *Memory) SeedPlayer(p *dirmodels.Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.state.players[p.ID] = &cp
}

func (m *Memory) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.state.clone()
	if err := fn(&memView{st: working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = working
	return nil
}

func (m *Memory) Claims() Claims                   { return &memClaims{v: &memView{m: m}} }
func (m *Memory) Users() Users                     { return &memUsers{v: &memView{m: m}} }
func (m *Memory) Players() Players                 { return &memPlayers{v: &memView{m: m}} }
func (m *Memory) IdentityRecords() IdentityRecords { return &memIdentity{v: &memView{m: m}} }
func (m *Memory) AuditLog() AuditLog               { return &memAudit{v: &memView{m: m}} }

// DrainOutbox hands unpublished messages to publish, oldest first, and marks
// the accepted ones.
func (m *Memory) DrainOutbox(ctx context.Context, limit int, publish PublishFunc) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var batch []OutboxMessage
	for _, row := range m.state.outbox {
		if row.published {
			continue
		}
		batch = append(batch, row.msg)
		if len(batch) == limit {
			break
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}
	accepted, err := publish(ctx, batch)
	marked := make(map[uuid.UUID]struct{}, len(accepted))
	for _, a := range accepted {
		marked[a] = struct{}{}
	}
	for _, row := range m.state.outbox {
		if _, ok := marked[row.msg.ID]; ok {
			row.published = true
		}
	}
	return len(accepted), err
}

// memView runs repository calls against either the transaction's working
// copy (st set, lock already held) or the committed state (m set).
type memView struct {
	m  *Memory
	st *memState
}

func (v *memView) Claims() Claims                   { return &memClaims{v: v} }
func (v *memView) Users() Users                     { return &memUsers{v: v} }
func (v *memView) Players() Players                 { return &memPlayers{v: v} }
func (v *memView) IdentityRecords() IdentityRecords { return &memIdentity{v: v} }
func (v *memView) AuditLog() AuditLog               { return &memAudit{v: v} }

func (v *memView) read(fn func(st *memState) error) error {
	if v.st != nil {
		return fn(v.st)
	}
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	return fn(v.m.state)
}

func (v *memView) write(fn func(st *memState) error) error {
	if v.st != nil {
		return fn(v.st)
	}
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return fn(v.m.state)
}

type memClaims struct{ v *memView }

func (r *memClaims) Create(_ context.Context, claim *claimmodels.ClaimRequest) error {
	return r.v.write(func(st *memState) error {
		if _, ok := st.claims[claim.ID]; ok {
			return fmt.Errorf("claim %s: %w", claim.ID, sentinel.ErrDuplicate)
		}
		if claim.Status.IsActive() {
			for _, c := range st.claims {
				if c.UserID == claim.UserID && c.Status.IsActive() {
					return fmt.Errorf("active claim for user %s: %w", claim.UserID, sentinel.ErrDuplicate)
				}
			}
		}
		cp := *claim
		st.claims[claim.ID] = &cp
		return nil
	})
}

func (r *memClaims) FindByID(_ context.Context, claimID id.ClaimID) (*claimmodels.ClaimRequest, error) {
	var out *claimmodels.ClaimRequest
	err := r.v.read(func(st *memState) error {
		c, ok := st.claims[claimID]
		if !ok {
			return fmt.Errorf("claim %s: %w", claimID, sentinel.ErrNotFound)
		}
		cp := *c
		out = &cp
		return nil
	})
	return out, err
}

func (r *memClaims) FindActiveByUser(_ context.Context, userID id.UserID) (*claimmodels.ClaimRequest, error) {
	return r.findLatest(userID, func(c *claimmodels.ClaimRequest) bool { return c.Status.IsActive() })
}

func (r *memClaims) FindLatestByUser(_ context.Context, userID id.UserID) (*claimmodels.ClaimRequest, error) {
	return r.findLatest(userID, func(*claimmodels.ClaimRequest) bool { return true })
}

func (r *memClaims) findLatest(userID id.UserID, match func(*claimmodels.ClaimRequest) bool) (*claimmodels.ClaimRequest, error) {
	var out *claimmodels.ClaimRequest
	err := r.v.read(func(st *memState) error {
		var best *claimmodels.ClaimRequest
		for _, c := range st.claims {
			if c.UserID != userID || !match(c) {
				continue
			}
			if best == nil || c.CreatedAt.After(best.CreatedAt) {
				best = c
			}
		}
		if best == nil {
			return fmt.Errorf("claim for user %s: %w", userID, sentinel.ErrNotFound)
		}
		cp := *best
		out = &cp
		return nil
	})
	return out, err
}

func (r *memClaims) ListByStatus(_ context.Context, status claimmodels.Status) ([]*claimmodels.ClaimRequest, error) {
	var out []*claimmodels.ClaimRequest
	err := r.v.read(func(st *memState) error {
		for _, c := range st.claims {
			if c.Status == status {
				cp := *c
				out = append(out, &cp)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r *memClaims) CountByStatus(_ context.Context, status claimmodels.Status) (int, error) {
	n := 0
	err := r.v.read(func(st *memState) error {
		for _, c := range st.claims {
			if c.Status == status {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *memClaims) ApplyTransition(_ context.Context, t claimmodels.Transition) error {
	return r.v.write(func(st *memState) error {
		c, ok := st.claims[t.ClaimID]
		if !ok {
			return fmt.Errorf("claim %s: %w", t.ClaimID, sentinel.ErrNotFound)
		}
		if c.Status != t.From {
			return fmt.Errorf("claim %s is %s, expected %s: %w", t.ClaimID, c.Status, t.From, sentinel.ErrStateChanged)
		}
		cp := *c
		cp.Status = t.To
		if t.ReviewedAt != nil {
			cp.ReviewedAt = t.ReviewedAt
		}
		if t.Rationale != nil {
			cp.ReviewRationale = t.Rationale
		}
		st.claims[t.ClaimID] = &cp
		return nil
	})
}

type memUsers struct{ v *memView }

func (r *memUsers) FindByID(_ context.Context, userID id.UserID) (*dirmodels.User, error) {
	var out *dirmodels.User
	err := r.v.read(func(st *memState) error {
		u, ok := st.users[userID]
		if !ok {
			return fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
		}
		cp := *u
		out = &cp
		return nil
	})
	return out, err
}

func (r *memUsers) update(userID id.UserID, mutate func(u *dirmodels.User) error) error {
	return r.v.write(func(st *memState) error {
		u, ok := st.users[userID]
		if !ok {
			return fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
		}
		cp := *u
		if err := mutate(&cp); err != nil {
			return err
		}
		st.users[userID] = &cp
		return nil
	})
}

func (r *memUsers) ConsumeClaimAttempt(_ context.Context, userID id.UserID, max int) error {
	return r.update(userID, func(u *dirmodels.User) error {
		if u.Role != dirmodels.RolePremium || u.ClaimAttempts >= max {
			return fmt.Errorf("consume claim attempt for %s: %w", userID, sentinel.ErrStateChanged)
		}
		u.ClaimAttempts++
		u.VerificationStatus = dirmodels.VerificationPendingIdentity
		return nil
	})
}

func (r *memUsers) SetVerificationStatus(_ context.Context, userID id.UserID, status dirmodels.VerificationStatus) error {
	return r.update(userID, func(u *dirmodels.User) error {
		u.VerificationStatus = status
		return nil
	})
}

func (r *memUsers) AssignClaimedPlayer(_ context.Context, userID id.UserID, playerID id.PlayerID) error {
	return r.update(userID, func(u *dirmodels.User) error {
		pid := playerID
		u.ClaimedPlayerID = &pid
		u.VerificationStatus = dirmodels.VerificationApproved
		return nil
	})
}

func (r *memUsers) SetRole(_ context.Context, userID id.UserID, role dirmodels.Role) error {
	return r.update(userID, func(u *dirmodels.User) error {
		u.Role = role
		return nil
	})
}

func (r *memUsers) List(_ context.Context, offset, limit int, role *dirmodels.Role) ([]*dirmodels.User, error) {
	if offset < 0 {
		offset = 0
	}
	var matched []*dirmodels.User
	err := r.v.read(func(st *memState) error {
		for _, u := range st.users {
			if role == nil || u.Role == *role {
				matched = append(matched, u)
			}
		}
		return nil
	})
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})
	var out []*dirmodels.User
	for i := offset; i < len(matched) && len(out) < limit; i++ {
		cp := *matched[i]
		out = append(out, &cp)
	}
	return out, err
}

func (r *memUsers) Count(_ context.Context, role *dirmodels.Role) (int, error) {
	n := 0
	err := r.v.read(func(st *memState) error {
		for _, u := range st.users {
			if role == nil || u.Role == *role {
				n++
			}
		}
		return nil
	})
	return n, err
}

type memPlayers struct{ v *memView }

func (r *memPlayers) FindByID(_ context.Context, playerID id.PlayerID) (*dirmodels.Player, error) {
	var out *dirmodels.Player
	err := r.v.read(func(st *memState) error {
		p, ok := st.players[playerID]
		if !ok {
			return fmt.Errorf("player %s: %w", playerID, sentinel.ErrNotFound)
		}
		cp := *p
		out = &cp
		return nil
	})
	return out, err
}

func (r *memPlayers) MarkClaimed(_ context.Context, playerID id.PlayerID, userID id.UserID) error {
	return r.v.write(func(st *memState) error {
		p, ok := st.players[playerID]
		if !ok {
			return fmt.Errorf("player %s: %w", playerID, sentinel.ErrNotFound)
		}
		if p.IsClaimed {
			return fmt.Errorf("player %s already claimed: %w", playerID, sentinel.ErrStateChanged)
		}
		for _, other := range st.players {
			if other.ClaimedByID != nil && *other.ClaimedByID == userID {
				return fmt.Errorf("user %s already owns a player: %w", userID, sentinel.ErrDuplicate)
			}
		}
		cp := *p
		uid := userID
		cp.IsClaimed = true
		cp.ClaimedByID = &uid
		st.players[playerID] = &cp
		return nil
	})
}

func (r *memPlayers) Count(_ context.Context, claimedOnly bool) (int, error) {
	n := 0
	err := r.v.read(func(st *memState) error {
		for _, p := range st.players {
			if !claimedOnly || p.IsClaimed {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *memPlayers) FindProfile(_ context.Context, playerID id.PlayerID) (*dirmodels.PlayerProfile, error) {
	var out *dirmodels.PlayerProfile
	err := r.v.read(func(st *memState) error {
		p, ok := st.profiles[playerID]
		if !ok {
			return fmt.Errorf("profile %s: %w", playerID, sentinel.ErrNotFound)
		}
		cp := copyProfile(p)
		out = cp
		return nil
	})
	return out, err
}

func (r *memPlayers) SaveProfile(_ context.Context, profile *dirmodels.PlayerProfile) error {
	return r.v.write(func(st *memState) error {
		if _, ok := st.players[profile.PlayerID]; !ok {
			return fmt.Errorf("player %s: %w", profile.PlayerID, sentinel.ErrNotFound)
		}
		st.profiles[profile.PlayerID] = copyProfile(profile)
		return nil
	})
}

func copyProfile(p *dirmodels.PlayerProfile) *dirmodels.PlayerProfile {
	cp := *p
	cp.Videos = append([]dirmodels.Video(nil), p.Videos...)
	cp.CareerHistory = append([]dirmodels.CareerEntry(nil), p.CareerHistory...)
	return &cp
}

type memIdentity struct{ v *memView }

func (r *memIdentity) Append(_ context.Context, record *identitymodels.VerificationRecord) error {
	return r.v.write(func(st *memState) error {
		cp := *record
		st.identity = append(st.identity, &cp)
		return nil
	})
}

func (r *memIdentity) LatestByUser(_ context.Context, userID id.UserID) (*identitymodels.VerificationRecord, error) {
	var out *identitymodels.VerificationRecord
	err := r.v.read(func(st *memState) error {
		for i := len(st.identity) - 1; i >= 0; i-- {
			if st.identity[i].UserID == userID {
				cp := *st.identity[i]
				out = &cp
				return nil
			}
		}
		return fmt.Errorf("verification for user %s: %w", userID, sentinel.ErrNotFound)
	})
	return out, err
}

type memAudit struct{ v *memView }

func (r *memAudit) Append(_ context.Context, entry *auditmodels.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	return r.v.write(func(st *memState) error {
		cp := *entry
		st.audit = append(st.audit, &cp)
		st.outbox = append(st.outbox, &memOutboxRow{msg: OutboxMessage{
			ID:            uuid.New(),
			AggregateType: entry.TargetType,
			AggregateID:   entry.TargetID,
			EventType:     string(entry.Action),
			Payload:       payload,
			CreatedAt:     entry.CreatedAt,
		}})
		return nil
	})
}

func (r *memAudit) List(_ context.Context, offset, limit int) ([]*auditmodels.Entry, error) {
	if offset < 0 {
		offset = 0
	}
	var out []*auditmodels.Entry
	err := r.v.read(func(st *memState) error {
		ordered := make([]*auditmodels.Entry, 0, len(st.audit))
		for i := len(st.audit) - 1; i >= 0; i-- {
			ordered = append(ordered, st.audit[i])
		}
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
		})
		for i := offset; i < len(ordered) && len(out) < limit; i++ {
			cp := *ordered[i]
			out = append(out, &cp)
		}
		return nil
	})
	return out, err
}

func (r *memAudit) Count(_ context.Context) (int, error) {
	n := 0
	err := r.v.read(func(st *memState) error {
		n = len(st.audit)
		return nil
	})
	return n, err
}

var (
	_ Store = (*Memory)(nil)
	_ Tx    = (*memView)(nil)
)
