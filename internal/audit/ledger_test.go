package audit

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	auditmodels "profileclaim/internal/audit/models"
	"profileclaim/internal/store"
	id "profileclaim/pkg/domain"
	dErrors "profileclaim/pkg/domain-errors"
	"profileclaim/pkg/requestcontext"
)

type failingLog struct {
	store.AuditLog
	err error
}

func (f failingLog) Append(context.Context, *auditmodels.Entry) error { return f.err }

type LedgerSuite struct {
	suite.Suite
	store   *store.Memory
	metrics *Metrics
	ledger  *Ledger
	admin   id.UserID
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.store = store.NewMemory()
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.ledger = New(s.store.AuditLog(), WithMetrics(s.metrics))
	s.admin = id.UserID(uuid.New())
}

func (s *LedgerSuite) entry() auditmodels.Entry {
	return auditmodels.Entry{
		AdminID:    s.admin,
		Action:     auditmodels.ActionClaimApproved,
		TargetType: auditmodels.TargetClaimRequest,
		TargetID:   uuid.NewString(),
	}
}

func (s *LedgerSuite) TestRecordStampsIDAndTime() {
	fixed := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), fixed)

	s.Require().NoError(s.ledger.Record(ctx, s.store.AuditLog(), s.entry()))

	page, err := s.ledger.List(ctx, 1, 10)
	s.Require().NoError(err)
	s.Require().Len(page.Entries, 1)
	s.False(page.Entries[0].ID.IsNil())
	s.Equal(fixed, page.Entries[0].CreatedAt)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Recorded.WithLabelValues(string(auditmodels.ActionClaimApproved))))
}

func (s *LedgerSuite) TestRecordRejectsIncompleteEntry() {
	e := s.entry()
	e.TargetID = ""
	err := s.ledger.Record(context.Background(), s.store.AuditLog(), e)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	n, err := s.store.AuditLog().Count(context.Background())
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *LedgerSuite) TestRecordFailsClosed() {
	boom := errors.New("disk full")
	err := s.ledger.Record(context.Background(), failingLog{err: boom}, s.entry())
	s.ErrorIs(err, boom)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.PersistFailures))
}

func (s *LedgerSuite) TestRecordInsideRolledBackTxLeavesNothing() {
	ctx := context.Background()
	boom := errors.New("later step failed")
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		if err := s.ledger.Record(ctx, tx.AuditLog(), s.entry()); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	page, err := s.ledger.List(ctx, 1, 10)
	s.Require().NoError(err)
	s.Zero(page.Total)
	s.NotNil(page.Entries)
}

func (s *LedgerSuite) TestListPagesNewestFirst() {
	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ctx := requestcontext.WithTime(context.Background(), base.Add(time.Duration(i)*time.Minute))
		s.Require().NoError(s.ledger.Record(ctx, s.store.AuditLog(), s.entry()))
	}

	page, err := s.ledger.List(context.Background(), 2, 2)
	s.Require().NoError(err)
	s.Equal(5, page.Total)
	s.Equal(2, page.Page)
	s.Require().Len(page.Entries, 2)
	s.Equal(base.Add(2*time.Minute), page.Entries[0].CreatedAt)
	s.Equal(base.Add(time.Minute), page.Entries[1].CreatedAt)

	page, err = s.ledger.List(context.Background(), 0, 0)
	s.Require().NoError(err)
	s.Equal(1, page.Page)
	s.Equal(auditmodels.DefaultPageSize, page.Limit)
}

func (s *LedgerSuite) TestListFarPageIsEmpty() {
	s.Require().NoError(s.ledger.Record(context.Background(), s.store.AuditLog(), s.entry()))

	for _, page := range []int{1000, math.MaxInt/4 + 2, math.MaxInt} {
		got, err := s.ledger.List(context.Background(), page, 4)
		s.Require().NoError(err, "page %d", page)
		s.Empty(got.Entries)
		s.NotNil(got.Entries)
		s.Equal(1, got.Total)
		s.LessOrEqual(got.Page, auditmodels.MaxPage)
	}
}
