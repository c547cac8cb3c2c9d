package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"github.com/windparklabs/windbill/internal/clock"
	"github.com/windparklabs/windbill/internal/observability"
	sequencedomain "github.com/windparklabs/windbill/internal/sequence/domain"
	"github.com/windparklabs/windbill/internal/sequence/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxAllocationRetries = 8

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	genID   *snowflake.Node
	repo    sequencedomain.Repository
	metrics *observability.Metrics
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	GenID   *snowflake.Node
	Metrics *observability.Metrics `optional:"true"`
}

func NewService(p ServiceParam) sequencedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("sequence.service"),
		clock:   p.Clock,
		genID:   p.GenID,
		repo:    repository.NewRepository(),
		metrics: p.Metrics,
	}
}

func (s *Service) Get(ctx context.Context, tenantID snowflake.ID, docType sequencedomain.DocumentType) (*sequencedomain.NumberSequence, error) {
	if tenantID == 0 {
		return nil, sequencedomain.ErrInvalidTenant
	}
	if !docType.Valid() {
		return nil, sequencedomain.ErrInvalidDocumentType
	}
	return s.findOrCreate(ctx, s.db, tenantID, docType)
}

func (s *Service) Update(ctx context.Context, tenantID snowflake.ID, docType sequencedomain.DocumentType, req sequencedomain.UpdateRequest) (*sequencedomain.NumberSequence, error) {
	seq, err := s.Get(ctx, tenantID, docType)
	if err != nil {
		return nil, err
	}

	format := seq.Format
	if req.Format != nil && strings.TrimSpace(*req.Format) != "" {
		format = strings.TrimSpace(*req.Format)
	}
	digitCount := seq.DigitCount
	if req.DigitCount != nil {
		if *req.DigitCount < 1 || *req.DigitCount > 12 {
			return nil, sequencedomain.ErrInvalidDigitCount
		}
		digitCount = *req.DigitCount
	}

	now := s.clock.Now()
	if err := s.repo.UpdateSettings(ctx, s.db, seq.ID, format, digitCount, now); err != nil {
		return nil, err
	}
	seq.Format = format
	seq.DigitCount = digitCount
	seq.UpdatedAt = now
	return seq, nil
}

func (s *Service) Preview(ctx context.Context, tenantID snowflake.ID, docType sequencedomain.DocumentType) (string, error) {
	seq, err := s.Get(ctx, tenantID, docType)
	if err != nil {
		return "", err
	}

	now := s.clock.Now()
	number := seq.NextNumber
	if seq.CurrentYear != now.Year() {
		// Year boundary: the next allocation restarts at 1. The stored row is
		// not touched until a real allocation commits.
		number = 1
	}
	return sequencedomain.FormatNumber(seq.Format, number, seq.DigitCount, now), nil
}

func (s *Service) Allocate(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, docType sequencedomain.DocumentType) (*sequencedomain.Allocation, error) {
	if tenantID == 0 {
		return nil, sequencedomain.ErrInvalidTenant
	}
	if !docType.Valid() {
		return nil, sequencedomain.ErrInvalidDocumentType
	}
	if db == nil {
		db = s.db
	}

	var allocation *sequencedomain.Allocation
	operation := func() error {
		alloc, err := s.tryAllocate(ctx, db, tenantID, docType)
		if err != nil {
			return backoff.Permanent(err)
		}
		if alloc == nil {
			if s.metrics != nil {
				s.metrics.SequenceRetries.Inc()
			}
			return sequencedomain.ErrSequenceConflict
		}
		allocation = alloc
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 150 * time.Millisecond
	policy.MaxElapsedTime = 3 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, maxAllocationRetries), ctx))
	if err != nil {
		if errors.Is(err, sequencedomain.ErrSequenceConflict) {
			s.log.Warn("sequence allocation retries exhausted",
				zap.String("tenant_id", tenantID.String()),
				zap.String("document_type", string(docType)))
		}
		return nil, err
	}
	return allocation, nil
}

// tryAllocate performs one optimistic read-compute-compare-swap cycle.
// Returns (nil, nil) when a concurrent draw won the conditional update.
func (s *Service) tryAllocate(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, docType sequencedomain.DocumentType) (*sequencedomain.Allocation, error) {
	seq, err := s.findOrCreate(ctx, db, tenantID, docType)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	year := now.Year()
	number := seq.NextNumber
	if seq.CurrentYear != year {
		number = 1
	}

	ok, err := s.repo.CompareAndAdvance(ctx, db, seq.ID, seq.CurrentYear, seq.NextNumber, year, number+1, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	return &sequencedomain.Allocation{
		Number:          number,
		FormattedNumber: sequencedomain.FormatNumber(seq.Format, number, seq.DigitCount, now),
		Year:            year,
	}, nil
}

func (s *Service) findOrCreate(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, docType sequencedomain.DocumentType) (*sequencedomain.NumberSequence, error) {
	seq, err := s.repo.Find(ctx, db, tenantID, docType)
	if err != nil {
		return nil, err
	}
	if seq != nil {
		return seq, nil
	}

	now := s.clock.Now()
	format := sequencedomain.DefaultInvoiceFormat
	if docType == sequencedomain.DocumentTypeCreditNote {
		format = sequencedomain.DefaultCreditNoteFormat
	}
	if err := s.repo.Insert(ctx, db, &sequencedomain.NumberSequence{
		ID:           s.genID.Generate(),
		TenantID:     tenantID,
		DocumentType: docType,
		Format:       format,
		CurrentYear:  now.Year(),
		NextNumber:   1,
		DigitCount:   sequencedomain.DefaultDigitCount,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		return nil, err
	}

	// Re-read to survive a lost insert race: ON CONFLICT DO NOTHING means
	// another request may have created the row first.
	seq, err = s.repo.Find(ctx, db, tenantID, docType)
	if err != nil {
		return nil, err
	}
	if seq == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return seq, nil
}
