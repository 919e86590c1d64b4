package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/library-api/internal/models"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
)

type reportRepository interface {
	LoanTotals(ctx context.Context, asOf time.Time) (models.LoanTotals, error)
	CatalogTotals(ctx context.Context) (models.CatalogTotals, error)
	RosterTotals(ctx context.Context) (models.RosterTotals, error)
}

// ReportService computes the statistics panel.
type ReportService struct {
	repo   reportRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewReportService constructs the report service.
func NewReportService(repo reportRepository, cache *CacheService, ttl time.Duration, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{repo: repo, cache: cache, ttl: ttl, logger: logger, now: time.Now}
}

// Aggregate returns loan, catalog and roster totals. A zero asOf means now and
// goes through the cache; an explicit asOf is always computed. The bool reports a cache hit.
func (s *ReportService) Aggregate(ctx context.Context, asOf time.Time) (*models.Statistics, bool, error) {
	cacheable := asOf.IsZero()
	if cacheable {
		var cached models.Statistics
		hit, err := s.cache.Get(ctx, statisticsCacheKey, &cached)
		if err == nil && hit {
			return &cached, true, nil
		}
		asOf = s.now()
	}
	asOf = asOf.UTC()

	loans, err := s.repo.LoanTotals(ctx, asOf)
	if err != nil {
		return nil, false, appErrors.Persistence(err, "failed to aggregate loans")
	}
	catalog, err := s.repo.CatalogTotals(ctx)
	if err != nil {
		return nil, false, appErrors.Persistence(err, "failed to aggregate catalog")
	}
	roster, err := s.repo.RosterTotals(ctx)
	if err != nil {
		return nil, false, appErrors.Persistence(err, "failed to aggregate roster")
	}

	stats := &models.Statistics{Loans: loans, Catalog: catalog, Roster: roster, AsOf: asOf}
	if cacheable {
		_ = s.cache.Set(ctx, statisticsCacheKey, stats, s.ttl)
	}
	return stats, false, nil
}
