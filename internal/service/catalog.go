package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/models"
)

// Cache key layout. Catalog mutations invalidate both prefixes because
// analytics aggregates are derived from catalog data.
const (
	cacheKeySnapshot  = "catalog:snapshot"
	cacheKeyDashboard = "analytics:dashboard"
	cacheKeyAnalytics = "analytics:timetable"

	cachePatternCatalog   = "catalog:*"
	cachePatternAnalytics = "analytics:*"
)

func paginationFor(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

func invalidateCatalogCache(ctx context.Context, cache *CacheService, logger *zap.Logger) {
	if cache == nil || !cache.Enabled() {
		return
	}
	for _, pattern := range []string{cachePatternCatalog, cachePatternAnalytics} {
		if err := cache.Invalidate(ctx, pattern); err != nil && logger != nil {
			logger.Warn("failed to invalidate cache", zap.String("pattern", pattern), zap.Error(err))
		}
	}
}
