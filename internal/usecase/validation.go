package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/scenecheck/internal/imagefetch"
	"github.com/example/scenecheck/internal/inference"
	"github.com/example/scenecheck/internal/logging"
	"github.com/example/scenecheck/internal/repository"
)

// HistoryRepository defines the persistence operations needed by the use case.
type HistoryRepository interface {
	Append(ctx context.Context, owner, sourceURL, judgement string) (*repository.HistoryRecord, error)
	ListByOwner(ctx context.Context, owner string) ([]repository.HistoryRecord, error)
}

// ImageFetcher downloads the image behind a caller-supplied URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*imagefetch.Image, error)
}

// Judge produces a structured judgement for image bytes.
type Judge interface {
	Judge(ctx context.Context, data []byte, contentType string) (*inference.Judgement, error)
}

// ValidationResult is returned to the caller of a successful validation.
type ValidationResult struct {
	Image     string               `json:"image"`
	Judgement *inference.Judgement `json:"judgement"`
}

// HistoryEntry is one item of a caller's history listing.
type HistoryEntry struct {
	ID        uint           `json:"id"`
	Image     string         `json:"image"`
	Judgement map[string]any `json:"judgement"`
	CreatedAt time.Time      `json:"created_at"`
}

type cachedEntry struct {
	ID        uint            `json:"id"`
	Image     string          `json:"image"`
	Judgement json.RawMessage `json:"judgement"`
	CreatedAt time.Time       `json:"created_at"`
}

// ValidationUseCase encapsulates the validate-and-record pipeline and the
// history listing.
type ValidationUseCase struct {
	repo     HistoryRepository
	fetcher  ImageFetcher
	judge    Judge
	cache    Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewValidationUseCase constructs a new use case instance. cache may be nil,
// which disables history caching.
func NewValidationUseCase(repo HistoryRepository, fetcher ImageFetcher, judge Judge, cache Cache, cacheTTL time.Duration, logger *zap.Logger) *ValidationUseCase {
	return &ValidationUseCase{
		repo:     repo,
		fetcher:  fetcher,
		judge:    judge,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger.Named("validation_usecase"),
	}
}

// Validate fetches the image, asks the model for a judgement and records the
// outcome for owner. Nothing is persisted unless every earlier step succeeded.
func (uc *ValidationUseCase) Validate(ctx context.Context, owner, sourceURL string) (result *ValidationResult, err error) {
	start := time.Now()
	defer func() { observeValidation(start, err) }()

	requestID := logging.RequestIDFromContext(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.validate", requestID)

	img, err := uc.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		opLogger.Info("image download failed", zap.String("source_url", sourceURL), zap.Error(err))
		return nil, err
	}

	judgement, err := uc.judge.Judge(ctx, img.Data, img.ContentType)
	if err != nil {
		opLogger.Warn("inference failed", zap.Error(err))
		return nil, err
	}

	encoded := base64.StdEncoding.EncodeToString(img.Data)

	record, err := uc.repo.Append(ctx, owner, sourceURL, judgement.Raw)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.append_history", requestID, err)
		opLogger.Error("failed to persist history record", zap.Error(wrapped))
		return nil, wrapped
	}
	uc.invalidateHistory(ctx, owner, opLogger)

	opLogger.Info("validation recorded",
		zap.Uint("record_id", record.ID),
		zap.Int("image_bytes", len(img.Data)),
		zap.String("content_type", img.ContentType),
	)
	return &ValidationResult{Image: encoded, Judgement: judgement}, nil
}

// History lists owner's past validations, newest first. A stored judgement
// that no longer decodes fails the whole listing with a storage fault.
func (uc *ValidationUseCase) History(ctx context.Context, owner string) ([]HistoryEntry, error) {
	requestID := logging.RequestIDFromContext(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.history", requestID)

	// The version must be read before the store so that a listing taken
	// before a concurrent append is filed under the superseded key.
	cacheKey, cacheable := uc.historyCacheKey(ctx, owner, opLogger)
	if cacheable {
		if entries, ok := uc.cachedHistory(ctx, cacheKey, opLogger); ok {
			return entries, nil
		}
	}

	records, err := uc.repo.ListByOwner(ctx, owner)
	if err != nil {
		opLogger.Error("failed to list history", zap.Error(err))
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(records))
	cached := make([]cachedEntry, 0, len(records))
	for _, record := range records {
		decoded, err := repository.DecodeJudgement(record)
		if err != nil {
			opLogger.Error("stored judgement is corrupted", zap.Uint("record_id", record.ID), zap.Error(err))
			return nil, fmt.Errorf("history record %d: %w", record.ID, err)
		}
		entries = append(entries, HistoryEntry{
			ID:        record.ID,
			Image:     record.SourceURL,
			Judgement: decoded,
			CreatedAt: record.CreatedAt,
		})
		cached = append(cached, cachedEntry{
			ID:        record.ID,
			Image:     record.SourceURL,
			Judgement: json.RawMessage(record.Judgement),
			CreatedAt: record.CreatedAt,
		})
	}

	if cacheable {
		uc.storeHistory(ctx, cacheKey, cached, opLogger)
	}
	return entries, nil
}

func historyVersionKey(owner string) string {
	return fmt.Sprintf("history:%s:version", owner)
}

// historyCacheKey names the listing for the owner's current version. Every
// append bumps the version, so listings cached under older keys are never
// read again and expire on their TTL.
func (uc *ValidationUseCase) historyCacheKey(ctx context.Context, owner string, opLogger *zap.Logger) (string, bool) {
	if uc.cache == nil {
		return "", false
	}
	version := "0"
	raw, err := uc.cache.Get(ctx, historyVersionKey(owner))
	switch {
	case err == nil:
		version = raw
	case errors.Is(err, redis.Nil):
	default:
		historyCacheLookups.WithLabelValues("error").Inc()
		opLogger.Warn("failed to read history cache version", zap.Error(err))
		return "", false
	}
	return fmt.Sprintf("history:%s:v%s", owner, version), true
}

func (uc *ValidationUseCase) cachedHistory(ctx context.Context, key string, opLogger *zap.Logger) ([]HistoryEntry, bool) {
	raw, err := uc.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			historyCacheLookups.WithLabelValues("miss").Inc()
		} else {
			historyCacheLookups.WithLabelValues("error").Inc()
			opLogger.Warn("failed to read history cache", zap.Error(err))
		}
		return nil, false
	}

	var cached []cachedEntry
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		historyCacheLookups.WithLabelValues("error").Inc()
		opLogger.Warn("failed to decode cached history", zap.Error(err))
		return nil, false
	}
	entries := make([]HistoryEntry, 0, len(cached))
	for _, c := range cached {
		decoded, err := repository.DecodeJudgement(repository.HistoryRecord{ID: c.ID, Judgement: string(c.Judgement)})
		if err != nil {
			historyCacheLookups.WithLabelValues("error").Inc()
			opLogger.Warn("failed to decode cached judgement", zap.Uint("record_id", c.ID))
			return nil, false
		}
		entries = append(entries, HistoryEntry{ID: c.ID, Image: c.Image, Judgement: decoded, CreatedAt: c.CreatedAt})
	}
	historyCacheLookups.WithLabelValues("hit").Inc()
	return entries, true
}

func (uc *ValidationUseCase) storeHistory(ctx context.Context, key string, cached []cachedEntry, opLogger *zap.Logger) {
	serialized, err := json.Marshal(cached)
	if err != nil {
		opLogger.Warn("failed to serialize history for cache", zap.Error(err))
		return
	}
	if err := uc.cache.Set(ctx, key, string(serialized), uc.cacheTTL); err != nil {
		opLogger.Warn("failed to cache history", zap.Error(err))
	}
}

// invalidateHistory bumps the owner's listing version.
func (uc *ValidationUseCase) invalidateHistory(ctx context.Context, owner string, opLogger *zap.Logger) {
	if uc.cache == nil {
		return
	}
	if _, err := uc.cache.Incr(ctx, historyVersionKey(owner)); err != nil {
		opLogger.Warn("failed to invalidate history cache", zap.Error(err))
	}
}
