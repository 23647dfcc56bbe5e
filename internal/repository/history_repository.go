package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/scenecheck/internal/apperrors"
	"github.com/example/scenecheck/internal/logging"
)

// HistoryRecord represents one persisted validation outcome. Rows are
// append-only.
type HistoryRecord struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	OwnerIdentity string    `gorm:"column:owner_identity;size:320;not null;index:idx_history_owner"`
	SourceURL     string    `gorm:"column:source_url;type:text;not null"`
	Judgement     string    `gorm:"column:judgement;type:text;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides the default table name.
func (HistoryRecord) TableName() string {
	return "history"
}

// ErrInvalidJudgement is returned by Append when the judgement text is not a
// JSON object.
var ErrInvalidJudgement = errors.New("judgement is not a JSON object")

// HistoryRepository provides persistence APIs for history records.
type HistoryRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new repository instance.
func NewHistoryRepository(db *gorm.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{db: db, logger: logger.Named("history_repository")}
}

// AutoMigrate ensures the schema is available.
func (r *HistoryRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&HistoryRecord{})
}

// Append inserts a new record. The judgement must already be the exact JSON
// text that will be decoded again by listings.
func (r *HistoryRepository) Append(ctx context.Context, owner, sourceURL, judgement string) (*HistoryRecord, error) {
	requestID := logging.RequestIDFromContext(ctx)
	if !isJSONObject(judgement) {
		return nil, logging.NewOperationError("repository.append", requestID, ErrInvalidJudgement)
	}

	record := &HistoryRecord{
		OwnerIdentity: owner,
		SourceURL:     sourceURL,
		Judgement:     judgement,
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		wrapped := logging.NewOperationError("repository.append", requestID, err)
		r.logger.Error("failed to append history record", logging.ErrorFields(wrapped)...)
		return nil, wrapped
	}
	return record, nil
}

// ListByOwner returns the owner's records, newest first. Creation order is the
// store-assigned id; created_at follows the wall clock and may step back.
func (r *HistoryRepository) ListByOwner(ctx context.Context, owner string) ([]HistoryRecord, error) {
	records := make([]HistoryRecord, 0)
	err := r.db.WithContext(ctx).
		Where("owner_identity = ?", owner).
		Order("id DESC").
		Find(&records).Error
	if err != nil {
		return nil, logging.NewOperationError("repository.list_by_owner", logging.RequestIDFromContext(ctx), err)
	}
	return records, nil
}

// CountByOwner returns how many records the owner has.
func (r *HistoryRepository) CountByOwner(ctx context.Context, owner string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&HistoryRecord{}).Where("owner_identity = ?", owner).Count(&count).Error
	if err != nil {
		return 0, logging.NewOperationError("repository.count_by_owner", logging.RequestIDFromContext(ctx), err)
	}
	return count, nil
}

// Ping checks the underlying connection.
func (r *HistoryRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// DecodeJudgement deserializes a stored judgement. A failure means the row
// violates the write-time contract and is reported as a storage fault.
func DecodeJudgement(record HistoryRecord) (map[string]any, error) {
	decoded, err := decodeObject(record.Judgement)
	if err != nil {
		return nil, apperrors.StorageFault(err)
	}
	return decoded, nil
}

// decodeObject keeps numbers as json.Number so re-rendering is exact.
func decodeObject(text string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var decoded map[string]any
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	if decoded == nil {
		return nil, ErrInvalidJudgement
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, ErrInvalidJudgement
	}
	return decoded, nil
}

func isJSONObject(text string) bool {
	_, err := decodeObject(text)
	return err == nil
}
