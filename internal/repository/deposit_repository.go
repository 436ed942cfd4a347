package repository

import (
	"context"
	"errors"
	"time"

	"intentrouter/internal/models"

	"gorm.io/gorm"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("repository: not found")

// clampPage normalizes paging parameters so callers below the HTTP layer
// cannot produce negative offsets.
func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return page, limit
}

// DepositRepository defines the interface for deposit record data access.
type DepositRepository interface {
	Create(ctx context.Context, record *models.DepositRecord) error
	GetByIntentID(ctx context.Context, intentID string) (*models.DepositRecord, error)
	MarkClaimed(ctx context.Context, intentID string, claimedAt time.Time) error
	FindByUser(ctx context.Context, user string, page, limit int) ([]*models.DepositRecord, int64, error)
}

// depositRepository implements DepositRepository on gorm.
type depositRepository struct {
	db *gorm.DB
}

// NewDepositRepository creates a new DepositRepository instance.
func NewDepositRepository(db *gorm.DB) DepositRepository {
	return &depositRepository{db: db}
}

func (r *depositRepository) Create(ctx context.Context, record *models.DepositRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *depositRepository) GetByIntentID(ctx context.Context, intentID string) (*models.DepositRecord, error) {
	var record models.DepositRecord
	err := r.db.WithContext(ctx).Where("intent_id = ?", intentID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *depositRepository) MarkClaimed(ctx context.Context, intentID string, claimedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.DepositRecord{}).
		Where("intent_id = ?", intentID).
		Updates(map[string]interface{}{
			"status":             models.DepositStatusClaimed,
			"pending_request_id": "",
			"claimed_at":         claimedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *depositRepository) FindByUser(ctx context.Context, user string, page, limit int) ([]*models.DepositRecord, int64, error) {
	var records []*models.DepositRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&models.DepositRecord{}).Where("\"user\" = ?", user)
	query.Count(&total)

	page, limit = clampPage(page, limit)
	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("created_at DESC").Find(&records).Error
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}
