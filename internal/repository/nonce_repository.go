package repository

import (
	"context"
	"errors"
	"time"

	"intentrouter/internal/models"

	"gorm.io/gorm"
)

// ErrNonceUsed indicates a MarkUsed call for a (user, nonce) pair that is
// already consumed.
var ErrNonceUsed = errors.New("repository: nonce already used")

// NonceRepository defines the interface for the per-(user, nonce) replay
// registry. Pairs are write-once and never reset.
type NonceRepository interface {
	IsUsed(ctx context.Context, user string, nonce uint64) (bool, error)
	MarkUsed(ctx context.Context, user string, nonce uint64) error
}

// nonceRepository implements NonceRepository on gorm.
type nonceRepository struct {
	db *gorm.DB
}

// NewNonceRepository creates a new NonceRepository instance.
func NewNonceRepository(db *gorm.DB) NonceRepository {
	return &nonceRepository{db: db}
}

func (r *nonceRepository) IsUsed(ctx context.Context, user string, nonce uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UsedNonce{}).
		Where("\"user\" = ? AND nonce = ?", user, nonce).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *nonceRepository) MarkUsed(ctx context.Context, user string, nonce uint64) error {
	record := models.UsedNonce{User: user, Nonce: nonce, CreatedAt: time.Now().UTC()}
	err := r.db.WithContext(ctx).Create(&record).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrNonceUsed
	}
	return err
}
