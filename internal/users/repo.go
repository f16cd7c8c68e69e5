package users

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
)

// Repository exposes the few user operations the order core needs. Accounts
// themselves are provisioned by the identity provider.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to an open transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BackfillPhone stores phone on the user only when none is on file yet.
// It reports whether a row was changed.
func (r *Repository) BackfillPhone(ctx context.Context, id uuid.UUID, phone string) (bool, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return false, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND (phone IS NULL OR phone = '')", id).
		Update("phone", phone)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
