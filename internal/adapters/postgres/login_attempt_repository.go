package postgres

import (
	"context"

	"github.com/shopmesh/auth/internal/domain"
	"github.com/shopmesh/auth/internal/ports"
	"gorm.io/gorm"
)

type loginAttemptRepository struct {
	db *gorm.DB
}

func (r *loginAttemptRepository) Insert(ctx context.Context, params ports.LoginAttemptInsertParams) error {
	rec := loginAttemptModel{
		UserID:        params.UserID,
		Email:         params.Email,
		AttemptAt:     params.AttemptAt,
		IPAddress:     nullableString(params.IPAddress),
		UserAgent:     params.UserAgent,
		Status:        params.Status,
		FailureReason: params.FailureReason,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *loginAttemptRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.LoginAttempt, error) {
	var rows []loginAttemptModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("attempt_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make([]domain.LoginAttempt, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainLoginAttempt(row))
	}
	return result, nil
}
