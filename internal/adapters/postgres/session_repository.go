package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shopmesh/auth/internal/domain"
	"github.com/shopmesh/auth/internal/ports"
)

type sessionRepository struct {
	db *gorm.DB
}

func newSessionModel(params ports.SessionCreateParams) sessionModel {
	return sessionModel{
		UserID:     params.UserID,
		JTI:        params.JTI,
		RefreshJTI: params.RefreshJTI,
		UserAgent:  params.UserAgent,
		IPAddress:  nullableString(params.IPAddress),
		DeviceID:   nullableString(params.DeviceID),
		CreatedAt:  params.CreatedAt,
		ExpiresAt:  params.ExpiresAt,
		IsActive:   true,
	}
}

func (r *sessionRepository) Create(ctx context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	rec := newSessionModel(params)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return domain.Session{}, err
	}
	return toDomainSession(rec), nil
}

func (r *sessionRepository) CreateSuperseding(ctx context.Context, params ports.SessionCreateParams, reason string) (domain.Session, []domain.Session, error) {
	rec := newSessionModel(params)
	var stale []sessionModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the device's live sessions so a concurrent login on the
		// same device serializes behind this one.
		if err := tx.
			Where("user_id = ?", params.UserID).
			Where("device_id = ?", params.DeviceID).
			Where("is_active = TRUE").
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Find(&stale).Error; err != nil {
			return err
		}
		if len(stale) > 0 {
			ids := make([]uuid.UUID, 0, len(stale))
			for _, row := range stale {
				ids = append(ids, row.SessionID)
			}
			if err := tx.Model(&sessionModel{}).
				Where("session_id IN ?", ids).
				Updates(map[string]any{
					"is_active":      false,
					"revoked_at":     params.CreatedAt,
					"revoked_reason": reason,
				}).Error; err != nil {
				return err
			}
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return domain.Session{}, nil, err
	}

	superseded := make([]domain.Session, 0, len(stale))
	for _, row := range stale {
		revokedAt := params.CreatedAt
		row.IsActive = false
		row.RevokedAt = &revokedAt
		row.RevokedReason = &reason
		superseded = append(superseded, toDomainSession(row))
	}
	return toDomainSession(rec), superseded, nil
}

func (r *sessionRepository) GetByID(ctx context.Context, sessionID uuid.UUID) (domain.Session, error) {
	var rec sessionModel
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, err
	}
	return toDomainSession(rec), nil
}

func (r *sessionRepository) GetByJTI(ctx context.Context, jti uuid.UUID) (domain.Session, error) {
	var rec sessionModel
	err := r.db.WithContext(ctx).
		Where("jti = ? OR refresh_jti = ?", jti, jti).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, err
	}
	return toDomainSession(rec), nil
}

func (r *sessionRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Session, error) {
	var rows []sessionModel
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset)
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Session, 0, len(rows))
	for _, item := range rows {
		result = append(result, toDomainSession(item))
	}
	return result, nil
}

func (r *sessionRepository) ActiveByJTI(ctx context.Context, jti uuid.UUID, now time.Time) (bool, bool, error) {
	var rec sessionModel
	err := r.db.WithContext(ctx).
		Select("is_active", "expires_at").
		Where("jti = ? OR refresh_jti = ?", jti, jti).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, false, nil
		}
		return false, false, err
	}
	return rec.IsActive && rec.ExpiresAt.After(now), true, nil
}

// Revoke flips the session carrying jti to revoked. The conditional
// UPDATE takes the row lock and claims the transition in one statement,
// so of N concurrent revocations exactly one sees true.
func (r *sessionRepository) Revoke(ctx context.Context, jti uuid.UUID, reason string, revokedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("jti = ? OR refresh_jti = ?", jti, jti).
		Where("is_active = TRUE").
		Updates(map[string]any{
			"is_active":      false,
			"revoked_at":     revokedAt,
			"revoked_reason": reason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var exists int64
	if err := r.db.WithContext(ctx).Model(&sessionModel{}).
		Where("jti = ? OR refresh_jti = ?", jti, jti).
		Count(&exists).Error; err != nil {
		return false, err
	}
	if exists == 0 {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func (r *sessionRepository) RevokeByID(ctx context.Context, sessionID uuid.UUID, reason string, revokedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("session_id = ?", sessionID).
		Where("is_active = TRUE").
		Updates(map[string]any{
			"is_active":      false,
			"revoked_at":     revokedAt,
			"revoked_reason": reason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var exists int64
	if err := r.db.WithContext(ctx).Model(&sessionModel{}).
		Where("session_id = ?", sessionID).
		Count(&exists).Error; err != nil {
		return false, err
	}
	if exists == 0 {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func (r *sessionRepository) RevokeAllForUser(ctx context.Context, userID int64, exceptJTI *uuid.UUID, reason string, revokedAt time.Time) ([]domain.Session, error) {
	var rows []sessionModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.
			Where("user_id = ?", userID).
			Where("is_active = TRUE")
		if exceptJTI != nil {
			query = query.Where("jti <> ?", *exceptJTI)
		}
		if err := query.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.SessionID)
		}
		return tx.Model(&sessionModel{}).
			Where("session_id IN ?", ids).
			Updates(map[string]any{
				"is_active":      false,
				"revoked_at":     revokedAt,
				"revoked_reason": reason,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	revoked := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		at := revokedAt
		row.IsActive = false
		row.RevokedAt = &at
		row.RevokedReason = &reason
		revoked = append(revoked, toDomainSession(row))
	}
	return revoked, nil
}
