package postgres

import (
	"strings"

	"github.com/shopmesh/auth/internal/domain"
)

func toDomainUser(row userModel) domain.User {
	return domain.User{
		ID:           row.ID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		IsAdmin:      row.IsAdmin,
		IsSuperAdmin: row.IsSuperAdmin,
		IsActive:     row.IsActive,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		DeletedAt:    row.DeletedAt,
	}
}

func toDomainSession(row sessionModel) domain.Session {
	return domain.Session{
		ID:            row.SessionID,
		UserID:        row.UserID,
		JTI:           row.JTI,
		RefreshJTI:    row.RefreshJTI,
		UserAgent:     row.UserAgent,
		IPAddress:     stringValue(row.IPAddress),
		DeviceID:      stringValue(row.DeviceID),
		CreatedAt:     row.CreatedAt,
		ExpiresAt:     row.ExpiresAt,
		IsActive:      row.IsActive,
		RevokedAt:     row.RevokedAt,
		RevokedReason: stringValue(row.RevokedReason),
	}
}

func toDomainLoginAttempt(row loginAttemptModel) domain.LoginAttempt {
	return domain.LoginAttempt{
		ID:            row.ID,
		UserID:        row.UserID,
		Email:         row.Email,
		AttemptAt:     row.AttemptAt,
		IPAddress:     stringValue(row.IPAddress),
		UserAgent:     row.UserAgent,
		Status:        row.Status,
		FailureReason: row.FailureReason,
	}
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
