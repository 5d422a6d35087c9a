package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/lending-engine/internal/domain"
)

const kycStatusApproved = "Approved"

type auditRepository struct {
	db sqlx.ExtContext
}

func NewAuditRepository(db sqlx.ExtContext) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Record(ctx context.Context, entry domain.AuditEntry) error {
	query := `
		INSERT INTO audit_logs (id, user_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query, entry.ID, entry.UserID, entry.Action, entry.Details, entry.CreatedAt)
	return err
}

type kycRepository struct {
	db sqlx.ExtContext
}

func NewKYCRepository(db sqlx.ExtContext) KYCRepository {
	return &kycRepository{db: db}
}

// HasApprovedKYC looks only at the most recently reviewed document.
func (r *kycRepository) HasApprovedKYC(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := `
		SELECT status
		FROM kyc_documents
		WHERE user_id = $1 AND reviewed_at IS NOT NULL
		ORDER BY reviewed_at DESC
		LIMIT 1
	`

	var status string
	err := sqlx.GetContext(ctx, r.db, &status, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status == kycStatusApproved, nil
}
