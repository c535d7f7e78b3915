package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/iotd-api/internal/models"
)

func TestAuditRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), "u1", models.AuditActionPromote, models.AuditResourcePromotion, "p1", sqlmock.AnyArg(), []byte(`{"image_id":"img-1"}`), "10.0.0.1", "cli", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.AuditLog{
		UserID:     strPtr("u1"),
		Action:     models.AuditActionPromote,
		Resource:   models.AuditResourcePromotion,
		ResourceID: strPtr("p1"),
		NewValues:  []byte(`{"image_id":"img-1"}`),
		IPAddress:  "10.0.0.1",
		UserAgent:  "cli",
	}
	require.NoError(t, repo.CreateAuditLog(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
