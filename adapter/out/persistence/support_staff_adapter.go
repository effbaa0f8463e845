package persistence

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// StaffAdapter implements out.StaffRepository on PostgreSQL.
type StaffAdapter struct {
	db *sqlx.DB
}

// NewStaffAdapter creates a new StaffAdapter.
func NewStaffAdapter(db *sqlx.DB) *StaffAdapter {
	return &StaffAdapter{db: db}
}

// ListActiveEmails returns the email addresses of staff who receive
// escalation notifications.
func (a *StaffAdapter) ListActiveEmails(ctx context.Context) ([]string, error) {
	var emails []string
	query := `SELECT email FROM staff WHERE is_active = TRUE AND notify_on_escalation = TRUE ORDER BY email`

	if err := a.db.SelectContext(ctx, &emails, query); err != nil {
		return nil, wrapError("staff", "list active staff", err)
	}

	return emails, nil
}
