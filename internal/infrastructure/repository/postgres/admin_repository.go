package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

// AdminRepository stores the allow-list, chat restrictions and the
// managed-search switch.
type AdminRepository struct {
	db *sql.DB
}

func NewAdminRepository(db *sql.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) ListAllowedURLs(ctx context.Context) ([]domain.AllowedURL, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, url, description, created_at
FROM allowed_urls
ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("list allowed urls: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AllowedURL, 0)
	for rows.Next() {
		var item domain.AllowedURL
		if err := rows.Scan(&item.ID, &item.URL, &item.Description, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan allowed url: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allowed urls: %w", err)
	}
	return out, nil
}

func (r *AdminRepository) CreateAllowedURL(ctx context.Context, item *domain.AllowedURL) error {
	row := r.db.QueryRowContext(ctx, `
INSERT INTO allowed_urls (url, description, created_at)
VALUES ($1, $2, $3)
RETURNING id, created_at
`, item.URL, item.Description, time.Now().UTC())
	if err := row.Scan(&item.ID, &item.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrAlreadyExists, "create allowed url", fmt.Errorf("url %q already exists", item.URL))
		}
		return fmt.Errorf("insert allowed url: %w", err)
	}
	return nil
}

func (r *AdminRepository) DeleteAllowedURL(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM allowed_urls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete allowed url: %w", err)
	}
	return requireAffected(result, domain.ErrRecordNotFound, "delete allowed url", id)
}

func (r *AdminRepository) ListRestrictions(ctx context.Context) ([]domain.ChatRestriction, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, restriction_text, created_at
FROM chat_restrictions
ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("list chat restrictions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChatRestriction, 0)
	for rows.Next() {
		var item domain.ChatRestriction
		if err := rows.Scan(&item.ID, &item.RestrictionText, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat restriction: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat restrictions: %w", err)
	}
	return out, nil
}

func (r *AdminRepository) CreateRestriction(ctx context.Context, item *domain.ChatRestriction) error {
	row := r.db.QueryRowContext(ctx, `
INSERT INTO chat_restrictions (restriction_text, created_at)
VALUES ($1, $2)
RETURNING id, created_at
`, item.RestrictionText, time.Now().UTC())
	if err := row.Scan(&item.ID, &item.CreatedAt); err != nil {
		return fmt.Errorf("insert chat restriction: %w", err)
	}
	return nil
}

func (r *AdminRepository) DeleteRestriction(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM chat_restrictions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete chat restriction: %w", err)
	}
	return requireAffected(result, domain.ErrRecordNotFound, "delete chat restriction", id)
}

// GetManagedSearchToggle reads the single switch row; a missing row means
// enabled.
func (r *AdminRepository) GetManagedSearchToggle(ctx context.Context) (domain.ManagedSearchToggle, error) {
	var toggle domain.ManagedSearchToggle
	err := r.db.QueryRowContext(ctx, `SELECT is_enabled, updated_at FROM tavily_toggle WHERE id = 1`).
		Scan(&toggle.Enabled, &toggle.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ManagedSearchToggle{Enabled: true}, nil
	}
	if err != nil {
		return domain.ManagedSearchToggle{}, fmt.Errorf("get managed search toggle: %w", err)
	}
	return toggle, nil
}

func (r *AdminRepository) SetManagedSearchToggle(ctx context.Context, enabled bool) (domain.ManagedSearchToggle, error) {
	var toggle domain.ManagedSearchToggle
	err := r.db.QueryRowContext(ctx, `
INSERT INTO tavily_toggle (id, is_enabled, updated_at)
VALUES (1, $1, $2)
ON CONFLICT (id) DO UPDATE SET is_enabled = EXCLUDED.is_enabled, updated_at = EXCLUDED.updated_at
RETURNING is_enabled, updated_at
`, enabled, time.Now().UTC()).Scan(&toggle.Enabled, &toggle.UpdatedAt)
	if err != nil {
		return domain.ManagedSearchToggle{}, fmt.Errorf("set managed search toggle: %w", err)
	}
	return toggle, nil
}

var (
	_ ports.AllowListRepository   = (*AdminRepository)(nil)
	_ ports.RestrictionRepository = (*AdminRepository)(nil)
	_ ports.ToggleRepository      = (*AdminRepository)(nil)
)
