package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Store reads the audit trail back out. Write access goes through
// Recorder; nothing ever updates or deletes an entry.
type Store struct {
	db *sql.DB
}

// NewStore creates a read-side store over the audit_logs table.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListFilter narrows an audit listing. Zero values mean "no filter".
type ListFilter struct {
	Action       Action
	ResourceType ResourceType
	UserID       *uuid.UUID
	Limit        int
	Offset       int
}

const defaultPageSize = 50
const maxPageSize = 500

// ListForOrganization returns an organization's audit entries newest
// first, with actor emails joined in. Callers are responsible for
// checking that the requester may see the organization's trail.
func (s *Store) ListForOrganization(ctx context.Context, orgID uuid.UUID, filter ListFilter) (*Page, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	where := "a.organization_id = $1"
	args := []interface{}{orgID}
	if filter.Action != "" {
		args = append(args, filter.Action)
		where += fmt.Sprintf(" AND a.action = $%d", len(args))
	}
	if filter.ResourceType != "" {
		args = append(args, filter.ResourceType)
		where += fmt.Sprintf(" AND a.resource_type = $%d", len(args))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		where += fmt.Sprintf(" AND a.user_id = $%d", len(args))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_logs a WHERE " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count audit logs: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT a.id, a.organization_id, a.user_id, a.action, a.resource_type, a.resource_id,
		       a.details, a.ip_address, a.user_agent, a.created_at, u.email
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.user_id
		WHERE %s
		ORDER BY a.created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	page := &Page{Total: total, Page: offset/limit + 1, PageSize: limit}
	for rows.Next() {
		e := &Entry{}
		var detailsJSON []byte
		var resourceType, ip, userAgent, email sql.NullString
		if err := rows.Scan(
			&e.ID, &e.OrganizationID, &e.UserID, &e.Action, &resourceType, &e.ResourceID,
			&detailsJSON, &ip, &userAgent, &e.CreatedAt, &email,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		e.ResourceType = ResourceType(resourceType.String)
		e.IPAddress = ip.String
		e.UserAgent = userAgent.String
		e.UserEmail = email.String
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
			}
		}
		page.Entries = append(page.Entries, e)
	}
	return page, rows.Err()
}
