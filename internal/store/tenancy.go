package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"contextcache/internal/types"
)

// =============================================================================
// ORGANIZATIONS AND USERS
// =============================================================================

// CreateOrganization inserts a tenant.
func (s *Store) CreateOrganization(ctx context.Context, name string) (*types.Organization, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO organizations (name, created_at) VALUES (?, ?)`, name, now)
	if err != nil {
		return nil, unavailable("create_organization", err)
	}
	id, _ := res.LastInsertId()
	return &types.Organization{ID: id, Name: name, CreatedAt: now}, nil
}

// CreateUser inserts a user within an org and a matching membership row.
func (s *Store) CreateUser(ctx context.Context, orgID int64, email, apiKey string, unlimited bool) (*types.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("create_user", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (org_id, email, api_key, unlimited, created_at) VALUES (?, ?, ?, ?, ?)`,
		orgID, email, apiKey, unlimited, now)
	if err != nil {
		return nil, unavailable("create_user", err)
	}
	id, _ := res.LastInsertId()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memberships (user_id, org_id, role) VALUES (?, ?, 'member')`, id, orgID); err != nil {
		return nil, unavailable("create_user", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("create_user", err)
	}

	return &types.User{ID: id, OrgID: orgID, Email: email, APIKey: apiKey, Unlimited: unlimited, CreatedAt: now}, nil
}

// GetUserByAPIKey resolves an API key to its user. Unknown keys return an
// AuthError rather than NotFound so the HTTP layer maps to 401.
func (s *Store) GetUserByAPIKey(ctx context.Context, apiKey string) (*types.User, error) {
	var u types.User
	var unlimited int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, email, api_key, unlimited, created_at
		FROM users WHERE api_key = ?`, apiKey).
		Scan(&u.ID, &u.OrgID, &u.Email, &u.APIKey, &unlimited, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.AuthError{Reason: "unknown API key"}
	}
	if err != nil {
		return nil, unavailable("get_user_by_api_key", err)
	}
	u.Unlimited = unlimited != 0
	return &u, nil
}

// GetUser fetches a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*types.User, error) {
	var u types.User
	var unlimited int
	var apiKey sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, email, api_key, unlimited, created_at
		FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.OrgID, &u.Email, &apiKey, &unlimited, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.NotFoundError{Entity: "user", ID: id}
	}
	if err != nil {
		return nil, unavailable("get_user", err)
	}
	u.APIKey = apiKey.String
	u.Unlimited = unlimited != 0
	return &u, nil
}

// =============================================================================
// PROJECTS
// =============================================================================

// CreateProject inserts a project and bumps the creator's daily counter in
// the same transaction.
func (s *Store) CreateProject(ctx context.Context, orgID, createdByUserID int64, name string) (*types.Project, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("create_project", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO projects (org_id, name, created_by_user_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		orgID, name, createdByUserID, now, now)
	if err != nil {
		return nil, unavailable("create_project", err)
	}
	id, _ := res.LastInsertId()

	if createdByUserID != 0 {
		if err := incrementUsageTx(ctx, tx, createdByUserID, types.UsageProjectsCreated, now); err != nil {
			return nil, unavailable("create_project", err)
		}
	}
	if err := insertAuditTx(ctx, tx, createdByUserID, "project.create", "project", id, name); err != nil {
		return nil, unavailable("create_project", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("create_project", err)
	}

	return &types.Project{ID: id, OrgID: orgID, Name: name, CreatedByUserID: createdByUserID, CreatedAt: now, UpdatedAt: now}, nil
}

// GetProject fetches a project by ID.
func (s *Store) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	var p types.Project
	var createdBy sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, created_by_user_id, created_at, updated_at
		FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.OrgID, &p.Name, &createdBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.NotFoundError{Entity: "project", ID: id}
	}
	if err != nil {
		return nil, unavailable("get_project", err)
	}
	p.CreatedByUserID = createdBy.Int64
	return &p, nil
}

// ListProjects returns an org's projects, newest first.
func (s *Store) ListProjects(ctx context.Context, orgID int64) ([]types.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, name, created_by_user_id, created_at, updated_at
		FROM projects WHERE org_id = ? ORDER BY created_at DESC, id DESC`, orgID)
	if err != nil {
		return nil, unavailable("list_projects", err)
	}
	defer rows.Close()

	var out []types.Project
	for rows.Next() {
		var p types.Project
		var createdBy sql.NullInt64
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &createdBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, unavailable("list_projects", err)
		}
		p.CreatedByUserID = createdBy.Int64
		out = append(out, p)
	}
	return out, rows.Err()
}
