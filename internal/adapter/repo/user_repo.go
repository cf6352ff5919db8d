package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"genqueue/internal/domain"
	"genqueue/internal/infra"
	"genqueue/internal/sqlinline"
)

// UserRepositoryPG implements domain.UserRepository backed by PostgreSQL.
type UserRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(sql infra.SQLExecutor) *UserRepositoryPG {
	return &UserRepositoryPG{sql: sql}
}

// GetByID fetches a user by UUID.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if !isUUID(id) {
		return nil, domain.ErrNotFound
	}
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QSelectUserPlanByID, id))
}

// GetByEmail fetches a user by email, ignoring case.
func (r *UserRepositoryPG) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QSelectUserPlanByEmail, email))
}

// SetPlan assigns plan to the user and returns the updated row.
func (r *UserRepositoryPG) SetPlan(ctx context.Context, id string, plan domain.UserPlan) (*domain.User, error) {
	if !domain.ValidPlan(plan) {
		return nil, domain.InvalidInput("unsupported plan %q", plan)
	}
	if !isUUID(id) {
		return nil, domain.ErrNotFound
	}
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QUpdateUserPlan, id, string(plan)))
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u    domain.User
		plan string
	)
	if err := row.Scan(&u.ID, &u.Email, &plan); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	u.Plan = domain.UserPlan(plan)
	return &u, nil
}

var _ domain.UserRepository = (*UserRepositoryPG)(nil)
