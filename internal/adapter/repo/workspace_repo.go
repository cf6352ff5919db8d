package repo

import (
	"context"

	"github.com/google/uuid"

	"genqueue/internal/domain"
	"genqueue/internal/infra"
	"genqueue/internal/sqlinline"
)

// WorkspaceRepositoryPG resolves workspace membership from PostgreSQL.
type WorkspaceRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewWorkspaceRepository(sql infra.SQLExecutor) *WorkspaceRepositoryPG {
	return &WorkspaceRepositoryPG{sql: sql}
}

func (r *WorkspaceRepositoryPG) DefaultWorkspace(ctx context.Context, userID string) (string, error) {
	if !isUUID(userID) {
		return "", domain.ErrNotFound
	}
	var id string
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectDefaultWorkspace, userID).Scan(&id); err != nil {
		if infra.IsNoRows(err) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return id, nil
}

func (r *WorkspaceRepositoryPG) IsMember(ctx context.Context, userID, workspaceID string) (bool, error) {
	if !isUUID(userID) || !isUUID(workspaceID) {
		return false, nil
	}
	var ok bool
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectWorkspaceMembership, userID, workspaceID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

var _ domain.WorkspaceRepository = (*WorkspaceRepositoryPG)(nil)

// isUUID reports whether id is in the canonical form the uuid columns
// accept. Ids that fail it cannot match a row, so they are answered without
// a round trip instead of surfacing a cast error.
func isUUID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
