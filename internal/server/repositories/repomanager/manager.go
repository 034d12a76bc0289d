package repomanager

import (
	"context"
	"database/sql"

	"github.com/prashikshan/portal-auth/internal/dbx"
	"github.com/prashikshan/portal-auth/internal/server/repositories/refreshtokens"
	"github.com/prashikshan/portal-auth/internal/server/repositories/users"
)

// RepositoryManager hands out repositories bound to either the pool or a
// transaction, so several writes can share one dbx.WithTx call.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
