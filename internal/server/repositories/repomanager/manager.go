package repomanager

import (
	"context"
	"database/sql"

	"github.com/zelebiz/zelebiz/internal/dbx"
	"github.com/zelebiz/zelebiz/internal/server/repositories/entities"
	"github.com/zelebiz/zelebiz/internal/server/repositories/mutations"
	"github.com/zelebiz/zelebiz/internal/server/repositories/refreshtokens"
	"github.com/zelebiz/zelebiz/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can use
// the same constructors inside and outside dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Entities(db dbx.DBTX) entities.Repository
	Mutations(db dbx.DBTX) mutations.Repository
}
