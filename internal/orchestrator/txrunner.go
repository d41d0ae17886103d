package orchestrator

import (
	"context"

	"gorm.io/gorm"

	"github.com/voxpipe/voxpipe/internal/platform/dbctx"
)

// TxRunner runs fn inside one committed unit of work, matching spec.md
// §4.4 step 3: "delete any pre-existing child for this file, then insert
// the new child, in one commit." Isolated behind an interface (rather than
// threading *gorm.DB through the Orchestrator directly) so stage-machine
// tests can run against in-memory fakes with no real database.
type TxRunner interface {
	Transaction(ctx context.Context, fn func(dbctx.Context) error) error
}

// GormTxRunner is the real binding, used in production wiring.
type GormTxRunner struct {
	DB *gorm.DB
}

func (r *GormTxRunner) Transaction(ctx context.Context, fn func(dbctx.Context) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}
