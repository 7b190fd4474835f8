package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Handle returns the transaction when one is attached, otherwise fallback,
// bound to the context.
func (c Context) Handle(fallback *gorm.DB) *gorm.DB {
	tx := c.Tx
	if tx == nil {
		tx = fallback
	}
	if c.Ctx != nil {
		return tx.WithContext(c.Ctx)
	}
	return tx
}
