// Package logging provides structured logging for retrievald built on Zap.
//
// All components log through *Logger, a thin wrapper over zap.Logger whose
// level methods take a context.Context first so trace correlation and
// request-scoped identifiers (tenant, dataset, request id) are attached to
// every entry automatically.
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig())
//	if err != nil { ... }
//	defer logger.Sync()
//
//	ctx = logging.WithTenantID(ctx, account.TenantID)
//	logger.Info(ctx, "retrieval completed", zap.Int("hits", len(records)))
package logging
