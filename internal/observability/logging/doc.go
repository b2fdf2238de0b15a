// Package logging provides structured logging helpers on top of log/slog.
//
// Loggers travel through context.Context. A batch run stores its run id in the
// context and every task derives its logger from it:
//
//	ctx = logging.ContextWithRunID(ctx, runID)
//	logger := logging.WithRunID(ctx, logging.FromContext(ctx))
//	logger.Info("batch started", slog.String("job", "github-stats"))
//
// SanitizeError must be applied to any error text that leaves the process,
// such as error records and diagnostic columns written to the store.
package logging
