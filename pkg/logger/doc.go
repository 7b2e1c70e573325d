// Package logger builds *slog.Logger instances for the coachgate service.
//
// New applies functional options (format, level, output, static attributes,
// context extractors) and wraps the resulting handler with LogHandlerDecorator,
// which pulls request-scoped values such as the request ID out of the context
// on every log call.
//
// Attribute helpers (UserID, TransactionID, Resource, Error, ...) keep key
// names consistent across packages:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "coachgate"),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "entitlement updated",
//		logger.UserID(userID),
//		logger.TransactionID(originalTxID),
//	)
package logger
