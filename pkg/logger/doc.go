// Package logger builds *slog.Logger instances with functional options and a
// handler decorator that copies request-scoped values from context.Context
// into every record.
//
//	log := logger.New(
//		logger.WithEnvironment("production", "shopseo"),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "subscription finalized", logger.Shop(shop), logger.Plan("pro"))
//
// Attribute helpers in attr.go keep key names consistent across packages.
package logger
