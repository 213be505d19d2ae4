// Package observability builds the process-wide zap logger.
package observability
