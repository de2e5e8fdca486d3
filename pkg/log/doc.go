/*
Package log provides structured logging for crmcore using zerolog.

The package wraps a single global zerolog.Logger. Callers initialize it once
with Init and derive child loggers for their component:

	log.Init(log.Config{Level: log.DebugLevel})
	logger := log.WithComponent("reconciler")
	logger.Info().Str("node", "node1").Msg("Node is online")

The reconciler logs replay details at trace level, node state summaries at
info, configuration and data-integrity problems at warn and error. Console
output is the default; JSONOutput switches to one JSON object per line.

A zero Logger discards everything, so packages that log can be used in tests
without calling Init.
*/
package log
