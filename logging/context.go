package logging

import (
	"log/slog"
)

// WithTableSpace tags every record with the table space, the unit of WAL and recovery.
//
//	log := logging.WithTableSpace("default")
//	log.Info("recovery finished", "lsn", lsn)
func WithTableSpace(tableSpace string) *slog.Logger {
	return GetLogger().With("tablespace", tableSpace)
}

func WithTable(tableSpace, table string) *slog.Logger {
	return GetLogger().With("tablespace", tableSpace, "table", table)
}

// WithComponent creates a logger with component/subsystem context
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

func WithConnection(connectionID string) *slog.Logger {
	return GetLogger().With("connection", connectionID)
}

// WithError creates a logger with error context
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}
