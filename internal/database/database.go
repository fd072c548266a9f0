// Package database wraps the project's relational store: plain-SQL dump and
// replay through the PostgreSQL client tools, and direct access to the
// authentication user table.
package database

import "errors"

var (
	ErrTimeout      = errors.New("operation timed out")
	ErrDumpFailed   = errors.New("dump failed")
	ErrReplayFailed = errors.New("replay failed")
)
