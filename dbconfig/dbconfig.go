// Package dbconfig holds the engine's enumerated configuration knobs
// (spec.md §6). Plain struct with functional options: no repo in the
// retrieved pack binds a config struct this small to a config-file
// library, so this stays standard-library (see DESIGN.md).
package dbconfig

import "time"

// IsolationLevel is the per-transaction isolation level spec.md §3/§4.5
// enforces 2PL rules against.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "read-uncommitted"
	case ReadCommitted:
		return "read-committed"
	case RepeatableRead:
		return "repeatable-read"
	default:
		return "unknown"
	}
}

// Config is the full set of knobs spec.md §6 enumerates.
type Config struct {
	PoolSize                  int
	ReplacerK                 int
	PageSize                  int
	LeafMaxSize               int
	InternalMaxSize           int
	DeadlockDetectionInterval time.Duration
	IsolationLevel            IsolationLevel
}

// DefaultConfig matches the sizes spec.md's worked examples use (4 KiB
// pages, leaf/internal max 4 in the split-and-promote scenario) scaled up
// to a size a real buffer pool would run with; tests override via Option.
func DefaultConfig() Config {
	return Config{
		PoolSize:                  64,
		ReplacerK:                 2,
		PageSize:                  4096,
		LeafMaxSize:               128,
		InternalMaxSize:           128,
		DeadlockDetectionInterval: 50 * time.Millisecond,
		IsolationLevel:            RepeatableRead,
	}
}

// Option mutates a Config in place; New applies them over DefaultConfig.
type Option func(*Config)

func WithPoolSize(n int) Option              { return func(c *Config) { c.PoolSize = n } }
func WithReplacerK(k int) Option             { return func(c *Config) { c.ReplacerK = k } }
func WithPageSize(n int) Option              { return func(c *Config) { c.PageSize = n } }
func WithLeafMaxSize(n int) Option           { return func(c *Config) { c.LeafMaxSize = n } }
func WithInternalMaxSize(n int) Option       { return func(c *Config) { c.InternalMaxSize = n } }
func WithDeadlockDetectionInterval(d time.Duration) Option {
	return func(c *Config) { c.DeadlockDetectionInterval = d }
}
func WithIsolationLevel(l IsolationLevel) Option { return func(c *Config) { c.IsolationLevel = l } }

func New(opts ...Option) Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
