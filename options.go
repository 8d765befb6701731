package mysequel

import (
	"time"

	"dario.cat/mergo"
)

// DefaultPingQuery is the probe issued against idle connections.
const DefaultPingQuery = "SELECT 1+1 as two;"

// Row is a single result row keyed by column name.
type Row = map[string]any

// Rows is an ordered result set.
type Rows []Row

// Statement is a SQL statement with an optional parameter set.
// Values is nil, a positional []any, or a named set (map[string]any or a
// struct with `db` tags).
type Statement struct {
	SQL    string
	Values any
}

// PingOptions configures health sweeps.
type PingOptions struct {
	// Frequency between scheduled sweeps. Zero disables scheduling; sweeps
	// then only run when Handle.Sweep is called.
	Frequency      time.Duration
	Query          string
	ExpectedResult Rows
}

// Options is the resolved configuration of a Handle. It is forwarded
// verbatim to the underlying pool, which may interpret fields the Handle
// itself does not (Prepared, NamedPlaceholders, TransactionAutoRollback,
// Retry, RetryCount, TidyStacks).
type Options struct {
	Prepared                bool
	NamedPlaceholders       bool
	TransactionAutoRollback bool
	Retry                   bool
	RetryCount              int
	TidyStacks              bool
	// ConnectionBootstrap runs on every acquired connection before the
	// caller's query. Nil means no bootstrap.
	ConnectionBootstrap []Statement
	// Ping is nil when health sweeps are disabled.
	Ping *PingOptions
}

// Overrides is user-supplied configuration. Nil fields keep the default.
type Overrides struct {
	Prepared                *bool
	NamedPlaceholders       *bool
	TransactionAutoRollback *bool
	Retry                   *bool
	RetryCount              *int
	TidyStacks              *bool
	ConnectionBootstrap     []Statement
	Ping                    *PingOverrides
}

// PingOverrides is the user-supplied ping configuration. A nil Frequency,
// an empty Query and a nil ExpectedResult keep the ping defaults; a non-nil
// empty ExpectedResult expects zero rows. Disabled turns sweeps off
// regardless of defaults.
type PingOverrides struct {
	Disabled       bool
	Frequency      *time.Duration
	Query          string
	ExpectedResult Rows
}

// DefaultOptions returns a fresh copy of the default options.
func DefaultOptions() Options {
	return Options{
		Prepared:                true,
		NamedPlaceholders:       true,
		TransactionAutoRollback: true,
		Retry:                   true,
		RetryCount:              2,
		TidyStacks:              true,
	}
}

// DefaultPingOptions returns a fresh copy of the default ping options.
func DefaultPingOptions() PingOptions {
	return PingOptions{
		Query:          DefaultPingQuery,
		ExpectedResult: Rows{{"two": 2}},
	}
}

// Bool returns a pointer to v, for use in Overrides.
func Bool(v bool) *bool { return &v }

// Int returns a pointer to v, for use in Overrides.
func Int(v int) *int { return &v }

// Duration returns a pointer to d, for use in PingOverrides.
func Duration(d time.Duration) *time.Duration { return &d }

// Resolve merges o over defaults field by field and returns a new Options.
// Neither input is modified and the result shares no slices with them.
func Resolve(defaults Options, o Overrides) Options {
	out := defaults
	if o.Prepared != nil {
		out.Prepared = *o.Prepared
	}
	if o.NamedPlaceholders != nil {
		out.NamedPlaceholders = *o.NamedPlaceholders
	}
	if o.TransactionAutoRollback != nil {
		out.TransactionAutoRollback = *o.TransactionAutoRollback
	}
	if o.Retry != nil {
		out.Retry = *o.Retry
	}
	if o.RetryCount != nil {
		out.RetryCount = *o.RetryCount
	}
	if o.TidyStacks != nil {
		out.TidyStacks = *o.TidyStacks
	}
	if o.ConnectionBootstrap != nil {
		out.ConnectionBootstrap = o.ConnectionBootstrap
	}
	out.ConnectionBootstrap = cloneStatements(out.ConnectionBootstrap)
	out.Ping = resolvePing(defaults.Ping, o.Ping)
	return out
}

func resolvePing(def *PingOptions, o *PingOverrides) *PingOptions {
	if o == nil {
		if def == nil {
			return nil
		}
		p := clonePing(*def)
		return &p
	}
	if o.Disabled {
		return nil
	}
	base := DefaultPingOptions()
	if def != nil {
		base = clonePing(*def)
	}
	// mergo only covers fields whose zero value means "not supplied".
	// both sides share a type, so Merge cannot fail
	_ = mergo.Merge(&base, PingOptions{Query: o.Query}, mergo.WithOverride)
	if o.Frequency != nil {
		base.Frequency = *o.Frequency
	}
	if o.ExpectedResult != nil {
		base.ExpectedResult = o.ExpectedResult
	}
	base.ExpectedResult = cloneRows(base.ExpectedResult)
	return &base
}

func clonePing(p PingOptions) PingOptions {
	p.ExpectedResult = cloneRows(p.ExpectedResult)
	return p
}

func cloneRows(rs Rows) Rows {
	if rs == nil {
		return nil
	}
	out := make(Rows, len(rs))
	for i, r := range rs {
		cp := make(Row, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

func cloneStatements(st []Statement) []Statement {
	if st == nil {
		return nil
	}
	return append([]Statement(nil), st...)
}
