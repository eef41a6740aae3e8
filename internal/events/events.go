// Package events declares the payload types published on the eventbus
// during rule execution. Subscribers correlate events by the execution id
// carried in the context (see internal/execid).
package events

import "time"

// ExecStart is emitted when the orchestrator begins a rule execution.
type ExecStart struct {
	RuleID   string
	RuleName string
}

// ExecFinish is emitted when a rule execution completes.
type ExecFinish struct {
	RuleID    string
	RuleName  string
	Outcome   bool
	ErrorKind string // empty on success
	Duration  time.Duration
}

// ResolveStart is emitted when field resolution begins.
type ResolveStart struct {
	Fields []string
}

// ResolveFinish is emitted when field resolution completes.
type ResolveFinish struct {
	Resolved int
	Failed   int
	Duration time.Duration
}

// FetchStart is emitted before a data-service invocation (first attempt).
type FetchStart struct {
	Field       string
	Endpoint    string
	ServiceType string
}

// FetchFinish is emitted after a data-service invocation, successful or
// not, with the total attempts made.
type FetchFinish struct {
	Field       string
	Endpoint    string
	ServiceType string
	Status      int
	Attempts    int
	Err         error
	Duration    time.Duration
}

// CacheHit is emitted when a field value is served from the execution
// cache instead of a data service.
type CacheHit struct {
	Field string
}
