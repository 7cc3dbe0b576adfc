// Package appcore provides core application interfaces and shared utilities.
// Interfaces are declared here, on the consumer side of the application
// layer, following the usual Go convention; infrastructure packages provide
// the implementations.
package appcore

import "context"

// Command is the marker interface for state-changing requests.
type Command interface {
	// CommandName returns the routing name of the command.
	CommandName() string
}

// Query is the marker interface for read requests. Queries never mutate.
type Query interface {
	QueryName() string
}

// AggregateCommand is implemented by commands that target an existing
// aggregate. Creation commands do not implement it; the dispatcher
// generates a fresh id for them.
type AggregateCommand interface {
	Command

	// TargetID returns the id of the aggregate the command addresses.
	TargetID() string
}

// VersionedCommand is implemented by commands that carry the caller's
// expected aggregate version for optimistic concurrency control.
type VersionedCommand interface {
	Command

	// ExpectedVersion returns the version the caller last observed.
	ExpectedVersion() int
}

// UseCase is the base interface for all use cases.
type UseCase[TCommand any, TResult any] interface {
	// Execute runs the use case with the given command.
	Execute(ctx context.Context, cmd TCommand) (TResult, error)
}

// Validator validates commands before execution.
type Validator[T any] interface {
	Validate(cmd T) error
}
