package errors

import "errors"

var (
	ErrIndex          = errors.New("index error")
	ErrKey            = errors.New("key error")
	ErrType           = errors.New("type error")
	ErrNotImplemented = errors.New("not implemented")

	// ErrContractViolation is returned when a structural invariant between the
	// planner and the executor does not hold, for example a child plan being
	// registered twice or a selected partition index that has no descriptor
	// entry.
	ErrContractViolation = errors.New("registry contract violation")

	// ErrPredicateEvaluation is returned when a pruning predicate has a shape
	// the range engine cannot interpret under the current bindings.
	ErrPredicateEvaluation = errors.New("predicate evaluation failed")

	// ErrSubstateConstruction wraps failures raised while initializing a
	// child plan of a partitioned scan.
	ErrSubstateConstruction = errors.New("substate construction failed")
)
