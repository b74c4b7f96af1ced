package physical

// Visitor defines the interface for objects that can visit each type of
// physical plan node. It implements the Visitor pattern, providing
// type-specific visit methods for each concrete node type in the physical
// plan.
type Visitor interface {
	VisitScan(*Scan) error
	VisitPartitionScan(*PartitionScan) error
	VisitAppend(*Append) error
	VisitPickyAppend(*PickyAppend) error
	VisitNestedLoopJoin(*NestedLoopJoin) error
	VisitFilter(*Filter) error
	VisitLimit(*Limit) error
}
