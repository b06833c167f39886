package reliability

// Priority orders pending outbound frames within one Flush: lower values
// drain first (spec.md §4.4.3 step 4).
type Priority int

const (
	PriorityImmediate Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)
