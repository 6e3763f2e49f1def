package models

// WorkOrderRow is one row of a customer's work-order listing
type WorkOrderRow struct {
	Number int
	Type   string
	Status string
	URL    string
}

// LookupKind tags the outcome of a work-order search
type LookupKind int

const (
	LookupAbsent LookupKind = iota
	LookupInactiveOnly
	LookupFound
)

func (k LookupKind) String() string {
	switch k {
	case LookupFound:
		return "found"
	case LookupInactiveOnly:
		return "inactive_only"
	default:
		return "absent"
	}
}

// WorkOrderLookup is the result of locating the active work order.
// URL and Number are only set when Kind is LookupFound.
type WorkOrderLookup struct {
	Kind   LookupKind
	URL    string
	Number int
}

// Found reports whether an active work order was located
func (l WorkOrderLookup) Found() bool {
	return l.Kind == LookupFound
}
