package models

// MovedJob pairs the old and new entry for a job whose time slot changed
type MovedJob struct {
	Old JobResult `json:"old"`
	New JobResult `json:"new"`
}

// DiffRecord is the reconciliation between two runs
type DiffRecord struct {
	Added   []JobResult `json:"added"`
	Removed []JobResult `json:"removed"`
	Moved   []MovedJob  `json:"moved"`
}

// Empty reports whether the two runs were identical
func (d DiffRecord) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Moved) == 0
}
