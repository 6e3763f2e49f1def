package calendar

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/calbuddy/internal/models"
	"gopkg.in/yaml.v3"
)

// JobList is a job list file, used in place of a calendar pass:
//
//	jobs:
//	  - id: "1234-5678-9012"
//	    display_name: "Jane Doe"
//	    time_slot: "8:00"
type JobList struct {
	Jobs []models.JobMetadata `yaml:"jobs"`
}

// LoadJobList reads a YAML job list. A bare sequence of jobs is accepted too.
func LoadJobList(path string) ([]models.JobMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job list %s: %w", path, err)
	}
	return ParseJobList(data)
}

// ParseJobList decodes a job list and checks every entry has an id. Entries
// are returned in file order.
func ParseJobList(data []byte) ([]models.JobMetadata, error) {
	var jobs []models.JobMetadata

	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("-")) {
		if err := yaml.Unmarshal(data, &jobs); err != nil {
			return nil, fmt.Errorf("failed to parse job list: %w", err)
		}
	} else {
		var list JobList
		if err := yaml.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("failed to parse job list: %w", err)
		}
		jobs = list.Jobs
	}

	seen := make(map[string]bool, len(jobs))
	for i := range jobs {
		jobs[i].ID = strings.TrimSpace(jobs[i].ID)
		if jobs[i].ID == "" {
			return nil, fmt.Errorf("job list entry %d has no id", i+1)
		}
		key := jobs[i].ID + "|" + jobs[i].TimeSlot
		if seen[key] {
			return nil, fmt.Errorf("job list entry %d duplicates %s at %q", i+1, jobs[i].ID, jobs[i].TimeSlot)
		}
		seen[key] = true
	}

	return jobs, nil
}
