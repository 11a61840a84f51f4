package library

import "fmt"

// Status is the processing state of a library file. Values match the
// coordinator's integer wire encoding.
type Status int

const (
	StatusDisabled         Status = -2
	StatusOutOfSchedule    Status = -1
	StatusUnprocessed      Status = 0
	StatusProcessed        Status = 1
	StatusProcessing       Status = 2
	StatusFlowNotFound     Status = 3
	StatusProcessingFailed Status = 4
	StatusDuplicate        Status = 5
	StatusMappingIssue     Status = 6
	StatusMissingLibrary   Status = 7
	StatusOnHold           Status = 8
)

var statusNames = map[Status]string{
	StatusDisabled:         "Disabled",
	StatusOutOfSchedule:    "OutOfSchedule",
	StatusUnprocessed:      "Unprocessed",
	StatusProcessed:        "Processed",
	StatusProcessing:       "Processing",
	StatusFlowNotFound:     "FlowNotFound",
	StatusProcessingFailed: "ProcessingFailed",
	StatusDuplicate:        "Duplicate",
	StatusMappingIssue:     "MappingIssue",
	StatusMissingLibrary:   "MissingLibrary",
	StatusOnHold:           "OnHold",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Terminal reports whether the engine is done with a file in this status.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusProcessingFailed
}

// ParseStatus converts a status name back to its value.
func ParseStatus(name string) (Status, bool) {
	for status, n := range statusNames {
		if n == name {
			return status, true
		}
	}
	return 0, false
}
