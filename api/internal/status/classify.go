// Package status classifies annotation records for the batch status endpoint.
package status

import (
	"bytes"
	"encoding/json"
)

type Status string

const (
	None      Status = "none"      // no record file
	Empty     Status = "empty"     // record exists but holds nothing usable
	Annotated Status = "annotated" // record is a non-empty list
)

// ReadResult is the outcome of reading one record file.
type ReadResult struct {
	Exists bool
	Data   []byte
	Err    error // read error on an existing file
}

// Classify never fails: unreadable, blank or malformed records are Empty.
func Classify(r ReadResult) Status {
	if !r.Exists {
		return None
	}
	if r.Err != nil {
		return Empty
	}
	data := bytes.TrimSpace(r.Data)
	if len(data) == 0 {
		return Empty
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return Empty
	}
	if len(items) == 0 {
		return Empty
	}
	return Annotated
}
