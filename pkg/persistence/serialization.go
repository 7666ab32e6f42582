package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalTreeSession serializes a TreeSession to JSON bytes.
func MarshalTreeSession(ts *TreeSession) ([]byte, error) {
	if ts == nil {
		return nil, fmt.Errorf("cannot marshal nil TreeSession")
	}

	data, err := json.Marshal(ts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TreeSession to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalTreeSession deserializes a TreeSession from JSON bytes.
func UnmarshalTreeSession(data []byte) (*TreeSession, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var ts TreeSession
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to TreeSession: %w", err)
	}

	if ts.ID == "" {
		return nil, fmt.Errorf("TreeSession is missing an id")
	}

	return &ts, nil
}
