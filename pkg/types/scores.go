package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Scores represents a per-dimension score map persisted as JSONB.
type Scores map[string]int

// Value marshals the map into JSON for Postgres.
func (s Scores) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	buf, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Scan decodes JSONB into the map.
func (s *Scores) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	var raw []byte
	switch src := value.(type) {
	case string:
		raw = []byte(src)
	case []byte:
		raw = src
	default:
		return fmt.Errorf("scores: unsupported scan type %T", value)
	}

	result := make(Scores)
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	*s = result
	return nil
}
