package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// VolumeTier is one row of a tiered price schedule. MaxQty nil means the tier
// is unbounded above.
type VolumeTier struct {
	MinQty    int     `json:"minQty"`
	MaxQty    *int    `json:"maxQty"`
	UnitPrice float64 `json:"unitPrice"`
}

// VolumeTiers is a tier schedule persisted as JSONB.
type VolumeTiers []VolumeTier

// Value marshals the schedule into JSON for Postgres.
func (v VolumeTiers) Value() (driver.Value, error) {
	if v == nil {
		return "[]", nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Scan decodes JSONB into the schedule.
func (v *VolumeTiers) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}

	var raw []byte
	switch src := value.(type) {
	case string:
		raw = []byte(src)
	case []byte:
		raw = src
	default:
		return fmt.Errorf("volume tiers: unsupported scan type %T", value)
	}

	result := VolumeTiers{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	*v = result
	return nil
}
