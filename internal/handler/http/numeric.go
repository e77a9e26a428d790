package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Numeric is a float64 that also accepts JSON strings ("2.5") on decode.
// The legacy CRM sends quantities and prices inconsistently typed, so
// every numeric request field is canonicalized here before it reaches
// the services.
type Numeric float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Numeric) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric value %q", s)
		}
		*n = Numeric(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Numeric(v)
	return nil
}
