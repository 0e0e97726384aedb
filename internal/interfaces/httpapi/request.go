package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// flexNumber accepts a JSON number or a decimal string and keeps its text.
// Large token amounts do not survive float64, so numbers are read verbatim.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*n = flexNumber(text)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("expected a number or numeric string, got %s", data)
	}
	*n = flexNumber(number.String())
	return nil
}
