package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RoverRef is the roverId field as legacy senders emit it: either a number or
// a string. Numeric strings are folded into ID; anything else is kept in
// Identifier for the hub to resolve against the store.
type RoverRef struct {
	ID         int64
	Identifier string
}

// NumericRover returns a reference to a canonical rover id.
func NumericRover(id int64) *RoverRef {
	return &RoverRef{ID: id}
}

// Resolved reports whether the reference already carries a canonical id.
func (r *RoverRef) Resolved() bool {
	return r != nil && r.ID > 0
}

func (r RoverRef) MarshalJSON() ([]byte, error) {
	if r.ID > 0 {
		return []byte(strconv.FormatInt(r.ID, 10)), nil
	}
	return json.Marshal(r.Identifier)
}

func (r *RoverRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = RoverRef{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			if id <= 0 {
				return fmt.Errorf("roverId must be positive, got %d", id)
			}
			*r = RoverRef{ID: id}
			return nil
		}
		if s == "" {
			return fmt.Errorf("roverId must not be empty")
		}
		*r = RoverRef{Identifier: s}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("roverId must be a number or string")
	}
	id, err := n.Int64()
	if err != nil {
		return fmt.Errorf("roverId must be an integer, got %s", n)
	}
	if id <= 0 {
		return fmt.Errorf("roverId must be positive, got %d", id)
	}
	*r = RoverRef{ID: id}
	return nil
}

func (r *RoverRef) String() string {
	if r == nil {
		return ""
	}
	if r.ID > 0 {
		return strconv.FormatInt(r.ID, 10)
	}
	return r.Identifier
}

// ID is an integer identifier that tolerates being sent as a numeric string.
type ID int64

func (i *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*i = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return fmt.Errorf("id %q is not an integer", s)
		}
		*i = ID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a number or numeric string")
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("id must be an integer, got %s", n)
	}
	*i = ID(v)
	return nil
}
