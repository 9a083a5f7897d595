// FilePath: internal/models/models.input.go
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

// ReadingInput is the tolerant wire shape of an inbound reading. Fields
// arrive as JSON numbers or numeric strings from loosely-typed
// publishers, so decoding never fails on a wrong scalar type; the
// ingest pipeline's validation stage turns invalid fields into tagged
// validation errors instead. Unknown fields are ignored.
type ReadingInput struct {
	SensorID    *FlexInt64   `json:"sensor_id"`
	Temperature *FlexFloat64 `json:"temperature"`
	Humidity    *FlexFloat64 `json:"humidity"`
	Time        *string      `json:"time"`
}

// FlexInt64 accepts a JSON number or a numeric string. A value of the
// wrong shape decodes with Valid=false rather than failing the
// surrounding object, so bulk items report field-level errors.
type FlexInt64 struct {
	Value int64
	Valid bool
}

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Tolerate "3.0" style publishers that send integers as floats.
		fv, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || fv != float64(int64(fv)) {
			f.Valid = false
			return nil
		}
		v = int64(fv)
	}
	f.Value = v
	f.Valid = true
	return nil
}

func (f FlexInt64) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Value)
}

// FlexFloat64 accepts a JSON number or a numeric string.
type FlexFloat64 struct {
	Value float64
	Valid bool
}

func (f *FlexFloat64) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		f.Valid = false
		return nil
	}
	f.Value = v
	f.Valid = true
	return nil
}

func (f FlexFloat64) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Value)
}

// ParseTimestamp parses an ISO-8601 timestamp and requires an explicit
// UTC offset (Z or +hh:mm/-hh:mm). Publishers that omit the offset are
// rejected rather than silently assumed to be UTC.
func ParseTimestamp(s string) (time.Time, error) {
	parsed, err := iso8601.ParseString(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q: %w", s, err)
	}
	sep := strings.IndexAny(s, "Tt ")
	if sep < 0 || !strings.ContainsAny(s[sep+1:], "Zz+-") {
		return time.Time{}, fmt.Errorf("timestamp %q has no UTC offset", s)
	}
	return parsed, nil
}
