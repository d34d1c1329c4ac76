package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var errNoTimestamp = errors.New("missing timestamp")

// unix timestamps above this are taken to be milliseconds
const millisThreshold = 1e11

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// TimelineSample is the packet count of one time bucket
type TimelineSample struct {
	Timestamp   time.Time `json:"timestamp"`
	PacketCount int64     `json:"packet_count"`
	Bytes       int64     `json:"bytes,omitempty"`
	// BadTimestamp holds a timestamp that could not be read; Timestamp is
	// left zero for such samples.
	BadTimestamp string `json:"-"`
}

// UnmarshalJSON accepts unix seconds, unix milliseconds or ISO-8601 strings
// for the timestamp, and either packet_count or packets for the count.
// An unreadable timestamp does not fail the sample.
func (s *TimelineSample) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timestamp   json.RawMessage `json:"timestamp"`
		Datetime    string          `json:"datetime"`
		PacketCount *int64          `json:"packet_count"`
		Packets     int64           `json:"packets"`
		Bytes       int64           `json:"bytes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ts, err := parseTimestamp(raw.Timestamp)
	if err != nil && raw.Datetime != "" {
		ts, err = parseISO(raw.Datetime)
	}
	s.BadTimestamp = ""
	if err != nil && !errors.Is(err, errNoTimestamp) {
		ts = time.Time{}
		s.BadTimestamp = rawText(raw.Timestamp, raw.Datetime)
	}

	s.Timestamp = ts
	s.Bytes = raw.Bytes
	if raw.PacketCount != nil {
		s.PacketCount = *raw.PacketCount
	} else {
		s.PacketCount = raw.Packets
	}
	return nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, errNoTimestamp
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		return parseISO(s)
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, err
	}
	if n >= millisThreshold {
		return time.UnixMilli(int64(n)), nil
	}
	sec := int64(n)
	nsec := int64((n - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec), nil
}

// rawText returns the offending timestamp as written by the service
func rawText(ts json.RawMessage, datetime string) string {
	ts = bytes.TrimSpace(ts)
	if len(ts) == 0 || bytes.Equal(ts, []byte("null")) {
		return datetime
	}
	var s string
	if json.Unmarshal(ts, &s) == nil && s != "" {
		return s
	}
	return string(ts)
}

// UndatedSamples counts the samples whose timestamp could not be read
func UndatedSamples(samples []TimelineSample) int {
	n := 0
	for _, s := range samples {
		if s.BadTimestamp != "" {
			n++
		}
	}
	return n
}

// parseISO treats zone-less timestamps as local time
func parseISO(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
