package stream

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/aws/aws-lambda-go/events"
	"github.com/glassechidna/lambdalogs/entry"
	"github.com/pkg/errors"
)

// DecodeError reports a record (or the whole event) that could not be
// turned into a payload.
type DecodeError struct {
	// Sequence is the Kinesis sequence number, empty for event-level failures.
	Sequence string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Sequence == "" {
		return "decoding event: " + e.Err.Error()
	}
	return "decoding record " + e.Sequence + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Cause() error { return e.Err }

// Decoded is a record payload and the time it was stamped with upstream.
type Decoded struct {
	Millis  int64
	Payload entry.Payload
}

// Seconds rounds Millis to the nearest second, halves rounding up.
func (d Decoded) Seconds() int64 {
	return floorDiv(d.Millis+500, 1000)
}

// ParseEvent unmarshals a Kinesis event. Record data arrives base64 encoded
// and is decoded here.
func ParseEvent(body []byte) (*events.KinesisEvent, error) {
	event := &events.KinesisEvent{}
	if err := json.Unmarshal(body, event); err != nil {
		return nil, &DecodeError{Err: errors.WithStack(err)}
	}
	return event, nil
}

// DecodeRecord decodes the data of one Kinesis record.
func DecodeRecord(record events.KinesisEventRecord, now func() time.Time) (Decoded, error) {
	d, err := Decode(record.Kinesis.Data, now)
	if err != nil {
		return Decoded{}, &DecodeError{Sequence: record.Kinesis.SequenceNumber, Err: err}
	}
	return d, nil
}

// Decode parses "<millis>;<json>". The millisecond prefix is optional: when
// it has no leading digits, now is used instead. The JSON body may itself
// contain semicolons.
func Decode(data []byte, now func() time.Time) (Decoded, error) {
	i := bytes.IndexByte(data, ';')
	if i < 0 {
		return Decoded{}, errors.New("payload has no ';' separator")
	}

	millis, ok := parseMillis(string(data[:i]))
	if !ok {
		millis = now().UnixMilli()
	}

	p, err := entry.ParsePayload(data[i+1:])
	if err != nil {
		return Decoded{}, err
	}

	return Decoded{Millis: millis, Payload: p}, nil
}

// parseMillis reads an optionally signed run of leading digits, skipping
// leading whitespace and ignoring whatever follows the digits.
func parseMillis(s string) (int64, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)

	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}

	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
