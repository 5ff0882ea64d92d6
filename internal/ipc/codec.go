package ipc

import "bytes"

// frameDelimiter terminates every record on the wire. NUL is never valid
// inside the JSON serialization, so no escaping is needed.
const frameDelimiter = byte(0)

// Decoder reassembles frames from an arbitrary chunking of the byte stream.
// A partial trailing record stays buffered until the next chunk completes it.
type Decoder struct {
	buf bytes.Buffer
}

// Write appends a chunk and returns every complete event found, in stream
// order. A record that fails to parse yields an error event carrying the raw
// text; the scan then continues at the next delimiter.
func (d *Decoder) Write(chunk []byte) []Event {
	d.buf.Write(chunk)

	var events []Event
	for {
		data := d.buf.Bytes()
		idx := bytes.IndexByte(data, frameDelimiter)
		if idx < 0 {
			return events
		}
		record := make([]byte, idx)
		copy(record, data[:idx])
		d.buf.Next(idx + 1)

		record = bytes.TrimSpace(record)
		if len(record) == 0 {
			continue
		}
		ev, err := decodeEvent(record)
		if err != nil {
			events = append(events, Event{
				Type: EventError,
				Err:  &ErrorPayload{Message: err.Error(), Raw: string(record)},
			})
			continue
		}
		events = append(events, ev)
	}
}

// Pending reports how many buffered bytes await a delimiter.
func (d *Decoder) Pending() int {
	return d.buf.Len()
}

// Reset drops any partial record, for reuse across connection epochs.
func (d *Decoder) Reset() {
	d.buf.Reset()
}
