// Package stream decodes the SSE-style line protocol used by the image analysis endpoint into a
// monotonically growing plain-text answer.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

const (
	// dataPrefix is the 6-character prefix marking protocol data lines; anything else is noise.
	dataPrefix = "data: "
	// doneSentinel signals the normal end of the event stream.
	doneSentinel = "[DONE]"
)

// event is the JSON object carried by one data line. Only the first choice's delta is consumed;
// absent or empty fragments are legal and contribute nothing.
type event struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decoder reassembles a sequence of byte chunks into discrete event lines and concatenates the
// text fragments they carry. It is tolerant of line and JSON-token fragmentation across network
// reads: incomplete trailing lines stay buffered, and a data line whose payload does not yet parse
// is pushed back onto the buffer until more bytes arrive, so no partial JSON object is ever
// dropped.
type Decoder struct {
	buf  []byte
	acc  strings.Builder
	done bool
}

// NewDecoder returns a Decoder with an empty buffer and accumulator.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the internal buffer and scans it for complete lines. It returns one
// accumulator snapshot per decoded non-empty fragment; each snapshot is the full answer so far,
// never a diff, so observers can replace rather than append. Once the [DONE] sentinel has been
// seen, Feed discards everything.
func (d *Decoder) Feed(chunk []byte) []string {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var snapshots []string
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			// Trailing partial line, wait for the next chunk.
			return snapshots
		}
		line := strings.TrimSuffix(string(d.buf[:idx]), "\r")
		d.buf = d.buf[idx+1:]

		// Comment / keep-alive line.
		if strings.HasPrefix(line, ":") {
			continue
		}
		if line == "" {
			continue
		}
		payload, ok := strings.CutPrefix(line, dataPrefix)
		if !ok {
			continue
		}
		if payload == doneSentinel {
			d.done = true
			d.buf = nil
			return snapshots
		}

		var ev event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			// A chunk boundary may have split the JSON object mid-token. Push the line back in
			// front of the remaining buffer and stop scanning until more bytes arrive.
			rest := d.buf
			d.buf = make([]byte, 0, len(line)+1+len(rest))
			d.buf = append(d.buf, line...)
			d.buf = append(d.buf, '\n')
			d.buf = append(d.buf, rest...)
			return snapshots
		}

		if len(ev.Choices) == 0 {
			continue
		}
		if frag := ev.Choices[0].Delta.Content; frag != "" {
			d.acc.WriteString(frag)
			snapshots = append(snapshots, d.acc.String())
		}
	}
}

// Text returns the full accumulated answer decoded so far.
func (d *Decoder) Text() string {
	return d.acc.String()
}

// Done reports whether the [DONE] sentinel has been decoded.
func (d *Decoder) Done() bool {
	return d.done
}

// Decode consumes r until the [DONE] sentinel or end-of-stream, yielding the accumulated answer
// after every decoded fragment. Both termination paths count as successful completion; a dangling
// fragment left in the buffer at that point is dropped. Only transport read errors are surfaced
// through the iterator.
func Decode(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		d := NewDecoder()
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, snapshot := range d.Feed(buf[:n]) {
					if !yield(snapshot, nil) {
						return
					}
				}
			}
			if d.Done() {
				return
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				yield("", fmt.Errorf("error reading response stream: %w", err))
				return
			}
		}
	}
}
