package message

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
)

// wireMessage uses pointers so that absent fields can be told apart from zero
// values.
type wireMessage struct {
	SenderID     *int     `json:"sender_id"`
	LogicalClock *uint64  `json:"logical_clock"`
	SendTime     *float64 `json:"timestamp"`
}

func (w wireMessage) toMessage() (Message, error) {
	switch {
	case w.SenderID == nil:
		return Message{}, &MissingFieldError{Field: "sender_id"}
	case w.LogicalClock == nil:
		return Message{}, &MissingFieldError{Field: "logical_clock"}
	case w.SendTime == nil:
		return Message{}, &MissingFieldError{Field: "timestamp"}
	}

	if *w.SenderID < 0 {
		return Message{}, fmt.Errorf("message: sender_id %d: %w",
			*w.SenderID, ErrInvalidField)
	}

	// The receiver sets its clock past the carried value, which must leave
	// room for that step.
	if *w.LogicalClock == math.MaxUint64 {
		return Message{}, fmt.Errorf("message: logical_clock %d: %w",
			*w.LogicalClock, ErrInvalidField)
	}

	return Message{
		SenderID:     *w.SenderID,
		LogicalClock: *w.LogicalClock,
		SendTime:     *w.SendTime,
	}, nil
}

// Marshal returns the JSON form of the message.
func Marshal(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal decodes one JSON payload. It never returns a partially populated
// message.
func Unmarshal(data []byte) (Message, error) {
	var w wireMessage

	err := json.Unmarshal(data, &w)
	if err != nil {
		return Message{}, err
	}

	return w.toMessage()
}

// An Encoder writes newline-delimited messages to a stream.
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder creates an Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	return &Encoder{enc: enc}
}

// Encode writes one message followed by a newline.
func (e *Encoder) Encode(m Message) error {
	return e.enc.Encode(m)
}

// A Decoder reads a stream of messages written by an Encoder.
type Decoder struct {
	dec *json.Decoder
}

// NewDecoder creates a Decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

// Decode reads the next message. It returns io.EOF when the stream ends
// cleanly between messages.
func (d *Decoder) Decode() (Message, error) {
	var w wireMessage

	err := d.dec.Decode(&w)
	if err != nil {
		return Message{}, err
	}

	return w.toMessage()
}
