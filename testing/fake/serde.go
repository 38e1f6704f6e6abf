package fake

import (
	"encoding/json"

	"go.dedis.ch/veilroll/serde"
)

// Format is a fake format engine that returns the configured message, data or
// error.
//
// - implements serde.FormatEngine
type Format struct {
	Msg  serde.Message
	Data []byte
	Err  error
}

// NewBadFormat returns a format that always fails.
func NewBadFormat() Format {
	return Format{Err: fakeErr}
}

// Encode implements serde.FormatEngine.
func (f Format) Encode(serde.Context, serde.Message) ([]byte, error) {
	return f.Data, f.Err
}

// Decode implements serde.FormatEngine.
func (f Format) Decode(serde.Context, []byte) (serde.Message, error) {
	return f.Msg, f.Err
}

// ContextEngine is a fake context engine using the JSON encoding, or failing
// when configured so.
//
// - implements serde.ContextEngine
type ContextEngine struct {
	Format serde.Format
	err    error
}

// NewContext returns a serde context with the fake engine.
func NewContext() serde.Context {
	return serde.NewContext(ContextEngine{Format: serde.FormatJSON})
}

// NewBadContext returns a serde context that fails to marshal and unmarshal.
func NewBadContext() serde.Context {
	return serde.NewContext(ContextEngine{Format: serde.FormatJSON, err: fakeErr})
}

// GetFormat implements serde.ContextEngine.
func (e ContextEngine) GetFormat() serde.Format {
	return e.Format
}

// Marshal implements serde.ContextEngine.
func (e ContextEngine) Marshal(m interface{}) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}

	return json.Marshal(m)
}

// Unmarshal implements serde.ContextEngine.
func (e ContextEngine) Unmarshal(data []byte, m interface{}) error {
	if e.err != nil {
		return e.err
	}

	return json.Unmarshal(data, m)
}

// Message is a fake implementation of a serde message.
//
// - implements serde.Message
type Message struct{}

// Serialize implements serde.Message.
func (m Message) Serialize(serde.Context) ([]byte, error) {
	return []byte("{}"), nil
}
