// Package serde defines the primitives to serialize and deserialize (serde)
// the messages stored in the state or exchanged with the clients.
//
// A message implementation looks up the engine of the context format in its
// own registry so that the data model stays independent from the encoding.
package serde

import "io"

// Format is the identifier of an encoding format.
type Format string

// FormatJSON is the identifier of the JSON format.
const FormatJSON Format = "JSON"

// Message is the interface a data model implements to be serialized.
type Message interface {
	// Serialize returns the bytes of the message according to the format of
	// the context.
	Serialize(ctx Context) ([]byte, error)
}

// Factory is the interface to implement to instantiate a message from its
// serialized form.
type Factory interface {
	// Deserialize returns the message of the data, or an error if it is
	// malformed.
	Deserialize(ctx Context, data []byte) (Message, error)
}

// FormatEngine is the interface of an encoder and decoder for a given format.
type FormatEngine interface {
	// Encode returns the bytes of the message.
	Encode(ctx Context, message Message) ([]byte, error)

	// Decode returns the message of the data.
	Decode(ctx Context, data []byte) (Message, error)
}

// Fingerprinter is the interface of a message that can write a deterministic
// binary representation of itself.
type Fingerprinter interface {
	Fingerprint(writer io.Writer) error
}
