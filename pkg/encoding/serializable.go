// Package encoding holds the serialization contracts shared by wire formats.
package encoding

import (
	"bytes"
	"io"
)

// Serializable provides a clean, simple interface for serializing and deserializing values.
type Serializable[T any] interface {
	Serialize() ([]byte, error)
	Deserialize([]byte) error
}

// Serializer is the write half of Serializable.
type Serializer interface {
	Serialize() ([]byte, error)
}

// WriteLine writes v followed by a newline, the framing used by line
// delimited streams.
func WriteLine(w io.Writer, v Serializer) error {
	data, err := v.Serialize()
	if err != nil {
		return err
	}
	if bytes.IndexByte(data, '\n') >= 0 {
		data = bytes.ReplaceAll(data, []byte{'\n'}, nil)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
