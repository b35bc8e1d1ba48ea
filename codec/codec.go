// Package codec converts application values to datagram payloads and back.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrEncode = errors.New("encoding packet")
	ErrDecode = errors.New("decoding packet")
)

// Codec must be safe to call from multiple goroutines.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
}

// Funcs adapts a pair of functions into a [Codec].
type Funcs[T any] struct {
	EncodeFunc func(v T) ([]byte, error)
	DecodeFunc func(b []byte) (T, error)
}

var _ Codec[int] = Funcs[int]{}

func (f Funcs[T]) Encode(v T) ([]byte, error) {
	b, err := f.EncodeFunc(v)
	if err != nil {
		return nil, wrap(ErrEncode, err)
	}
	return b, nil
}

func (f Funcs[T]) Decode(b []byte) (T, error) {
	v, err := f.DecodeFunc(b)
	if err != nil {
		var zero T
		return zero, wrap(ErrDecode, err)
	}
	return v, nil
}

type identity struct{}

// Identity sends byte slices as they are.
// Decoded slices are copies, so receive buffers can be reused.
func Identity() Codec[[]byte] { return identity{} }

func (identity) Encode(v []byte) ([]byte, error) { return v, nil }

func (identity) Decode(b []byte) ([]byte, error) {
	c := make([]byte, len(b))
	copy(c, b)
	return c, nil
}

type jsonCodec[T any] struct{}

// JSON encodes values as UTF-8 JSON documents.
func JSON[T any]() Codec[T] { return jsonCodec[T]{} }

func (jsonCodec[T]) Encode(v T) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, wrap(ErrEncode, err)
	}
	return b, nil
}

func (jsonCodec[T]) Decode(b []byte) (T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		var zero T
		return zero, wrap(ErrDecode, err)
	}
	return v, nil
}

func wrap(sentinel, cause error) error {
	return Error{sentinel: sentinel, cause: cause}
}

// Error matches [ErrEncode] or [ErrDecode] as well as its cause.
type Error struct {
	sentinel error
	cause    error
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.sentinel, e.cause)
}

func (e Error) Cause() error {
	return e.cause
}

func (e Error) Is(err error) bool {
	return err == e.sentinel || errors.Is(e.cause, err)
}
