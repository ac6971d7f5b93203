// Package handler describes the commands an engine can serve. Each command is
// a Descriptor registered once at startup; the engine resolves a request to a
// descriptor with a single table lookup.
package handler

import (
	"context"
	"fmt"

	"github.com/go-pantheon/fabrica-dbe/codec"
	"github.com/go-pantheon/fabrica-util/errors"
)

// CancelMode states whether a command may be cancelled by the peer and what
// the peer sees when it is.
type CancelMode int

const (
	CancelNone CancelMode = iota
	// CancelDefault still sends the complete response, with status cancelled.
	CancelDefault
	// CancelImmediate sends nothing after the ack once a cancel is accepted.
	CancelImmediate
)

func (m CancelMode) String() string {
	switch m {
	case CancelNone:
		return "none"
	case CancelDefault:
		return "default"
	case CancelImmediate:
		return "immediate"
	default:
		return fmt.Sprintf("cancel(%d)", int(m))
	}
}

// Func serves one call. The returned value is encoded with
// codec.Encoder.WriteValue as the payload of the complete response. A non-nil
// error turns the response into a failure carrying the error text.
type Func func(ctx context.Context, call *Call) (any, error)

// Descriptor binds a command name to its argument shape, cancel mode and
// handler.
type Descriptor struct {
	Name string
	// Args lists the tagged arguments that follow the command name. They are
	// decoded into Call.Args before the handler runs. A nil Args leaves the
	// body to the handler through Call.Decoder.
	Args    []codec.Kind
	Cancel  CancelMode
	Handler Func
}

func (d *Descriptor) Cancellable() bool {
	return d.Cancel != CancelNone
}

// DecodeArgs reads the arguments declared by d. Strings are returned as
// string with the null sentinel mapped to "".
func (d *Descriptor) DecodeArgs(dec *codec.Decoder) ([]any, error) {
	if d.Args == nil {
		return nil, nil
	}

	args := make([]any, 0, len(d.Args))

	for _, k := range d.Args {
		var (
			v   any
			err error
		)

		if k == codec.KindString {
			v, err = dec.ReadString()
		} else {
			v, err = dec.ReadScalar(k)
		}

		if err != nil {
			return nil, err
		}

		args = append(args, v)
	}

	return args, nil
}

// Call is the per-request view a handler gets.
type Call struct {
	Command   string
	RequestID int32
	Channel   int32
	Args      []any

	dec       *codec.Decoder
	progress  func(percent int32, msg string) error
	cancelled func() bool
}

// NewCall is used by the engine. progress and cancelled may be nil.
func NewCall(command string, reqID, channel int32, dec *codec.Decoder,
	progress func(int32, string) error, cancelled func() bool,
) *Call {
	return &Call{
		Command:   command,
		RequestID: reqID,
		Channel:   channel,
		dec:       dec,
		progress:  progress,
		cancelled: cancelled,
	}
}

// Decoder reads the rest of the request body.
func (c *Call) Decoder() *codec.Decoder {
	return c.dec
}

// Progress sends a progress frame to the peer.
func (c *Call) Progress(percent int32, msg string) error {
	if c.progress == nil {
		return nil
	}

	return c.progress(percent, msg)
}

// Cancelled reports whether the peer asked to cancel this call's channel.
// Long running handlers should check it between steps and return early.
func (c *Call) Cancelled() bool {
	return c.cancelled != nil && c.cancelled()
}

func (c *Call) Int(i int) (int32, error) {
	return arg[int32](c, i)
}

func (c *Call) Long(i int) (int64, error) {
	return arg[int64](c, i)
}

func (c *Call) Bool(i int) (bool, error) {
	return arg[bool](c, i)
}

func (c *Call) Double(i int) (float64, error) {
	return arg[float64](c, i)
}

func (c *Call) String(i int) (string, error) {
	return arg[string](c, i)
}

func arg[T any](c *Call, i int) (T, error) {
	var zero T

	if i < 0 || i >= len(c.Args) {
		return zero, errors.Errorf("%s: argument %d out of range, have %d", c.Command, i, len(c.Args))
	}

	v, ok := c.Args[i].(T)
	if !ok {
		return zero, errors.Errorf("%s: argument %d is %T, want %T", c.Command, i, c.Args[i], zero)
	}

	return v, nil
}
