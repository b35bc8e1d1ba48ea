package server

import "time"

type Options struct {
	// TickInterval is the time between two ticks. 0 runs ticks back to back.
	TickInterval time.Duration
	Receive      ReceiveOptions
}

type ReceiveOptions struct {
	// MaxPacketSize is the size of the receive buffer. Longer datagrams are truncated.
	// Defaults to 65507.
	MaxPacketSize uint
	// QueueLimit bounds the incoming queue. 0 means unbounded.
	QueueLimit uint

	// DropMalformed logs and drops packets that fail to decode.
	// If false, a decode failure terminates the run.
	DropMalformed bool
}

const defaultMaxPacketSize = 65507

func (o *Options) setDefaults() {
	if o.Receive.MaxPacketSize == 0 {
		o.Receive.MaxPacketSize = defaultMaxPacketSize
	}
}
