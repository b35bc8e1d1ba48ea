package client

type Options struct {
	Send    SendOptions
	Receive ReceiveOptions
}

type SendOptions struct {
	// QueueLimit bounds the outgoing queue. 0 means unbounded.
	// Packets sent while the queue is full are dropped.
	QueueLimit uint
}

type ReceiveOptions struct {
	// MaxPacketSize is the size of the receive buffer. Longer datagrams are truncated.
	// Defaults to 65507.
	MaxPacketSize uint
	// QueueLimit bounds the incoming queue. 0 means unbounded.
	// Packets received while the queue is full are dropped.
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
