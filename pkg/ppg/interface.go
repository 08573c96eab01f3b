package ppg

// Sink receives samples from the acquisition context. Push must not block.
type Sink interface {
	Push(v uint16)
}

// Device defines the interface for pulse sensor front ends (real or mocked).
// Connect starts the acquisition context, which pushes one sample per sampling
// period into sink until Close.
type Device interface {
	Connect(sink Sink) error
	Close() error
	IsConnected() bool
}

// ADC is a single-channel converter read once per sampling tick.
type ADC interface {
	ReadU16() uint16
}

var (
	_ Device = (*Serial)(nil)
	_ Device = (*Mock)(nil)
	_ ADC    = (*Waveform)(nil)
)
