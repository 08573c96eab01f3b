package ppg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate matches the firmware UART configuration.
	DefaultBaudRate = 115200
)

// RawSample is one line from the sensor board.
type RawSample struct {
	Timestamp time.Time
	Value     uint16 // 16-bit scaled ADC reading
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial reads samples streamed by the sensor firmware over a serial port.
// The reader goroutine is the acquisition context: it parses one line and
// pushes one sample, nothing else.
type Serial struct {
	port     string
	baudRate int

	conn      serial.Port
	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool

	received  atomic.Uint64
	malformed atomic.Uint64
}

// NewSerial creates a new serial device for the given port and baud rate.
func NewSerial(port string, baudRate int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &Serial{
		port:     port,
		baudRate: baudRate,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect opens the serial port, enables streaming on the board and starts
// pushing samples into sink.
func (d *Serial) Connect(sink Sink) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	if _, err := port.Write([]byte("1\n")); err != nil {
		port.Close()
		return fmt.Errorf("failed to start streaming: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.conn = port
	d.cancel = cancel
	d.done = make(chan struct{})
	d.connected = true

	go d.readSamples(ctx, port, sink, d.done)

	return nil
}

// Close stops streaming and closes the port.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	if d.conn != nil {
		if _, err := d.conn.Write([]byte("0\n")); err != nil {
			log.Printf("Error stopping stream: %v", err)
		}
		if err := d.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
		d.conn = nil
	}

	<-d.done
	d.connected = false

	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Stats returns the number of samples received and lines rejected.
func (d *Serial) Stats() (received, malformed uint64) {
	return d.received.Load(), d.malformed.Load()
}

// readSamples reads lines from r and pushes parsed values into sink.
func (d *Serial) readSamples(ctx context.Context, r io.Reader, sink Sink, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Panic in readSamples: %v", rec)
		}
	}()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		sample, err := parseLine(line)
		if err != nil {
			d.malformed.Add(1)
			log.Printf("Failed to parse line '%s': %v", line, err)
			continue
		}

		d.received.Add(1)
		sink.Push(sample.Value)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("Error reading from serial port: %v", err)
	}
}

// parseLine parses a line from the sensor board into a RawSample.
// Format: unix_micros,value
// Example: 1234567890123,32768
func parseLine(line string) (RawSample, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return RawSample{}, fmt.Errorf("invalid line format: expected 2 comma-separated values, got %d", len(parts))
	}

	timestampMicros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	value, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid value: %w", err)
	}

	return RawSample{
		Timestamp: time.UnixMicro(timestampMicros),
		Value:     uint16(value),
	}, nil
}
