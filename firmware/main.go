//go:build tinygo

//go:generate tinygo flash -target=pico

package main

import (
	"machine"
	"time"
)

var (
	adcPulse machine.ADC
	uart     = machine.UART0

	// Streaming is enabled by the host with "1\n" and stopped with "0\n".
	streaming bool

	// Timing
	lastADCRead time.Time
	ledCounter  int

	// Serial buffer for reading lines
	serialBuffer [4]byte
	serialPos    int
)

func main() {
	PIN_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	machine.InitADC()
	PIN_PULSE_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})

	adcPulse = machine.ADC{Pin: PIN_PULSE_ADC}
	adcPulse.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	lastADCRead = time.Now()

	for {
		now := time.Now()

		processSerial()

		// One ADC read per period, the host queues and analyses it.
		if now.Sub(lastADCRead) >= time.Duration(SAMPLE_INTERVAL_US)*time.Microsecond {
			lastADCRead = lastADCRead.Add(time.Duration(SAMPLE_INTERVAL_US) * time.Microsecond)
			if streaming {
				outputSample(now, adcPulse.Get())
			}
		}

		time.Sleep(50 * time.Microsecond)
	}
}

// outputSample writes "unix_micros,value\n".
func outputSample(now time.Time, value uint16) {
	print(now.UnixNano() / 1000)
	print(",")
	print(value)
	print("\n")

	ledCounter++
	if ledCounter >= 250 {
		ledCounter = 0
		PIN_LED.Set(!PIN_LED.Get())
	}
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos == 1 {
				updateStreaming()
			}
			serialPos = 0
			continue
		}

		if data == ' ' || data == '\t' {
			continue
		}

		if data == '0' || data == '1' {
			if serialPos < len(serialBuffer) {
				serialBuffer[serialPos] = data
				serialPos++
			}
		} else {
			// Invalid character - reset buffer
			serialPos = 0
		}
	}
}

func updateStreaming() {
	enable := serialBuffer[0] == '1'
	if enable && !streaming {
		// Restart the sampling clock so the first sample is a full period away.
		lastADCRead = time.Now()
	}
	streaming = enable
	if !streaming {
		PIN_LED.Low()
	}
}
