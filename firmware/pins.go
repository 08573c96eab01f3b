//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_US = 4000 // ADC read interval in microseconds (250 Hz)

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // Native resolution; machine.ADC.Get scales to 16 bits

	// Pulse sensor input
	PIN_PULSE_ADC = machine.ADC1 // GP27

	// Status LED blinks on every confirmed output batch
	PIN_LED = machine.LED

	// Serial configuration
	// Format "unix_micros,value\n", e.g. "1234567890123456,65535\n" = 23 bytes max per line.
	// 250 lines/sec * 23 bytes = 5,750 bytes/sec = 57,500 baud with 8N1.
	// 115200 leaves 2x headroom.
	UART_BAUD_RATE = 115200
)
