// Package gpio provides GPIO line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fakes allow testing without hardware.
package gpio

// Reader reads one digital input line.
type Reader interface {
	// Read returns the logical level: true when the line is high.
	// The button pulls its line high while pressed.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Writer drives one digital output line.
type Writer interface {
	// Write sets the line level: true drives it high.
	Write(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Default pin assignments (BCM numbering).
const (
	DefaultButtonPin   = 32
	DefaultRelayPin    = 2
	DefaultLearnLedPin = 13
	DefaultCloseLedPin = 17
)

// DefaultChip is the GPIO character device carrying the lines above.
const DefaultChip = "gpiochip0"
