// Package gpio provides single-line GPIO access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads a logical input level.
type Reader interface {
	// Read returns the logical state of the line (active-low already applied).
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Writer drives a logical output level.
type Writer interface {
	// Write sets the logical state of the line (active-low already applied).
	Write(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the chip used when none is configured.
const DefaultChip = "gpiochip0"
