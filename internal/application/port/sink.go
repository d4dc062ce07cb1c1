package port

import "time"

type Sink interface {
	// WriteLine appends one rendered line stamped with ts
	WriteLine(ts time.Time, line string) error
	// Normal newline (for shutdown)
	NewLine() error
}
