package fake

import (
	"bytes"
	"sync"

	"github.com/rs/zerolog"
)

// LogBuffer is a thread-safe buffer collecting the output of a logger.
type LogBuffer struct {
	sync.Mutex
	buffer bytes.Buffer
}

// Write implements io.Writer.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.Lock()
	defer b.Unlock()

	return b.buffer.Write(p)
}

// String returns the content written so far.
func (b *LogBuffer) String() string {
	b.Lock()
	defer b.Unlock()

	return b.buffer.String()
}

// CheckLog returns a logger writing JSON entries into the returned buffer so
// that a test can assert on the logs.
func CheckLog() (zerolog.Logger, *LogBuffer) {
	buffer := new(LogBuffer)

	return zerolog.New(buffer), buffer
}
