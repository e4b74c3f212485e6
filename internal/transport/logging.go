package transport

import (
	"encoding/json"

	applog "iocapture/internal/log"
)

// LoggingTransport implements the Transport interface by logging data at
// debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Debugf("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data. It never fails.
func (lt *LoggingTransport) Send(data any) error {
	if applog.GetLevel() > applog.LevelDebug {
		return nil
	}
	if b, err := json.Marshal(data); err == nil {
		applog.Debugf("Transport: %T %s", data, b)
	} else {
		applog.Debugf("Transport: %T %+v", data, data)
	}
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
