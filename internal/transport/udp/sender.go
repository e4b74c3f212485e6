package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	applog "iocapture/internal/log"
)

// ErrSenderClosed is returned by Send after Close.
var ErrSenderClosed = errors.New("udp sender is closed")

// UDPSender writes datagrams to one fixed peer.
type UDPSender struct {
	mu   sync.Mutex
	conn net.Conn // nil once closed
}

// NewUDPSender dials targetAddress ("host:port").
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	return DialSender(context.Background(), targetAddress)
}

// DialSender is NewUDPSender with a context bounding name resolution.
func DialSender(ctx context.Context, targetAddress string) (*UDPSender, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("dial udp %s: %w", targetAddress, err)
	}
	applog.Infof("UDP Sender: sending to %s", conn.RemoteAddr())
	return &UDPSender{conn: conn}, nil
}

// Target returns the peer address, or nil after Close.
func (s *UDPSender) Target() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.RemoteAddr()
}

// Send writes data as a single datagram.
func (s *UDPSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrSenderClosed
	}
	if _, err := s.conn.Write(data); err != nil {
		return fmt.Errorf("udp send: %w", err)
	}
	return nil
}

// Close releases the socket. Further calls are no-ops.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	applog.Debugf("UDP Sender: closing %s", conn.RemoteAddr())
	return conn.Close()
}
