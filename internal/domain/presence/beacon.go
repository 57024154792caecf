package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
)

const maxPacketSize = 8 * 1024

// Beacon broadcasts presence packets on the LAN. It implements Publisher.
type Beacon struct {
	target *net.UDPAddr
	conn   *net.UDPConn
}

// NewBeacon opens a UDP socket sending to target, typically
// "255.255.255.255:7071".
func NewBeacon(target string) (*Beacon, error) {
	addr, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return nil, fmt.Errorf("resolve beacon target %s: %w", target, err)
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("open beacon socket: %w", err)
	}
	return &Beacon{target: addr, conn: conn}, nil
}

func (b *Beacon) Publish(_ context.Context, pkt Packet) error {
	data, err := json.Marshal(pkt)
	if err != nil {
		return fmt.Errorf("encode packet: %w", err)
	}
	if _, err := b.conn.WriteToUDP(data, b.target); err != nil {
		return fmt.Errorf("send packet to %s: %w", b.target, err)
	}
	return nil
}

func (b *Beacon) Close() error {
	return b.conn.Close()
}

// Listener receives beacon packets on the discovery port.
type Listener struct {
	conn *net.UDPConn
	log  zerolog.Logger
}

// Listen binds addr, e.g. ":7071".
func Listen(addr string, log zerolog.Logger) (*Listener, error) {
	laddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve listen address %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Listener{conn: conn, log: log.With().Str("component", "beacon").Logger()}, nil
}

func (l *Listener) LocalAddr() *net.UDPAddr {
	return l.conn.LocalAddr().(*net.UDPAddr)
}

// Serve decodes packets and hands them to apply until ctx ends. Malformed
// packets are dropped. An announce without an address takes the sender's IP.
func (l *Listener) Serve(ctx context.Context, apply func(context.Context, Packet) error) error {
	go func() {
		<-ctx.Done()
		l.conn.Close()
	}()

	buf := make([]byte, maxPacketSize)
	for {
		n, src, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read packet: %w", err)
		}

		var pkt Packet
		if err := json.Unmarshal(buf[:n], &pkt); err != nil {
			l.log.Debug().Err(err).Str("from", src.String()).Msg("dropping malformed packet")
			continue
		}
		if pkt.Kind == PacketAnnounce && pkt.Record.Address == "" {
			pkt.Record.Address = src.IP.String()
		}
		if err := apply(ctx, pkt); err != nil {
			l.log.Debug().Err(err).Str("from", src.String()).Msg("packet rejected")
		}
	}
}

// DetectAddress returns the LAN address this host uses for outbound traffic.
// No packet is sent: connecting a UDP socket only selects a route.
func DetectAddress() (string, error) {
	conn, err := net.Dial("udp4", "192.0.2.1:9")
	if err == nil {
		defer conn.Close()
		if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok && !ua.IP.IsUnspecified() {
			return ua.IP.String(), nil
		}
	}

	addrs, ierr := net.InterfaceAddrs()
	if ierr != nil {
		return "", fmt.Errorf("list interface addresses: %w", ierr)
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && !ipn.IP.IsLoopback() && ipn.IP.To4() != nil {
			return ipn.IP.String(), nil
		}
	}
	return "127.0.0.1", nil
}
