// Package discovery finds ONVIF cameras on the local network with a
// WS-Discovery multicast probe.
package discovery

import (
	"context"
	"net"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
)

const (
	// MulticastAddr is the WS-Discovery group and port
	MulticastAddr  = "239.255.255.250:3702"
	DefaultTimeout = 3 * time.Second

	// readSlice bounds each blocking read so cancellation is noticed quickly
	readSlice = 200 * time.Millisecond
	maxPacket = 65536
)

// Options configures a discovery run
type Options struct {
	// Timeout is how long to collect answers; zero means DefaultTimeout.
	Timeout time.Duration
	// Interface sends and joins on a specific interface; nil lets the
	// system choose.
	Interface *net.Interface
	// MulticastAddr overrides the WS-Discovery group.
	MulticastAddr string
	Logger        zerolog.Logger
}

// Discover sends one probe and collects answers until the timeout elapses
// or ctx is cancelled. Cameras are returned in the order they first
// answered, one per endpoint reference. The multicast membership and the
// socket are released on every return path.
func Discover(ctx context.Context, opts Options) ([]Camera, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MulticastAddr == "" {
		opts.MulticastAddr = MulticastAddr
	}
	log := opts.Logger

	group, err := net.ResolveUDPAddr("udp4", opts.MulticastAddr)
	if err != nil {
		return nil, errors.Annotate(err, "resolve multicast address")
	}

	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return nil, errors.Annotate(err, "listen")
	}
	defer conn.Close()

	pc := ipv4.NewPacketConn(conn)
	leave := join(pc, opts.Interface, group, log)
	defer leave()
	if opts.Interface != nil {
		if err := pc.SetMulticastInterface(opts.Interface); err != nil {
			log.Warn().Err(err).Str("interface", opts.Interface.Name).Msg("set multicast interface")
		}
	}
	if err := pc.SetMulticastTTL(2); err != nil {
		log.Debug().Err(err).Msg("set multicast ttl")
	}

	return run(ctx, conn, group, opts.Timeout, log)
}

// membership is the group half of ipv4.PacketConn
type membership interface {
	JoinGroup(ifi *net.Interface, group net.Addr) error
	LeaveGroup(ifi *net.Interface, group net.Addr) error
}

// join subscribes to group and returns the func that leaves it again. A
// failed join is only logged: unicast replies still arrive without
// membership, and leaving is then a no-op.
func join(m membership, ifi *net.Interface, group *net.UDPAddr, log zerolog.Logger) (leave func()) {
	addr := &net.UDPAddr{IP: group.IP}
	if err := m.JoinGroup(ifi, addr); err != nil {
		log.Warn().Err(err).Str("group", group.IP.String()).Msg("join multicast group")
		return func() {}
	}
	return func() {
		if err := m.LeaveGroup(ifi, addr); err != nil {
			log.Debug().Err(err).Msg("leave multicast group")
		}
	}
}

// run sends the probe to dst over conn and gathers matches
func run(ctx context.Context, conn net.PacketConn, dst net.Addr, timeout time.Duration, log zerolog.Logger) ([]Camera, error) {
	messageID, probe, err := newProbe()
	if err != nil {
		return nil, err
	}
	if _, err := conn.WriteTo(probe, dst); err != nil {
		return nil, errors.Annotatef(err, "send probe to %s", dst)
	}
	log.Debug().Str("message_id", messageID).Str("to", dst.String()).Msg("probe sent")

	deadline := time.Now().Add(timeout)
	seen := map[string]int{}
	var cams []Camera
	buf := make([]byte, maxPacket)

	for {
		if ctx.Err() != nil {
			log.Debug().Int("cameras", len(cams)).Msg("discovery cancelled")
			return cams, nil
		}
		now := time.Now()
		if !now.Before(deadline) {
			break
		}
		next := now.Add(readSlice)
		if next.After(deadline) {
			next = deadline
		}
		if err := conn.SetReadDeadline(next); err != nil {
			return cams, errors.Annotate(err, "set read deadline")
		}

		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return cams, errors.Annotate(err, "read")
		}

		matches, err := parseMatches(buf[:n], from)
		if err != nil {
			log.Debug().Err(err).Str("from", from.String()).Msg("skipping packet")
			continue
		}
		for _, cam := range matches {
			if _, dup := seen[cam.EndpointReference]; dup {
				continue
			}
			seen[cam.EndpointReference] = len(cams)
			cams = append(cams, cam)
			log.Info().Str("address", cam.IPAddress).Int("port", cam.Port).Str("name", cam.Name).Msg("camera found")
		}
	}

	log.Debug().Int("cameras", len(cams)).Msg("discovery finished")
	return cams, nil
}
