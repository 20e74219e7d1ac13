// Package radius sends RFC 5176 Disconnect-Requests to NAS devices.
package radius

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"

	cfgpkg "github.com/bayarinter/billing/pkg/config"
)

const (
	DefaultCoAPort = 3799
	DefaultTimeout = 5 * time.Second
)

// Session identifies one live accounting session on a NAS.
type Session struct {
	Username         string
	AcctSessionID    string
	NasIP            string
	FramedIP         string
	CallingStationID string
}

// Reply is the NAS answer to a Disconnect-Request.
type Reply struct {
	Acked  bool
	Detail string
}

// Exchanger sends a packet and waits for the reply. radius.Exchange satisfies it.
type Exchanger func(ctx context.Context, packet *radius.Packet, addr string) (*radius.Packet, error)

type CoAClient struct {
	secret   []byte
	port     int
	timeout  time.Duration
	exchange Exchanger
}

func NewCoAClient(cfg *cfgpkg.Config) *CoAClient {
	return NewCoAClientWithExchanger(cfg, radius.Exchange)
}

func NewCoAClientWithExchanger(cfg *cfgpkg.Config, ex Exchanger) *CoAClient {
	c := &CoAClient{
		secret:   []byte(cfg.Radius.Secret),
		port:     cfg.Radius.CoAPort,
		timeout:  cfg.Radius.Timeout,
		exchange: ex,
	}
	if c.port <= 0 {
		c.port = DefaultCoAPort
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c
}

// BuildDisconnect assembles the Disconnect-Request for s.
func (c *CoAClient) BuildDisconnect(s Session) (*radius.Packet, error) {
	p := radius.New(radius.CodeDisconnectRequest, c.secret)
	if err := rfc2865.UserName_SetString(p, s.Username); err != nil {
		return nil, fmt.Errorf("set User-Name: %w", err)
	}
	if s.AcctSessionID != "" {
		if err := rfc2866.AcctSessionID_SetString(p, s.AcctSessionID); err != nil {
			return nil, fmt.Errorf("set Acct-Session-Id: %w", err)
		}
	}
	if ip := net.ParseIP(s.FramedIP); ip != nil && ip.To4() != nil {
		if err := rfc2865.FramedIPAddress_Set(p, ip.To4()); err != nil {
			return nil, fmt.Errorf("set Framed-IP-Address: %w", err)
		}
	}
	if s.CallingStationID != "" {
		if err := rfc2865.CallingStationID_SetString(p, s.CallingStationID); err != nil {
			return nil, fmt.Errorf("set Calling-Station-Id: %w", err)
		}
	}
	return p, nil
}

// Disconnect sends one Disconnect-Request to s.NasIP on the CoA port.
// A NAK is a reply, not an error; transport failures are errors.
func (c *CoAClient) Disconnect(ctx context.Context, s Session) (*Reply, error) {
	if len(c.secret) == 0 {
		return nil, fmt.Errorf("radius secret is not configured")
	}
	if s.NasIP == "" {
		return nil, fmt.Errorf("session %q has no NAS address", s.AcctSessionID)
	}
	p, err := c.BuildDisconnect(s)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	addr := net.JoinHostPort(s.NasIP, strconv.Itoa(c.port))
	resp, err := c.exchange(ctx, p, addr)
	if err != nil {
		return nil, fmt.Errorf("coa exchange with %s: %w", addr, err)
	}
	return &Reply{
		Acked:  resp.Code == radius.CodeDisconnectACK,
		Detail: fmt.Sprintf("%s from %s", resp.Code, addr),
	}, nil
}
