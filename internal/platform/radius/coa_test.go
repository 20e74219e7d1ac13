package radius

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"

	cfgpkg "github.com/bayarinter/billing/pkg/config"
)

func testConfig() *cfgpkg.Config {
	return &cfgpkg.Config{Radius: cfgpkg.RadiusConfig{Secret: "s3cret", Timeout: time.Second}}
}

func TestBuildDisconnect(t *testing.T) {
	c := NewCoAClient(testConfig())
	p, err := c.BuildDisconnect(Session{
		Username:         "budi",
		AcctSessionID:    "81000001",
		FramedIP:         "10.10.0.7",
		CallingStationID: "AA:BB:CC:DD:EE:FF",
	})
	require.NoError(t, err)

	assert.Equal(t, radius.CodeDisconnectRequest, p.Code)
	assert.Equal(t, "budi", rfc2865.UserName_GetString(p))
	assert.Equal(t, "81000001", rfc2866.AcctSessionID_GetString(p))
	assert.Equal(t, "10.10.0.7", rfc2865.FramedIPAddress_Get(p).String())
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", rfc2865.CallingStationID_GetString(p))
}

func TestDisconnect(t *testing.T) {
	var gotAddr string
	ack := func(ctx context.Context, p *radius.Packet, addr string) (*radius.Packet, error) {
		gotAddr = addr
		return p.Response(radius.CodeDisconnectACK), nil
	}
	c := NewCoAClientWithExchanger(testConfig(), ack)

	reply, err := c.Disconnect(context.Background(), Session{Username: "budi", AcctSessionID: "1", NasIP: "192.168.88.1"})
	require.NoError(t, err)
	assert.True(t, reply.Acked)
	assert.Equal(t, "192.168.88.1:3799", gotAddr)

	nak := func(ctx context.Context, p *radius.Packet, addr string) (*radius.Packet, error) {
		return p.Response(radius.CodeDisconnectNAK), nil
	}
	reply, err = NewCoAClientWithExchanger(testConfig(), nak).Disconnect(context.Background(), Session{Username: "budi", NasIP: "192.168.88.1"})
	require.NoError(t, err)
	assert.False(t, reply.Acked)

	boom := func(ctx context.Context, p *radius.Packet, addr string) (*radius.Packet, error) {
		return nil, errors.New("timeout")
	}
	_, err = NewCoAClientWithExchanger(testConfig(), boom).Disconnect(context.Background(), Session{Username: "budi", NasIP: "192.168.88.1"})
	require.Error(t, err)

	_, err = c.Disconnect(context.Background(), Session{Username: "budi"})
	require.Error(t, err)

	_, err = NewCoAClientWithExchanger(&cfgpkg.Config{}, ack).Disconnect(context.Background(), Session{Username: "budi", NasIP: "1.1.1.1"})
	require.Error(t, err)
}
