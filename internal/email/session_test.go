package email

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brandon/mail-engine/pkg/types"
)

func TestDialIMAPConnectFailureStaysWithinWindow(t *testing.T) {
	// Grab a port that is guaranteed closed.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	timeout := 2 * time.Second
	factory := DialIMAP(timeout, discardLogger())
	acc := &types.MailAccount{
		Name:    "work",
		Host:    "127.0.0.1",
		Port:    port,
		Address: "alice@example.com",
	}

	start := time.Now()
	_, err = factory(acc, "secret")
	require.Error(t, err)
	require.Less(t, time.Since(start), timeout, "connect failures must not outlive the session window")
}
