package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hearme/internal/herr"
)

func TestStopSharingIsIdempotentOnEmptyCell(t *testing.T) {
	var a AppState
	require.NotPanics(t, func() { a.StopSharing() })
	require.NotPanics(t, func() { a.StopSharing() })
}

func TestStopListeningIsIdempotentOnEmptyCell(t *testing.T) {
	var a AppState
	require.NotPanics(t, func() { a.StopListening() })
	require.NotPanics(t, func() { a.StopListening() })
}

func TestStartListeningRejectsBadTicket(t *testing.T) {
	var a AppState
	_, err := a.StartListening("not a valid ticket")
	require.Error(t, err)
	require.True(t, herr.Is(err, herr.BadTicket))
}

func TestStartSharingRejectsSecondCallWhileRunning(t *testing.T) {
	var a AppState
	a.share = &shareSession{id: "existing", stop: make(chan struct{})}

	_, _, err := a.StartSharing("1")
	require.Error(t, err)
	require.True(t, herr.Is(err, herr.AlreadyRunning))
}

func TestStartListeningRejectsSecondCallWhileRunning(t *testing.T) {
	var a AppState
	a.listen = &listenSession{id: "existing", stop: make(chan struct{})}

	_, err := a.StartListening("irrelevant")
	require.Error(t, err)
	require.True(t, herr.Is(err, herr.AlreadyRunning))
}
