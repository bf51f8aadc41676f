package appstate_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/poolwarden/poolwarden/internal/infra/appstate"
	"github.com/poolwarden/poolwarden/internal/infra/health"
)

func newState(t *testing.T) *appstate.AppState {
	t.Helper()

	logger := slog.Default()
	quit := make(chan os.Signal, 1)
	healthReg := health.New(logger, time.Second)

	return appstate.New(logger, time.Now(), quit, healthReg)
}

func TestAppState_StateTransitions(t *testing.T) {
	t.Parallel()

	t.Run("init to starting", func(t *testing.T) {
		t.Parallel()

		s := newState(t)
		require.NoError(t, s.SetStarting(t.Context()))
		require.Equal(t, appstate.StateStarting, s.GetState())
	})

	t.Run("starting to running", func(t *testing.T) {
		t.Parallel()

		s := newState(t)
		require.NoError(t, s.SetStarting(t.Context()))
		require.NoError(t, s.SetRunning(t.Context()))
		require.Equal(t, appstate.StateRunning, s.GetState())
	})

	t.Run("invalid: init to running", func(t *testing.T) {
		t.Parallel()

		s := newState(t)
		err := s.SetRunning(t.Context())
		require.ErrorIs(t, err, appstate.ErrInvalidStateTransition)
		require.Equal(t, appstate.StateInit, s.GetState())
	})

	t.Run("terminated cannot change", func(t *testing.T) {
		t.Parallel()

		s := newState(t)
		require.NoError(t, s.SetStarting(t.Context()))
		require.NoError(t, s.SetRunning(t.Context()))
		require.NoError(t, s.Shutdown(t.Context()))
		require.Equal(t, appstate.StateTerminated, s.GetState())

		err := s.SetStarting(t.Context())
		require.Error(t, err)
		require.Equal(t, appstate.StateTerminated, s.GetState())
	})
}

func TestAppState_Readiness(t *testing.T) {
	t.Parallel()

	s := newState(t)
	require.False(t, s.IsReady())

	require.NoError(t, s.SetStarting(t.Context()))
	require.False(t, s.IsReady())

	require.NoError(t, s.SetRunning(t.Context()))
	require.True(t, s.IsReady())

	require.NoError(t, s.SetTerminating(t.Context()))
	require.False(t, s.IsReady())
}

func TestAppState_Shutdown(t *testing.T) {
	t.Parallel()

	s := newState(t)
	require.NoError(t, s.SetStarting(t.Context()))
	require.NoError(t, s.SetRunning(t.Context()))

	require.NoError(t, s.Shutdown(t.Context()))
	require.Equal(t, appstate.StateTerminated, s.GetState())

	// A second shutdown is rejected.
	require.Error(t, s.Shutdown(t.Context()))
}
