// Package testutil provides common test utilities and assertions for bridge tests.
package testutil

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gristlabs/gristbridge/domain/entities"
	"github.com/gristlabs/gristbridge/domain/errors"
	"github.com/gristlabs/gristbridge/hostsim"
)

// QuietLogger returns a logger that discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// People is the default fixture table.
func People() entities.Table {
	return entities.Table{"id": {1, 2}, "Name": {"Ann", "Bob"}}
}

// NewHost starts a simulated host with a quiet logger and the People table,
// closing it when the test ends.
func NewHost(t *testing.T, opts ...hostsim.Option) *hostsim.Host {
	t.Helper()
	opts = append([]hostsim.Option{
		hostsim.WithLogger(QuietLogger()),
		hostsim.WithTable("People", People()),
	}, opts...)
	host, err := hostsim.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = host.Close() })
	return host
}

// Flush waits until the host has delivered every queued event.
func Flush(t *testing.T, host *hostsim.Host) {
	t.Helper()
	require.NoError(t, host.Flush(context.Background()))
}

// AssertRendered asserts that text was written to some slot of surface at
// any point.
func AssertRendered(t *testing.T, surface *hostsim.Surface, text string, msgAndArgs ...interface{}) {
	t.Helper()
	for _, u := range surface.History() {
		if s, ok := u.Value.(string); ok && s == text {
			return
		}
	}
	assert.Fail(t, "text was not rendered: "+text, msgAndArgs...)
}

// RequireBoundaryError asserts err is a rejected boundary call and returns it.
func RequireBoundaryError(t *testing.T, err error) *errors.BoundaryError {
	t.Helper()
	var be *errors.BoundaryError
	require.True(t, stdErrors.As(err, &be), "expected *errors.BoundaryError, got %v", err)
	return be
}

// AssertJSONEqual compares two JSON strings for equality, ignoring formatting
func AssertJSONEqual(t *testing.T, expected, actual string, msgAndArgs ...interface{}) {
	t.Helper()

	var expectedJSON, actualJSON interface{}
	require.NoError(t, json.Unmarshal([]byte(expected), &expectedJSON), "expected JSON is invalid")
	require.NoError(t, json.Unmarshal([]byte(actual), &actualJSON), "actual JSON is invalid")

	assert.Equal(t, expectedJSON, actualJSON, msgAndArgs...)
}
