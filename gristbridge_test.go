package gristbridge_test

import (
	"bytes"
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gristlabs/gristbridge"
	"github.com/gristlabs/gristbridge/domain/entities"
	"github.com/gristlabs/gristbridge/domain/errors"
	"github.com/gristlabs/gristbridge/guard"
	"github.com/gristlabs/gristbridge/hostsim"
	"github.com/gristlabs/gristbridge/internal/testutil"
	"github.com/gristlabs/gristbridge/output"
)

type env struct {
	host    *hostsim.Host
	surface *hostsim.Surface
	api     *gristbridge.API

	mu       sync.Mutex
	warnings []string
}

func newEnv(t *testing.T, opts ...gristbridge.Option) *env {
	t.Helper()
	host := testutil.NewHost(t, hostsim.WithTable("Pets", entities.Table{"id": {1}, "Name": {"Rex"}}))

	var err error
	e := &env{host: host, surface: hostsim.NewSurface()}
	opts = append([]gristbridge.Option{
		gristbridge.WithLock(guard.NewLock()),
		gristbridge.WithWarnFunc(func(_ context.Context, msg string, args ...any) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.warnings = append(e.warnings, fmt.Sprint(msg, args))
		}),
	}, opts...)
	e.api, err = gristbridge.New(context.Background(), host.Transport(), e.surface, opts...)
	require.NoError(t, err)
	return e
}

func (e *env) flush(t *testing.T) {
	t.Helper()
	testutil.Flush(t, e.host)
}

func (e *env) warningCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.warnings)
}

func printNames(ctx context.Context, table entities.Table) error {
	for _, name := range table["Name"] {
		if err := output.Print(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func TestNew_AcquiresSlots(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, 45, e.surface.Len())
	assert.Empty(t, e.surface.Filled())
	assert.Equal(t, gristbridge.DefaultConfig(), e.api.Config())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := gristbridge.DefaultConfig()
	cfg.SlotCapacity = 0

	_, err := gristbridge.New(context.Background(), nil, hostsim.NewSurface(), gristbridge.WithConfig(cfg))
	var cfgErr *errors.ConfigError
	require.True(t, stdErrors.As(err, &cfgErr))
	assert.Equal(t, "SlotCapacity", cfgErr.Field)
}

func TestOnRecords_CapturesPrints(t *testing.T) {
	e := newEnv(t)

	_, err := e.api.OnRecords(context.Background(), "", func(ctx context.Context, _ entities.Table) error {
		if err := output.Print(ctx, "a"); err != nil {
			return err
		}
		return output.Print(ctx, "b")
	})
	require.NoError(t, err)

	values := e.surface.Values()
	assert.Equal(t, "a", values[0])
	assert.Equal(t, "b", values[1])
	assert.Equal(t, []any{"a", "b"}, e.surface.Filled())
}

func TestOnRecords_RerunsOnChange(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.api.OnRecords(ctx, "", printNames)
	require.NoError(t, err)
	assert.Equal(t, []any{"Ann", "Bob"}, e.surface.Filled())

	e.host.PutTable(ctx, "People", entities.Table{"id": {1}, "Name": {"Cy"}})
	e.flush(t)
	assert.Equal(t, []any{"Cy"}, e.surface.Filled())

	require.NoError(t, e.host.SetSelectedTable(ctx, "Pets"))
	e.flush(t)
	assert.Equal(t, []any{"Rex"}, e.surface.Filled())
}

func TestOnRecords_SubscribesOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.api.OnRecords(ctx, "first", printNames)
	require.NoError(t, err)
	_, err = e.api.OnRecords(ctx, "second", printNames)
	require.NoError(t, err)

	assert.Equal(t, 1, e.host.Subscriptions(entities.EventRecords))
	assert.Equal(t, 2, e.api.Registry().Len(entities.EventRecords))
	assert.Zero(t, e.warningCount())
}

func TestOnRecords_DuplicateNameReplaces(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.api.OnRecords(ctx, "", printNames)
	require.NoError(t, err)
	_, err = e.api.OnRecords(ctx, "", printNames)
	require.NoError(t, err)

	assert.Equal(t, 1, e.api.Registry().Len(entities.EventRecords))
	require.Equal(t, 1, e.warningCount())
	assert.Contains(t, e.warnings[0], "printNames")

	_, err = e.api.OnRecords(ctx, "printer", func(ctx context.Context, _ entities.Table) error {
		return output.Print(ctx, "v1")
	})
	require.NoError(t, err)
	_, err = e.api.OnRecords(ctx, "printer", func(ctx context.Context, _ entities.Table) error {
		return output.Print(ctx, "v2")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, e.warningCount())

	e.host.PutTable(ctx, "People", entities.Table{"id": {1}, "Name": {"Ann"}})
	e.flush(t)
	// The replacement kept its position after printNames and ran last.
	assert.Equal(t, []any{"v2"}, e.surface.Filled())
}

func TestOnRecords_Overflow(t *testing.T) {
	e := newEnv(t)

	_, err := e.api.OnRecords(context.Background(), "", func(ctx context.Context, _ entities.Table) error {
		for i := range 50 {
			if err := output.Print(ctx, i); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	values := e.surface.Values()
	require.Len(t, values, 45)
	for i := range 44 {
		assert.Equal(t, i, values[i])
	}
	assert.Equal(t, "Too many outputs produced", values[44])
	assert.True(t, e.api.Pool().Overflowed())
}

func TestOnRecords_ErrorIsRenderedAndSwallowed(t *testing.T) {
	e := newEnv(t)

	_, err := e.api.OnRecords(context.Background(), "", func(ctx context.Context, _ entities.Table) error {
		if err := output.Print(ctx, "before"); err != nil {
			return err
		}
		return fmt.Errorf("ValueError: boom")
	})
	require.NoError(t, err)

	assert.Equal(t, []any{"before", "ValueError: boom\n"}, e.surface.Filled())
}

func TestOnRecords_PropagateErrors(t *testing.T) {
	cfg := gristbridge.DefaultConfig()
	cfg.PropagateListenerErrors = true
	e := newEnv(t, gristbridge.WithConfig(cfg))

	_, err := e.api.OnRecords(context.Background(), "", func(context.Context, entities.Table) error {
		return fmt.Errorf("ValueError: boom")
	})
	var le *errors.ListenerError
	require.True(t, stdErrors.As(err, &le))
	assert.Equal(t, []any{"ValueError: boom\n"}, e.surface.Filled())
}

func TestOnRecords_WithoutSeeding(t *testing.T) {
	ctx := context.Background()
	cfg := gristbridge.DefaultConfig()
	cfg.SeedOnRegister = false
	e := newEnv(t, gristbridge.WithConfig(cfg))

	_, err := e.api.OnRecords(ctx, "", printNames)
	require.NoError(t, err)
	assert.Empty(t, e.surface.Filled())

	e.host.PutTable(ctx, "People", entities.Table{"id": {1}, "Name": {"Ann"}})
	e.flush(t)
	assert.Equal(t, []any{"Ann"}, e.surface.Filled())
}

func TestOnRecord_FollowsCursor(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	var seen []string
	_, err := e.api.OnRecord(ctx, "", func(ctx context.Context, rec entities.Record) error {
		name := gristbridge.GetStringDefault(rec, "Name", "?")
		seen = append(seen, name)
		return output.Print(ctx, "row", name)
	})
	require.NoError(t, err)
	assert.Empty(t, seen, "nothing selected yet")
	assert.Equal(t, 1, e.host.Subscriptions(entities.EventRecord))

	require.NoError(t, e.host.SelectRecord(ctx, 2))
	e.flush(t)
	assert.Equal(t, []string{"Bob"}, seen)
	assert.Equal(t, []any{"row Bob\n"}, e.surface.Filled())

	_, err = e.api.OnRecord(ctx, "late", func(_ context.Context, rec entities.Record) error {
		seen = append(seen, "late:"+gristbridge.GetStringDefault(rec, "Name", "?"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob", "late:Bob"}, seen)
}

func TestOnRecords_NilListener(t *testing.T) {
	e := newEnv(t)
	_, err := e.api.OnRecords(context.Background(), "x", nil)
	assert.Error(t, err)
	_, err = e.api.OnRecord(context.Background(), "x", nil)
	assert.Error(t, err)
}

func TestAPI_PassThrough(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	require.NoError(t, e.api.Ready(ctx, map[string]any{"requiredAccess": "full"}))
	assert.Equal(t, 1, e.host.ReadyCalls())

	require.NoError(t, e.api.SetOption(ctx, "color", "red"))
	got, err := e.api.GetOption(ctx, "color")
	require.NoError(t, err)
	assert.Equal(t, "red", got)

	table, err := e.api.FetchSelectedTable(ctx, entities.FetchOptions{Format: "columns"})
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	rec, err := e.api.FetchSelectedRecord(ctx, 1, entities.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Ann", rec["Name"])

	rec, err = e.api.GetCurrentRecord(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = e.api.FetchSelectedRecord(ctx, 42, entities.FetchOptions{})
	be := testutil.RequireBoundaryError(t, err)
	assert.Equal(t, []string{"fetchSelectedRecord"}, be.Path)
}

func TestAPI_GetTable(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	pets, err := e.api.GetTable(ctx, "Pets")
	require.NoError(t, err)
	id, err := pets.Get("getTableId").Call(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Pets", id)

	_, err = pets.Get("create").Call(ctx, map[string]any{"fields": map[string]any{"Name": "Tom"}})
	require.NoError(t, err)
	data, ok := e.host.Table("Pets")
	require.True(t, ok)
	assert.Equal(t, []any{"Rex", "Tom"}, data["Name"])

	selected, err := e.api.GetTable(ctx, "")
	require.NoError(t, err)
	id, err = selected.Get("getTableId").Call(ctx)
	require.NoError(t, err)
	assert.Equal(t, "People", id)

	_, err = e.api.GetTable(ctx, "Nope")
	assert.Error(t, err)
}

func TestAPI_ListenerWritesBack(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	runs := 0
	_, err := e.api.OnRecords(ctx, "", func(ctx context.Context, table entities.Table) error {
		runs++
		if runs > 1 {
			return nil
		}
		people, err := e.api.GetTable(ctx, "")
		if err != nil {
			return err
		}
		_, err = people.Get("update").Call(ctx, map[string]any{"id": 1, "fields": map[string]any{"Name": "Ada"}})
		return err
	})
	require.NoError(t, err)
	e.flush(t)

	assert.Equal(t, 2, runs)
	data, _ := e.host.Table("People")
	assert.Equal(t, []any{"Ada", "Bob"}, data["Name"])
}

func TestAPI_Logger(t *testing.T) {
	e := newEnv(t)

	logger := e.api.Logger()
	logger.Debug("hidden")
	logger.Warn("slow render", "rows", 2)

	logs := e.host.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, "WARN", logs[0].Level)
	assert.Equal(t, "slow render", logs[0].Message)
	require.Len(t, logs[0].Attrs, 1)
	assert.Equal(t, "rows", logs[0].Attrs[0].Key)
	assert.Equal(t, "2", logs[0].Attrs[0].Value)
}

func TestAPI_Raw(t *testing.T) {
	e := newEnv(t)
	_, err := e.api.Raw().Get("setOption").Call(context.Background(), "k", "v")
	require.NoError(t, err)
	assert.Equal(t, "v", e.host.Options()["k"])
	assert.True(t, strings.HasPrefix(strings.Join(e.api.Raw().Get("x").Path(), "."), "grist."))
}

func TestAPI_WithLoggerReportsListenerFailures(t *testing.T) {
	var buf bytes.Buffer
	e := newEnv(t, gristbridge.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	_, err := e.api.OnRecords(context.Background(), "broken", func(context.Context, entities.Table) error {
		return fmt.Errorf("ValueError: boom")
	})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `msg="guard: listener failed"`)
	assert.Contains(t, buf.String(), "listener=broken")
}
