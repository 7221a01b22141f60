package proxy

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/gristlabs/gristbridge/convert"
	"github.com/gristlabs/gristbridge/domain/errors"
	"github.com/gristlabs/gristbridge/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	kwargs map[string]any
	path   string
	args   []any
}

// recorder is a fake transport that records every boundary call.
type recorder struct {
	results   map[string]any
	errs      map[string]error
	callbacks []ports.CallbackFunc
	calls     []recordedCall
	mu        sync.Mutex
}

func newRecorder() *recorder {
	return &recorder{results: map[string]any{}, errs: map[string]error{}}
}

func (r *recorder) Root() ports.Reference { return &fakeRef{rec: r} }

func (r *recorder) WrapCallback(fn ports.CallbackFunc) (ports.CallbackRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
	return cbRef(fmt.Sprintf("cb-%d", len(r.callbacks))), nil
}

type cbRef string

func (c cbRef) CallbackID() string { return string(c) }

type fakeRef struct {
	rec  *recorder
	path []string
}

func (f *fakeRef) Get(name string) ports.Reference {
	path := append(append([]string{}, f.path...), name)
	return &fakeRef{rec: f.rec, path: path}
}

func (f *fakeRef) Call(_ context.Context, args []any, kwargs map[string]any) (any, error) {
	key := strings.Join(f.path, ".")
	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	f.rec.calls = append(f.rec.calls, recordedCall{path: key, args: args, kwargs: kwargs})
	if err := f.rec.errs[key]; err != nil {
		return nil, err
	}
	return f.rec.results[key], nil
}

type guestValue struct{ v any }

func (g guestValue) ToGuest() (any, error) { return g.v, nil }

func newRoot(rec *recorder) *Proxy {
	return New(rec.Root(), "", convert.New(rec))
}

func TestProxy_AttributeChainIssuesOneCall(t *testing.T) {
	rec := newRecorder()
	rec.results["a.b.c"] = 42

	p := newRoot(rec).Get("a").Get("b").Get("c")
	assert.Equal(t, "c", p.Name())
	assert.Equal(t, []string{"a", "b", "c"}, p.Path())
	assert.Empty(t, rec.calls, "attribute access must not cross the boundary")

	got, err := p.Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, "a.b.c", rec.calls[0].path)
}

func TestProxy_GetIsNotMemoized(t *testing.T) {
	root := newRoot(newRecorder())
	first := root.Get("fetchSelectedTable")
	second := root.Get("fetchSelectedTable")

	assert.NotSame(t, first, second)
	assert.Equal(t, first.Path(), second.Path())
}

func TestProxy_ConvertsArgumentsAndKeywords(t *testing.T) {
	rec := newRecorder()
	p := newRoot(rec).Get("fetchSelectedRecord")

	_, err := p.CallKw(context.Background(),
		map[string]any{"opts": map[string]bool{"keepEncoded": true}},
		7, []string{"x"})
	require.NoError(t, err)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, []any{7, []any{"x"}}, rec.calls[0].args)
	assert.Equal(t, map[string]any{"opts": map[string]any{"keepEncoded": true}}, rec.calls[0].kwargs)
}

func TestProxy_SingleCallbackIsWrapped(t *testing.T) {
	rec := newRecorder()
	rec.results["onRecords"] = guestValue{v: "subscribed"}

	var got []any
	listener := func(_ context.Context, args []any) (any, error) {
		got = args
		return nil, nil
	}

	res, err := newRoot(rec).Get("onRecords").Call(context.Background(), listener)
	require.NoError(t, err)
	assert.Equal(t, "subscribed", res)

	require.Len(t, rec.calls, 1)
	require.Len(t, rec.calls[0].args, 1)
	assert.Equal(t, cbRef("cb-1"), rec.calls[0].args[0])

	require.Len(t, rec.callbacks, 1)
	_, err = rec.callbacks[0](context.Background(), []any{guestValue{v: "row"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"row"}, got)
}

func TestProxy_CallbackShapeErrors(t *testing.T) {
	cb := func(context.Context, []any) (any, error) { return nil, nil }

	tests := []struct {
		name   string
		kwargs map[string]any
		args   []any
	}{
		{name: "two callbacks", args: []any{cb, cb}},
		{name: "callback with value", args: []any{cb, 1}},
		{name: "callback with keyword", args: []any{cb}, kwargs: map[string]any{"k": 1}},
		{name: "callback as keyword", kwargs: map[string]any{"k": cb}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecorder()
			_, err := newRoot(rec).Get("onRecord").CallKw(context.Background(), tt.kwargs, tt.args...)
			require.Error(t, err)

			var shapeErr *errors.ArgumentShapeError
			require.True(t, stdErrors.As(err, &shapeErr))
			assert.Contains(t, err.Error(), errors.ErrOneCallback)
			assert.Empty(t, rec.calls, "usage errors are raised before any boundary call")
			assert.Empty(t, rec.callbacks)
		})
	}
}

func TestProxy_GetTableResultIsWrapped(t *testing.T) {
	rec := newRecorder()
	tableRef := rec.Root().Get("tables").Get("People")
	rec.results["getTable"] = tableRef

	res, err := newRoot(rec).Get(TableAccessor).Call(context.Background(), "People")
	require.NoError(t, err)

	table, ok := res.(*Proxy)
	require.True(t, ok)
	assert.Same(t, tableRef, table.Ref())

	rec.results["tables.People.update"] = "ok"
	got, err := table.Get("update").Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

// convertibleRef is a remote object that also exposes a native conversion.
type convertibleRef struct {
	*fakeRef
}

func (convertibleRef) ToGuest() (any, error) { return "converted", nil }

func TestProxy_GetTableWrapsEvenConvertibleResults(t *testing.T) {
	rec := newRecorder()
	ref := convertibleRef{fakeRef: &fakeRef{rec: rec, path: []string{"tables", "Pets"}}}
	rec.results["getTable"] = ref

	res, err := newRoot(rec).Get(TableAccessor).Call(context.Background(), "Pets")
	require.NoError(t, err)

	table, ok := res.(*Proxy)
	require.True(t, ok, "getTable results are proxied, never converted")
	assert.Equal(t, ref, table.Ref())
}

func TestProxy_GetTableRejectsPlainValues(t *testing.T) {
	rec := newRecorder()
	rec.results["getTable"] = map[string]any{"id": []any{1}}

	_, err := newRoot(rec).Get(TableAccessor).Call(context.Background(), "People")
	require.Error(t, err)

	var be *errors.BoundaryError
	require.True(t, stdErrors.As(err, &be))
}

func TestProxy_BoundaryErrorsPropagate(t *testing.T) {
	rec := newRecorder()
	base := fmt.Errorf("host rejected call")
	rec.errs["fetchSelectedTable"] = base

	_, err := newRoot(rec).Get("fetchSelectedTable").Call(context.Background())
	require.Error(t, err)
	assert.True(t, stdErrors.Is(err, base))

	var be *errors.BoundaryError
	require.True(t, stdErrors.As(err, &be))
	assert.Equal(t, []string{"fetchSelectedTable"}, be.Path)
}

func TestProxy_ExistingBoundaryErrorNotRewrapped(t *testing.T) {
	rec := newRecorder()
	orig := &errors.BoundaryError{Path: []string{"ready"}, Err: fmt.Errorf("closed")}
	rec.errs["ready"] = orig

	_, err := newRoot(rec).Get("ready").Call(context.Background())
	assert.Same(t, orig, err)
}
