package output

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/gristlabs/gristbridge/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type richValue struct{ html string }

func TestPrint_SingleArgumentKeepsValue(t *testing.T) {
	pool, surface := newPool(t, 5)
	ctx := WithSink(context.Background(), NewSink(pool, "f"))

	rich := richValue{html: "<b>hi</b>"}
	require.NoError(t, Print(ctx, rich))

	assert.Equal(t, rich, surface.slots[0].state.Value)
	assert.False(t, surface.slots[0].state.Options.Raw)
}

func TestPrint_FlattensOtherShapes(t *testing.T) {
	tests := []struct {
		name string
		want string
		opts PrintOptions
		args []any
	}{
		{name: "multiple args", opts: DefaultPrintOptions(), args: []any{"a", 1, true}, want: "a 1 true\n"},
		{name: "custom separator", opts: PrintOptions{Sep: ", ", End: "\n"}, args: []any{"a"}, want: "a\n"},
		{name: "custom end", opts: PrintOptions{Sep: " ", End: ""}, args: []any{"a", "b"}, want: "a b"},
		{name: "no args", opts: DefaultPrintOptions(), args: nil, want: "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, surface := newPool(t, 3)
			ctx := WithSink(context.Background(), NewSink(pool, "f"))

			require.NoError(t, PrintWith(ctx, tt.opts, tt.args...))
			assert.Equal(t, tt.want, surface.slots[0].state.Value)
			assert.True(t, surface.slots[0].state.Options.Raw)
		})
	}
}

func TestPrint_FlattenIsBounded(t *testing.T) {
	pool, surface := newPool(t, 3)
	sink := NewSink(pool, "f")
	sink.text = NewBoundedBuffer(8)
	ctx := WithSink(context.Background(), sink)

	require.NoError(t, Print(ctx, "0123456789", "tail"))
	got := surface.slots[0].state.Value.(string)
	assert.True(t, strings.HasPrefix(got, "01234567"))
	assert.True(t, strings.HasSuffix(got, truncationMarker))

	// the buffer is reused; truncation does not carry over
	require.NoError(t, Print(ctx, "a", "b"))
	assert.Equal(t, "a b\n", surface.slots[1].state.Value)
}

func TestDisplay_RoutesWithOptions(t *testing.T) {
	pool, surface := newPool(t, 3)
	ctx := WithSink(context.Background(), NewSink(pool, "f"))

	opts := entities.DisplayOptions{MIMEType: "text/html"}
	require.NoError(t, Display(ctx, "<i>x</i>", opts))
	assert.Equal(t, opts, surface.slots[0].state.Options)
}

func TestFallback_OutsideInvocation(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithFallback(context.Background(), &buf)

	require.NoError(t, Print(ctx, "a", "b"))
	require.NoError(t, Display(ctx, 3, entities.DisplayOptions{}))
	assert.Equal(t, "a b\n3\n", buf.String())
}

func TestFallback_SealedSink(t *testing.T) {
	pool, surface := newPool(t, 3)
	sink := NewSink(pool, "f")

	var buf bytes.Buffer
	ctx := WithFallback(WithSink(context.Background(), sink), &buf)

	require.NoError(t, Print(ctx, "captured"))
	sink.Seal()
	require.NoError(t, Print(ctx, "late"))

	assert.Equal(t, "captured", surface.slots[0].state.Value)
	assert.Equal(t, "", surface.slots[1].state.Value)
	assert.Equal(t, "late\n", buf.String())

	_, ok := SinkFrom(ctx)
	assert.False(t, ok)
}

func TestBoundedBuffer(t *testing.T) {
	buf := NewBoundedBuffer(4)
	n, err := buf.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.True(t, buf.Truncated)
	assert.Equal(t, "abcd"+truncationMarker, buf.String())

	buf.Reset()
	assert.False(t, buf.Truncated)
	_, _ = buf.WriteString("ok")
	assert.Equal(t, "ok", buf.String())
}
