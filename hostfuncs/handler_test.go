package hostfuncs

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gristlabs/gristbridge/wireformat"
)

func TestNewJSONHandler(t *testing.T) {
	type TestReq struct {
		Input string `json:"input"`
	}
	type TestResp struct {
		Output string `json:"output"`
	}

	handler := NewJSONHandler(func(ctx context.Context, req TestReq) TestResp {
		return TestResp{Output: "echo: " + req.Input}
	})

	t.Run("success", func(t *testing.T) {
		respBytes, err := handler(context.Background(), []byte(`{"input":"hello"}`))
		require.NoError(t, err)

		var resp TestResp
		require.NoError(t, json.Unmarshal(respBytes, &resp))
		assert.Equal(t, "echo: hello", resp.Output)
	})

	t.Run("invalid JSON returns ErrorResponse", func(t *testing.T) {
		respBytes, err := handler(context.Background(), []byte("{invalid-json"))
		require.NoError(t, err)

		var errResp ErrorResponse
		require.NoError(t, json.Unmarshal(respBytes, &errResp))
		assert.Equal(t, CodeValidation, errResp.Error.Code)
	})
}

func TestNewCallHandler(t *testing.T) {
	handler := NewCallHandler(func(ctx context.Context, req wireformat.CallRequestWire) (any, error) {
		switch req.Method {
		case "fail":
			return nil, stdErrors.New("no such row")
		case "bad":
			return nil, &ArgError{Index: 0, Reason: "expected string"}
		default:
			return map[string]any{"echo": req.Args}, nil
		}
	})

	decode := func(t *testing.T, payload string) wireformat.CallResponseWire {
		t.Helper()
		raw, err := handler(context.Background(), []byte(payload))
		require.NoError(t, err)
		var resp wireformat.CallResponseWire
		require.NoError(t, json.Unmarshal(raw, &resp))
		return resp
	}

	resp := decode(t, `{"method":"echo","args":[1,"a"]}`)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"echo": []any{float64(1), "a"}}, resp.Result)

	resp = decode(t, `{"method":"fail","args":[]}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "internal", resp.Error.Type)
	assert.Equal(t, "no such row", resp.Error.Message)

	resp = decode(t, `{"method":"bad","args":[]}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeValidation, resp.Error.Code)
	assert.Equal(t, "argument 0: expected string", resp.Error.Message)
}

func TestArgs(t *testing.T) {
	args := Args{"name", float64(7), map[string]any{"k": "v"}, map[string]any{"__callback__": "cb-1"}, 2.5, nil}

	s, ok, err := args.String(0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "name", s)

	_, ok, err = args.String(5)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = args.String(1)
	assert.Error(t, err)

	n, err := args.Int64(1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	_, err = args.Int64(4)
	assert.Error(t, err)

	m, err := args.Map(2)
	require.NoError(t, err)
	assert.Equal(t, "v", m["k"])

	id, err := args.Callback(3)
	require.NoError(t, err)
	assert.Equal(t, "cb-1", id)

	_, err = args.Callback(2)
	assert.Error(t, err)
}

func TestHostContext_SetGetValue(t *testing.T) {
	hc := NewHostContext(context.Background(), "update", []string{"tables", "T"}, "r-1")

	_, ok := hc.GetValue("key1")
	assert.False(t, ok)

	hc.SetValue("key1", "value1")
	val, ok := hc.GetValue("key1")
	assert.True(t, ok)
	assert.Equal(t, "value1", val)

	target := hc.Target()
	target[0] = "mutated"
	assert.Equal(t, []string{"tables", "T"}, hc.Target())
}

func TestHandlerName(t *testing.T) {
	assert.Equal(t, "ready", HandlerName(nil, "ready"))
	assert.Equal(t, "tables.update", HandlerName([]string{"tables", "People"}, "update"))
}
