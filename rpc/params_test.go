package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paramsForUpdate struct {
	ID   int64          `json:"id"`
	Data map[string]any `json:"data"`
}

type embeddedBase struct {
	ID int64 `json:"id"`
}

type paramsEmbedded struct {
	embeddedBase
	Name string `json:"name"`
}

// csvParams decodes "a,b,c" strings itself.
type csvParams struct {
	Items []string
}

func (p *csvParams) DecodeParams(raw json.RawMessage) error {
	if raw == nil {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	p.Items = strings.Split(s, ",")
	return nil
}

func TestAbsent(t *testing.T) {
	assert.True(t, Absent(nil))
	assert.True(t, Absent(json.RawMessage("")))
	assert.True(t, Absent(json.RawMessage(" null ")))
	assert.False(t, Absent(json.RawMessage("{}")))
	assert.False(t, Absent(json.RawMessage("0")))
}

func TestDecodeParams_Object(t *testing.T) {
	p, err := DecodeParams[paramsForUpdate](json.RawMessage(`{"id":3,"data":{"name":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.ID)
	assert.Equal(t, "x", p.Data["name"])
}

func TestDecodeParams_MissingRequiredField(t *testing.T) {
	_, err := DecodeParams[paramsIded](json.RawMessage(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParamsParsing)
	assert.Contains(t, err.Error(), "missing field id")
}

func TestDecodeParams_RequiredFieldMatchesCaseInsensitively(t *testing.T) {
	p, err := DecodeParams[paramsIded](json.RawMessage(`{"ID":5}`))
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.ID)
}

func TestDecodeParams_OptionalFieldsMayBeOmitted(t *testing.T) {
	p, err := DecodeParams[paramsForUpdate](json.RawMessage(`{"id":1}`))
	require.NoError(t, err)
	assert.Nil(t, p.Data)
}

func TestDecodeParams_Positional(t *testing.T) {
	p, err := DecodeParams[paramsForUpdate](json.RawMessage(`[9, {"k":1}]`))
	require.NoError(t, err)
	assert.Equal(t, int64(9), p.ID)

	_, err = DecodeParams[paramsForUpdate](json.RawMessage(`[9]`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParamsParsing)
	assert.Contains(t, err.Error(), "invalid number of params")

	_, err = DecodeParams[paramsForUpdate](json.RawMessage(`["x", {}]`))
	assert.ErrorIs(t, err, ErrParamsParsing)
}

func TestDecodeParams_EmbeddedFieldsFlattened(t *testing.T) {
	p, err := DecodeParams[paramsEmbedded](json.RawMessage(`{"id":2,"name":"n"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.ID)
	assert.Equal(t, "n", p.Name)

	_, err = DecodeParams[paramsEmbedded](json.RawMessage(`{"name":"n"}`))
	assert.ErrorIs(t, err, ErrParamsParsing)

	p, err = DecodeParams[paramsEmbedded](json.RawMessage(`[4,"m"]`))
	require.NoError(t, err)
	assert.Equal(t, int64(4), p.ID)
	assert.Equal(t, "m", p.Name)
}

func TestDecodeParams_ScalarIntoStruct(t *testing.T) {
	_, err := DecodeParams[paramsIded](json.RawMessage(`12`))
	assert.ErrorIs(t, err, ErrParamsParsing)
}

func TestDecodeParams_NonStruct(t *testing.T) {
	n, err := DecodeParams[int](json.RawMessage(`12`))
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = DecodeParams[int](nil)
	assert.ErrorIs(t, err, ErrMissingParams)
}

func TestDecodeParams_PointerToStruct(t *testing.T) {
	p, err := DecodeParams[*paramsIded](json.RawMessage(`{"id":1}`))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(1), p.ID)
}

func TestDecodeParams_NoParams(t *testing.T) {
	for _, raw := range []string{"", "null", "{}", "[]"} {
		_, err := DecodeParams[NoParams](json.RawMessage(raw))
		assert.NoError(t, err, "raw=%q", raw)
	}
}

func TestDecodeParams_Defaulter(t *testing.T) {
	p, err := DecodeParams[paramsList](nil)
	require.NoError(t, err)
	assert.Equal(t, 300, p.Limit)

	// Present params are decoded normally, defaults are not applied.
	p, err = DecodeParams[paramsList](json.RawMessage(`{"limit":5}`))
	require.NoError(t, err)
	assert.Equal(t, 5, p.Limit)

	_, err = DecodeParams[paramsList](json.RawMessage(`{"limit":"many"}`))
	assert.ErrorIs(t, err, ErrParamsParsing)
}

func TestDecodeParams_CustomDecoder(t *testing.T) {
	p, err := DecodeParams[csvParams](json.RawMessage(`"a,b"`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, p.Items)

	p, err = DecodeParams[csvParams](json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Nil(t, p.Items)

	_, err = DecodeParams[csvParams](json.RawMessage(`1`))
	assert.ErrorIs(t, err, ErrParamsParsing)
}

func TestError_Messages(t *testing.T) {
	err := &Error{Kind: KindParamsParsing, Type: "rpc.paramsIded", Cause: errors.New("boom")}
	assert.Equal(t, "rpc: invalid params (rpc.paramsIded): boom", err.Error())
	assert.Equal(t, `rpc: method unknown: "x"`, methodUnknown("x").Error())
	assert.Equal(t, "params_parsing", KindParamsParsing.String())

	var nilErr *Error
	assert.Equal(t, "rpc: error: <nil>", nilErr.Error())
	assert.False(t, errors.Is(err, ErrMissingParams))
}

func TestDecodeParams_PointerDefaulter(t *testing.T) {
	p, err := DecodeParams[*paramsList](nil)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 300, p.Limit)

	p, err = DecodeParams[*paramsList](json.RawMessage(`{"limit":5}`))
	require.NoError(t, err)
	assert.Equal(t, 5, p.Limit)

	h := Func(func(_ context.Context, p *paramsList) (int, error) { return p.Limit, nil })
	out, err := h.Call(context.Background(), Resources{}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `300`, string(out))
}

func TestDecodeParams_PointerCustomDecoder(t *testing.T) {
	p, err := DecodeParams[*csvParams](json.RawMessage(`"x,y"`))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, []string{"x", "y"}, p.Items)

	p, err = DecodeParams[*csvParams](nil)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Nil(t, p.Items)

	_, err = DecodeParams[*csvParams](json.RawMessage(`1`))
	assert.ErrorIs(t, err, ErrParamsParsing)
}

func TestDecodeParams_PointerWithoutDefaultsIsMissing(t *testing.T) {
	_, err := DecodeParams[*paramsIded](nil)
	assert.ErrorIs(t, err, ErrMissingParams)
}
