package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paramsIded struct {
	ID int64 `json:"id"`
}

type paramsList struct {
	Filter *string `json:"filter"`
	Limit  int     `json:"limit,omitempty"`
}

func (p *paramsList) SetDefaults() { p.Limit = 300 }

func constHandler(v string) Handler {
	return Func(func(_ context.Context, _ NoParams) (string, error) {
		return v, nil
	})
}

func call(t *testing.T, r *Router, method string, res Resources, params string) (json.RawMessage, error) {
	t.Helper()
	var raw json.RawMessage
	if params != "" {
		raw = json.RawMessage(params)
	}
	return r.Call(context.Background(), method, res, raw)
}

func TestRouter_SingleEntryRoutesToHandler(t *testing.T) {
	r := NewBuilder().Add("only", constHandler("only")).Build()

	out, err := call(t, r, "only", Resources{}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `"only"`, string(out))
}

func TestRouter_DuplicateNameLastWins(t *testing.T) {
	r := NewBuilder().
		Add("x", constHandler("first")).
		Add("x", constHandler("second")).
		Build()

	out, err := call(t, r, "x", Resources{}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `"second"`, string(out))
	assert.Equal(t, 1, r.Len())
}

func TestRouter_ExtendMergedInWins(t *testing.T) {
	a := NewBuilder().Add("x", constHandler("a")).Add("only_a", constHandler("a")).Build()
	b := NewBuilder().Add("x", constHandler("b")).Build()

	r := NewBuilder().Extend(a).Extend(b).Build()

	out, err := call(t, r, "x", Resources{}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `"b"`, string(out))

	out, err = call(t, r, "only_a", Resources{}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `"a"`, string(out))
}

func TestRouter_ExtendNilIsNoop(t *testing.T) {
	r := NewBuilder().Add("x", constHandler("x")).Extend(nil).Build()
	assert.Equal(t, []string{"x"}, r.Methods())
}

func TestRouter_MethodUnknown(t *testing.T) {
	r := NewBuilder().Add("known", constHandler("k")).Build()

	for _, name := range []string{"nonexistent", "", "Known"} {
		_, err := call(t, r, name, Resources{}, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMethodUnknown)

		var re *Error
		require.ErrorAs(t, err, &re)
		assert.Equal(t, KindMethodUnknown, re.Kind)
		assert.Equal(t, name, re.Method)
	}
}

func TestRouter_MissingParamsVersusDefault(t *testing.T) {
	var got paramsList
	r := NewBuilder().
		Add("get", Func(func(_ context.Context, p paramsIded) (int64, error) { return p.ID, nil })).
		Add("list", Func(func(_ context.Context, p paramsList) (int, error) {
			got = p
			return p.Limit, nil
		})).
		Build()

	_, err := call(t, r, "get", Resources{}, "")
	assert.ErrorIs(t, err, ErrMissingParams)

	_, err = call(t, r, "get", Resources{}, "null")
	assert.ErrorIs(t, err, ErrMissingParams)

	out, err := call(t, r, "list", Resources{}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `300`, string(out))
	assert.Nil(t, got.Filter)
}

func TestRouter_ParamsParsing(t *testing.T) {
	var seen int64
	r := NewBuilder().
		Add("get", Func(func(_ context.Context, p paramsIded) (bool, error) {
			seen = p.ID
			return true, nil
		})).
		Build()

	_, err := call(t, r, "get", Resources{}, `{"id":"abc"}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParamsParsing)
	var typeErr *json.UnmarshalTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "id", typeErr.Field)

	_, err = call(t, r, "get", Resources{}, `{"id":42}`)
	require.NoError(t, err)
	assert.Equal(t, int64(42), seen)
}

func TestRouter_EchoIDEndToEnd(t *testing.T) {
	r := NewBuilder().
		Add("echo_id", Func(func(_ context.Context, p paramsIded) (map[string]int64, error) {
			return map[string]int64{"echoed": p.ID}, nil
		})).
		Build()

	out, err := call(t, r, "echo_id", NewResources(), `{"id":7}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"echoed":7}`, string(out))
}

func TestRouter_ComposedSubRoutersDoNotCrossWire(t *testing.T) {
	tasks := NewBuilder().
		Add("create_task", Func(func(_ context.Context, _ NoParams) (string, error) { return "task", nil })).
		Build()
	projects := NewBuilder().
		Add("create_project", Func(func(_ context.Context, _ NoParams) (string, error) { return "project", nil })).
		Build()

	r := NewBuilder().Extend(tasks).Extend(projects).Build()

	out, err := call(t, r, "create_task", Resources{}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `"task"`, string(out))

	out, err = call(t, r, "create_project", Resources{}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `"project"`, string(out))

	assert.Equal(t, []string{"create_project", "create_task"}, r.Methods())
}

func TestRouter_BuildSnapshotsRoutes(t *testing.T) {
	b := NewBuilder().Add("x", constHandler("before"))
	r := b.Build()
	b.Add("x", constHandler("after")).Add("y", constHandler("y"))

	out, err := call(t, r, "x", Resources{}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `"before"`, string(out))
	_, ok := r.Lookup("y")
	assert.False(t, ok)
}

func TestRouter_HandlerErrorPassesThroughUnchanged(t *testing.T) {
	domainErr := errors.New("project not found")
	r := NewBuilder().
		Add("fail", Func(func(_ context.Context, _ NoParams) (any, error) { return nil, domainErr })).
		Build()

	_, err := call(t, r, "fail", Resources{}, "")
	assert.Same(t, domainErr, err)
	_, isCore := KindOf(err)
	assert.False(t, isCore)
}

func TestRouter_SerializationErrorIsDistinct(t *testing.T) {
	r := NewBuilder().
		Add("chan", Func(func(_ context.Context, _ NoParams) (chan int, error) { return make(chan int), nil })).
		Build()

	_, err := call(t, r, "chan", Resources{}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSerialization)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindSerialization, kind)
}

func TestRouter_MiddlewareOrder(t *testing.T) {
	var trace []string
	mw := func(tag string) Middleware {
		return func(method string, next Handler) Handler {
			return HandlerFunc(func(ctx context.Context, res Resources, params json.RawMessage) (json.RawMessage, error) {
				trace = append(trace, tag+":"+method)
				return next.Call(ctx, res, params)
			})
		}
	}

	r := NewBuilder().Use(mw("outer"), mw("inner")).Add("m", constHandler("v")).Build()

	_, err := call(t, r, "m", Resources{}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"outer:m", "inner:m"}, trace)
}

func TestRouter_ConcurrentCalls(t *testing.T) {
	r := NewBuilder().
		Add("echo_id", Func(func(_ context.Context, p paramsIded) (int64, error) { return p.ID, nil })).
		Build()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := r.Call(context.Background(), "echo_id", Resources{}, json.RawMessage(fmt.Sprintf(`{"id":%d}`, i)))
			if err != nil {
				errs <- err
				return
			}
			if string(out) != fmt.Sprint(i) {
				errs <- fmt.Errorf("got %s, want %d", out, i)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

type mathService struct{}

type addParams struct {
	_ struct{} `jsonrpc:"add"`
	A int      `json:"a"`
	B int      `json:"b"`
}

func (mathService) Add(_ context.Context, p addParams) (int, error) { return p.A + p.B, nil }

func (mathService) Neg(_ context.Context, n int) (int, error) { return -n, nil }

func (mathService) Scale(_ context.Context, factor int, p addParams) (int, error) {
	return factor * (p.A + p.B), nil
}

func (mathService) NotAHandler(a, b int) int { return a + b }

func TestBuilder_AddMethods(t *testing.T) {
	r := NewBuilder().AddMethods("math", mathService{}).Build()

	assert.Equal(t, []string{"math.Neg", "math.Scale", "math.add"}, r.Methods())

	out, err := call(t, r, "math.add", Resources{}, `[2,3]`)
	require.NoError(t, err)
	assert.JSONEq(t, `5`, string(out))

	out, err = call(t, r, "math.Neg", Resources{}, `4`)
	require.NoError(t, err)
	assert.JSONEq(t, `-4`, string(out))

	out, err = call(t, r, "math.Scale", NewResources(10), `{"a":1,"b":2}`)
	require.NoError(t, err)
	assert.JSONEq(t, `30`, string(out))

	_, err = call(t, r, "math.Scale", Resources{}, `{"a":1,"b":2}`)
	assert.ErrorIs(t, err, ErrResourceExtraction)
}

func TestBuilder_AddMethodsWithoutNamespace(t *testing.T) {
	r := NewBuilder().AddMethods("", mathService{}).Build()
	_, ok := r.Lookup("add")
	assert.True(t, ok)
}

func TestBuilder_AddNilHandlerPanics(t *testing.T) {
	assert.Panics(t, func() { NewBuilder().Add("x", nil) })
}

func TestBuilder_AddMethodsNilReceiverPanics(t *testing.T) {
	assert.PanicsWithValue(t, "rpc: nil receiver for namespace math", func() {
		NewBuilder().AddMethods("math", nil)
	})
}
