package endpoint

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestUnmarshal_Sources(t *testing.T) {
	type params struct {
		Q      string   `query:"q"`
		N      int      `query:"n"`
		Tags   []string `query:"tag"`
		Token  string   `header:"authorization"`
		Sess   string   `cookie:"sess"`
		Absent *string  `query:"absent"`
		Lower  bool     `query:""`
	}
	r := httptest.NewRequest(http.MethodGet, "/?q=hi&n=3&tag=a&tag=b&lower=true", nil)
	r.Header.Set("Authorization", "Bearer x")
	r.AddCookie(&http.Cookie{Name: "sess", Value: "abc"})

	var p params
	if err := Unmarshal(r, &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.Q != "hi" || p.N != 3 || p.Token != "Bearer x" || p.Sess != "abc" || !p.Lower {
		t.Errorf("got %+v", p)
	}
	if strings.Join(p.Tags, ",") != "a,b" {
		t.Errorf("Tags = %v", p.Tags)
	}
	if p.Absent != nil {
		t.Errorf("Absent = %v, want nil", *p.Absent)
	}
}

func TestUnmarshal_QueryBeatsCookie(t *testing.T) {
	type params struct {
		V string `query:"v" cookie:"v"`
	}
	r := httptest.NewRequest(http.MethodGet, "/?v=query", nil)
	r.AddCookie(&http.Cookie{Name: "v", Value: "cookie"})
	var p params
	if err := Unmarshal(r, &p); err != nil {
		t.Fatal(err)
	}
	if p.V != "query" {
		t.Errorf("V = %q", p.V)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "v", Value: "cookie"})
	p = params{}
	if err := Unmarshal(r, &p); err != nil {
		t.Fatal(err)
	}
	if p.V != "cookie" {
		t.Errorf("V = %q", p.V)
	}
}

func TestUnmarshal_Body(t *testing.T) {
	type raw struct {
		Body []byte `body:""`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	var p raw
	if err := Unmarshal(r, &p); err != nil {
		t.Fatal(err)
	}
	if string(p.Body) != `{"a":1}` {
		t.Errorf("Body = %q", p.Body)
	}

	type decoded struct {
		Body struct {
			A int `json:"a"`
		} `body:",json"`
	}
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	var d decoded
	if err := Unmarshal(r, &d); err != nil {
		t.Fatal(err)
	}
	if d.Body.A != 1 {
		t.Errorf("A = %d", d.Body.A)
	}
}

func TestUnmarshal_BodyJSONRequiresContentType(t *testing.T) {
	type decoded struct {
		Body map[string]any `body:",json"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "text/plain")
	err := Unmarshal(r, &decoded{})
	var ee *EndpointError
	if !errors.As(err, &ee) || ee.Status != http.StatusUnsupportedMediaType {
		t.Fatalf("err = %v, want 415", err)
	}
}

func TestUnmarshal_BodyTooLarge(t *testing.T) {
	type small struct {
		Body string `body:"" maxLength:"4"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("12345"))
	err := Unmarshal(r, &small{})
	var ee *EndpointError
	if !errors.As(err, &ee) || ee.Status != http.StatusRequestEntityTooLarge {
		t.Fatalf("err = %v, want 413", err)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("1234"))
	var p small
	if err := Unmarshal(r, &p); err != nil || p.Body != "1234" {
		t.Fatalf("at limit: %v %q", err, p.Body)
	}
}

func TestUnmarshal_FieldMaxLength(t *testing.T) {
	type params struct {
		Q string `query:"q"`
	}
	r := httptest.NewRequest(http.MethodGet, "/?q="+strings.Repeat("x", defaultFieldLimit+1), nil)
	err := Unmarshal(r, &params{})
	var ee *EndpointError
	if !errors.As(err, &ee) || ee.Status != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}

	type bad struct {
		Q string `query:"q" maxLength:"x"`
	}
	err = Unmarshal(httptest.NewRequest(http.MethodGet, "/?q=1", nil), &bad{})
	if !errors.As(err, &ee) || ee.Status != http.StatusInternalServerError {
		t.Fatalf("err = %v, want 500", err)
	}
}

func TestUnmarshal_Conversions(t *testing.T) {
	type params struct {
		When  time.Time `query:"when"`
		Bytes []byte    `query:"b,base64url"`
		F     float64   `query:"f"`
		U     uint8     `query:"u"`
		Skip  string    `query:"-"`
	}
	r := httptest.NewRequest(http.MethodGet, "/?when=2024-01-02T03:04:05Z&b=aGk&f=1.5&u=7&skip=x", nil)
	var p params
	if err := Unmarshal(r, &p); err != nil {
		t.Fatal(err)
	}
	if p.When.Year() != 2024 || string(p.Bytes) != "hi" || p.F != 1.5 || p.U != 7 || p.Skip != "" {
		t.Errorf("got %+v", p)
	}

	err := Unmarshal(httptest.NewRequest(http.MethodGet, "/?u=300", nil), &params{})
	var ee *EndpointError
	if !errors.As(err, &ee) || ee.Status != http.StatusBadRequest {
		t.Fatalf("overflow: err = %v, want 400", err)
	}
}

func TestUnmarshal_BadDestinations(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	var n int
	for _, dst := range []any{nil, n, &n} {
		var ee *EndpointError
		if err := Unmarshal(r, dst); !errors.As(err, &ee) || ee.Status != http.StatusInternalServerError {
			t.Errorf("Unmarshal(%T) = %v, want 500", dst, err)
		}
	}

	type withPtr struct {
		Q string `query:"q"`
	}
	var pp *withPtr
	if err := Unmarshal(httptest.NewRequest(http.MethodGet, "/?q=z", nil), &pp); err != nil || pp == nil || pp.Q != "z" {
		t.Errorf("pointer-to-pointer: %v %+v", err, pp)
	}
}
