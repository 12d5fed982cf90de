package generichttp_test

import (
	"errors"
	"fmt"
	"go/types"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/ddsgen/generichttp"
	"github.com/nasa-jpl/ddsgen/util"
)

func ExampleSubMuxSanitize() {
	fmt.Println(generichttp.SubMuxSanitize("omc/dds/"))
	fmt.Println(generichttp.SubMuxSanitize("/dds"))
	// Output:
	// /omc/dds
	// /dds
}

func TestEndpointsSorted(t *testing.T) {
	rt := generichttp.RouteTable{
		{Method: http.MethodPost, Path: "/b"}: nil,
		{Method: http.MethodGet, Path: "/b"}:  nil,
		{Method: http.MethodGet, Path: "/a"}:  nil,
	}
	got := strings.Join(rt.Endpoints(), ",")
	if got != "GET /a,GET /b,POST /b" {
		t.Errorf("got %s", got)
	}
}

func TestHumanPayloadEncoding(t *testing.T) {
	cases := []struct {
		hp   generichttp.HumanPayload
		want string
	}{
		{generichttp.HumanPayload{T: types.Float64, Float: 1.5}, `{"f64":1.5}`},
		{generichttp.HumanPayload{T: types.Int, Int: 3}, `{"int":3}`},
		{generichttp.HumanPayload{T: types.String, String: "SINE"}, `{"str":"SINE"}`},
		{generichttp.HumanPayload{T: types.Bool, Bool: true}, `{"bool":true}`},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		c.hp.EncodeAndRespond(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if got := strings.TrimSpace(rec.Body.String()); got != c.want {
			t.Errorf("expected %s, got %s", c.want, got)
		}
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: too big", util.ErrInvalidParameter), http.StatusBadRequest},
		{errors.New("bus fault"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		r := chi.NewRouter()
		rt := generichttp.RouteTable{
			{Method: http.MethodPost, Path: "/x"}: generichttp.SetFloat(func(float64) error { return c.err }),
		}
		rt.Bind(r)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"f64": 1}`)))
		if rec.Code != c.code {
			t.Errorf("%v: expected %d, got %d", c.err, c.code, rec.Code)
		}
	}
}
