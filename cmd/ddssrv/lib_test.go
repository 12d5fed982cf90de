package main

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func mockConfig() Config {
	c := DefaultConfig()
	c.Mock = true
	c.Digipot.Enable = true
	c.Endpoint = "/lab/dds/"
	return c
}

func TestBuildHardwareResetsThroughMock(t *testing.T) {
	hw, err := BuildHardware(mockConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer hw.Close()
	if hw.Mock == nil || hw.Pot == nil {
		t.Fatal("expected mock bus and digipot")
	}
	if n := len(hw.Mock.WritesTo(0)); n != 5 {
		t.Errorf("expected 5 reset writes to the AD9833, got %d", n)
	}
	if n := len(hw.Mock.WritesTo(1)); n != 1 {
		t.Errorf("expected 1 write to the digipot, got %d", n)
	}
}

func TestBuildHardwareRejectsUnknownTransport(t *testing.T) {
	c := DefaultConfig()
	c.Transport = "carrier-pigeon"
	if _, err := BuildHardware(c, nil); err == nil {
		t.Error("expected an error")
	}
}

func TestMuxServesGeneratorEndpointsAndMetrics(t *testing.T) {
	c := mockConfig()
	hw, err := BuildHardware(c, nil)
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg, hw.Gen); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(BuildMux(c, hw.Gen, reg))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/lab/dds/frequency", "application/json", strings.NewReader(`{"f64": 4321}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/endpoints")
	if err != nil {
		t.Fatal(err)
	}
	graph := map[string][]string{}
	json.NewDecoder(resp.Body).Decode(&graph)
	resp.Body.Close()
	routes := strings.Join(graph["/lab/dds"], ",")
	if !strings.Contains(routes, "POST /sweep/start") || !strings.Contains(routes, "GET /lock") {
		t.Errorf("unexpected endpoints %v", graph)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "dds_frequency_hertz 4321") {
		t.Errorf("frequency gauge missing from\n%s", body)
	}
}

func TestLockBlocksGenerator(t *testing.T) {
	c := mockConfig()
	hw, _ := BuildHardware(c, nil)
	srv := httptest.NewServer(BuildMux(c, hw.Gen, prometheus.NewRegistry()))
	defer srv.Close()
	http.Post(srv.URL+"/lab/dds/lock", "application/json", strings.NewReader(`{"bool": true}`))
	resp, err := http.Post(srv.URL+"/lab/dds/frequency", "application/json", strings.NewReader(`{"f64": 10}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusLocked {
		t.Errorf("expected 423, got %d", resp.StatusCode)
	}
}
