package http_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/debugmem/internal/http"
	"github.com/fyrsmithlabs/debugmem/internal/memory"
	"github.com/fyrsmithlabs/debugmem/internal/store"
)

// An agent stores a resolved incident, then checks memory before debugging
// a similar failure.
func ExampleServer() {
	svc, err := memory.NewService(nil, store.NewMemoryStore())
	if err != nil {
		panic(err)
	}
	defer svc.Close()

	srv, err := httpserver.NewServer(svc, zap.NewNop(), nil)
	if err != nil {
		panic(err)
	}
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	post := func(path, body string) *http.Response {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(httpserver.HeaderAgent, "example-agent")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			panic(err)
		}
		return resp
	}

	resp := post("/api/v1/incidents", `{
		"symptom": "database connection pool exhausted under load",
		"root_cause": {"description": "connections leaked on error paths", "category": "database", "confidence": 0.9},
		"fix": {"approach": "close rows in a deferred call"},
		"tags": ["postgres", "pool"]
	}`)
	resp.Body.Close()
	fmt.Println("store:", resp.StatusCode)

	resp = post("/api/v1/check", `{"query": "connection pool exhausted"}`)
	defer resp.Body.Close()
	var check struct {
		Source         string `json:"source"`
		IncidentsFound int    `json:"incidents_found"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&check); err != nil {
		panic(err)
	}
	fmt.Println("check:", resp.StatusCode, check.Source, check.IncidentsFound)
	// Output:
	// store: 201
	// check: 200 incidents 1
}
