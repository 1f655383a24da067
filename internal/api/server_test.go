package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/valetd/valet/internal/actions"
	"github.com/valetd/valet/internal/intent"
	"github.com/valetd/valet/internal/ratelimit"
	"github.com/valetd/valet/internal/rbac"
	"github.com/valetd/valet/internal/router"
)

type fixedModel struct {
	it intent.Intent
}

func (f *fixedModel) Query(_ context.Context, _ string, _ []intent.Turn, _ []byte) intent.Intent {
	return f.it
}

type echoHandler struct{ name intent.Action }

func (h *echoHandler) Name() intent.Action { return h.name }

func (h *echoHandler) Execute(_ context.Context, req actions.Request) (actions.Result, error) {
	return actions.Result{Text: "ok:" + actions.GetString(req.Parameters, "response", "")}, nil
}

const apiOwner = "100"

func newTestServer(model IntentSource, token string) *httptest.Server {
	reg := actions.NewRegistry()
	reg.Register(&echoHandler{name: intent.ActionChat})
	r := router.New(router.Options{
		Registry: reg,
		Resolver: rbac.NewResolver([]string{apiOwner}),
	})
	return httptest.NewServer(NewServer(r, model, token, nil).Handler())
}

func postCommand(t *testing.T, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/command", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestCommandExecutes(t *testing.T) {
	model := &fixedModel{it: intent.Intent{
		Name:       intent.ActionChat,
		Parameters: map[string]any{"response": "hello"},
		Confidence: 0.9,
	}}
	srv := newTestServer(model, "")
	defer srv.Close()

	resp := postCommand(t, srv.URL, "", `{"message": "hi", "user_id": "100"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Outcome string `json:"outcome"`
		Text    string `json:"text"`
		TraceID string `json:"trace_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Outcome != "executed" || body.Text != "ok:hello" {
		t.Fatalf("unexpected response: %+v", body)
	}
	if body.TraceID == "" {
		t.Fatal("missing trace id")
	}
}

func TestCommandRequiresFields(t *testing.T) {
	srv := newTestServer(&fixedModel{}, "")
	defer srv.Close()

	for _, body := range []string{
		`{"message": "", "user_id": "100"}`,
		`{"message": "hi", "user_id": ""}`,
		`not json`,
	} {
		resp := postCommand(t, srv.URL, "", body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, resp.StatusCode)
		}
	}
}

func TestCommandRequiresToken(t *testing.T) {
	srv := newTestServer(&fixedModel{}, "secret")
	defer srv.Close()

	resp := postCommand(t, srv.URL, "", `{"message": "hi", "user_id": "100"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp = postCommand(t, srv.URL, "wrong", `{"message": "hi", "user_id": "100"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", resp.StatusCode)
	}

	model := &fixedModel{it: intent.Intent{Name: intent.ActionChat, Parameters: map[string]any{"response": "x"}, Confidence: 1}}
	srv2 := newTestServer(model, "secret")
	defer srv2.Close()
	resp = postCommand(t, srv2.URL, "secret", `{"message": "hi", "user_id": "100"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
}

func TestCommandRateLimited(t *testing.T) {
	model := &fixedModel{it: intent.Intent{
		Name:       intent.ActionChat,
		Parameters: map[string]any{"response": "hello"},
		Confidence: 0.9,
	}}
	reg := actions.NewRegistry()
	reg.Register(&echoHandler{name: intent.ActionChat})
	r := router.New(router.Options{
		Registry: reg,
		Resolver: rbac.NewResolver([]string{apiOwner}),
	})
	s := NewServer(r, model, "", nil)
	s.Limiter = ratelimit.New(1, time.Minute)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp := postCommand(t, srv.URL, "", `{"message": "hi", "user_id": "100"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", resp.StatusCode)
	}

	resp = postCommand(t, srv.URL, "", `{"message": "hi again", "user_id": "100"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", resp.StatusCode)
	}
	var body struct {
		Outcome string `json:"outcome"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Outcome != "rate_limited" {
		t.Fatalf("expected rate_limited outcome, got %q", body.Outcome)
	}
}

func TestCommandDeniedForStranger(t *testing.T) {
	model := &fixedModel{it: intent.Intent{
		Name:       intent.ActionRunCommand,
		Parameters: map[string]any{"command": "ls"},
		Confidence: 0.9,
	}}
	srv := newTestServer(model, "")
	defer srv.Close()

	resp := postCommand(t, srv.URL, "", `{"message": "run ls", "user_id": "999"}`)
	defer resp.Body.Close()
	var body struct {
		Outcome string `json:"outcome"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Outcome != "denied" {
		t.Fatalf("expected denial, got %q", body.Outcome)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fixedModel{}, "")
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
