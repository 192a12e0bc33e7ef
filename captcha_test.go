package spotapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// vendorStub fakes the createTask/getTaskResult API, becoming ready after a
// configured number of polls.
type vendorStub struct {
	readyAfter  int
	token       string
	resultError string

	createCalls int
	pollCalls   int
}

func (v *vendorStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/createTask", func(w http.ResponseWriter, r *http.Request) {
		v.createCalls++
		json.NewEncoder(w).Encode(map[string]any{"errorId": 0, "taskId": 42})
	})
	mux.HandleFunc("/getTaskResult", func(w http.ResponseWriter, r *http.Request) {
		v.pollCalls++
		if v.resultError != "" {
			json.NewEncoder(w).Encode(map[string]any{"errorId": 1, "errorCode": v.resultError})
			return
		}
		if v.pollCalls >= v.readyAfter {
			json.NewEncoder(w).Encode(map[string]any{
				"errorId":  0,
				"status":   "ready",
				"solution": map[string]any{"gRecaptchaResponse": v.token},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"errorId": 0, "status": "processing"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestCapsolver(t *testing.T, stub *vendorStub, opts ...SolverOption) *Capsolver {
	t.Helper()
	srv := stub.server(t)
	opts = append([]SolverOption{withBaseURL(srv.URL), withPollInterval(0)}, opts...)
	return NewCapsolver("test-key", opts...)
}

func TestSolverReadyAfterKPolls(t *testing.T) {
	stub := &vendorStub{readyAfter: 3, token: "tok-abc"}
	s := newTestCapsolver(t, stub)

	token, err := s.Solve("https://example.com", "site-key", "login", "v3")
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if token != "tok-abc" {
		t.Errorf("token = %q, want %q", token, "tok-abc")
	}
	if stub.createCalls != 1 {
		t.Errorf("createTask calls = %d, want 1", stub.createCalls)
	}
	if stub.pollCalls != 3 {
		t.Errorf("getTaskResult calls = %d, want 3", stub.pollCalls)
	}
}

func TestSolverBudgetExhausted(t *testing.T) {
	stub := &vendorStub{readyAfter: 1 << 30}
	s := newTestCapsolver(t, stub, WithSolverRetries(5))

	_, err := s.Solve("https://example.com", "site-key", "login", "v3")

	var solverErr *SolverError
	if !errors.As(err, &solverErr) {
		t.Fatalf("error = %T (%v), want *SolverError", err, err)
	}
	if stub.pollCalls != 5 {
		t.Errorf("getTaskResult calls = %d, want exactly the budget of 5", stub.pollCalls)
	}
}

func TestSolverVendorErrorTerminal(t *testing.T) {
	stub := &vendorStub{resultError: "ERROR_CAPTCHA_UNSOLVABLE"}
	s := newTestCapsolver(t, stub, WithSolverRetries(10))

	_, err := s.Solve("https://example.com", "site-key", "login", "v3")

	var captchaErr *CaptchaError
	if !errors.As(err, &captchaErr) {
		t.Fatalf("error = %T (%v), want *CaptchaError", err, err)
	}
	if IsFatal(err) {
		t.Error("transient vendor error reported as fatal")
	}
	if stub.pollCalls != 1 {
		t.Errorf("getTaskResult calls = %d, want 1 (vendor error is terminal)", stub.pollCalls)
	}
}

func TestSolverFatalVendorCode(t *testing.T) {
	stub := &vendorStub{resultError: "ERROR_ZERO_BALANCE"}
	s := newTestCapsolver(t, stub)

	_, err := s.Solve("https://example.com", "site-key", "login", "v3")
	if !IsFatal(err) {
		t.Errorf("zero-balance error not marked fatal: %v", err)
	}
}

func TestSolverEmptyTokenIsSolverError(t *testing.T) {
	stub := &vendorStub{readyAfter: 1, token: ""}
	s := newTestCapsolver(t, stub)

	_, err := s.Solve("https://example.com", "site-key", "login", "v3")

	var solverErr *SolverError
	if !errors.As(err, &solverErr) {
		t.Errorf("error = %T (%v), want *SolverError", err, err)
	}
}

func TestCapmonsterTaskTypes(t *testing.T) {
	var taskType string
	mux := http.NewServeMux()
	mux.HandleFunc("/createTask", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Task map[string]any `json:"task"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		taskType, _ = body.Task["type"].(string)
		json.NewEncoder(w).Encode(map[string]any{"errorId": 0, "taskId": 1})
	})
	mux.HandleFunc("/getTaskResult", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"errorId":  0,
			"status":   "ready",
			"solution": map[string]any{"gRecaptchaResponse": "tok"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewCapmonster("key", withBaseURL(srv.URL), withPollInterval(0))

	cases := []struct {
		variant string
		want    string
	}{
		{"v3", "RecaptchaV3TaskProxyless"},
		{"v2", "NoCaptchaTaskProxyless"},
	}
	for _, tc := range cases {
		if _, err := s.Solve("https://example.com", "k", "a", tc.variant); err != nil {
			t.Fatalf("solve %s failed: %v", tc.variant, err)
		}
		if taskType != tc.want {
			t.Errorf("variant %s task type = %q, want %q", tc.variant, taskType, tc.want)
		}
	}
}
