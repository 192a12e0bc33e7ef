package spotapi

import (
	"encoding/json"
	"errors"
	"testing"

	http "github.com/bogdanfinn/fhttp"
)

const testSignupPage = `<script>{"signupServiceAppKey":"app-key-1","spT":"inst-1","csrfToken":"csrf-2","flowId":"flow-9"}</script>`

func newCreatorFake(createBody string) *fakeHTTPClient {
	fake := newFakeHTTPClient()
	fake.handle(http.MethodGet, signupPageURL, 200, testSignupPage)
	fake.handle(http.MethodPost, accountCreateURL, 200, createBody)
	fake.handle(http.MethodPost, challengeSessionURL, 200,
		`{"in_progress":{"url":"https://challenge.spotify.com/c/sess-7/chal-3/recaptcha"}}`)
	fake.handle(http.MethodPost, challengeInvokeURL, 200, "{}")
	fake.handle(http.MethodPost, accountCompleteURL, 200, `{"success":{}}`)
	return fake
}

func TestRegisterWithoutChallenge(t *testing.T) {
	fake := newCreatorFake("{}")
	var payload map[string]any
	fake.handleFunc(http.MethodPost, accountCreateURL, func(req *http.Request) (*http.Response, error) {
		json.NewDecoder(req.Body).Decode(&payload)
		return fakeResponse(200, "{}", nil), nil
	})

	solver := &staticSolver{token: "cap-tok"}
	c := NewCreator(newTestConfig(t, fake, solver))
	c.Email = "new@example.com"
	c.Password = "Str0ngPass!"
	c.DisplayName = "listener"

	if err := c.Register(); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if payload["recaptcha_token"] != "cap-tok" {
		t.Errorf("recaptcha_token = %v, want cap-tok", payload["recaptcha_token"])
	}
	if payload["flow_id"] != "flow-9" {
		t.Errorf("flow_id = %v, want flow-9", payload["flow_id"])
	}
	info := payload["client_info"].(map[string]any)
	if info["api_key"] != "app-key-1" || info["installation_id"] != "inst-1" {
		t.Errorf("client_info = %v, want scraped app key and installation id", info)
	}
	details := payload["account_details"].(map[string]any)
	ident := details["email_and_password_identifier"].(map[string]any)
	if ident["email"] != "new@example.com" {
		t.Errorf("email = %v, want new@example.com", ident["email"])
	}
	if got := fake.callCount(challengeInvokeURL); got != 0 {
		t.Errorf("challenge invocations = %d, want 0", got)
	}
	if solver.calls[0] != signupAction {
		t.Errorf("solve action = %q, want %q", solver.calls[0], signupAction)
	}
}

func TestRegisterDefeatsEmbeddedChallenge(t *testing.T) {
	fake := newCreatorFake(`{"challenge":{"session_id":"sess-7"}}`)
	var invokePayload map[string]any
	fake.handleFunc(http.MethodPost, challengeInvokeURL, func(req *http.Request) (*http.Response, error) {
		json.NewDecoder(req.Body).Decode(&invokePayload)
		return fakeResponse(200, "{}", nil), nil
	})

	solver := &staticSolver{token: "cap-tok"}
	c := NewCreator(newTestConfig(t, fake, solver))

	if err := c.Register(); err != nil {
		t.Fatalf("register with challenge failed: %v", err)
	}

	if invokePayload["session_id"] != "sess-7" {
		t.Errorf("session_id = %v, want sess-7", invokePayload["session_id"])
	}
	if invokePayload["challenge_id"] != "chal-3" {
		t.Errorf("challenge_id = %v, want chal-3", invokePayload["challenge_id"])
	}
	if _, ok := invokePayload["recaptcha_challenge_v1"]; !ok {
		t.Error("invoke payload missing recaptcha_challenge_v1 command")
	}
	if got := fake.callCount(accountCompleteURL); got != 1 {
		t.Errorf("complete-creation calls = %d, want 1", got)
	}
	// One solve for signup, one for the challenge.
	if got := solver.solveCount(); got != 2 {
		t.Errorf("solver calls = %d, want 2", got)
	}
}

func TestRegisterChallengeCompletionRejected(t *testing.T) {
	fake := newCreatorFake(`{"challenge":{"session_id":"sess-7"}}`)
	fake.handleFunc(http.MethodPost, accountCompleteURL, func(*http.Request) (*http.Response, error) {
		return fakeResponse(200, `{"status":"rejected"}`, nil), nil
	})

	c := NewCreator(newTestConfig(t, fake, &staticSolver{token: "cap-tok"}))
	err := c.Register()

	var genErr *GeneratorError
	if !errors.As(err, &genErr) {
		t.Errorf("error = %T (%v), want *GeneratorError", err, err)
	}
}

func TestRegisterMissingSolverIsFatal(t *testing.T) {
	fake := newCreatorFake("{}")
	c := NewCreator(newTestConfig(t, fake, nil))

	if err := c.Register(); !IsFatal(err) {
		t.Errorf("missing solver error not fatal: %v", err)
	}
}

func TestRegisterRandomIdentityDefaults(t *testing.T) {
	fake := newCreatorFake("{}")
	c := NewCreator(newTestConfig(t, fake, &staticSolver{token: "tok"}))

	if c.Email == "" || c.Password == "" || c.DisplayName == "" {
		t.Errorf("identity defaults not generated: %+v", c)
	}
	other := NewCreator(newTestConfig(t, fake, nil))
	if c.Email == other.Email {
		t.Error("two creators generated the same email")
	}
}
