package spotapi

import (
	http "github.com/bogdanfinn/fhttp"
)

const (
	challengeInvokeURL  = "https://challenge.spotify.com/api/v1/invoke-challenge-command"
	challengeSessionURL = "https://challenge.spotify.com/api/v1/get-session"

	challengeSiteKey = "6LeO36obAAAAALSBZrY6RYM1hcAY7RLvpDDcJLy3"
	challengeAction  = "challenge"
)

// loginChallenge defeats the embedded challenge the server can demand in
// place of a login success. Disposable: one instance per challenge, steps
// strictly ordered, any failure aborts the whole login attempt.
type loginChallenge struct {
	l            *Login
	challengeURL string

	sessionID            string
	challengeID          string
	interactionHash      string
	interactionReference string
}

func newLoginChallenge(l *Login, challengeURL string) *loginChallenge {
	return &loginChallenge{l: l, challengeURL: challengeURL}
}

func (c *loginChallenge) defeat() error {
	if err := c.getChallenge(); err != nil {
		return err
	}
	if err := c.submitChallenge(); err != nil {
		return err
	}
	return c.completeChallenge()
}

// getChallenge establishes the remote challenge session by visiting the
// redirect target.
func (c *loginChallenge) getChallenge() error {
	resp, err := c.l.client.Get(c.challengeURL, nil)
	if err != nil {
		return err
	}
	if resp.Fail() {
		return newAuthError("could not get challenge", resp.Err("challenge page").Error())
	}
	return nil
}

// parseIDs extracts the session id and challenge id by position from the
// challenge URL, which has the shape .../c/<session>/<challenge>/....
func (c *loginChallenge) parseIDs() error {
	session, ok := splitBetween(c.challengeURL, "c/", "/")
	if !ok {
		return newProtocolError("no session id in challenge url", c.challengeURL)
	}
	challenge, ok := splitBetween(c.challengeURL, session+"/", "/")
	if !ok {
		return newProtocolError("no challenge id in challenge url", c.challengeURL)
	}
	c.sessionID = session
	c.challengeID = challenge
	return nil
}

// submitChallenge solves the challenge CAPTCHA, which uses its own site key
// and action, and posts the token to the invoke endpoint.
func (c *loginChallenge) submitChallenge() error {
	if c.l.solver == nil {
		return NewFatalError(newClientError("solver not set", ""))
	}

	token, err := c.l.solver.Solve(c.challengeURL, challengeSiteKey, challengeAction, "v3")
	if err != nil {
		return err
	}
	if token == "" {
		return newSolverError("could not solve captcha", "")
	}

	if err := c.parseIDs(); err != nil {
		return err
	}

	resp, err := c.l.client.Do(&Request{
		Method: http.MethodPost,
		URL:    challengeInvokeURL,
		JSON: map[string]any{
			"session_id":   c.sessionID,
			"challenge_id": c.challengeID,
			"recaptcha_challenge_id": map[string]any{
				"solve": map[string]any{
					"recaptcha_token": token,
				},
			},
		},
		Header: http.Header{
			"X-Cloud-Trace-Context": {"00000000000000006979d1624aa6b213/2238380859227873585;o=1"},
		},
	})
	if err != nil {
		return err
	}
	if resp.Fail() {
		return newAuthError("could not submit challenge", resp.Err("invoke endpoint").Error())
	}

	var out struct {
		Completed struct {
			Hash                 string `json:"Hash"`
			InteractionReference string `json:"InteractionReference"`
		} `json:"Completed"`
	}
	if err := resp.DecodeJSON(&out); err != nil {
		return err
	}
	if out.Completed.Hash == "" || out.Completed.InteractionReference == "" {
		return newProtocolError("challenge response missing completion data", truncate(resp.Text(), 256))
	}

	c.interactionHash = out.Completed.Hash
	c.interactionReference = out.Completed.InteractionReference
	return nil
}

// completeChallenge finalizes on the accounts side; the call exists for its
// cookie side effects.
func (c *loginChallenge) completeChallenge() error {
	u := accountsURL + "/login/challenge-completed?sessionId=" + c.sessionID +
		"&interactRef=" + c.interactionReference + "&hash=" + c.interactionHash

	resp, err := c.l.client.Get(u, nil)
	if err != nil {
		return err
	}
	if resp.Fail() {
		return newAuthError("could not complete challenge", resp.Err("challenge-completed endpoint").Error())
	}
	return nil
}
