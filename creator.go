package spotapi

import (
	"fmt"
	"strings"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	signupPageURL      = "https://www.spotify.com/ca-en/signup"
	accountCreateURL   = "https://spclient.wg.spotify.com/signup/public/v2/account/create"
	accountCompleteURL = "https://spclient.wg.spotify.com/signup/public/v2/account/complete-creation"

	signupAction = "website/signup/submit_email"
)

// Creator registers a new account. Identity fields left empty are filled
// with randomly generated values.
type Creator struct {
	client *Transport
	solver Solver
	log    *logrus.Entry

	Email       string
	Password    string
	DisplayName string

	submissionID   string
	apiKey         string
	installationID string
	csrfToken      string
	flowID         string
}

func NewCreator(cfg *Config) *Creator {
	return &Creator{
		client:       cfg.Client,
		solver:       cfg.Solver,
		log:          cfg.Log.WithField("component", "creator"),
		Email:        randomEmail(),
		Password:     randomString(10, true),
		DisplayName:  randomString(10, false),
		submissionID: uuid.NewString(),
	}
}

// Register runs the signup flow end to end, defeating an embedded challenge
// if the creation endpoint demands one.
func (c *Creator) Register() error {
	if err := c.getSession(); err != nil {
		return err
	}
	if c.solver == nil {
		return NewFatalError(newGeneratorError("solver not set", ""))
	}

	token, err := c.solver.Solve(signupPageURL, loginSiteKey, signupAction, "v3")
	if err != nil {
		return err
	}
	if token == "" {
		return newSolverError("could not solve captcha", "")
	}
	return c.processRegister(token)
}

// getSession scrapes the signup page for the service app key, installation
// id, CSRF token and flow id.
func (c *Creator) getSession() error {
	resp, err := c.client.Get(signupPageURL, nil)
	if err != nil {
		return err
	}
	if resp.Fail() {
		return newGeneratorError("could not get session", resp.Err("signup page").Error())
	}

	body := resp.Text()
	for _, field := range []struct {
		key string
		dst *string
	}{
		{"signupServiceAppKey", &c.apiKey},
		{"spT", &c.installationID},
		{"csrfToken", &c.csrfToken},
		{"flowId", &c.flowID},
	} {
		value, err := parseJSONString(body, field.key)
		if err != nil {
			return err
		}
		*field.dst = value
	}
	return nil
}

func (c *Creator) processRegister(token string) error {
	payload := map[string]any{
		"account_details": map[string]any{
			"birthdate": randomDOB(),
			"consent_flags": map[string]any{
				"eula_agreed":       true,
				"send_email":        true,
				"third_party_email": false,
			},
			"display_name": c.DisplayName,
			"email_and_password_identifier": map[string]any{
				"email":    c.Email,
				"password": c.Password,
			},
			"gender": 1,
		},
		"callback_uri": fmt.Sprintf(
			"https://www.spotify.com/signup/challenge?flow_ctx=%s%%%d&locale=ca-en",
			c.flowID, time.Now().Unix(),
		),
		"client_info": map[string]any{
			"api_key":         c.apiKey,
			"app_version":     "v2",
			"capabilities":    []int{1},
			"installation_id": c.installationID,
			"platform":        "www",
		},
		"tracking": map[string]any{
			"creation_flow":  "",
			"creation_point": "spotify.com",
			"referrer":       "",
		},
		"recaptcha_token": token,
		"submission_id":   c.submissionID,
		"flow_id":         c.flowID,
	}

	resp, err := c.client.Do(&Request{
		Method: http.MethodPost,
		URL:    accountCreateURL,
		JSON:   payload,
	})
	if err != nil {
		return err
	}
	if resp.Fail() {
		return newGeneratorError("could not process registration", resp.Err("create endpoint").Error())
	}

	if strings.Contains(resp.Text(), "challenge") {
		c.log.WithField("event", "challenge").Info("encountered embedded challenge, defeating")
		return newAccountChallenge(c, resp.Text()).defeat()
	}
	return nil
}

// accountChallenge defeats the embedded challenge demanded during signup.
// Same challenge service as the login variant but with a different command
// shape and a completion call on the signup service instead of accounts.
type accountChallenge struct {
	c   *Creator
	raw string

	sessionID    string
	challengeURL string
}

func newAccountChallenge(c *Creator, raw string) *accountChallenge {
	return &accountChallenge{c: c, raw: raw}
}

func (a *accountChallenge) defeat() error {
	sessionID, err := parseJSONString(a.raw, "session_id")
	if err != nil {
		return err
	}
	a.sessionID = sessionID

	if err := a.getSession(); err != nil {
		return err
	}
	if a.c.solver == nil {
		return NewFatalError(newGeneratorError("solver not set", ""))
	}

	token, err := a.c.solver.Solve(a.challengeURL, challengeSiteKey, challengeAction, "v3")
	if err != nil {
		return err
	}
	if token == "" {
		return newSolverError("could not solve captcha", "")
	}

	if err := a.submitChallenge(token); err != nil {
		return err
	}
	if err := a.completeChallenge(); err != nil {
		return err
	}
	a.c.log.WithField("event", "challenge").Info("successfully defeated challenge, account created")
	return nil
}

func (a *accountChallenge) getSession() error {
	resp, err := a.c.client.Do(&Request{
		Method: http.MethodPost,
		URL:    challengeSessionURL,
		JSON:   map[string]any{"session_id": a.sessionID},
	})
	if err != nil {
		return err
	}
	if resp.Fail() {
		return newGeneratorError("could not get challenge session", resp.Err("get-session endpoint").Error())
	}

	challengeURL, err := parseJSONString(resp.Text(), "url")
	if err != nil {
		return err
	}
	a.challengeURL = challengeURL
	return nil
}

func (a *accountChallenge) submitChallenge(token string) error {
	sessionID, ok := splitBetween(a.challengeURL, "c/", "/")
	if !ok {
		return newProtocolError("no session id in challenge url", a.challengeURL)
	}
	challengeID, ok := splitBetween(a.challengeURL, sessionID+"/", "/")
	if !ok {
		return newProtocolError("no challenge id in challenge url", a.challengeURL)
	}

	resp, err := a.c.client.Do(&Request{
		Method: http.MethodPost,
		URL:    challengeInvokeURL,
		JSON: map[string]any{
			"session_id":   sessionID,
			"challenge_id": challengeID,
			"recaptcha_challenge_v1": map[string]any{
				"solve": map[string]any{
					"recaptcha_token": token,
				},
			},
		},
		Header: http.Header{
			"X-Cloud-Trace-Context": {"000000000000000004ec7cfe60aa92b5/8088460714428896449;o=1"},
		},
	})
	if err != nil {
		return err
	}
	if resp.Fail() {
		return newGeneratorError("could not submit challenge", resp.Err("invoke endpoint").Error())
	}
	return nil
}

func (a *accountChallenge) completeChallenge() error {
	resp, err := a.c.client.Do(&Request{
		Method: http.MethodPost,
		URL:    accountCompleteURL,
		JSON:   map[string]any{"session_id": a.sessionID},
	})
	if err != nil {
		return err
	}
	if resp.Fail() {
		return newGeneratorError("could not complete challenge", resp.Err("complete-creation endpoint").Error())
	}
	if !strings.Contains(resp.Text(), "success") {
		return newGeneratorError("could not complete challenge", truncate(resp.Text(), 256))
	}
	return nil
}
