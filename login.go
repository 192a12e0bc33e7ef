package spotapi

import (
	"net/url"
	"strings"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/sirupsen/logrus"
)

const (
	accountsURL      = "https://accounts.spotify.com"
	loginPageURL     = accountsURL + "/en/login"
	loginPasswordURL = accountsURL + "/login/password"

	loginSiteKey = "6LfCVLAUAAAAALFwwRnnCJ12DalriUGbj8FW_J39"
	loginAction  = "accounts/login"
)

// Login drives the credential submission flow against the accounts service:
// obtain a flow session, solve a CAPTCHA, submit the password and finalize,
// defeating an embedded challenge if the server demands one. A Login is
// single-shot; once authorized there is no transition back.
type Login struct {
	client *Transport
	solver Solver
	log    *logrus.Entry

	identifier string
	password   string

	csrfToken  string
	flowID     string
	authorized bool
}

// NewLogin builds a login flow for the given account identifier, which is
// either an email address or a username.
func NewLogin(cfg *Config, identifier, password string) (*Login, error) {
	if identifier == "" {
		return nil, newClientError("must provide an email or username", "")
	}
	return &Login{
		client:     cfg.Client,
		solver:     cfg.Solver,
		log:        cfg.Log.WithField("component", "login"),
		identifier: identifier,
		password:   password,
	}, nil
}

// LoginFromCookies restores an already-authorized session from a credential
// dump, planting its cookies on the shared transport. No network calls are
// made; the cookies are trusted until a request fails.
func LoginFromCookies(cfg *Config, creds Credentials) (*Login, error) {
	if creds.Identifier == "" || len(creds.Cookies) == 0 {
		return nil, newClientError("credential dump must carry an identifier and cookies", "")
	}

	cfg.Client.ClearCookies()
	for _, domain := range []string{openSpotifyURL, accountsURL} {
		cfg.Client.SetCookies(domain, creds.Cookies)
	}

	l, err := NewLogin(cfg, creds.Identifier, creds.Password)
	if err != nil {
		return nil, err
	}
	l.authorized = true
	return l, nil
}

// LoginFromSaver loads a previously saved session by identifier.
func LoginFromSaver(saver Saver, cfg *Config, identifier string) (*Login, error) {
	creds, err := saver.Load(identifier)
	if err != nil {
		return nil, err
	}
	return LoginFromCookies(cfg, creds)
}

// Authorized reports whether the flow has reached its terminal success
// state.
func (l *Login) Authorized() bool {
	return l.authorized
}

// Save persists the authorized session's credentials and cookies.
func (l *Login) Save(saver Saver) error {
	if !l.authorized {
		return newClientError("cannot save a session that is not logged in", "")
	}
	return saver.Save(Credentials{
		Identifier: l.identifier,
		Password:   l.password,
		Cookies:    l.client.Cookies(openSpotifyURL),
	})
}

// Login runs the whole flow. A missing solver is a configuration error and
// is reported as fatal; an empty solver token is a solver failure.
func (l *Login) Login() error {
	if l.authorized {
		return newAuthError("user already logged in", "")
	}
	if l.solver == nil {
		return NewFatalError(newClientError("solver not set", ""))
	}

	start := time.Now()
	if err := l.getSession(); err != nil {
		return err
	}

	l.log.WithField("event", "captcha").Info("solving captcha")
	token, err := l.solver.Solve(loginPageURL, loginSiteKey, loginAction, "v3")
	if err != nil {
		return err
	}
	if token == "" {
		return newSolverError("could not solve captcha", "")
	}
	l.log.WithField("time_taken", time.Since(start).Round(time.Second)).Info("solved captcha")

	if err := l.submitPassword(token); err != nil {
		return err
	}
	l.log.WithField("time_taken", time.Since(start).Round(time.Second)).Info("logged in successfully")
	return nil
}

// getSession establishes the login flow session: the CSRF token arrives as
// a cookie, the flow id is embedded in the page, and a couple of cookies
// must be planted before the password endpoint accepts a submission.
func (l *Login) getSession() error {
	resp, err := l.client.Get(loginPageURL, nil)
	if err != nil {
		return err
	}
	if resp.Fail() {
		return newRetryableAuthError("could not get session", resp.Err("login page").Error())
	}

	l.csrfToken = resp.Cookie("sp_sso_csrf_token")
	flowID, err := parseJSONString(resp.Text(), "flowCtx")
	if err != nil {
		return err
	}
	l.flowID = flowID

	l.client.SetCookie(accountsURL, "remember", url.QueryEscape(l.identifier))
	return l.plantCookies(
		openSpotifyURL+"/",
		"https://pixel.spotify.com/v2/sync?ce=1&pp=",
	)
}

// plantCookies visits endpoints purely for their Set-Cookie side effects.
func (l *Login) plantCookies(urls ...string) error {
	for _, u := range urls {
		resp, err := l.client.Get(u, nil)
		if err != nil {
			return err
		}
		if resp.Fail() {
			return newRetryableAuthError("could not get session", resp.Err(u).Error())
		}
	}
	return nil
}

func (l *Login) submitPassword(token string) error {
	form := url.Values{}
	form.Set("username", l.identifier)
	form.Set("password", l.password)
	form.Set("remember", "true")
	form.Set("recaptchaToken", token)
	form.Set("continue", accountsURL+"/en/status")
	form.Set("flowCtx", l.flowID)

	resp, err := l.client.Do(&Request{
		Method: http.MethodPost,
		URL:    loginPasswordURL,
		Form:   form,
		Header: http.Header{
			"X-Csrf-Token": {l.csrfToken},
		},
	})
	if err != nil {
		return err
	}
	if resp.Fail() {
		return newAuthError("could not submit password", resp.Err("password endpoint").Error())
	}

	if csrf := resp.Cookie("sp_sso_csrf_token"); csrf != "" {
		l.csrfToken = csrf
	}
	if err := l.handleLoginResponse(resp); err != nil {
		return err
	}

	l.authorized = true
	return l.plantCookies(openSpotifyURL + "/?flow_ctx=" + l.flowID)
}

// handleLoginResponse interprets the password endpoint's verdict. A
// redirect_required result means an embedded challenge: its completion
// implies authorization, since the body stays in an inconsistent shape
// afterwards.
func (l *Login) handleLoginResponse(resp *Response) error {
	var out struct {
		Result string `json:"result"`
		Error  string `json:"error"`
		Data   struct {
			RedirectURL string `json:"redirect_url"`
		} `json:"data"`
	}
	if err := resp.DecodeJSON(&out); err != nil {
		return err
	}

	switch out.Result {
	case "ok":
		return nil
	case "redirect_required":
		l.log.WithField("event", "challenge").Info("challenge detected, attempting to solve")
		if err := newLoginChallenge(l, out.Data.RedirectURL).defeat(); err != nil {
			return err
		}
		l.log.WithField("event", "challenge").Info("challenge solved")
		return nil
	}

	switch out.Error {
	case "":
		return newProtocolError("unexpected password response shape", truncate(resp.Text(), 256))
	case "errorUnknown":
		return newRetryableAuthError("unknown login error, needs retrying", out.Error)
	case "errorInvalidCredentials":
		return newAuthError("invalid credentials", l.identifier+": "+out.Error)
	default:
		return newAuthError("unforeseen login error", l.identifier+": "+out.Error)
	}
}

// splitBetween returns the segment of s after the first occurrence of open
// and before the next occurrence of sep.
func splitBetween(s, open, sep string) (string, bool) {
	_, rest, ok := strings.Cut(s, open)
	if !ok {
		return "", false
	}
	out, _, _ := strings.Cut(rest, sep)
	return out, out != ""
}
