package spotapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Solver is the CAPTCHA-solving contract both vendor clients implement:
// create a remote task describing the page, then poll it to completion
// within a bounded retry budget.
type Solver interface {
	// Solve returns the response token for the given page. variant selects
	// the reCAPTCHA flavor ("v2" or "v3").
	Solve(pageURL, siteKey, action, variant string) (string, error)
}

const (
	defaultSolverRetries = 120
	defaultPollInterval  = time.Second

	capsolverBaseURL  = "https://api.capsolver.com/"
	capmonsterBaseURL = "https://api.capmonster.cloud/"
)

// vendorResponse is the shared createTask/getTaskResult wire shape.
type vendorResponse struct {
	ErrorID          int            `json:"errorId"`
	ErrorCode        string         `json:"errorCode"`
	ErrorDescription string         `json:"errorDescription"`
	TaskID           json.Number    `json:"taskId"`
	Status           string         `json:"status"`
	Balance          float64        `json:"balance"`
	Solution         map[string]any `json:"solution"`
}

// vendorClient carries everything the two vendors share; the concrete types
// only differ in endpoint and task-type naming.
type vendorClient struct {
	apiKey   string
	baseURL  string
	proxy    string
	retries  int
	interval time.Duration
	http     *http.Client
}

// SolverOption tunes a vendor client.
type SolverOption func(*vendorClient)

// WithSolverRetries overrides the poll retry budget.
func WithSolverRetries(n int) SolverOption {
	return func(c *vendorClient) {
		if n > 0 {
			c.retries = n
		}
	}
}

// WithSolverProxy makes the vendor solve through the given proxy
// (vendor-side, not transport-side).
func WithSolverProxy(proxy string) SolverOption {
	return func(c *vendorClient) { c.proxy = proxy }
}

// withPollInterval overrides the fixed sleep between polls.
func withPollInterval(d time.Duration) SolverOption {
	return func(c *vendorClient) { c.interval = d }
}

// withBaseURL points the client at a different API host.
func withBaseURL(u string) SolverOption {
	return func(c *vendorClient) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		c.baseURL = u
	}
}

func newVendorClient(apiKey, baseURL string, opts []SolverOption) vendorClient {
	c := vendorClient{
		apiKey:   apiKey,
		baseURL:  baseURL,
		retries:  defaultSolverRetries,
		interval: defaultPollInterval,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// post sends one vendor API call. The key is injected into every payload,
// mirroring the authenticate-hook shape used on the main transport.
func (c *vendorClient) post(endpoint string, payload map[string]any) (*vendorResponse, error) {
	payload["clientKey"] = c.apiKey

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, newProtocolError("could not encode solver payload", err.Error())
	}

	resp, err := c.http.Post(c.baseURL+endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, newCaptchaError("solver request failed", err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newCaptchaError("could not read solver response", err.Error())
	}

	var out vendorResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, newProtocolError("invalid solver response", err.Error())
	}
	return &out, nil
}

func (c *vendorClient) vendorErr(message string, resp *vendorResponse) error {
	err := newCaptchaError(message, fmt.Sprintf("%s - %s", resp.ErrorCode, resp.ErrorDescription))
	if isFatalCaptchaCode(resp.ErrorCode) {
		return NewFatalError(err)
	}
	return err
}

// createTask submits the task and returns its id.
func (c *vendorClient) createTask(task map[string]any) (string, error) {
	resp, err := c.post("createTask", map[string]any{"task": task})
	if err != nil {
		return "", err
	}
	if resp.ErrorID != 0 {
		return "", c.vendorErr("could not create task", resp)
	}
	return resp.TaskID.String(), nil
}

// harvestTask polls getTaskResult until ready or the budget runs out. Every
// non-ready poll counts against the budget; a vendor error is terminal.
func (c *vendorClient) harvestTask(taskID string) (string, error) {
	for i := 0; i < c.retries; i++ {
		resp, err := c.post("getTaskResult", map[string]any{"taskId": taskID})
		if err != nil {
			return "", err
		}
		if resp.ErrorID != 0 {
			return "", c.vendorErr("could not get task result", resp)
		}
		if resp.Status == "ready" {
			token, _ := resp.Solution["gRecaptchaResponse"].(string)
			if token == "" {
				return "", newSolverError("solver returned an empty token", "")
			}
			return token, nil
		}
		time.Sleep(c.interval)
	}
	return "", newSolverError("failed to solve captcha", "max retries reached")
}

// Capsolver solves reCAPTCHA tasks through api.capsolver.com.
type Capsolver struct {
	vendorClient
}

// NewCapsolver builds a CapSolver client with the default 120-poll budget.
func NewCapsolver(apiKey string, opts ...SolverOption) *Capsolver {
	return &Capsolver{newVendorClient(apiKey, capsolverBaseURL, opts)}
}

// Solve implements Solver.
func (s *Capsolver) Solve(pageURL, siteKey, action, variant string) (string, error) {
	taskType := "ReCaptcha" + strings.ToUpper(variant) + "EnterpriseTaskProxyLess"
	if s.proxy != "" {
		taskType = "ReCaptcha" + strings.ToUpper(variant) + "EnterpriseTask"
	}

	task := map[string]any{
		"type":       taskType,
		"websiteURL": pageURL,
		"websiteKey": siteKey,
		"pageAction": action,
	}
	if variant == "v2" {
		task["isInvisible"] = true
	}
	if s.proxy != "" {
		task["proxy"] = s.proxy
	}

	taskID, err := s.createTask(task)
	if err != nil {
		return "", err
	}
	return s.harvestTask(taskID)
}

// Balance returns the remaining vendor balance.
func (s *Capsolver) Balance() (float64, error) {
	resp, err := s.post("getBalance", map[string]any{})
	if err != nil {
		return 0, err
	}
	if resp.ErrorID != 0 {
		return 0, s.vendorErr("could not retrieve balance", resp)
	}
	return resp.Balance, nil
}

// Capmonster solves reCAPTCHA tasks through api.capmonster.cloud. Same wire
// protocol as CapSolver, different task-type names.
type Capmonster struct {
	vendorClient
}

// NewCapmonster builds a CapMonster client with the default poll budget.
func NewCapmonster(apiKey string, opts ...SolverOption) *Capmonster {
	return &Capmonster{newVendorClient(apiKey, capmonsterBaseURL, opts)}
}

// Solve implements Solver.
func (s *Capmonster) Solve(pageURL, siteKey, action, variant string) (string, error) {
	var taskType string
	switch variant {
	case "v3":
		taskType = "RecaptchaV3TaskProxyless"
	default:
		taskType = "NoCaptchaTaskProxyless"
		if s.proxy != "" {
			taskType = "NoCaptchaTask"
		}
	}

	task := map[string]any{
		"type":       taskType,
		"websiteURL": pageURL,
		"websiteKey": siteKey,
	}
	if variant == "v3" {
		task["pageAction"] = action
		task["minScore"] = 0.9
	}
	if s.proxy != "" {
		task["proxy"] = s.proxy
	}

	taskID, err := s.createTask(task)
	if err != nil {
		return "", err
	}
	return s.harvestTask(taskID)
}
