package spotapi

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	http "github.com/bogdanfinn/fhttp"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	openSpotifyURL = "https://open.spotify.com"
	tokenURL       = openSpotifyURL + "/api/token"
	clientTokenURL = "https://clienttoken.spotify.com/v1/clienttoken"
	cdnBuildURL    = "https://open.spotifycdn.com/cdn/build/web-player/"
	pathfinderURL  = "https://api-partner.spotify.com/pathfinder/v1/query"
)

var jsPackPattern = regexp.MustCompile(`https:\/\/open\.spotifycdn\.com\/cdn\/build\/web-player\/web-player.*?\.js`)

// hashAssetNames are the asset-bundle chunks whose bodies are appended to
// the raw-hash blob. The main bundle does not carry every persisted-query
// hash; the route chunks hold the rest.
var hashAssetNames = []string{"xpui-routes-search"}

// Client is the credential broker: it owns the small set of interdependent,
// lazily-fetched secrets the web player derives at runtime and installs
// itself as the transport's authenticate hook. Fields are tri-state
// (never fetched / fetched empty / fetched) and only ever populated by their
// designated fetch operation, in dependency order.
//
// One mutex serializes every fetch operation and Authorize, so first-use
// from multiple goroutines (application thread vs. heartbeat thread) is
// safe.
type Client struct {
	mu     sync.Mutex
	client *Transport
	totp   *TotpProvider
	log    *logrus.Entry

	jsPack        credField
	clientVersion credField
	accessToken   credField
	clientToken   credField
	clientID      credField
	deviceID      credField
	rawHashes     credField
}

// NewClient builds a broker over the config's transport and installs the
// authorize hook on it.
func NewClient(cfg *Config) *Client {
	c := &Client{
		client: cfg.Client,
		totp:   defaultTotp,
		log:    cfg.Log.WithField("component", "client"),
	}
	cfg.Client.Authenticate = c.Authorize
	return c
}

// Authorize augments an outgoing request with the bearer token, the
// app-instance token and the app-version header, fetching any missing
// dependency first. Installed as the transport's authenticate hook.
func (c *Client) Authorize(req *http.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.clientToken.ok() {
		if err := c.ensureAppToken(); err != nil {
			return err
		}
	}
	if !c.accessToken.ok() {
		if err := c.ensureSession(); err != nil {
			return err
		}
	}

	req.Header.Set("Authorization", "Bearer "+c.accessToken.get())
	req.Header.Set("Client-Token", c.clientToken.get())
	req.Header.Set("Spotify-App-Version", c.clientVersion.get())
	return nil
}

// EnsureSession fetches the bootstrap page and the TOTP-gated token
// endpoint, populating the asset-bundle URL, device id, access token and
// app client id. Idempotent.
func (c *Client) EnsureSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureSession()
}

func (c *Client) ensureSession() error {
	if c.accessToken.ok() && c.clientID.ok() {
		return nil
	}

	resp, err := c.client.Get(openSpotifyURL, http.Header{
		"User-Agent": {c.client.UserAgent()},
	})
	if err != nil {
		return err
	}
	if resp.Fail() {
		return newClientError("could not get session", resp.Err("bootstrap page").Error())
	}

	body := resp.Text()

	packs := jsPackPattern.FindAllString(body, -1)
	switch {
	case len(packs) >= 2:
		c.jsPack.set(packs[1])
	case len(packs) == 1:
		c.jsPack.set(packs[0])
	default:
		return newProtocolError("could not locate web-player bundle in bootstrap page", "")
	}

	if device, err := parseJSONString(body, "correlationId"); err == nil {
		c.deviceID.set(device)
	} else {
		c.deviceID.set(uuid.NewString())
	}

	return c.fetchAccessToken()
}

// fetchAccessToken hits the token endpoint with a freshly computed TOTP.
// Computed per call: the code is only valid within its 30-second window.
func (c *Client) fetchAccessToken() error {
	code, version := c.totp.CurrentCode()

	q := url.Values{}
	q.Set("reason", "init")
	q.Set("productType", "web-player")
	q.Set("totp", code)
	q.Set("totpVer", fmt.Sprintf("%d", version))
	q.Set("totpServer", code)

	resp, err := c.client.Get(tokenURL+"?"+q.Encode(), http.Header{
		"Accept": {"application/json"},
	})
	if err != nil {
		return err
	}
	if resp.Fail() {
		return newClientError("could not get access token", resp.Err("token endpoint").Error())
	}

	var payload struct {
		AccessToken string `json:"accessToken"`
		ClientID    string `json:"clientId"`
	}
	if err := resp.DecodeJSON(&payload); err != nil {
		return err
	}

	c.accessToken.set(payload.AccessToken)
	c.clientID.set(payload.ClientID)

	if !c.accessToken.ok() {
		return newClientError("token endpoint returned an empty access token", "")
	}
	return nil
}

// EnsureAppVersion fetches the asset bundle, extracting the numeric app
// version and assembling the raw-hash blob from the bundle plus every
// referenced route chunk. Idempotent; depends on EnsureSession.
func (c *Client) EnsureAppVersion() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureAppVersion()
}

func (c *Client) ensureAppVersion() error {
	if c.rawHashes.ok() {
		return nil
	}
	if !c.jsPack.ok() {
		if err := c.ensureSession(); err != nil {
			return err
		}
	}
	if !c.jsPack.ok() {
		return newClientError("no asset bundle reference after session bootstrap", "")
	}

	resp, err := c.client.Get(c.jsPack.get(), nil)
	if err != nil {
		return err
	}
	if resp.Fail() {
		return newClientError("could not get asset bundle", resp.Err("bundle").Error())
	}

	body := resp.Text()

	version, err := extractQuoted(body, `clientVersion:"`)
	if err != nil {
		return err
	}
	c.clientVersion.set(version)

	blob := body
	for _, name := range hashAssetNames {
		chunkURL, err := resolveChunkURL(body, name)
		if err != nil {
			return err
		}
		chunk, err := c.client.Get(chunkURL, nil)
		if err != nil {
			return err
		}
		if chunk.Fail() {
			return newClientError("could not get bundle chunk", chunk.Err(name).Error())
		}
		blob += chunk.Text()
	}

	c.rawHashes.set(blob)
	return nil
}

// resolveChunkURL maps an abstract asset name to its concrete chunk URL via
// the bundle's route table: the numeric id preceding `:"name"` indexes an
// id->hash map elsewhere in the bundle.
func resolveChunkURL(bundle, name string) (string, error) {
	idx := strings.Index(bundle, `:"`+name+`"`)
	if idx == -1 {
		return "", newProtocolError(fmt.Sprintf("asset %q not present in bundle route table", name), "")
	}

	// Walk the route id digits backwards from the marker.
	start := idx
	for start > 0 && bundle[start-1] >= '0' && bundle[start-1] <= '9' {
		start--
	}
	if start == idx {
		return "", newProtocolError(fmt.Sprintf("no route id preceding asset %q", name), "")
	}
	routeID := bundle[start:idx]

	hashPattern, err := regexp.Compile(regexp.QuoteMeta(routeID) + `:"([^"]*)"`)
	if err != nil {
		return "", newProtocolError("bad route id", err.Error())
	}
	matches := hashPattern.FindAllStringSubmatch(bundle, -1)
	if len(matches) == 0 {
		return "", newProtocolError(fmt.Sprintf("no chunk hash for asset %q", name), "")
	}
	hash := matches[len(matches)-1][1]

	return cdnBuildURL + name + "." + hash + ".js", nil
}

// EnsureAppToken POSTs the device/client descriptor to the app-token
// endpoint. Fails unless the response explicitly reports a granted token.
// Idempotent; depends on EnsureSession and EnsureAppVersion.
func (c *Client) EnsureAppToken() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureAppToken()
}

func (c *Client) ensureAppToken() error {
	if c.clientToken.ok() {
		return nil
	}
	if !c.clientID.ok() || !c.deviceID.ok() {
		if err := c.ensureSession(); err != nil {
			return err
		}
	}
	if !c.clientVersion.ok() {
		if err := c.ensureAppVersion(); err != nil {
			return err
		}
	}

	payload := map[string]any{
		"client_data": map[string]any{
			"client_version": c.clientVersion.get(),
			"client_id":      c.clientID.get(),
			"js_sdk_data": map[string]any{
				"device_brand": "unknown",
				"device_model": "unknown",
				"os":           "windows",
				"os_version":   "NT 10.0",
				"device_id":    c.deviceID.get(),
				"device_type":  "computer",
			},
		},
	}

	resp, err := c.client.Do(&Request{
		Method: http.MethodPost,
		URL:    clientTokenURL,
		JSON:   payload,
		Header: http.Header{
			"Authority": {"clienttoken.spotify.com"},
			"Accept":    {"application/json"},
		},
	})
	if err != nil {
		return err
	}
	if resp.Fail() {
		return newClientError("could not get client token", resp.Err("clienttoken endpoint").Error())
	}

	var out struct {
		ResponseType string `json:"response_type"`
		GrantedToken struct {
			Token string `json:"token"`
		} `json:"granted_token"`
	}
	if err := resp.DecodeJSON(&out); err != nil {
		return err
	}
	if out.ResponseType != "RESPONSE_GRANTED_TOKEN_RESPONSE" {
		return newClientError("could not get client token", out.ResponseType)
	}

	c.clientToken.set(out.GrantedToken.Token)
	return nil
}

// OperationHash looks up the persisted-query hash for a named operation in
// the raw-hash blob, fetching the blob first if needed. The hashes rotate
// with client releases, so they are scraped, never hardcoded.
func (c *Client) OperationHash(name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.rawHashes.ok() {
		if err := c.ensureAppVersion(); err != nil {
			return "", err
		}
	}

	blob := c.rawHashes.get()
	for _, kind := range []string{"query", "mutation"} {
		marker := `"` + name + `","` + kind + `","`
		if idx := strings.Index(blob, marker); idx != -1 {
			rest := blob[idx+len(marker):]
			if end := strings.IndexByte(rest, '"'); end != -1 {
				return rest[:end], nil
			}
		}
	}
	return "", newProtocolError(fmt.Sprintf("no operation hash for %q", name), "")
}

// BuildOperation assembles a persisted-query call: a POST carrying the
// operation name, its variables and the looked-up sha256 hash, marked for
// authentication.
func (c *Client) BuildOperation(name string, variables map[string]any) (*Request, error) {
	hash, err := c.OperationHash(name)
	if err != nil {
		return nil, err
	}
	if variables == nil {
		variables = map[string]any{}
	}
	return &Request{
		Method: http.MethodPost,
		URL:    pathfinderURL,
		JSON: map[string]any{
			"operationName": name,
			"variables":     variables,
			"extensions": map[string]any{
				"persistedQuery": map[string]any{
					"version":    1,
					"sha256Hash": hash,
				},
			},
		},
		Authenticate: true,
	}, nil
}

// AccessToken returns the current bearer token, bootstrapping the session
// if needed.
func (c *Client) AccessToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureSession(); err != nil {
		return "", err
	}
	return c.accessToken.get(), nil
}

// DeviceID returns the session's device fingerprint id.
func (c *Client) DeviceID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureSession(); err != nil {
		return "", err
	}
	return c.deviceID.get(), nil
}

// ClientVersion returns the scraped numeric app version.
func (c *Client) ClientVersion() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureAppVersion(); err != nil {
		return "", err
	}
	return c.clientVersion.get(), nil
}

// Invalidate drops every cached credential so the next use rebuilds the
// whole set. Called on fatal auth failure.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range []*credField{
		&c.jsPack, &c.clientVersion, &c.accessToken,
		&c.clientToken, &c.clientID, &c.deviceID, &c.rawHashes,
	} {
		f.reset()
	}
}

// extractQuoted returns the text between marker and the next double quote.
func extractQuoted(body, marker string) (string, error) {
	idx := strings.Index(body, marker)
	if idx == -1 {
		return "", newProtocolError(fmt.Sprintf("marker %q not found", marker), "")
	}
	rest := body[idx+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end == -1 {
		return "", newProtocolError(fmt.Sprintf("unterminated value after %q", marker), "")
	}
	return rest[:end], nil
}
