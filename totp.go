package spotapi

import (
	"encoding/base32"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
)

// The web player gates its token endpoint behind a rolling TOTP derived from
// a versioned shared secret that rotates with client releases. The secrets
// are scraped from shipped bundles and mirrored as a version->bytes map.
const totpSecretsURL = "https://raw.githubusercontent.com/Thereallo1026/spotify-secrets/main/secrets/secretDict.json"

const totpCacheTTL = 30 * time.Minute

// fallbackTotpSecret is the last-known-good pair used whenever the remote
// fetch fails. The fallback path never fails.
var fallbackTotpSecret = TotpSecret{
	Version: 19,
	Key:     []byte{37, 84, 32, 76, 87, 90, 87, 47, 13, 75, 48, 54, 44, 28, 19, 21, 22},
}

// TotpSecret is one versioned shared secret.
type TotpSecret struct {
	Version int
	Key     []byte
}

// TotpProvider produces the current one-time code for the token endpoint.
// It caches the fetched secret with a TTL and degrades to the hardcoded
// fallback on any fetch problem; no error is ever surfaced to callers.
type TotpProvider struct {
	mu      sync.Mutex
	secret  TotpSecret
	expires time.Time
	ttl     time.Duration
	fetch   func() (map[int][]byte, error)
	log     *logrus.Entry
}

// NewTotpProvider builds a provider with the default remote fetcher.
func NewTotpProvider(log *logrus.Entry) *TotpProvider {
	if log == nil {
		log = noopLogger()
	}
	return &TotpProvider{
		ttl:   totpCacheTTL,
		fetch: fetchTotpSecrets,
		log:   log,
	}
}

// defaultTotp is the process-wide provider; the secret is genuinely global
// (one per web-player release), so brokers share it unless a Config injects
// its own.
var defaultTotp = NewTotpProvider(nil)

// CurrentCode returns the code for the current 30-second window and the
// secret version it was derived from.
func (p *TotpProvider) CurrentCode() (code string, version int) {
	return p.codeAt(time.Now())
}

func (p *TotpProvider) codeAt(now time.Time) (string, int) {
	secret := p.currentSecret(now)

	code, err := totp.GenerateCode(encodeTotpSecret(secret.Key), now)
	if err != nil {
		// Only reachable with a malformed base32 secret, which our encoder
		// cannot produce; degrade to the fallback anyway.
		p.log.WithError(err).Warn("totp generation failed, using fallback secret")
		secret = fallbackTotpSecret
		code, _ = totp.GenerateCode(encodeTotpSecret(secret.Key), now)
	}
	return code, secret.Version
}

// currentSecret returns the cached secret, refreshing it when the TTL has
// lapsed and degrading to the fallback when the refresh fails.
func (p *TotpProvider) currentSecret(now time.Time) TotpSecret {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.secret.Key) > 0 && now.Before(p.expires) {
		return p.secret
	}

	secrets, err := p.fetch()
	if err != nil || len(secrets) == 0 {
		p.log.WithError(err).Warn("could not fetch totp secrets, using fallback")
		p.secret = fallbackTotpSecret
	} else {
		versions := make([]int, 0, len(secrets))
		for v := range secrets {
			versions = append(versions, v)
		}
		sort.Ints(versions)
		latest := versions[len(versions)-1]
		p.secret = TotpSecret{Version: latest, Key: secrets[latest]}
	}

	p.expires = now.Add(p.ttl)
	return p.secret
}

// Invalidate drops the cached secret so the next code triggers a refetch.
func (p *TotpProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.secret = TotpSecret{}
	p.expires = time.Time{}
}

// encodeTotpSecret applies the web player's per-index XOR descramble, joins
// the resulting bytes as decimal text, and base32-encodes that text: the
// exact derivation the client performs before feeding the standard TOTP
// algorithm.
func encodeTotpSecret(key []byte) string {
	var joined []byte
	for i, b := range key {
		transformed := b ^ byte((i%33)+9)
		joined = strconv.AppendInt(joined, int64(transformed), 10)
	}
	return base32.StdEncoding.EncodeToString(joined)
}

// fetchTotpSecrets pulls the mirrored version->bytes map.
func fetchTotpSecrets() (map[int][]byte, error) {
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Get(totpSecretsURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, newRequestError("could not fetch totp secrets", resp.StatusCode, string(body))
	}

	var raw map[string][]int
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	out := make(map[int][]byte, len(raw))
	for ver, nums := range raw {
		v, err := strconv.Atoi(ver)
		if err != nil {
			continue
		}
		key := make([]byte, len(nums))
		for i, n := range nums {
			key[i] = byte(n)
		}
		out[v] = key
	}
	return out, nil
}
