package spotapi

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	mrand "math/rand"
	"strings"
)

// parseJSONString extracts the value of `"key":"value"` from a raw page body
// by substring position. The bootstrap pages embed their config as inline
// JSON inside script tags, so this is cheaper and more tolerant than a full
// JSON decode of the surrounding document.
func parseJSONString(body, key string) (string, error) {
	marker := `"` + key + `":"`
	start := strings.Index(body, marker)
	if start == -1 {
		return "", newProtocolError(fmt.Sprintf("substring %q not found in response", key), "")
	}

	rest := body[start+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end == -1 {
		return "", newProtocolError(fmt.Sprintf("unterminated value for %q", key), "")
	}

	return rest[:end], nil
}

// randomHexString returns a random lowercase hex string of the given length.
// Spotify uses these for command and interaction ids.
func randomHexString(length int) string {
	buf := make([]byte, (length+1)/2)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)[:length]
}

// randomB64String returns a base64 string over random bytes of the given
// length, matching the web player's internal id generator.
func randomB64String(length int) string {
	buf := make([]byte, length)
	_, _ = rand.Read(buf)
	return base64.StdEncoding.EncodeToString(buf)
}

const asciiLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// randomString returns a random alphabetic string. With strong set it
// appends a digit and a symbol so the result passes password policy.
func randomString(length int, strong bool) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		b.WriteByte(asciiLetters[mrand.Intn(len(asciiLetters))])
	}
	if strong {
		b.WriteByte("0123456789"[mrand.Intn(10)])
		b.WriteByte("@$%&*!?"[mrand.Intn(7)])
	}
	return b.String()
}

var emailDomains = []string{
	"gmail.com",
	"outlook.com",
	"yahoo.com",
	"hotmail.com",
	"aol.com",
	"icloud.com",
	"msn.com",
	"live.com",
}

// randomEmail returns a plausible consumer mailbox address.
func randomEmail() string {
	return fmt.Sprintf("%s@%s",
		strings.ToLower(randomString(12, false)),
		emailDomains[mrand.Intn(len(emailDomains))])
}

// randomDOB returns a birthdate in the YYYY-MM-DD shape the signup endpoint
// expects, for an adult account.
func randomDOB() string {
	year := 1970 + mrand.Intn(30)
	month := 1 + mrand.Intn(12)
	day := 1 + mrand.Intn(28)
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}
