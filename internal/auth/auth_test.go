package auth

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildSignedRequest signs a request the same way the verifier would
// recompute it, so tests exercise Authorize against a genuinely valid
// signature rather than a hand-copied fixture.
func buildSignedRequest(v *Verifier, secretKey, accessKeyID string, reqTime time.Time, method, host, path string, body []byte) *SignedRequest {
	dateHeader := reqTime.UTC().Format(dateLayout)
	headers := http.Header{}
	headers.Set("Host", host)
	headers.Set("X-Amz-Date", dateHeader)

	req := &SignedRequest{Method: method, Host: host, Path: path, Headers: headers, Body: body}

	date8 := dateHeader[:8]
	sig := v.signature(req, host, dateHeader, date8, secretKey)

	headers.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s/%s/%s/aws4_request,SignedHeaders=host;x-amz-date,Signature=%s",
		accessKeyID, date8, v.region, v.service, sig,
	))
	return req
}

func fixedVerifier(creds CredentialStore, region string, now time.Time) *Verifier {
	v := NewVerifier(creds, region)
	v.now = func() time.Time { return now }
	return v
}

func TestAuthorizeAcceptsValidSignature(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	creds := MapCredentialStore{
		"AKID": {AccessKeyID: "AKID", SecretAccessKey: "secret", State: "ACTIVE", Permissions: []string{"dom:write"}},
	}
	v := fixedVerifier(creds, "us-west-2", now)

	req := buildSignedRequest(v, "secret", "AKID", now, "POST", "example.com", "/datapoints", []byte(`{}`))
	require.NoError(t, v.Authorize(req, "dom", "write"))
}

func TestAuthorizeRejectsSkew(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	creds := MapCredentialStore{
		"AKID": {AccessKeyID: "AKID", SecretAccessKey: "secret", State: "ACTIVE", Permissions: []string{"*:write"}},
	}
	v := fixedVerifier(creds, "us-west-2", now)

	old := now.Add(-MaxSkew - time.Minute)
	req := buildSignedRequest(v, "secret", "AKID", old, "POST", "example.com", "/datapoints", []byte(`{}`))

	assert.Error(t, v.Authorize(req, "dom", "write"))
}

func TestAuthorizeRejectsInactiveCredential(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	creds := MapCredentialStore{
		"AKID": {AccessKeyID: "AKID", SecretAccessKey: "secret", State: "INACTIVE", Permissions: []string{"*:write"}},
	}
	v := fixedVerifier(creds, "us-west-2", now)

	req := buildSignedRequest(v, "secret", "AKID", now, "POST", "example.com", "/datapoints", []byte(`{}`))
	assert.Error(t, v.Authorize(req, "dom", "write"))
}

func TestAuthorizeRejectsMissingPermission(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	creds := MapCredentialStore{
		"AKID": {AccessKeyID: "AKID", SecretAccessKey: "secret", State: "ACTIVE", Permissions: []string{"other:write"}},
	}
	v := fixedVerifier(creds, "us-west-2", now)

	req := buildSignedRequest(v, "secret", "AKID", now, "POST", "example.com", "/datapoints", []byte(`{}`))
	assert.Error(t, v.Authorize(req, "dom", "write"))
}

func TestAuthorizeRejectsTamperedBody(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	creds := MapCredentialStore{
		"AKID": {AccessKeyID: "AKID", SecretAccessKey: "secret", State: "ACTIVE", Permissions: []string{"*:write"}},
	}
	v := fixedVerifier(creds, "us-west-2", now)

	req := buildSignedRequest(v, "secret", "AKID", now, "POST", "example.com", "/datapoints", []byte(`{}`))
	req.Body = []byte(`{"tampered":true}`)

	assert.Error(t, v.Authorize(req, "dom", "write"))
}

func TestAuthorizeRejectsWrongSecret(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	creds := MapCredentialStore{
		"AKID": {AccessKeyID: "AKID", SecretAccessKey: "secret", State: "ACTIVE", Permissions: []string{"*:write"}},
	}
	v := fixedVerifier(creds, "us-west-2", now)

	req := buildSignedRequest(v, "wrong-secret", "AKID", now, "POST", "example.com", "/datapoints", []byte(`{}`))
	assert.Error(t, v.Authorize(req, "dom", "write"))
}

func TestAuthorizeRejectsUnknownAccessKey(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	v := fixedVerifier(MapCredentialStore{}, "us-west-2", now)

	req := buildSignedRequest(v, "secret", "AKID", now, "POST", "example.com", "/datapoints", []byte(`{}`))
	assert.Error(t, v.Authorize(req, "dom", "write"))
}

func TestCheckAccessWildcardDomain(t *testing.T) {
	assert.True(t, checkAccess("anything", "write", []string{"*:write"}))
	assert.False(t, checkAccess("anything", "read", []string{"*:write"}))
	assert.True(t, checkAccess("dom", "read", []string{"other:write", "dom:read"}))
}
