// Package sigv4 implements the AWS Signature Version 4 header signing scheme
// shared by the object store probe and the queue client.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	Algorithm       = "AWS4-HMAC-SHA256"
	UnsignedPayload = "UNSIGNED-PAYLOAD"

	HeaderAuthorization = "Authorization"
	HeaderDate          = "X-Amz-Date"
	HeaderContentSHA256 = "X-Amz-Content-Sha256"
	HeaderSecurityToken = "X-Amz-Security-Token"

	// basic ISO-8601, always UTC
	TimeFormat = "20060102T150405Z"
	terminator = "aws4_request"
)

// EmptyPayloadHash is the hex SHA-256 of an empty body.
var EmptyPayloadHash = HashPayload(nil)

var ErrMissingCredentials = errors.New("sigv4: missing credentials")

type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

func (c Credentials) Empty() bool {
	return strings.TrimSpace(c.AccessKeyID) == "" || strings.TrimSpace(c.SecretAccessKey) == ""
}

// Request holds the parts of an HTTP request that take part in signing.
type Request struct {
	Method string
	Host   string
	// Path must already be URI encoded, see EscapePath.
	Path  string
	Query url.Values
	// Headers are signed and echoed back in the result.
	Headers map[string]string
	// PayloadHash is the hex SHA-256 of the body or UnsignedPayload.
	PayloadHash string
}

// Signer is bound to one target service and region. It performs no I/O.
type Signer struct {
	Service string
	Region  string
	Now     func() time.Time
}

func New(service, region string) *Signer {
	return &Signer{Service: service, Region: region, Now: time.Now}
}

// Sign returns the headers to attach to the request, signed at the current time.
func (s *Signer) Sign(req Request, creds Credentials) (http.Header, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return s.SignAt(req, creds, now())
}

// SignAt is Sign with an explicit signing time.
func (s *Signer) SignAt(req Request, creds Credentials, t time.Time) (http.Header, error) {
	if creds.Empty() {
		return nil, ErrMissingCredentials
	}
	if req.Host == "" {
		return nil, errors.New("sigv4: host is required")
	}

	amzDate := t.UTC().Format(TimeFormat)
	dateStamp := amzDate[:8]

	payloadHash := req.PayloadHash
	if payloadHash == "" {
		payloadHash = EmptyPayloadHash
	}

	out := make(http.Header, len(req.Headers)+4)
	signed := make(map[string]string, len(req.Headers)+4)
	for name, value := range req.Headers {
		out.Set(name, value)
		signed[strings.ToLower(name)] = value
	}
	signed["host"] = req.Host
	signed["x-amz-date"] = amzDate
	signed["x-amz-content-sha256"] = payloadHash
	out.Set(HeaderDate, amzDate)
	out.Set(HeaderContentSHA256, payloadHash)
	if creds.SessionToken != "" {
		signed["x-amz-security-token"] = creds.SessionToken
		out.Set(HeaderSecurityToken, creds.SessionToken)
	}

	canonical, signedHeaders := canonicalRequest(req.Method, req.Path, canonicalQuery(req.Query), signed, payloadHash)
	scope := credentialScope(dateStamp, s.Region, s.Service)
	key := deriveSigningKey(creds.SecretAccessKey, dateStamp, s.Region, s.Service)
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign(amzDate, scope, canonical)))

	out.Set(HeaderAuthorization, Algorithm+
		" Credential="+creds.AccessKeyID+"/"+scope+
		", SignedHeaders="+signedHeaders+
		", Signature="+signature)
	return out, nil
}

// HashPayload returns the lower-case hex SHA-256 of body.
func HashPayload(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func canonicalRequest(method, path, query string, headers map[string]string, payloadHash string) (string, string) {
	if path == "" {
		path = "/"
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(canonicalHeaderValue(headers[name]))
		b.WriteByte('\n')
	}
	signedHeaders := strings.Join(names, ";")

	return strings.Join([]string{
		strings.ToUpper(method),
		path,
		query,
		b.String(),
		signedHeaders,
		payloadHash,
	}, "\n"), signedHeaders
}

// canonicalHeaderValue trims the value and collapses runs of spaces.
func canonicalHeaderValue(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

func canonicalQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(q))
	for _, k := range keys {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			pairs = append(pairs, escape(k)+"="+escape(v))
		}
	}
	return strings.Join(pairs, "&")
}

func credentialScope(dateStamp, region, service string) string {
	return dateStamp + "/" + region + "/" + service + "/" + terminator
}

func stringToSign(amzDate, scope, canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return Algorithm + "\n" + amzDate + "\n" + scope + "\n" + hex.EncodeToString(sum[:])
}

// deriveSigningKey chains HMACs over date, region, service and the terminator.
func deriveSigningKey(secret, dateStamp, region, service string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), dateStamp)
	k = hmacSHA256(k, region)
	k = hmacSHA256(k, service)
	return hmacSHA256(k, terminator)
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}
