package dataset

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	return NewSigner("test-secret", "http://localhost:5001", 5*time.Minute)
}

// extractParams pulls the query parameters appended to the first signed link
// in the content.
func extractParams(t *testing.T, content string) url.Values {
	t.Helper()
	idx := strings.Index(content, "?")
	require.GreaterOrEqual(t, idx, 0, "content carries no query string")
	end := strings.IndexAny(content[idx:], ") \n")
	raw := content[idx+1:]
	if end >= 0 {
		raw = content[idx+1 : idx+end]
	}
	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	return values
}

func TestSignContentRewritesFilePreviewLinks(t *testing.T) {
	s := newTestSigner(t)
	content := "see ![chart](/files/0a1b2c3d-4e5f-6789-abcd-ef0123456789/file-preview) for details"

	signed := s.SignContent(content)

	require.NotEqual(t, content, signed)
	assert.Contains(t, signed, "/files/0a1b2c3d-4e5f-6789-abcd-ef0123456789/file-preview?")
	params := extractParams(t, signed)
	assert.NotEmpty(t, params.Get("timestamp"))
	assert.Len(t, params.Get("nonce"), 32)
	assert.NotEmpty(t, params.Get("sign"))

	ok := s.Verify(ResourceFilePreview, "0a1b2c3d-4e5f-6789-abcd-ef0123456789",
		params.Get("timestamp"), params.Get("nonce"), params.Get("sign"))
	assert.True(t, ok)
}

func TestSignContentRewritesImagePreviewLinks(t *testing.T) {
	s := newTestSigner(t)
	content := "![img](/files/aaaabbbb-cccc-dddd-eeee-ffff00001111/image-preview)"

	signed := s.SignContent(content)

	params := extractParams(t, signed)
	ok := s.Verify(ResourceImagePreview, "aaaabbbb-cccc-dddd-eeee-ffff00001111",
		params.Get("timestamp"), params.Get("nonce"), params.Get("sign"))
	assert.True(t, ok)

	// The signature is bound to the resource kind.
	ok = s.Verify(ResourceFilePreview, "aaaabbbb-cccc-dddd-eeee-ffff00001111",
		params.Get("timestamp"), params.Get("nonce"), params.Get("sign"))
	assert.False(t, ok)
}

func TestSignContentHandlesMultipleLinks(t *testing.T) {
	s := newTestSigner(t)
	content := "a /files/11111111-2222-3333-4444-555566667777/file-preview b " +
		"/files/88888888-9999-aaaa-bbbb-ccccddddeeee/image-preview c"

	signed := s.SignContent(content)

	assert.Equal(t, 2, strings.Count(signed, "sign="))
	assert.Equal(t, 2, strings.Count(signed, "nonce="))
	assert.True(t, strings.HasSuffix(signed, " c"))
	assert.True(t, strings.HasPrefix(signed, "a /files/"))
}

func TestSignContentLeavesPlainTextAlone(t *testing.T) {
	s := newTestSigner(t)
	content := "no links here, just text mentioning /files/ casually"

	assert.Equal(t, content, s.SignContent(content))
}

func TestSignedURL(t *testing.T) {
	s := newTestSigner(t)

	u := s.SignedURL(ResourceFilePreview, "0a1b2c3d-4e5f-6789-abcd-ef0123456789")
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "localhost:5001", parsed.Host)
	assert.Equal(t, "/files/0a1b2c3d-4e5f-6789-abcd-ef0123456789/file-preview", parsed.Path)

	q := parsed.Query()
	ok := s.Verify(ResourceFilePreview, "0a1b2c3d-4e5f-6789-abcd-ef0123456789",
		q.Get("timestamp"), q.Get("nonce"), q.Get("sign"))
	assert.True(t, ok)
}

func TestVerifyRejectsTampering(t *testing.T) {
	s := newTestSigner(t)
	u := s.SignedURL(ResourceFilePreview, "0a1b2c3d-4e5f-6789-abcd-ef0123456789")
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	q := parsed.Query()

	assert.False(t, s.Verify(ResourceFilePreview, "ffffffff-4e5f-6789-abcd-ef0123456789",
		q.Get("timestamp"), q.Get("nonce"), q.Get("sign")))
	assert.False(t, s.Verify(ResourceFilePreview, "0a1b2c3d-4e5f-6789-abcd-ef0123456789",
		q.Get("timestamp"), "0123456789abcdef0123456789abcdef", q.Get("sign")))

	other := NewSigner("other-secret", "http://localhost:5001", 5*time.Minute)
	assert.False(t, other.Verify(ResourceFilePreview, "0a1b2c3d-4e5f-6789-abcd-ef0123456789",
		q.Get("timestamp"), q.Get("nonce"), q.Get("sign")))
}

func TestVerifyRejectsExpiredSignature(t *testing.T) {
	s := newTestSigner(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	u := s.SignedURL(ResourceImagePreview, "aaaabbbb-cccc-dddd-eeee-ffff00001111")
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	q := parsed.Query()

	verify := func() bool {
		return s.Verify(ResourceImagePreview, "aaaabbbb-cccc-dddd-eeee-ffff00001111",
			q.Get("timestamp"), q.Get("nonce"), q.Get("sign"))
	}

	assert.True(t, verify())

	s.now = func() time.Time { return base.Add(5 * time.Minute) }
	assert.True(t, verify(), "signature at exactly the ttl boundary is still valid")

	s.now = func() time.Time { return base.Add(5*time.Minute + time.Second) }
	assert.False(t, verify())

	// Timestamps from the future are refused outright.
	s.now = func() time.Time { return base.Add(-time.Minute) }
	assert.False(t, verify())
}

func TestNoncesAreUnique(t *testing.T) {
	s := newTestSigner(t)
	content := "/files/11111111-2222-3333-4444-555566667777/file-preview"

	first := extractParams(t, s.SignContent(content)).Get("nonce")
	second := extractParams(t, s.SignContent(content)).Get("nonce")
	assert.NotEqual(t, first, second)
}

func TestEmptySecretStillSigns(t *testing.T) {
	s := NewSigner("", "http://localhost:5001", time.Minute)
	u := s.SignedURL(ResourceFilePreview, "0a1b2c3d-4e5f-6789-abcd-ef0123456789")
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	q := parsed.Query()
	assert.True(t, s.Verify(ResourceFilePreview, "0a1b2c3d-4e5f-6789-abcd-ef0123456789",
		q.Get("timestamp"), q.Get("nonce"), q.Get("sign")))
}
