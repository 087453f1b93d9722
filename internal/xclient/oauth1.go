package xclient

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// oauth1Signer signs requests with OAuth 1.0a HMAC-SHA1 user context.
type oauth1Signer struct {
	consumerKey    string
	consumerSecret string
	accessToken    string
	accessSecret   string
	nowFn          func() time.Time
	nonceFn        func() string
}

func newOAuth1Signer(ck, cs, at, as string) *oauth1Signer {
	return &oauth1Signer{
		consumerKey:    ck,
		consumerSecret: cs,
		accessToken:    at,
		accessSecret:   as,
		nowFn:          time.Now,
		nonceFn:        func() string { return strconv.FormatInt(rand.Int63(), 36) },
	}
}

// sign sets the Authorization header. Query parameters of req are part of
// the signature; formParams carries x-www-form-urlencoded body fields.
// JSON bodies are not signed.
func (s *oauth1Signer) sign(req *http.Request, formParams map[string]string) {
	oauth := map[string]string{
		"oauth_consumer_key":     s.consumerKey,
		"oauth_nonce":            s.nonceFn(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(s.nowFn().Unix(), 10),
		"oauth_token":            s.accessToken,
		"oauth_version":          "1.0",
	}
	oauth["oauth_signature"] = s.signature(req.Method, req.URL, oauth, formParams)

	keys := make([]string, 0, len(oauth))
	for k := range oauth {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=\"%s\"", rfc3986(k), rfc3986(oauth[k])))
	}
	req.Header.Set("Authorization", "OAuth "+strings.Join(parts, ", "))
}

func (s *oauth1Signer) signature(method string, u *url.URL, oauth, formParams map[string]string) string {
	type pair struct{ k, v string }
	var all []pair
	for k, v := range oauth {
		all = append(all, pair{rfc3986(k), rfc3986(v)})
	}
	for k, vs := range u.Query() {
		for _, v := range vs {
			all = append(all, pair{rfc3986(k), rfc3986(v)})
		}
	}
	for k, v := range formParams {
		all = append(all, pair{rfc3986(k), rfc3986(v)})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].k == all[j].k {
			return all[i].v < all[j].v
		}
		return all[i].k < all[j].k
	})
	parts := make([]string, 0, len(all))
	for _, p := range all {
		parts = append(parts, p.k+"="+p.v)
	}
	baseURL := u.Scheme + "://" + u.Host + u.Path
	base := strings.ToUpper(method) + "&" + rfc3986(baseURL) + "&" + rfc3986(strings.Join(parts, "&"))
	key := rfc3986(s.consumerSecret) + "&" + rfc3986(s.accessSecret)
	mac := hmac.New(sha1.New, []byte(key))
	_, _ = mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// RFC 3986 percent-encoding for OAuth
func rfc3986(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(url.QueryEscape(s), "+", "%20"), "*", "%2A")
}
