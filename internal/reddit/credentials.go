package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
)

// Credentials are what a user stored for an account. Either may be empty.
type Credentials struct {
	// Cookie is a Cookie header ("reddit_session=...; token_v2=...") or a bare
	// reddit_session value.
	Cookie      string
	BearerToken string
}

// Extraction methods, reported with the result.
const (
	MethodCookie = "cookie"
	MethodBearer = "bearer"
	MethodJWT    = "jwt"
	MethodHTML   = "html"
)

// Identity is the account a set of credentials belongs to.
type Identity struct {
	Username string
	Method   string
}

// Usernames embedded in the logged-in home page, most specific first. A bare
// "name" field is not enough: logged-out pages carry subreddit and post names.
var embeddedUsernamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`"username"\s*:\s*"([A-Za-z0-9_-]{3,20})"`),
	regexp.MustCompile(`"user"\s*:\s*\{[^{}]*"name"\s*:\s*"([A-Za-z0-9_-]{3,20})"`),
}

// ExtractUsername determines which account the credentials log in as.
// It tries, in order: the cookie session API, the bearer token API, decoding
// the token as a JWT, and scraping the logged-in home page. The first method
// that yields a username wins. When all fail the error wraps
// ErrCredentialsRejected and lists every method's reason.
func (c *Client) ExtractUsername(ctx context.Context, creds Credentials) (*Identity, error) {
	cookie := cookieHeader(creds.Cookie)
	token := strings.TrimSpace(creds.BearerToken)
	if token == "" {
		token = cookieValue(cookie, "token_v2")
	}
	if cookie == "" && token == "" {
		return nil, fmt.Errorf("%w: no cookie or bearer token provided", ErrCredentialsRejected)
	}

	type attempt struct {
		method string
		run    func() (string, error)
	}
	attempts := []attempt{
		{MethodCookie, func() (string, error) { return c.usernameFromCookie(ctx, cookie) }},
		{MethodBearer, func() (string, error) { return c.usernameFromBearer(ctx, token) }},
		{MethodJWT, func() (string, error) { return c.usernameFromJWT(ctx, token) }},
		{MethodHTML, func() (string, error) { return c.usernameFromHTML(ctx, cookie) }},
	}

	var reasons []string
	for _, a := range attempts {
		name, err := a.run()
		if err == nil && name != "" {
			return &Identity{Username: name, Method: a.method}, nil
		}
		if err == nil {
			err = errors.New("no username in response")
		}
		// A cancelled context fails every later attempt the same way
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		reasons = append(reasons, a.method+": "+err.Error())
	}

	return nil, fmt.Errorf("%w: %s", ErrCredentialsRejected, strings.Join(reasons, "; "))
}

var errSkipped = errors.New("not provided")

func (c *Client) usernameFromCookie(ctx context.Context, cookie string) (string, error) {
	if cookie == "" {
		return "", errSkipped
	}
	resp, err := c.do(ctx, request{
		endpoint: "me_cookie",
		url:      c.baseURL + "/api/me.json",
		headers:  map[string]string{"Cookie": cookie},
	})
	if err != nil {
		return "", err
	}
	if err := checkStatus("me_cookie", resp, nil); err != nil {
		return "", err
	}
	return gjson.GetBytes(resp.body, "data.name").String(), nil
}

func (c *Client) usernameFromBearer(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", errSkipped
	}
	resp, err := c.do(ctx, request{
		endpoint: "me_oauth",
		url:      c.oauthURL + "/api/v1/me",
		headers:  map[string]string{"Authorization": "Bearer " + token},
	})
	if err != nil {
		return "", err
	}
	if err := checkStatus("me_oauth", resp, nil); err != nil {
		return "", err
	}
	return gjson.GetBytes(resp.body, "name").String(), nil
}

// usernameFromJWT reads the token's claims without verifying the signature.
// Only Reddit can verify it. The claims are used as a hint, never as proof.
func (c *Client) usernameFromJWT(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", errSkipped
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}

	for _, key := range []string{"name", "username"} {
		if v, ok := claims[key].(string); ok && usernamePattern.MatchString(v) {
			return v, nil
		}
	}

	sub, _ := claims["sub"].(string)
	if !strings.HasPrefix(sub, "t2_") {
		return "", errors.New("token carries no username or account id")
	}
	return c.usernameByAccountID(ctx, sub)
}

func (c *Client) usernameByAccountID(ctx context.Context, fullname string) (string, error) {
	resp, err := c.do(ctx, request{
		endpoint: "user_data_by_account_ids",
		url:      c.baseURL + "/api/user_data_by_account_ids.json?ids=" + url.QueryEscape(fullname),
	})
	if err != nil {
		return "", err
	}
	if err := checkStatus("user_data_by_account_ids", resp, ErrUserNotFound); err != nil {
		return "", err
	}
	name := gjson.GetBytes(resp.body, fullname+".name").String()
	if name == "" {
		return "", fmt.Errorf("account %s not found", fullname)
	}
	return name, nil
}

func (c *Client) usernameFromHTML(ctx context.Context, cookie string) (string, error) {
	if cookie == "" {
		return "", errSkipped
	}
	resp, err := c.do(ctx, request{
		endpoint: "home_page",
		url:      c.baseURL + "/",
		headers:  map[string]string{"Cookie": cookie, "Accept": "text/html"},
	})
	if err != nil {
		return "", err
	}
	if err := checkStatus("home_page", resp, nil); err != nil {
		return "", err
	}
	page := string(resp.body)
	for _, re := range embeddedUsernamePatterns {
		if m := re.FindStringSubmatch(page); m != nil {
			return m[1], nil
		}
	}
	return "", errors.New("no username embedded in page")
}

// cookieHeader turns a stored cookie into a Cookie header value. A bare value
// without "=" is taken as the reddit_session cookie.
func cookieHeader(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "Cookie:")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "=") {
		return "reddit_session=" + raw
	}
	return raw
}

// cookieValue returns the named cookie from a Cookie header. Parsing is
// lenient so one malformed pair does not hide the others.
func cookieValue(header, name string) string {
	for _, pair := range strings.Split(header, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && k == name {
			return strings.Trim(v, `"`)
		}
	}
	return ""
}
