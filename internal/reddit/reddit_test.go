package reddit

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabinet/cabinet/internal/metrics"
	"github.com/cabinet/cabinet/internal/model"
)

// fakeReddit routes requests by path to canned handlers.
type fakeReddit struct {
	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	hits   map[string]int
	agents []string
}

func newFakeReddit() *fakeReddit {
	return &fakeReddit{routes: map[string]http.HandlerFunc{}, hits: map[string]int{}}
}

func (f *fakeReddit) handle(path string, h http.HandlerFunc) {
	f.routes[path] = h
}

func (f *fakeReddit) jsonRoute(path string, status int, body string) {
	f.handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func (f *fakeReddit) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.agents = append(f.agents, r.UserAgent())
	h, ok := f.routes[r.URL.Path]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (f *fakeReddit) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func newTestClient(t *testing.T, f *fakeReddit, rec metrics.Recorder) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:   srv.URL,
		OAuthURL:  srv.URL + "/oauth",
		UserAgent: "cabinet-test/1.0",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:   rec,
	})
}

const aboutSpez = `{"kind":"t2","data":{"name":"spez","link_karma":100,"comment_karma":50,"total_karma":150,
	"created_utc":1118030400.0,"icon_img":"https://styles.redditmedia.com/a.png?x=1&amp;y=2",
	"is_suspended":false,"subreddit":{"subscribers":0}}}`

func TestFetchProfile(t *testing.T) {
	f := newFakeReddit()
	f.jsonRoute("/user/spez/about.json", http.StatusOK, aboutSpez)
	f.jsonRoute("/user/spez/submitted.json", http.StatusOK, `{"kind":"Listing","data":{"children":[{},{},{}]}}`)
	f.handle("/user/spez/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><span>1.2k</span> <span>followers</span></html>`)
	})
	rec := metrics.NewInMemory()
	c := newTestClient(t, f, rec)

	stats, err := c.FetchProfile(context.Background(), "spez")
	require.NoError(t, err)

	assert.Equal(t, "spez", stats.Username)
	assert.Equal(t, int64(100), stats.PostKarma)
	assert.Equal(t, int64(50), stats.CommentKarma)
	assert.Equal(t, int64(150), stats.TotalKarma)
	assert.Equal(t, int64(3), stats.PostsCount)
	assert.Equal(t, int64(1200), stats.Followers)
	assert.Equal(t, "https://styles.redditmedia.com/a.png?x=1&y=2", stats.AvatarURL)
	require.NotNil(t, stats.AccountCreatedAt)
	assert.Equal(t, 2005, stats.AccountCreatedAt.Year())

	assert.Equal(t, uint64(3), rec.Snapshot().RedditRequests)
	for _, ua := range f.agents {
		assert.Equal(t, "cabinet-test/1.0", ua)
	}
}

func TestFetchProfile_FollowersFromAbout(t *testing.T) {
	f := newFakeReddit()
	f.jsonRoute("/user/spez/about.json", http.StatusOK,
		`{"kind":"t2","data":{"name":"spez","link_karma":1,"comment_karma":2,"subreddit":{"subscribers":77}}}`)
	f.jsonRoute("/user/spez/submitted.json", http.StatusOK, `{"data":{"children":[]}}`)
	c := newTestClient(t, f, nil)

	stats, err := c.FetchProfile(context.Background(), "spez")
	require.NoError(t, err)

	assert.Equal(t, int64(77), stats.Followers)
	assert.Equal(t, int64(3), stats.TotalKarma, "total falls back to the sum")
	assert.Equal(t, 0, f.hitCount("/user/spez/"), "profile page is skipped when about has followers")
}

func TestFetchProfile_PartialData(t *testing.T) {
	f := newFakeReddit()
	f.jsonRoute("/user/spez/about.json", http.StatusOK, aboutSpez)
	f.jsonRoute("/user/spez/submitted.json", http.StatusInternalServerError, `oops`)
	f.handle("/user/spez/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>nothing here</html>`)
	})
	c := newTestClient(t, f, nil)

	stats, err := c.FetchProfile(context.Background(), "spez")
	require.NoError(t, err)
	assert.Equal(t, int64(150), stats.TotalKarma)
	assert.Zero(t, stats.PostsCount)
	assert.Zero(t, stats.Followers)
}

func TestFetchProfile_Suspended(t *testing.T) {
	f := newFakeReddit()
	f.jsonRoute("/user/gone/about.json", http.StatusOK, `{"kind":"t2","data":{"name":"gone","is_suspended":true}}`)
	c := newTestClient(t, f, nil)

	stats, err := c.FetchProfile(context.Background(), "gone")
	require.NoError(t, err)
	assert.True(t, stats.IsSuspended)
	assert.Equal(t, 0, f.hitCount("/user/gone/submitted.json"))
}

func TestFetchProfile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"not found", http.StatusNotFound, `{"message":"Not Found","error":404}`, ErrUserNotFound},
		{"rate limited", http.StatusTooManyRequests, `{}`, ErrRateLimited},
		{"forbidden", http.StatusForbidden, `{}`, ErrUnauthorized},
		{"wrong kind", http.StatusOK, `{"kind":"Listing","data":{}}`, ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeReddit()
			f.jsonRoute("/user/spez/about.json", tt.status, tt.body)
			c := newTestClient(t, f, nil)

			_, err := c.FetchProfile(context.Background(), "spez")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFetchProfile_UnexpectedStatus(t *testing.T) {
	f := newFakeReddit()
	f.jsonRoute("/user/spez/about.json", http.StatusBadGateway, strings.Repeat("x", 500))
	c := newTestClient(t, f, nil)

	_, err := c.FetchProfile(context.Background(), "spez")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Status)
	assert.LessOrEqual(t, len(statusErr.Body), errorSnippetLen+3)
}

func TestFetchSubreddit(t *testing.T) {
	f := newFakeReddit()
	f.jsonRoute("/r/golang/about.json", http.StatusOK, `{"kind":"t5","data":{"display_name":"golang","title":"The Go Programming Language","subscribers":250000}}`)
	f.jsonRoute("/r/nothere/about.json", http.StatusOK, `{"kind":"Listing","data":{"children":[]}}`)
	c := newTestClient(t, f, nil)

	info, err := c.FetchSubreddit(context.Background(), "golang")
	require.NoError(t, err)
	assert.Equal(t, "golang", info.Name)
	assert.Equal(t, int64(250000), info.Subscribers)

	_, err = c.FetchSubreddit(context.Background(), "nothere")
	assert.ErrorIs(t, err, ErrSubredditNotFound)

	_, err = c.FetchSubreddit(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSubredditNotFound)
}

func TestFetchPost(t *testing.T) {
	f := newFakeReddit()
	f.jsonRoute("/r/golang/comments/abc123/generics.json", http.StatusOK,
		`[{"kind":"Listing","data":{"children":[{"kind":"t3","data":{"subreddit":"golang","title":"Generics?","selftext":"Thoughts?","author":"gopher"}}]}},{"kind":"Listing","data":{"children":[]}}]`)
	c := newTestClient(t, f, nil)

	post, err := c.FetchPost(context.Background(), "https://www.reddit.com/r/golang/comments/abc123/generics/")
	require.NoError(t, err)
	assert.Equal(t, "Generics?", post.Title)
	assert.Equal(t, "Thoughts?", post.Body)
	assert.Equal(t, "golang", post.Subreddit)

	_, err = c.FetchPost(context.Background(), "https://www.reddit.com/r/golang/comments/zzz/")
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestClient_RateLimiter(t *testing.T) {
	f := newFakeReddit()
	f.jsonRoute("/r/golang/about.json", http.StatusOK, `{"kind":"t5","data":{"display_name":"golang"}}`)
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c := NewClient(Config{BaseURL: srv.URL, RPS: 10, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	start := time.Now()
	for i := 0; i < 12; i++ {
		_, err := c.FetchSubreddit(context.Background(), "golang")
		require.NoError(t, err)
	}
	// burst of 10, then two more at 10/s
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestClient_CancelledWhileThrottled(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1", RPS: 0.001})
	// Drain the single token
	c.limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.FetchSubreddit(ctx, "golang")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"1234", 1234, true},
		{"1,234", 1234, true},
		{"1.2k", 1200, true},
		{"4.35K", 4350, true},
		{"3M", 3000000, true},
		{"12 k", 12000, true},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseCount(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindFollowers(t *testing.T) {
	tests := []struct {
		name string
		page string
		want int64
		ok   bool
	}{
		{"embedded json", `<script>{"followersCount": 321}</script>`, 321, true},
		{"split markup", `<p>2,500</p> <p>followers</p>`, 2500, true},
		{"plain text", `has 15 followers today`, 15, true},
		{"absent", `<html></html>`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := findFollowers(tt.page)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// unsignedJWT builds a token with the given payload; the signature is junk.
func unsignedJWT(payload string) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`)) + "." +
		enc.EncodeToString([]byte(payload)) + "." +
		enc.EncodeToString([]byte("sig"))
}

func TestExtractUsername_CookieFirst(t *testing.T) {
	f := newFakeReddit()
	f.handle("/api/me.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "reddit_session=abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"kind":"t2","data":{"name":"cookie_user"}}`)
	})
	c := newTestClient(t, f, nil)

	id, err := c.ExtractUsername(context.Background(), Credentials{Cookie: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "cookie_user", id.Username)
	assert.Equal(t, MethodCookie, id.Method)
}

func TestExtractUsername_BearerFallback(t *testing.T) {
	f := newFakeReddit()
	f.jsonRoute("/api/me.json", http.StatusOK, `{}`)
	f.handle("/oauth/api/v1/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"name":"bearer_user"}`)
	})
	c := newTestClient(t, f, nil)

	id, err := c.ExtractUsername(context.Background(), Credentials{Cookie: "reddit_session=x", BearerToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "bearer_user", id.Username)
	assert.Equal(t, MethodBearer, id.Method)
}

func TestExtractUsername_JWTClaims(t *testing.T) {
	f := newFakeReddit()
	c := newTestClient(t, f, nil)

	id, err := c.ExtractUsername(context.Background(), Credentials{BearerToken: unsignedJWT(`{"name":"jwt_user","exp":1}`)})
	require.NoError(t, err)
	assert.Equal(t, "jwt_user", id.Username)
	assert.Equal(t, MethodJWT, id.Method)
}

func TestExtractUsername_JWTAccountID(t *testing.T) {
	f := newFakeReddit()
	f.handle("/api/user_data_by_account_ids.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "t2_abc", r.URL.Query().Get("ids"))
		_, _ = io.WriteString(w, `{"t2_abc":{"name":"resolved_user"}}`)
	})
	c := newTestClient(t, f, nil)

	token := unsignedJWT(`{"sub":"t2_abc"}`)
	id, err := c.ExtractUsername(context.Background(), Credentials{Cookie: "token_v2=" + token})
	require.NoError(t, err)
	assert.Equal(t, "resolved_user", id.Username)
	assert.Equal(t, MethodJWT, id.Method)
}

func TestExtractUsername_HTMLFallback(t *testing.T) {
	f := newFakeReddit()
	f.handle("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<script>window.___r = {"user":{"account":{"username":"html_user"}}}</script>`)
	})
	c := newTestClient(t, f, nil)

	id, err := c.ExtractUsername(context.Background(), Credentials{Cookie: "reddit_session=x"})
	require.NoError(t, err)
	assert.Equal(t, "html_user", id.Username)
	assert.Equal(t, MethodHTML, id.Method)
}

func TestExtractUsername_LoggedOutPage(t *testing.T) {
	f := newFakeReddit()
	f.handle("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<script>window.___r = {"user":{"loggedOut":true},`+
			`"subreddits":[{"name":"AskReddit"}],"posts":[{"name":"t3_abc123"}]}</script>`)
	})
	c := newTestClient(t, f, nil)

	id, err := c.ExtractUsername(context.Background(), Credentials{Cookie: "reddit_session=expired"})
	require.ErrorIs(t, err, ErrCredentialsRejected)
	assert.Nil(t, id)
	assert.Contains(t, err.Error(), MethodHTML+": no username embedded in page")
}

func TestExtractUsername_AllFail(t *testing.T) {
	f := newFakeReddit()
	c := newTestClient(t, f, nil)

	_, err := c.ExtractUsername(context.Background(), Credentials{Cookie: "reddit_session=x", BearerToken: "not-a-jwt"})
	require.ErrorIs(t, err, ErrCredentialsRejected)
	for _, method := range []string{MethodCookie, MethodBearer, MethodJWT, MethodHTML} {
		assert.Contains(t, err.Error(), method+":")
	}
}

func TestExtractUsername_NoCredentials(t *testing.T) {
	c := NewClient(Config{})
	_, err := c.ExtractUsername(context.Background(), Credentials{})
	assert.ErrorIs(t, err, ErrCredentialsRejected)
}

func TestCookieHelpers(t *testing.T) {
	assert.Equal(t, "reddit_session=abc", cookieHeader("abc"))
	assert.Equal(t, "a=1; b=2", cookieHeader("Cookie: a=1; b=2"))
	assert.Equal(t, "", cookieHeader("  "))
	assert.Equal(t, "tok", cookieValue("reddit_session=x; token_v2=tok", "token_v2"))
	assert.Equal(t, "", cookieValue("reddit_session=x", "token_v2"))
}

type fakeStatsStore struct {
	profiles  map[string]*model.ProfileStats
	subs      map[string]*model.SubredditInfo
	missing   map[string]bool
	setErrors error
}

func newFakeStatsStore() *fakeStatsStore {
	return &fakeStatsStore{
		profiles: map[string]*model.ProfileStats{},
		subs:     map[string]*model.SubredditInfo{},
		missing:  map[string]bool{},
	}
}

var errMiss = errors.New("miss")

func (s *fakeStatsStore) GetProfile(ctx context.Context, username string) (*model.ProfileStats, error) {
	if p, ok := s.profiles[strings.ToLower(username)]; ok {
		return p, nil
	}
	return nil, errMiss
}

func (s *fakeStatsStore) SetProfile(ctx context.Context, stats *model.ProfileStats) error {
	s.profiles[strings.ToLower(stats.Username)] = stats
	return s.setErrors
}

func (s *fakeStatsStore) GetSubreddit(ctx context.Context, name string) (*model.SubredditInfo, error) {
	if i, ok := s.subs[strings.ToLower(name)]; ok {
		return i, nil
	}
	return nil, errMiss
}

func (s *fakeStatsStore) SetSubreddit(ctx context.Context, info *model.SubredditInfo) error {
	s.subs[strings.ToLower(info.Name)] = info
	delete(s.missing, strings.ToLower(info.Name))
	return s.setErrors
}

func (s *fakeStatsStore) IsSubredditMissing(ctx context.Context, name string) (bool, error) {
	return s.missing[strings.ToLower(name)], nil
}

func (s *fakeStatsStore) SetSubredditMissing(ctx context.Context, name string) error {
	s.missing[strings.ToLower(name)] = true
	return s.setErrors
}

func TestCachedScraper(t *testing.T) {
	f := newFakeReddit()
	f.jsonRoute("/user/SPEZ/about.json", http.StatusOK, `{"kind":"t2","data":{"name":"spez","total_karma":5,"subreddit":{"subscribers":1}}}`)
	f.jsonRoute("/user/SPEZ/submitted.json", http.StatusOK, `{"data":{"children":[]}}`)
	f.jsonRoute("/r/golang/about.json", http.StatusOK, `{"kind":"t5","data":{"display_name":"golang","subscribers":9}}`)
	store := newFakeStatsStore()
	s := NewCachedScraper(newTestClient(t, f, nil), store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		stats, err := s.FetchProfile(ctx, "SPEZ")
		require.NoError(t, err)
		assert.Equal(t, int64(5), stats.TotalKarma)

		info, err := s.FetchSubreddit(ctx, "golang")
		require.NoError(t, err)
		assert.Equal(t, int64(9), info.Subscribers)

		_, err = s.FetchSubreddit(ctx, "unknown")
		assert.ErrorIs(t, err, ErrSubredditNotFound)
	}

	assert.Equal(t, 1, f.hitCount("/user/SPEZ/about.json"))
	assert.Equal(t, 1, f.hitCount("/r/golang/about.json"))
	assert.Equal(t, 1, f.hitCount("/r/unknown/about.json"))
	assert.True(t, store.missing["unknown"])
}

func TestCachedScraper_StoreErrorsDoNotFail(t *testing.T) {
	f := newFakeReddit()
	f.jsonRoute("/r/golang/about.json", http.StatusOK, `{"kind":"t5","data":{"display_name":"golang","subscribers":9}}`)
	store := newFakeStatsStore()
	store.setErrors = errors.New("redis down")
	s := NewCachedScraper(newTestClient(t, f, nil), store)

	info, err := s.FetchSubreddit(context.Background(), "golang")
	require.NoError(t, err)
	assert.Equal(t, "golang", info.Name)
}
