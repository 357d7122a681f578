package reddit

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/cabinet/cabinet/internal/model"
)

// Follower counts embedded in the profile page, most specific first.
var followerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"followers(?:Count)?"\s*:\s*(\d+)`),
	regexp.MustCompile(`(?i)([\d][\d,.]*\s*[km]?)\s*</[^>]+>\s*<[^>]+>\s*followers`),
	regexp.MustCompile(`(?i)([\d][\d,.]*\s*[km]?)\s+followers`),
}

// FetchProfile scrapes a user's karma, post count and followers.
// The about endpoint is required. Post count and followers are best effort:
// their failures are logged and leave the fields at zero.
func (c *Client) FetchProfile(ctx context.Context, username string) (*model.ProfileStats, error) {
	name := url.PathEscape(username)
	resp, err := c.do(ctx, request{endpoint: "about", url: c.baseURL + "/user/" + name + "/about.json?raw_json=1"})
	if err != nil {
		return nil, err
	}
	if err := checkStatus("about", resp, ErrUserNotFound); err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(resp.body) {
		return nil, fmt.Errorf("reddit about: invalid json: %s", snippet(resp.body))
	}

	body := gjson.ParseBytes(resp.body)
	if body.Get("kind").String() != "t2" {
		return nil, ErrUserNotFound
	}
	data := body.Get("data")

	stats := &model.ProfileStats{
		Username:     data.Get("name").String(),
		PostKarma:    data.Get("link_karma").Int(),
		CommentKarma: data.Get("comment_karma").Int(),
		TotalKarma:   data.Get("total_karma").Int(),
		IsSuspended:  data.Get("is_suspended").Bool(),
		Followers:    data.Get("subreddit.subscribers").Int(),
	}
	if stats.Username == "" {
		stats.Username = username
	}
	if stats.TotalKarma == 0 {
		stats.TotalKarma = stats.PostKarma + stats.CommentKarma
	}
	if created := data.Get("created_utc"); created.Exists() && created.Float() > 0 {
		t := time.Unix(int64(created.Float()), 0).UTC()
		stats.AccountCreatedAt = &t
	}
	stats.AvatarURL = avatarURL(data)

	if stats.IsSuspended {
		return stats, nil
	}

	if n, err := c.fetchPostsCount(ctx, name); err != nil {
		c.logger.Warn("posts count unavailable", slog.String("username", username), slog.String("error", err.Error()))
	} else {
		stats.PostsCount = n
	}

	if stats.Followers == 0 {
		if n, err := c.fetchFollowers(ctx, name); err != nil {
			c.logger.Warn("follower count unavailable", slog.String("username", username), slog.String("error", err.Error()))
		} else {
			stats.Followers = n
		}
	}

	return stats, nil
}

func avatarURL(data gjson.Result) string {
	for _, path := range []string{"snoovatar_img", "icon_img", "subreddit.icon_img"} {
		if v := data.Get(path).String(); v != "" {
			return html.UnescapeString(v)
		}
	}
	return ""
}

func (c *Client) fetchPostsCount(ctx context.Context, name string) (int64, error) {
	resp, err := c.do(ctx, request{endpoint: "submitted", url: c.baseURL + "/user/" + name + "/submitted.json?limit=100"})
	if err != nil {
		return 0, err
	}
	if err := checkStatus("submitted", resp, ErrUserNotFound); err != nil {
		return 0, err
	}
	children := gjson.GetBytes(resp.body, "data.children")
	if !children.IsArray() {
		return 0, fmt.Errorf("reddit submitted: missing data.children")
	}
	return int64(len(children.Array())), nil
}

func (c *Client) fetchFollowers(ctx context.Context, name string) (int64, error) {
	resp, err := c.do(ctx, request{
		endpoint: "profile_page",
		url:      c.baseURL + "/user/" + name + "/",
		headers:  map[string]string{"Accept": "text/html"},
	})
	if err != nil {
		return 0, err
	}
	if err := checkStatus("profile_page", resp, ErrUserNotFound); err != nil {
		return 0, err
	}
	if n, ok := findFollowers(string(resp.body)); ok {
		return n, nil
	}
	return 0, fmt.Errorf("reddit profile_page: follower count not found")
}

// findFollowers searches page for a follower count.
func findFollowers(page string) (int64, bool) {
	for _, re := range followerPatterns {
		if m := re.FindStringSubmatch(page); m != nil {
			if n, ok := parseCount(m[1]); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// parseCount parses "1234", "1,234", "1.2k" and "3M".
func parseCount(s string) (int64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		mult, s = 1e3, strings.TrimSpace(strings.TrimSuffix(s, "k"))
	case strings.HasSuffix(s, "m"):
		mult, s = 1e6, strings.TrimSpace(strings.TrimSuffix(s, "m"))
	}

	if mult == 1 {
		s = strings.NewReplacer(",", "", ".", "").Replace(s)
		n, err := strconv.ParseInt(s, 10, 64)
		return n, err == nil
	}

	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return int64(math.Round(f * mult)), true
}

// FetchSubreddit reads a subreddit's title and subscriber count.
func (c *Client) FetchSubreddit(ctx context.Context, name string) (*model.SubredditInfo, error) {
	resp, err := c.do(ctx, request{endpoint: "subreddit_about", url: c.baseURL + "/r/" + url.PathEscape(name) + "/about.json?raw_json=1"})
	if err != nil {
		return nil, err
	}
	if err := checkStatus("subreddit_about", resp, ErrSubredditNotFound); err != nil {
		return nil, err
	}

	body := gjson.ParseBytes(resp.body)
	// Unknown names answer with a search listing instead of a t5
	if body.Get("kind").String() != "t5" {
		return nil, ErrSubredditNotFound
	}
	data := body.Get("data")
	info := &model.SubredditInfo{
		Name:        data.Get("display_name").String(),
		Title:       data.Get("title").String(),
		Subscribers: data.Get("subscribers").Int(),
	}
	if info.Name == "" {
		info.Name = name
	}
	return info, nil
}

// Post is the content of a submission used to prompt comment generation.
type Post struct {
	Subreddit string
	Title     string
	Body      string
	Author    string
}

// FetchPost reads a submission from its canonical URL.
func (c *Client) FetchPost(ctx context.Context, postURL string) (*Post, error) {
	u, err := url.Parse(postURL)
	if err != nil {
		return nil, ErrInvalidPostURL
	}
	path := strings.TrimSuffix(u.Path, "/")

	resp, err := c.do(ctx, request{endpoint: "post", url: c.baseURL + path + ".json?raw_json=1&limit=1"})
	if err != nil {
		return nil, err
	}
	if err := checkStatus("post", resp, ErrPostNotFound); err != nil {
		return nil, err
	}

	data := gjson.GetBytes(resp.body, "0.data.children.0.data")
	if !data.Exists() {
		return nil, ErrPostNotFound
	}
	return &Post{
		Subreddit: data.Get("subreddit").String(),
		Title:     data.Get("title").String(),
		Body:      data.Get("selftext").String(),
		Author:    data.Get("author").String(),
	}, nil
}
