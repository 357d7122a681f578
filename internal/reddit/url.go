package reddit

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// URL parsing errors.
var (
	ErrInvalidAccountURL   = errors.New("invalid reddit account url or username")
	ErrInvalidSubredditURL = errors.New("invalid subreddit url or name")
	ErrInvalidPostURL      = errors.New("invalid reddit post url")
)

var (
	// Reddit usernames: 3-20 chars of letters, digits, "-" and "_".
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)
	// Subreddit names: 2-21 chars of letters, digits and "_".
	subredditPattern = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)
	// Post ids are base36.
	postIDPattern = regexp.MustCompile(`^[a-z0-9]{1,12}$`)
)

// reddit hosts accepted in pasted URLs.
var redditHosts = map[string]bool{
	"reddit.com":     true,
	"www.reddit.com": true,
	"old.reddit.com": true,
	"new.reddit.com": true,
	"np.reddit.com":  true,
	"m.reddit.com":   true,
}

// AccountURL formats the canonical profile URL of a user.
func AccountURL(username string) string {
	return "https://www.reddit.com/user/" + username
}

// SubredditURL formats the canonical URL of a subreddit.
func SubredditURL(name string) string {
	return "https://www.reddit.com/r/" + name
}

// NormalizeAccountURL accepts a profile URL in any common form
// ("https://www.reddit.com/user/NAME", "reddit.com/u/NAME",
// "old.reddit.com/user/NAME/", "u/NAME", "/u/NAME" or a bare "NAME") and
// returns the canonical URL and the username.
func NormalizeAccountURL(raw string) (string, string, error) {
	segments, ok := redditPath(raw)
	if !ok {
		return "", "", ErrInvalidAccountURL
	}

	var name string
	switch {
	case len(segments) == 1:
		name = segments[0]
	case len(segments) >= 2 && (strings.EqualFold(segments[0], "user") || strings.EqualFold(segments[0], "u")):
		name = segments[1]
	default:
		return "", "", ErrInvalidAccountURL
	}

	name = strings.TrimPrefix(name, "@")
	if !usernamePattern.MatchString(name) {
		return "", "", ErrInvalidAccountURL
	}
	return AccountURL(name), name, nil
}

// NormalizeSubredditURL accepts "https://www.reddit.com/r/NAME/...",
// "r/NAME", "/r/NAME" or a bare "NAME" and returns the canonical URL and the
// subreddit name.
func NormalizeSubredditURL(raw string) (string, string, error) {
	segments, ok := redditPath(raw)
	if !ok {
		return "", "", ErrInvalidSubredditURL
	}

	var name string
	switch {
	case len(segments) == 1:
		name = segments[0]
	case len(segments) >= 2 && strings.EqualFold(segments[0], "r"):
		name = segments[1]
	default:
		return "", "", ErrInvalidSubredditURL
	}

	if !subredditPattern.MatchString(name) {
		return "", "", ErrInvalidSubredditURL
	}
	return SubredditURL(name), name, nil
}

// NormalizePostURL validates a post URL
// ("https://www.reddit.com/r/SUB/comments/ID[/slug]") and returns it in
// canonical form without query or fragment.
func NormalizePostURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		return "", ErrInvalidPostURL
	}
	segments, ok := redditPath(raw)
	if !ok || len(segments) < 4 || !strings.EqualFold(segments[0], "r") || segments[2] != "comments" {
		return "", ErrInvalidPostURL
	}
	if !subredditPattern.MatchString(segments[1]) || !postIDPattern.MatchString(segments[3]) {
		return "", ErrInvalidPostURL
	}

	canonical := "https://www.reddit.com/r/" + segments[1] + "/comments/" + segments[3]
	if len(segments) >= 5 && segments[4] != "" {
		canonical += "/" + segments[4]
	}
	return canonical + "/", nil
}

// redditPath returns the non-empty path segments of raw. Inputs with a host
// must point at a known reddit host. Inputs without a scheme or host are
// treated as a path relative to reddit.com.
func redditPath(raw string) ([]string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	if !strings.Contains(raw, "://") {
		lower := strings.ToLower(raw)
		for host := range redditHosts {
			if strings.HasPrefix(lower, host+"/") || lower == host {
				raw = "https://" + raw
				break
			}
		}
	}

	var path string
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, false
		}
		if !redditHosts[strings.ToLower(u.Hostname())] {
			return nil, false
		}
		path = u.Path
	} else {
		if strings.ContainsAny(raw, "?#: ") {
			return nil, false
		}
		path = raw
	}

	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments, len(segments) > 0
}
