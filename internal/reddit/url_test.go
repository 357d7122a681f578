package reddit

import (
	"errors"
	"testing"
)

func TestNormalizeAccountURL(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantUser string
		wantErr  bool
	}{
		{"canonical", "https://www.reddit.com/user/spez", "spez", false},
		{"short u path", "reddit.com/u/spez", "spez", false},
		{"old reddit trailing slash", "old.reddit.com/user/Some_User-1/", "Some_User-1", false},
		{"http scheme", "http://reddit.com/user/spez/comments", "spez", false},
		{"relative u", "u/spez", "spez", false},
		{"leading slash", "/u/spez", "spez", false},
		{"bare name", "spez", "spez", false},
		{"bare name with spaces", "  spez  ", "spez", false},
		{"query is dropped", "https://www.reddit.com/user/spez?utm=x", "spez", false},
		{"foreign host", "https://example.com/user/spez", "", true},
		{"subreddit path", "https://www.reddit.com/r/golang", "", true},
		{"too short", "ab", "", true},
		{"invalid chars", "spez!", "", true},
		{"empty", "", "", true},
		{"javascript scheme", "javascript:alert(1)", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotURL, gotUser, err := NormalizeAccountURL(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAccountURL) {
					t.Fatalf("err = %v, want ErrInvalidAccountURL", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotUser != tt.wantUser {
				t.Errorf("username = %q, want %q", gotUser, tt.wantUser)
			}
			if want := "https://www.reddit.com/user/" + tt.wantUser; gotURL != want {
				t.Errorf("url = %q, want %q", gotURL, want)
			}
		})
	}
}

func TestNormalizeSubredditURL(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantName string
		wantErr  bool
	}{
		{"canonical", "https://www.reddit.com/r/golang", "golang", false},
		{"with listing path", "https://old.reddit.com/r/golang/top/?t=week", "golang", false},
		{"relative", "r/golang", "golang", false},
		{"leading slash", "/r/golang/", "golang", false},
		{"bare", "golang", "golang", false},
		{"user path", "reddit.com/user/spez", "", true},
		{"hyphen not allowed", "go-lang", "", true},
		{"foreign host", "https://lemmy.world/r/golang", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotURL, gotName, err := NormalizeSubredditURL(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSubredditURL) {
					t.Fatalf("err = %v, want ErrInvalidSubredditURL", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotName != tt.wantName {
				t.Errorf("name = %q, want %q", gotName, tt.wantName)
			}
			if gotURL != "https://www.reddit.com/r/"+tt.wantName {
				t.Errorf("url = %q", gotURL)
			}
		})
	}
}

func TestNormalizePostURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"with slug", "https://www.reddit.com/r/golang/comments/abc123/some_title/", "https://www.reddit.com/r/golang/comments/abc123/some_title/", false},
		{"without slug", "https://old.reddit.com/r/golang/comments/abc123", "https://www.reddit.com/r/golang/comments/abc123/", false},
		{"query dropped", "https://reddit.com/r/golang/comments/abc123/t/?share=1", "https://www.reddit.com/r/golang/comments/abc123/t/", false},
		{"subreddit only", "https://www.reddit.com/r/golang", "", true},
		{"no scheme", "reddit.com/r/golang/comments/abc123", "", true},
		{"foreign host", "https://example.com/r/golang/comments/abc123", "", true},
		{"bad id", "https://www.reddit.com/r/golang/comments/ABC!/", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePostURL(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPostURL) {
					t.Fatalf("err = %v, want ErrInvalidPostURL", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
