package policy

import (
	"errors"
	"testing"
)

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		name    string
		rawURL  string
		want    string
		wantErr bool
	}{
		{"plain https", "https://Chat.Example.com/path?q=1", "chat.example.com", false},
		{"http with port", "http://example.com:8080/", "example.com", false},
		{"trailing dot", "https://example.com./", "example.com", false},
		{"chrome scheme", "chrome://settings", "", true},
		{"about scheme", "about:blank", "", true},
		{"file scheme", "file:///tmp/x.html", "", true},
		{"empty host", "https:///path", "", true},
		{"garbage", "://nope", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeHost(tt.rawURL)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeHost(%q) err = %v, wantErr %v", tt.rawURL, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeHost(%q) = %q, want %q", tt.rawURL, got, tt.want)
			}
		})
	}
}

func TestNormalizeHostNonWebError(t *testing.T) {
	_, err := NormalizeHost("chrome://extensions")
	if !errors.Is(err, ErrNotWebURL) {
		t.Errorf("err = %v, want ErrNotWebURL", err)
	}
}

func TestHostMatches(t *testing.T) {
	tests := []struct {
		host  string
		entry string
		want  bool
	}{
		{"example.com", "example.com", true},
		{"chat.example.com", "example.com", true},
		{"a.b.example.com", "example.com", true},
		{"Example.COM", "example.com", true},
		// Suffix matching must anchor on a label boundary.
		{"notexample.com", "example.com", false},
		{"example.com.evil.net", "example.com", false},
		{"example.com", "chat.example.com", false},
		{"example.org", "example.com", false},
		{"example.com", "", false},
	}
	for _, tt := range tests {
		if got := HostMatches(tt.host, tt.entry); got != tt.want {
			t.Errorf("HostMatches(%q, %q) = %v, want %v", tt.host, tt.entry, got, tt.want)
		}
	}
}

func TestMatchAny(t *testing.T) {
	entries := []string{"intranet.corp.com", "example.com"}
	if entry, ok := MatchAny("docs.example.com", entries); !ok || entry != "example.com" {
		t.Errorf("MatchAny = %q, %v; want example.com, true", entry, ok)
	}
	if _, ok := MatchAny("other.net", entries); ok {
		t.Error("MatchAny matched an unrelated host")
	}
}
