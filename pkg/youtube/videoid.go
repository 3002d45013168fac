package youtube

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// videoIDPattern matches the 11-character YouTube video identifier.
var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID parses a submitted URL and returns the stable video
// identifier. Accepts watch?v=, youtu.be/, /embed/, /shorts/ and /live/
// forms. A URL this cannot parse is malformed input, not a network problem.
func ExtractVideoID(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse video url: %w", err)
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("video url %q has no host", rawURL)
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")

	var id string

	switch host {
	case "youtu.be":
		id = strings.Trim(parsed.Path, "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtube-nocookie.com":
		id = idFromPath(parsed)
	default:
		return "", fmt.Errorf("unsupported video host %q", parsed.Hostname())
	}

	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("no video id in url %q", rawURL)
	}

	return id, nil
}

// idFromPath pulls the id out of the youtube.com URL shapes.
func idFromPath(u *url.URL) string {
	if v := u.Query().Get("v"); v != "" {
		return v
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 2 {
		switch parts[0] {
		case "embed", "shorts", "live", "v":
			return parts[1]
		}
	}

	return ""
}
