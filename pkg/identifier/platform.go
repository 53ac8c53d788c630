// Package identifier turns what a user pastes (a profile URL, a gallery URL,
// a bare username) into the username to look up and the platform it came from.
package identifier

import (
	"regexp"
	"strings"
)

// Platform names a site with a recognizable profile URL shape.
// The empty Platform means none was recognized.
type Platform string

const (
	PlatformNone      Platform = ""
	PlatformTwitch    Platform = "twitch"
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformTwitter   Platform = "twitter"
	PlatformYouTube   Platform = "youtube"
	PlatformFacebook  Platform = "facebook"
	PlatformOnlyFans  Platform = "onlyfans"
	PlatformLinktree  Platform = "linktree"
	PlatformLinkInBio Platform = "linkinbio"
	PlatformFapello   Platform = "fapello"
	PlatformKBJFree   Platform = "kbjfree"
)

// Detection is the result of DetectPlatform.
type Detection struct {
	Platform Platform
	Username string
}

type platformPattern struct {
	platform Platform
	re       *regexp.Regexp
}

// Order matters: the first matching pattern wins and the generic .com
// pattern must stay last.
var platformPatterns = []platformPattern{
	{PlatformTwitch, regexp.MustCompile(`(?i)twitch\.tv/(\w+)`)},
	{PlatformInstagram, regexp.MustCompile(`(?i)instagram\.com/([\w.]+)`)},
	{PlatformTikTok, regexp.MustCompile(`(?i)tiktok\.com/@([\w.-]+)`)},
	{PlatformTwitter, regexp.MustCompile(`(?i)(?:twitter\.com|x\.com)/(\w+)`)},
	{PlatformYouTube, regexp.MustCompile(`(?i)youtube\.com/(?:channel|c|user)/([\w-]+)`)},
	{PlatformYouTube, regexp.MustCompile(`(?i)youtube\.com/@([\w.-]+)`)},
	{PlatformFacebook, regexp.MustCompile(`(?i)facebook\.com/([\w.]+)`)},
	{PlatformOnlyFans, regexp.MustCompile(`(?i)onlyfans\.com/([\w.-]+)`)},
	{PlatformLinktree, regexp.MustCompile(`(?i)linktr\.ee/([\w.-]+)`)},
	{PlatformLinktree, regexp.MustCompile(`(?i)linktree\.com/([\w.-]+)`)},
	{PlatformLinkInBio, regexp.MustCompile(`(?i)linkin\.bio/([\w.-]+)`)},
	{PlatformFapello, regexp.MustCompile(`(?i)fapello\.(?:com|ru)/galleries/([\w.-]+?)(?:[-_].*)?/?$`)},
	{PlatformFapello, regexp.MustCompile(`(?i)fapello\.(?:com|ru)/([\w.-]+)/?$`)},
	{PlatformKBJFree, regexp.MustCompile(`(?i)kbjfree\.com/search\?q=([\w.-]+)`)},
	{PlatformKBJFree, regexp.MustCompile(`(?i)kbjfree\.com/model/([\w.-]+)`)},
	// Any other .com/<path>: recognized as a URL but yields nothing.
	{PlatformNone, regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?[\w.-]+\.com/[\w.-]+`)},
}

// DetectPlatform recognizes known profile URL shapes and extracts the username.
func DetectPlatform(input string) Detection {
	input = strings.TrimSpace(input)
	for _, p := range platformPatterns {
		m := p.re.FindStringSubmatch(input)
		if m == nil {
			continue
		}
		if p.platform == PlatformNone {
			return Detection{}
		}
		if len(m) > 1 && m[1] != "" {
			return Detection{Platform: p.platform, Username: m[1]}
		}
		return Detection{Platform: p.platform}
	}
	return Detection{}
}

var (
	schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z\d+\-.]*://`)
	domainRe = regexp.MustCompile(`^[a-zA-Z\d_.-]+\.[a-zA-Z]{2,}`)
)

// IsLikelyURL reports whether input looks like a URL rather than a username:
// it has a scheme or starts with a domain.tld.
func IsLikelyURL(input string) bool {
	input = strings.TrimSpace(input)
	return schemeRe.MatchString(input) || domainRe.MatchString(input)
}
