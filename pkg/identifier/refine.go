package identifier

import (
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"
)

// suffixKeywords often trail a username in gallery or leak URLs
// ("jane-onlyfans-leaks"). A path part that starts with one of them ends
// the username.
var suffixKeywords = []string{
	"onlyfans", "fansly", "patreon", "leaks", "leak", "gallery",
	"photo", "photos", "video", "videos", "model", "creator",
	"profile", "content", "pics", "vids", "free", "vip",
	"premium", "exclusive", "new", "all",
}

var usernameSeparators = []string{"-", "_"}

var (
	keywordOnce sync.Once
	keywordAC   *ahocorasick.Automaton
	keywordErr  error
)

func keywordAutomaton() (*ahocorasick.Automaton, error) {
	keywordOnce.Do(func() {
		keywordAC, keywordErr = ahocorasick.NewBuilder().
			AddStrings(suffixKeywords).
			SetPrefilter(true).
			Build()
	})
	return keywordAC, keywordErr
}

// isKeywordPart reports whether part starts with a suffix keyword.
// Overlapping search reports every keyword occurrence, so one starting at
// offset 0 is seen even when a longer match begins later.
func isKeywordPart(part string) bool {
	if part == "" {
		return false
	}
	ac, err := keywordAutomaton()
	if err != nil {
		for _, k := range suffixKeywords {
			if strings.HasPrefix(part, k) {
				return true
			}
		}
		return false
	}
	for _, m := range ac.FindAllOverlapping([]byte(part)) {
		if m.Start == 0 {
			return true
		}
	}
	return false
}

// RefineUsername strips trailing keyword runs from a path segment:
// "irissiri129-onlyfans-photo-gallery" becomes "irissiri129". Parts are
// checked right to left for each separator in turn; a trailing run of
// keyword and numeric parts is cut if it holds at least one keyword. If
// nothing would remain, the input is returned unchanged.
func RefineUsername(segment string) string {
	if segment == "" {
		return segment
	}

	refined := segment
	done := false
	for _, sep := range usernameSeparators {
		if !strings.Contains(refined, sep) {
			continue
		}
		parts := strings.Split(refined, sep)
		cut, sawKeyword := len(parts), false
		for i := len(parts) - 1; i > 0; i-- {
			p := strings.ToLower(parts[i])
			if isKeywordPart(p) {
				cut, sawKeyword = i, true
				continue
			}
			if numericRe.MatchString(p) || p == "" {
				cut = i
				continue
			}
			break
		}
		if !sawKeyword {
			continue
		}
		if candidate := strings.Join(parts[:cut], sep); candidate != "" {
			refined = candidate
			done = true
			break
		}
	}

	if done {
		refined = strings.Trim(refined, strings.Join(usernameSeparators, ""))
	}
	refined = strings.TrimSpace(refined)
	if refined == "" {
		return segment
	}
	return refined
}

var (
	segmentSplitRe = regexp.MustCompile(`[/_-]`)
	numericRe      = regexp.MustCompile(`^\d+$`)
	englishStops   = stopwords.MustGet("en")
)

// PathSegments returns candidate usernames from a URL's path: the path is
// split on '/', '-' and '_', and empty, numeric and stop-word pieces are
// dropped. Input without a scheme is treated as https.
func PathSegments(raw string) []string {
	raw = strings.TrimSpace(raw)
	path := raw
	withScheme := raw
	if !strings.Contains(raw, "://") {
		withScheme = "https://" + raw
	}
	if u, err := url.Parse(withScheme); err == nil {
		path = u.Path
	}

	var out []string
	for _, seg := range segmentSplitRe.Split(path, -1) {
		if seg == "" || numericRe.MatchString(seg) {
			continue
		}
		if englishStops.Contains(strings.ToLower(seg)) {
			continue
		}
		out = append(out, seg)
	}
	return out
}

// pathComponents returns the non-empty '/'-separated parts of a URL path,
// last first.
func pathComponents(raw string) []string {
	withScheme := raw
	if !strings.Contains(raw, "://") {
		withScheme = "https://" + raw
	}
	u, err := url.Parse(withScheme)
	if err != nil {
		return nil
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	var out []string
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			out = append(out, parts[i])
		}
	}
	return out
}
