package identifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kittclouds/leakr/internal/store"
	"github.com/kittclouds/leakr/pkg/resolver"
)

// Resolver is the resolution cascade used by the Finder.
type Resolver interface {
	Resolve(ctx context.Context, query string) (resolver.Result, error)
	ResolveStrict(ctx context.Context, query string) (resolver.Result, error)
}

// ProfileStore is the part of the store the Finder writes profile links to.
type ProfileStore interface {
	ContentIDsByCreator(ctx context.Context, creatorID int64) ([]int64, error)
	AddPlatform(ctx context.Context, name string) (int64, error)
	AddProfile(ctx context.Context, creatorID, platformID int64, link string) (*store.PlatformProfile, bool, error)
}

// Flusher persists the store after a new profile link.
type Flusher interface {
	Flush(ctx context.Context) error
}

// FindResult is what Find learned about an identifier.
// Message explains a miss or a partial failure; it is empty on a clean hit.
type FindResult struct {
	Identifier   string          `json:"identifier"`
	Username     string          `json:"username,omitempty"`
	Platform     Platform        `json:"platform,omitempty"`
	Creator      *store.Creator  `json:"creator,omitempty"`
	ContentIDs   []int64         `json:"contentIds,omitempty"`
	Tier         string          `json:"tier,omitempty"`
	LearnedAlias bool            `json:"learnedAlias,omitempty"`
	ProfileAdded bool            `json:"profileAdded,omitempty"`
	Message      string          `json:"message,omitempty"`
	Resolution   resolver.Result `json:"-"`
}

// Finder looks up the creator behind a pasted URL or username.
type Finder struct {
	resolver Resolver
	store    ProfileStore
	flusher  Flusher
	log      *slog.Logger
}

// NewFinder creates a Finder. flusher may be nil.
func NewFinder(r Resolver, s ProfileStore, flusher Flusher, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{resolver: r, store: s, flusher: flusher, log: logger}
}

// Find picks a username from identifier, resolves it, loads the creator's
// content ids and, when identifier is a recognized profile URL, records the
// profile link. Misses are reported in Message; errors are store failures.
func (f *Finder) Find(ctx context.Context, identifier string) (FindResult, error) {
	id := strings.TrimSpace(identifier)
	res := FindResult{Identifier: id}
	if id == "" {
		res.Message = "empty identifier"
		return res, nil
	}

	det := DetectPlatform(id)
	isURL := IsLikelyURL(id)
	res.Platform = det.Platform

	switch {
	case det.Username != "":
		res.Username = det.Username
	case det.Platform == PlatformNone && !isURL:
		res.Username = id
	case det.Platform == PlatformNone && isURL:
		u, err := f.matchPath(ctx, id)
		if err != nil {
			return res, err
		}
		res.Username = u
	}

	if res.Username == "" {
		switch {
		case det.Platform != PlatformNone:
			res.Message = fmt.Sprintf("could not extract a %s username from the URL", det.Platform)
		default:
			res.Message = fmt.Sprintf("no known username in %s", id)
		}
		return res, nil
	}

	r, err := f.resolver.Resolve(ctx, res.Username)
	if err != nil {
		return res, fmt.Errorf("resolve %q: %w", res.Username, err)
	}
	res.Resolution = r
	if !r.Found() {
		res.Message = fmt.Sprintf("creator %q not found", res.Username)
		return res, nil
	}
	res.Creator = r.Creator
	res.Tier = r.Tier.String()
	res.LearnedAlias = r.LearnedAlias

	ids, err := f.store.ContentIDsByCreator(ctx, r.Creator.ID)
	if err != nil {
		f.log.Error("loading content ids", "creator", r.Creator.ID, "error", err)
		res.Message = "creator found, but failed to load content list"
	} else {
		res.ContentIDs = ids
	}

	if det.Platform != PlatformNone && isURL {
		res.ProfileAdded = f.linkProfile(ctx, r.Creator.ID, det.Platform, id)
	}
	return res, nil
}

// matchPath tries the refined path components, then the individual path
// segments, against the strict tiers and returns the first one that names
// a known creator.
func (f *Finder) matchPath(ctx context.Context, rawURL string) (string, error) {
	var candidates []string
	seen := map[string]bool{}
	add := func(s string) {
		k := strings.ToLower(s)
		if s != "" && !seen[k] {
			seen[k] = true
			candidates = append(candidates, s)
		}
	}
	for _, c := range pathComponents(rawURL) {
		add(RefineUsername(c))
	}
	for _, s := range PathSegments(rawURL) {
		add(s)
	}

	for _, c := range candidates {
		r, err := f.resolver.ResolveStrict(ctx, c)
		if err != nil {
			return "", fmt.Errorf("match %q: %w", c, err)
		}
		if r.Found() {
			f.log.Debug("path segment matched", "segment", c, "creator", r.Creator.ID)
			return c, nil
		}
	}
	return "", nil
}

// linkProfile records link as the creator's profile on platform and flushes
// when something was added. Failures are logged; the lookup itself stands.
func (f *Finder) linkProfile(ctx context.Context, creatorID int64, platform Platform, link string) bool {
	platformID, err := f.store.AddPlatform(ctx, string(platform))
	if err != nil {
		f.log.Error("adding platform", "platform", platform, "error", err)
		return false
	}
	p, created, err := f.store.AddProfile(ctx, creatorID, platformID, link)
	if err != nil {
		f.log.Error("adding profile", "creator", creatorID, "platform", platform, "error", err)
		return false
	}
	if !created {
		return false
	}
	f.log.Info("profile linked", "creator", creatorID, "platform", platform, "profile", p.ID)

	if f.flusher != nil {
		if err := f.flusher.Flush(ctx); err != nil {
			f.log.Warn("flush after profile link failed", "error", err)
		}
	}
	return true
}
