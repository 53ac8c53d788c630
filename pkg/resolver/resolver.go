// Package resolver maps a free-form query (a username, a display name, a
// URL fragment) to a stored creator through a cascade of increasingly
// permissive matching tiers, and learns new aliases from fuzzy hits.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kittclouds/leakr/internal/store"
)

// Tier identifies which stage of the cascade produced a match.
type Tier int

const (
	TierNone Tier = iota
	TierExactName
	TierAlias
	TierSubstring
	TierPrefix
	TierFuzzy
)

func (t Tier) String() string {
	switch t {
	case TierExactName:
		return "exact"
	case TierAlias:
		return "alias"
	case TierSubstring:
		return "substring"
	case TierPrefix:
		return "prefix"
	case TierFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// WarningKind classifies a non-fatal resolution problem.
type WarningKind int

const (
	WarnMalformedAliases WarningKind = iota + 1
	WarnAliasWrite
	WarnFlush
)

// Warning is a non-fatal problem met while resolving. Resolution carries on.
type Warning struct {
	Kind      WarningKind
	CreatorID int64
	Err       error
}

func (w Warning) Error() string {
	switch w.Kind {
	case WarnMalformedAliases:
		return fmt.Sprintf("creator %d: alias column is not a JSON string array", w.CreatorID)
	case WarnAliasWrite:
		return fmt.Sprintf("creator %d: learning alias: %v", w.CreatorID, w.Err)
	case WarnFlush:
		return fmt.Sprintf("creator %d: persisting learned alias: %v", w.CreatorID, w.Err)
	default:
		return fmt.Sprintf("creator %d: %v", w.CreatorID, w.Err)
	}
}

func (w Warning) Unwrap() error { return w.Err }

// Result is the outcome of Resolve. A miss has Tier == TierNone and no creator.
type Result struct {
	Creator      *store.Creator
	Tier         Tier
	Score        float64
	LearnedAlias bool
	Warnings     []Warning
}

// Found reports whether a creator was matched.
func (r Result) Found() bool { return r.Creator != nil }

// CreatorStore is the part of the store the resolver reads and writes.
type CreatorStore interface {
	FindCreatorByName(ctx context.Context, name string) (*store.Creator, error)
	ListCreators(ctx context.Context) ([]*store.Creator, error)
	UpdateAliases(ctx context.Context, id int64, aliases store.Aliases) error
}

// Flusher persists the store after a learned alias.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Resolver runs the resolution cascade against a CreatorStore.
type Resolver struct {
	store   CreatorStore
	flusher Flusher
	cfg     Config
	norm    *normalizer
	log     *slog.Logger

	learnMu sync.Mutex
}

// New creates a Resolver. flusher may be nil, in which case learned aliases
// are written to the store but not persisted.
func New(s CreatorStore, flusher Flusher, cfg Config, logger *slog.Logger) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:   s,
		flusher: flusher,
		cfg:     cfg,
		norm:    newNormalizer(cfg.CacheSize),
		log:     logger,
	}, nil
}

// Resolve maps query to a creator. The first tier that matches wins:
// exact name, exact alias, normalized substring, normalized prefix, fuzzy.
// A miss is not an error; errors are reserved for store failures.
func (r *Resolver) Resolve(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, nil
	}

	// 1. Exact name (indexed)
	c, err := r.store.FindCreatorByName(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("exact lookup: %w", err)
	}
	if c != nil {
		return Result{Creator: c, Tier: TierExactName}, nil
	}

	creators, err := r.store.ListCreators(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list creators: %w", err)
	}

	var res Result
	for _, c := range creators {
		if c.Aliases.Malformed {
			w := Warning{Kind: WarnMalformedAliases, CreatorID: c.ID}
			r.log.Warn("malformed aliases", "creator", c.ID, "raw", c.Aliases.Raw)
			res.Warnings = append(res.Warnings, w)
		}
	}

	// 2. Exact alias
	for _, c := range creators {
		if c.Aliases.Contains(query) {
			res.Creator, res.Tier = c, TierAlias
			return res, nil
		}
	}

	nq := r.norm.normalize(query)
	if nq == "" {
		return res, nil
	}
	qLen := len([]rune(nq))

	// 3. Normalized substring, both sides long enough
	if qLen >= r.cfg.MinSubstringLen {
		if c := r.firstField(creators, func(nf string) bool {
			return len([]rune(nf)) >= r.cfg.MinSubstringLen &&
				(strings.Contains(nf, nq) || strings.Contains(nq, nf))
		}); c != nil {
			res.Creator, res.Tier = c, TierSubstring
			return res, nil
		}
	}

	// 4. Normalized prefix
	if qLen >= r.cfg.MinPrefixLen {
		if c := r.firstField(creators, func(nf string) bool {
			return strings.HasPrefix(nf, nq)
		}); c != nil {
			res.Creator, res.Tier = c, TierPrefix
			return res, nil
		}
	}

	// 5. Fuzzy, start-anchored
	c, score := r.fuzzy(creators, nq)
	if c == nil {
		return res, nil
	}
	res.Creator, res.Tier, res.Score = c, TierFuzzy, score
	res.LearnedAlias, res.Warnings = r.learnAlias(ctx, c, query, res.Warnings)
	return res, nil
}

// ResolveStrict only runs the exact name and exact alias tiers. It never
// learns aliases, so it is safe for probing guesses such as URL segments.
func (r *Resolver) ResolveStrict(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, nil
	}
	c, err := r.store.FindCreatorByName(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("exact lookup: %w", err)
	}
	if c != nil {
		return Result{Creator: c, Tier: TierExactName}, nil
	}
	creators, err := r.store.ListCreators(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list creators: %w", err)
	}
	for _, c := range creators {
		if c.Aliases.Contains(query) {
			return Result{Creator: c, Tier: TierAlias}, nil
		}
	}
	return Result{}, nil
}

// firstField returns the first creator whose normalized name or alias satisfies match.
func (r *Resolver) firstField(creators []*store.Creator, match func(nf string) bool) *store.Creator {
	for _, c := range creators {
		if nf := r.norm.normalize(c.Name); nf != "" && match(nf) {
			return c
		}
		for _, a := range c.Aliases.List {
			if nf := r.norm.normalize(a); nf != "" && match(nf) {
				return c
			}
		}
	}
	return nil
}

type fuzzyCandidate struct {
	creator *store.Creator
	score   float64
	ratio   float64
}

func (a fuzzyCandidate) beats(b fuzzyCandidate) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	if a.ratio != b.ratio {
		return a.ratio > b.ratio
	}
	return a.creator.ID < b.creator.ID
}

// fuzzy scores every name and alias and returns the best accepted creator.
func (r *Resolver) fuzzy(creators []*store.Creator, nq string) (*store.Creator, float64) {
	q := []rune(nq)
	if len(q) < r.cfg.MinFuzzyQueryLen {
		return nil, 0
	}
	threshold := r.cfg.threshold(len(q))
	maxEdits := int(threshold * float64(len(q)))

	var best *fuzzyCandidate
	consider := func(c *store.Creator, field string) {
		f := []rune(r.norm.normalize(field))
		ratio := lengthRatio(len(q), len(f))
		if ratio < r.cfg.MinLengthRatio {
			return
		}
		d := anchoredDistance(q, f, maxEdits)
		if d < 0 {
			return
		}
		score := float64(d) / float64(len(q))
		if score > threshold {
			return
		}
		cand := fuzzyCandidate{creator: c, score: score, ratio: ratio}
		if best == nil || cand.beats(*best) {
			best = &cand
		}
	}

	for _, c := range creators {
		consider(c, c.Name)
		for _, a := range c.Aliases.List {
			consider(c, a)
		}
	}
	if best == nil {
		return nil, 0
	}
	return best.creator, best.score
}

// learnAlias records query as an alias of c unless it is already known.
// Failures become warnings; the match itself stands.
func (r *Resolver) learnAlias(ctx context.Context, c *store.Creator, query string, warnings []Warning) (bool, []Warning) {
	r.learnMu.Lock()
	defer r.learnMu.Unlock()

	if strings.EqualFold(c.Name, query) || c.Aliases.Contains(query) {
		return false, warnings
	}

	next := store.Aliases{List: append(append([]string{}, c.Aliases.List...), query)}
	if err := r.store.UpdateAliases(ctx, c.ID, next); err != nil {
		r.log.Warn("alias write failed", "creator", c.ID, "alias", query, "error", err)
		return false, append(warnings, Warning{Kind: WarnAliasWrite, CreatorID: c.ID, Err: err})
	}
	c.Aliases = next
	r.log.Info("alias learned", "creator", c.ID, "alias", query)

	if r.flusher != nil {
		if err := r.flusher.Flush(ctx); err != nil {
			r.log.Warn("flush after alias failed", "creator", c.ID, "error", err)
			warnings = append(warnings, Warning{Kind: WarnFlush, CreatorID: c.ID, Err: err})
		}
	}
	return true, warnings
}
