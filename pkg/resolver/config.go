package resolver

import "errors"

// Config holds the tunable thresholds of the resolution cascade.
// Fuzzy thresholds are the maximum accepted score, where 0 is a perfect
// match and 1 is no match at all.
type Config struct {
	MinSubstringLen  int     `yaml:"min_substring_len"`
	MinPrefixLen     int     `yaml:"min_prefix_len"`
	MinFuzzyQueryLen int     `yaml:"min_fuzzy_query_len"`
	ShortQueryMax    int     `yaml:"short_query_max"`
	LongQueryMin     int     `yaml:"long_query_min"`
	ShortThreshold   float64 `yaml:"short_threshold"`
	DefaultThreshold float64 `yaml:"default_threshold"`
	LongThreshold    float64 `yaml:"long_threshold"`
	MinLengthRatio   float64 `yaml:"min_length_ratio"`
	CacheSize        int     `yaml:"cache_size"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MinSubstringLen:  5,
		MinPrefixLen:     4,
		MinFuzzyQueryLen: 2,
		ShortQueryMax:    3,
		LongQueryMin:     8,
		ShortThreshold:   0.1,
		DefaultThreshold: 0.3,
		LongThreshold:    0.4,
		MinLengthRatio:   0.5,
		CacheSize:        1024,
	}
}

// Validate rejects thresholds that make the cascade meaningless.
func (c Config) Validate() error {
	switch {
	case c.MinSubstringLen < 1 || c.MinPrefixLen < 1 || c.MinFuzzyQueryLen < 1:
		return errors.New("minimum lengths must be positive")
	case c.ShortQueryMax >= c.LongQueryMin:
		return errors.New("short_query_max must be below long_query_min")
	case !inUnit(c.ShortThreshold) || !inUnit(c.DefaultThreshold) || !inUnit(c.LongThreshold):
		return errors.New("fuzzy thresholds must be within [0,1]")
	case !inUnit(c.MinLengthRatio):
		return errors.New("min_length_ratio must be within [0,1]")
	case c.CacheSize < 0:
		return errors.New("cache_size must not be negative")
	}
	return nil
}

// threshold picks the fuzzy threshold for a normalized query length.
func (c Config) threshold(queryLen int) float64 {
	switch {
	case queryLen <= c.ShortQueryMax:
		return c.ShortThreshold
	case queryLen >= c.LongQueryMin:
		return c.LongThreshold
	default:
		return c.DefaultThreshold
	}
}

func inUnit(f float64) bool { return f >= 0 && f <= 1 }
