// Package store provides SQLite-backed persistence for the creator tracker.
// The whole database lives in memory and is persisted as one serialized blob.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// TimeLayout is how timestamps are written to TEXT columns (UTC, second precision).
const TimeLayout = "2006-01-02 15:04:05"

// NilOwnerUUID is the owner identity of a store that has not been linked to a user yet.
const NilOwnerUUID = "00000000-0000-0000-0000-000000000000"

// Creator is a tracked person. Name is unique (case-insensitive).
type Creator struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Aliases   Aliases   `json:"aliases"`
	DateAdded time.Time `json:"dateAdded"`
	Favorite  bool      `json:"favorite"`
	Verified  bool      `json:"verified"`
}

// Aliases is the decoded form of a creator's alias column.
// A column that is not a JSON string array decodes as Malformed with an empty List.
type Aliases struct {
	List      []string
	Malformed bool
	Raw       string
}

// DecodeAliases parses the JSON text stored in the aliases column.
// NULL and empty columns are an empty, well-formed list.
func DecodeAliases(raw string) Aliases {
	if strings.TrimSpace(raw) == "" {
		return Aliases{List: []string{}}
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return Aliases{List: []string{}, Malformed: true, Raw: raw}
	}
	if list == nil {
		list = []string{}
	}
	return Aliases{List: list}
}

// Encode returns the JSON text written back to the aliases column.
func (a Aliases) Encode() string {
	list := a.List
	if list == nil {
		list = []string{}
	}
	b, _ := json.Marshal(list)
	return string(b)
}

// Contains reports whether alias is present, ignoring case.
func (a Aliases) Contains(alias string) bool {
	for _, v := range a.List {
		if strings.EqualFold(v, alias) {
			return true
		}
	}
	return false
}

// MarshalJSON exposes aliases to hosts as a plain array.
func (a Aliases) MarshalJSON() ([]byte, error) {
	return []byte(a.Encode()), nil
}

// UnmarshalJSON accepts a plain array.
func (a *Aliases) UnmarshalJSON(b []byte) error {
	*a = DecodeAliases(string(b))
	return nil
}

// Content is a saved page belonging to a creator.
type Content struct {
	ID             int64     `json:"id"`
	URL            string    `json:"url"`
	TabLabel       *string   `json:"tabLabel,omitempty"`
	DateAdded      time.Time `json:"dateAdded"`
	OwnerCreatorID int64     `json:"creatorId"`
	Favorite       bool      `json:"favorite"`
}

// Platform is a site a creator may have a profile on.
type Platform struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PlatformProfile links a creator to a profile URL on a platform.
// At most one exists per (creator, platform, link).
type PlatformProfile struct {
	ID             int64  `json:"id"`
	Link           string `json:"link"`
	OwnerCreatorID int64  `json:"creatorId"`
	PlatformID     int64  `json:"platformId"`
}

// SchemaVersion is the singleton version row.
// Iteration counts flushes; LastModified is the time of the last flush.
type SchemaVersion struct {
	Version      string    `json:"version"`
	Iteration    int64     `json:"iteration"`
	LastModified time.Time `json:"lastModified"`
}

// Settings is the singleton settings row.
type Settings struct {
	OwnerUUID       string `json:"uuid"`
	ShareCollection bool   `json:"shareCollection"`
}

// ErrNotFound is returned by updates that target a row that does not exist.
var ErrNotFound = errors.New("not found")

// Storer is the interface for all store operations.
type Storer interface {
	// Lifecycle & snapshot
	Close() error
	Export(ctx context.Context) ([]byte, error)
	Swap(other *SQLiteStore) error
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error

	// Version & settings
	SchemaVersion(ctx context.Context) (*SchemaVersion, error)
	BumpIteration(ctx context.Context, at time.Time) (*SchemaVersion, error)
	Settings(ctx context.Context) (*Settings, error)
	SetOwnerUUID(ctx context.Context, owner string) error
	SetShareCollection(ctx context.Context, share bool) error

	// Creators
	AddCreator(ctx context.Context, name string, aliases []string) (int64, error)
	GetCreator(ctx context.Context, id int64) (*Creator, error)
	FindCreatorByName(ctx context.Context, name string) (*Creator, error)
	ListCreators(ctx context.Context) ([]*Creator, error)
	UpdateAliases(ctx context.Context, id int64, aliases Aliases) error
	SetCreatorFavorite(ctx context.Context, id int64, favorite bool) error
	SetCreatorVerified(ctx context.Context, id int64, verified bool) error
	DeleteCreator(ctx context.Context, id int64) error

	// Contents
	AddContent(ctx context.Context, c *Content) (int64, error)
	GetContent(ctx context.Context, id int64) (*Content, error)
	ListContents(ctx context.Context) ([]*Content, error)
	ListContentsByCreator(ctx context.Context, creatorID int64) ([]*Content, error)
	ContentIDsByCreator(ctx context.Context, creatorID int64) ([]int64, error)
	SetContentFavorite(ctx context.Context, id int64, favorite bool) error
	DeleteContent(ctx context.Context, id int64) error

	// Platforms & profiles
	AddPlatform(ctx context.Context, name string) (int64, error)
	ListPlatforms(ctx context.Context) ([]*Platform, error)
	FindProfile(ctx context.Context, creatorID, platformID int64, link string) (*PlatformProfile, error)
	AddProfile(ctx context.Context, creatorID, platformID int64, link string) (*PlatformProfile, bool, error)
	ListProfilesByCreator(ctx context.Context, creatorID int64) ([]*PlatformProfile, error)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
