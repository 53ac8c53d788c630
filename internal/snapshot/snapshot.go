// Package snapshot implements the file naming scheme shared by local exports
// and the remote storage service:
//
//	leakr_db_<owner uuid>_<YYYY-MM-DD HH-MM-SS>_it<iteration>.sqlite
//
// The timestamp is UTC with second precision.
package snapshot

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the timestamp format embedded in snapshot filenames.
const TimeLayout = "2006-01-02 15-04-05"

// ErrBadFilename is returned for names that do not follow the scheme.
var ErrBadFilename = errors.New("not a snapshot filename")

var filenameRe = regexp.MustCompile(
	`^leakr_db_([0-9a-fA-F]{8}-(?:[0-9a-fA-F]{4}-){3}[0-9a-fA-F]{12})_(\d{4}-\d{2}-\d{2} \d{2}-\d{2}-\d{2})_it(\d+)\.sqlite$`)

// Info is the metadata carried by a snapshot filename.
type Info struct {
	Filename  string    `json:"filename"`
	OwnerUUID string    `json:"userID"`
	Timestamp time.Time `json:"timestamp"`
	Iteration int64     `json:"iteration"`
}

// Format builds the filename for a snapshot.
func Format(owner string, ts time.Time, iteration int64) string {
	return fmt.Sprintf("leakr_db_%s_%s_it%d.sqlite", strings.ToLower(owner), ts.UTC().Format(TimeLayout), iteration)
}

// New returns the Info for a snapshot, with Filename filled in.
// The timestamp is truncated to the second.
func New(owner string, ts time.Time, iteration int64) Info {
	ts = ts.UTC().Truncate(time.Second)
	return Info{
		Filename:  Format(owner, ts, iteration),
		OwnerUUID: strings.ToLower(owner),
		Timestamp: ts,
		Iteration: iteration,
	}
}

// Parse extracts the metadata from a snapshot filename.
func Parse(name string) (Info, error) {
	m := filenameRe.FindStringSubmatch(name)
	if m == nil {
		return Info{}, fmt.Errorf("%q: %w", name, ErrBadFilename)
	}
	owner, err := uuid.Parse(m[1])
	if err != nil {
		return Info{}, fmt.Errorf("%q: owner: %w", name, ErrBadFilename)
	}
	ts, err := time.ParseInLocation(TimeLayout, m[2], time.UTC)
	if err != nil {
		return Info{}, fmt.Errorf("%q: timestamp: %w", name, ErrBadFilename)
	}
	it, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return Info{}, fmt.Errorf("%q: iteration: %w", name, ErrBadFilename)
	}
	return Info{
		Filename:  name,
		OwnerUUID: owner.String(),
		Timestamp: ts,
		Iteration: it,
	}, nil
}

// SameVersion reports whether a and b describe the same snapshot state:
// same owner, same timestamp and same iteration.
func SameVersion(a, b Info) bool {
	return strings.EqualFold(a.OwnerUUID, b.OwnerUUID) &&
		a.Timestamp.Equal(b.Timestamp) &&
		a.Iteration == b.Iteration
}
