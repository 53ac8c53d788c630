package snapshot

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "8f14e45f-ceea-4a67-9a0b-1c2d3e4f5a6b"

func TestFormat(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC)
	assert.Equal(t,
		"leakr_db_8f14e45f-ceea-4a67-9a0b-1c2d3e4f5a6b_2024-05-01 10-20-30_it7.sqlite",
		Format(owner, ts, 7))
}

func TestParseFormatRoundTrip(t *testing.T) {
	ts := time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)
	for _, it := range []int64{0, 1, 42, 1 << 40} {
		info := New(owner, ts, it)
		got, err := Parse(info.Filename)
		require.NoError(t, err)
		assert.Equal(t, info.OwnerUUID, got.OwnerUUID)
		assert.True(t, info.Timestamp.Equal(got.Timestamp))
		assert.Equal(t, it, got.Iteration)
		assert.Equal(t, Format(got.OwnerUUID, got.Timestamp, got.Iteration), info.Filename)
	}
}

func TestNewTruncatesToSecondsInUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 5, 1, 12, 20, 30, 999, loc)
	info := New(owner, ts, 1)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC), info.Timestamp)
}

func TestParseRejectsMalformedNames(t *testing.T) {
	for _, name := range []string{
		"",
		"random.sqlite",
		"leakr_db_not-a-uuid_2024-05-01 10-20-30_it1.sqlite",
		"leakr_db_" + owner + "_2024-05-01_10-20-30_it1.sqlite",
		"leakr_db_" + owner + "_2024-05-01 10-20-30_it.sqlite",
		"leakr_db_" + owner + "_2024-05-01 10-20-30_it-1.sqlite",
		"leakr_db_" + owner + "_2024-13-01 10-20-30_it1.sqlite",
		"leakr_db_" + owner + "_2024-05-01 10-20-30_it1.sqlite.bak",
	} {
		_, err := Parse(name)
		assert.True(t, errors.Is(err, ErrBadFilename), name)
	}
}

func TestSameVersion(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC)
	a := New(owner, ts, 3)
	b := New("8F14E45F-CEEA-4A67-9A0B-1C2D3E4F5A6B", ts, 3)
	assert.True(t, SameVersion(a, b))
	assert.False(t, SameVersion(a, New(owner, ts, 4)))
	assert.False(t, SameVersion(a, New(owner, ts.Add(time.Second), 3)))
}
