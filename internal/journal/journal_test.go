package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJournalRecordAndRecent(t *testing.T) {
	j, err := Open(":memory:")
	assert.NoError(t, err)
	defer j.Close()

	assert.NoError(t, j.Record("cam1", "UNKNOWN", "boot"))
	assert.NoError(t, j.Record("cam1", "INIT", "device reachable"))
	assert.NoError(t, j.Record("cam1", "RUNNING", "init done"))
	assert.NoError(t, j.Record("cam2", "UNKNOWN", ""))

	ts, err := j.Recent("cam1", 10)
	assert.NoError(t, err)
	assert.Len(t, ts, 3)
	assert.Equal(t, "RUNNING", ts[0].State)
	assert.Equal(t, "UNKNOWN", ts[2].State)

	ts, err = j.Recent("cam1", 2)
	assert.NoError(t, err)
	assert.Len(t, ts, 2)
}

func TestJournalLast(t *testing.T) {
	j, err := Open(":memory:")
	assert.NoError(t, err)
	defer j.Close()

	last, err := j.Last("cam1")
	assert.NoError(t, err)
	assert.Nil(t, last)

	assert.NoError(t, j.Record("cam1", "ALARM", "write gain failed"))
	last, err = j.Last("cam1")
	assert.NoError(t, err)
	assert.NotNil(t, last)
	assert.Equal(t, "ALARM", last.State)
	assert.Equal(t, "write gain failed", last.Status)
}
