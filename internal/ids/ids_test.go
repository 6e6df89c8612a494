package ids

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewAt(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	id := NewAt(KindRun, at)
	assert.True(t, Valid(id, KindRun))
	assert.Equal(t, KindRun, Kind(id))

	decoded, err := CreatedAt(id)
	assert.NoError(t, err)
	assert.Equal(t, at, decoded)
}

func TestNewUniqueWithinSecond(t *testing.T) {
	at := time.Now().UTC()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewAt(KindTask, at)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestSortableByCreationTime(t *testing.T) {
	earlier := NewAt(KindRun, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	later := NewAt(KindRun, time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC))
	assert.Less(t, earlier, later)
}

func TestMalformed(t *testing.T) {
	t.Run("wrong kind", func(t *testing.T) {
		assert.False(t, Valid(New(KindTask), KindRun))
	})

	t.Run("garbage", func(t *testing.T) {
		assert.Equal(t, "", Kind("nounderscore"))
		_, err := CreatedAt("run_notatimestamp_abc123")
		assert.Error(t, err)
		_, err = CreatedAt("run_onlytwo")
		assert.Error(t, err)
	})
}
