package coordinator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullQueue(t *testing.T, names ...string) []QueueEntry {
	t.Helper()

	q := NewQueue()
	for _, name := range names {
		_, _, err := q.Join(name+"-id", name, "")
		require.NoError(t, err)
	}
	return q.Entries()
}

func TestFormSession_TeamSplitIsDeterministic(t *testing.T) {
	t.Parallel()

	entries := fullQueue(t, "A", "B", "C", "D")

	// Shuffled input still follows enqueue order.
	entries[0], entries[3] = entries[3], entries[0]

	for i := 0; i < 10; i++ {
		roster, err := FormSession("s1", entries, nil, time.Now())
		require.NoError(t, err)

		assert.Equal(t, "s1", roster.SessionID)
		assert.Equal(t, []string{"A", "B"}, roster.Team(TeamA))
		assert.Equal(t, []string{"C", "D"}, roster.Team(TeamB))
		assert.Equal(t, []string{"A-id", "B-id", "C-id", "D-id"}, roster.ConnectionIDs())
		for _, p := range roster.Players {
			assert.Zero(t, p.Score)
		}
	}
}

func TestFormSession_RequiresFullQueue(t *testing.T) {
	t.Parallel()

	_, err := FormSession("s1", fullQueue(t, "A", "B", "C"), nil, time.Now())
	assert.True(t, errors.Is(err, ErrInvariantViolation))
}

func TestFormSession_DuplicateEntry(t *testing.T) {
	t.Parallel()

	entries := fullQueue(t, "A", "B", "C", "D")
	entries[3] = entries[0]

	_, err := FormSession("s1", entries, nil, time.Now())
	assert.True(t, errors.Is(err, ErrInvariantViolation))
}

func TestFormSession_AbortsWhenMemberIsGone(t *testing.T) {
	t.Parallel()

	entries := fullQueue(t, "A", "B", "C", "D")
	live := func(id string) bool { return id != "C-id" }

	_, err := FormSession("s1", entries, live, time.Now())
	assert.True(t, errors.Is(err, ErrFormationAborted))
}
