package progress

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pritzvi/linked-out/internal/faults"
	"github.com/pritzvi/linked-out/internal/models"
)

func discover(t *testing.T, s *Store, id, name string) {
	t.Helper()
	ch, err := s.Upsert(models.ProfileUpdate{ID: id, Name: name, URL: "https://linkedin.com/in/" + id})
	require.NoError(t, err)
	require.True(t, ch.Inserted)
}

func advance(t *testing.T, s *Store, id string, status models.ProfileStatus) Change {
	t.Helper()
	ch, err := s.Upsert(models.ProfileUpdate{ID: id, Status: status})
	require.NoError(t, err)
	return ch
}

func TestUpsert_InsertsPending(t *testing.T) {
	s := NewStore()
	discover(t, s, "1", "Ada")

	rec, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, models.ProfileStatusPending, rec.Status)
	assert.Equal(t, "Ada", rec.Name)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.TotalDiscovered)
	assert.Equal(t, 1, snap.PendingRecords)
}

func TestUpsert_ForwardTransitions(t *testing.T) {
	s := NewStore()
	discover(t, s, "1", "Ada")

	ch := advance(t, s, "1", models.ProfileStatusProcessing)
	assert.True(t, ch.Advanced)
	assert.False(t, ch.EnteredCompleted)
	assert.Equal(t, models.ProfileStatusPending, ch.From)

	ch, err := s.Upsert(models.ProfileUpdate{ID: "1", Status: models.ProfileStatusCompleted, Message: "Hi Ada"})
	require.NoError(t, err)
	assert.True(t, ch.EnteredCompleted)
	assert.Equal(t, "Hi Ada", ch.Record.Message)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.CompletedCount)
	assert.Equal(t, 0, snap.ProcessingCount)
}

func TestUpsert_RegressionIgnored(t *testing.T) {
	s := NewStore()
	discover(t, s, "1", "Ada")
	advance(t, s, "1", models.ProfileStatusCompleted)

	ch, err := s.Upsert(models.ProfileUpdate{ID: "1", Status: models.ProfileStatusProcessing})
	assert.ErrorIs(t, err, faults.ErrStatusRegression)
	assert.ErrorIs(t, err, faults.ErrConsistency)
	assert.False(t, ch.Advanced)
	assert.Equal(t, models.ProfileStatusCompleted, ch.Record.Status)

	// completed -> failed is lateral, also rejected
	_, err = s.Upsert(models.ProfileUpdate{ID: "1", Status: models.ProfileStatusFailed})
	assert.ErrorIs(t, err, faults.ErrStatusRegression)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.CompletedCount)
	assert.Equal(t, 0, snap.FailedCount)
}

func TestUpsert_CompletedOnlyOnce(t *testing.T) {
	s := NewStore()
	discover(t, s, "1", "Ada")
	ch := advance(t, s, "1", models.ProfileStatusCompleted)
	assert.True(t, ch.EnteredCompleted)

	ch = advance(t, s, "1", models.ProfileStatusCompleted)
	assert.False(t, ch.EnteredCompleted)
	assert.False(t, ch.Advanced)
}

func TestUpsert_FieldConflictLastWriterWins(t *testing.T) {
	s := NewStore()
	discover(t, s, "1", "Ada")

	ch, err := s.Upsert(models.ProfileUpdate{ID: "1", Name: "Ada Lovelace", Status: models.ProfileStatusProcessing})
	assert.ErrorIs(t, err, faults.ErrFieldConflict)
	assert.Equal(t, "Ada Lovelace", ch.Record.Name)
	assert.True(t, ch.Advanced, "status still advances alongside a field conflict")
}

func TestUpsert_FillsEmptyName(t *testing.T) {
	s := NewStore()
	_, err := s.Upsert(models.ProfileUpdate{ID: "1"})
	require.NoError(t, err)

	ch, err := s.Upsert(models.ProfileUpdate{ID: "1", Name: "Grace"})
	require.NoError(t, err)
	assert.Equal(t, "Grace", ch.Record.Name)
}

func TestUpsert_UnknownIDWithStatus(t *testing.T) {
	s := NewStore()
	ch, err := s.Upsert(models.ProfileUpdate{ID: "9", Status: models.ProfileStatusProcessing})
	require.NoError(t, err)
	assert.True(t, ch.Inserted)
	assert.True(t, ch.Advanced)
	assert.Equal(t, models.ProfileStatusProcessing, ch.Record.Status)
}

func TestUpsert_InvalidInput(t *testing.T) {
	s := NewStore()
	_, err := s.Upsert(models.ProfileUpdate{})
	assert.ErrorIs(t, err, faults.ErrInvalidEvent)

	_, err = s.Upsert(models.ProfileUpdate{ID: "1", Status: "sent"})
	assert.ErrorIs(t, err, faults.ErrInvalidEvent)
	assert.Equal(t, 0, s.Snapshot().TotalDiscovered)
}

func TestNextID(t *testing.T) {
	s := NewStore()
	discover(t, s, "2", "Taken")
	assert.Equal(t, "1", s.NextID())
	assert.Equal(t, "3", s.NextID())
}

func TestSnapshot_PreservesDiscoveryOrder(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"c", "a", "b"} {
		discover(t, s, id, id)
	}
	snap := s.Snapshot()
	var ids []string
	for _, r := range snap.Records {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := NewStore()
	discover(t, s, "1", "Ada")
	snap := s.Snapshot()
	snap.Records[0].Name = "mutated"

	rec, _ := s.Get("1")
	assert.Equal(t, "Ada", rec.Name)
}

func TestPendingCount(t *testing.T) {
	assert.Equal(t, 2, PendingCount(5, Snapshot{CompletedCount: 3}))
	assert.Equal(t, 0, PendingCount(2, Snapshot{CompletedCount: 2, ProcessingCount: 1}), "clamped at zero")
	assert.Equal(t, 5, PendingCount(5, Snapshot{FailedCount: 4}), "failures are not subtracted")
}

// Counters never exceed the number of discovered records, whatever order a
// single writer applies forward-moving updates in, and concurrent readers
// always see a self-consistent snapshot.
func TestSnapshot_ConsistentUnderConcurrentReads(t *testing.T) {
	s := NewStore()
	const n = 200

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Snapshot()
				sum := snap.CompletedCount + snap.ProcessingCount + snap.FailedCount + snap.PendingRecords
				if sum != snap.TotalDiscovered || len(snap.Records) != snap.TotalDiscovered {
					t.Errorf("inconsistent snapshot: %+v", snap)
					return
				}
			}
		}()
	}

	rng := rand.New(rand.NewSource(1))
	for i := range n {
		id := fmt.Sprintf("p%d", i)
		_, err := s.Upsert(models.ProfileUpdate{ID: id})
		require.NoError(t, err)
		if rng.Intn(2) == 0 {
			_, err = s.Upsert(models.ProfileUpdate{ID: id, Status: models.ProfileStatusProcessing})
			require.NoError(t, err)
		}
		final := models.ProfileStatusCompleted
		if rng.Intn(4) == 0 {
			final = models.ProfileStatusFailed
		}
		_, err = s.Upsert(models.ProfileUpdate{ID: id, Status: final})
		require.NoError(t, err)

		snap := s.Snapshot()
		assert.LessOrEqual(t, snap.CompletedCount+snap.ProcessingCount+snap.FailedCount, snap.TotalDiscovered)
	}
	close(stop)
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, n, snap.CompletedCount+snap.FailedCount)
}
