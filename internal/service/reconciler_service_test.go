package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/formation-api/internal/models"
)

type mockReconcilerRepo struct {
	formations  map[string]models.Formation
	failWriteOn map[string]bool
	listCalls   [][]models.FormationStatus
	writes      []string
}

func newMockReconcilerRepo(formations ...models.Formation) *mockReconcilerRepo {
	repo := &mockReconcilerRepo{
		formations:  make(map[string]models.Formation),
		failWriteOn: make(map[string]bool),
	}
	for _, f := range formations {
		repo.formations[f.ID] = f
	}
	return repo
}

func (m *mockReconcilerRepo) ListByStatuses(ctx context.Context, statuses []models.FormationStatus) ([]models.Formation, error) {
	m.listCalls = append(m.listCalls, statuses)
	var out []models.Formation
	for _, f := range m.formations {
		for _, status := range statuses {
			if f.Status == status {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func (m *mockReconcilerRepo) UpdateStatus(ctx context.Context, id string, status models.FormationStatus) error {
	if m.failWriteOn[id] {
		return errors.New("write refused")
	}
	f, ok := m.formations[id]
	if !ok {
		return errors.New("not found")
	}
	f.Status = status
	m.formations[id] = f
	m.writes = append(m.writes, id)
	return nil
}

func newReconciler(repo *mockReconcilerRepo, now time.Time) *ReconcilerService {
	svc := NewReconcilerService(repo, nil, nil, nil)
	svc.now = func() time.Time { return now }
	return svc
}

func TestReconcilerStartsScheduledFormations(t *testing.T) {
	now := date("2024-06-15")
	repo := newMockReconcilerRepo(
		models.Formation{ID: "due", Status: models.FormationStatusScheduled, StartDate: date("2024-06-14")},
		models.Formation{ID: "today", Status: models.FormationStatusScheduled, StartDate: date("2024-06-15")},
		models.Formation{ID: "future", Status: models.FormationStatusScheduled, StartDate: date("2024-06-20")},
	)
	svc := newReconciler(repo, now)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Started)
	assert.Equal(t, 0, result.Completed)
	assert.Equal(t, models.FormationStatusInProgress, repo.formations["due"].Status)
	assert.Equal(t, models.FormationStatusInProgress, repo.formations["today"].Status)
	assert.Equal(t, models.FormationStatusScheduled, repo.formations["future"].Status)
}

func TestReconcilerCompletesPastEndDates(t *testing.T) {
	now := date("2024-06-15")
	ended := date("2024-06-14")
	endsToday := date("2024-06-15")
	repo := newMockReconcilerRepo(
		models.Formation{ID: "running-over", Status: models.FormationStatusInProgress, StartDate: date("2024-06-01"), EndDate: &ended},
		models.Formation{ID: "running-today", Status: models.FormationStatusInProgress, StartDate: date("2024-06-01"), EndDate: &endsToday},
	)
	svc := newReconciler(repo, now)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, models.FormationStatusCompleted, repo.formations["running-over"].Status)
	// an end date of today is not yet past, the session still runs
	assert.Equal(t, models.FormationStatusInProgress, repo.formations["running-today"].Status)
}

func TestReconcilerCompletionTakesPrecedenceOverStart(t *testing.T) {
	now := date("2024-06-15")
	ended := date("2024-06-10")
	repo := newMockReconcilerRepo(
		models.Formation{ID: "stale", Status: models.FormationStatusScheduled, StartDate: date("2024-06-01"), EndDate: &ended},
	)
	svc := newReconciler(repo, now)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 0, result.Started)
	assert.Equal(t, models.FormationStatusCompleted, repo.formations["stale"].Status)
}

func TestReconcilerNeverTouchesDraftOrTerminalStates(t *testing.T) {
	now := date("2024-06-15")
	ended := date("2024-06-01")
	repo := newMockReconcilerRepo(
		models.Formation{ID: "draft", Status: models.FormationStatusDraft, StartDate: date("2024-05-01"), EndDate: &ended},
		models.Formation{ID: "done", Status: models.FormationStatusCompleted, StartDate: date("2024-05-01"), EndDate: &ended},
		models.Formation{ID: "cancelled", Status: models.FormationStatusCancelled, StartDate: date("2024-05-01"), EndDate: &ended},
	)
	svc := newReconciler(repo, now)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Processed)
	assert.Empty(t, repo.writes)
	require.Len(t, repo.listCalls, 1)
	assert.ElementsMatch(t, []models.FormationStatus{
		models.FormationStatusScheduled,
		models.FormationStatusInProgress,
	}, repo.listCalls[0])
}

func TestReconcilerIsIdempotent(t *testing.T) {
	now := date("2024-06-15")
	repo := newMockReconcilerRepo(
		models.Formation{ID: "due", Status: models.FormationStatusScheduled, StartDate: date("2024-06-14")},
	)
	svc := newReconciler(repo, now)

	first, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Started)

	second, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Processed)
	assert.Equal(t, 0, second.Started)
	assert.Equal(t, 0, second.Completed)
	assert.Len(t, repo.writes, 1)
}

func TestReconcilerIsolatesRecordFailures(t *testing.T) {
	now := date("2024-06-15")
	repo := newMockReconcilerRepo(
		models.Formation{ID: "broken", Status: models.FormationStatusScheduled, StartDate: date("2024-06-10")},
		models.Formation{ID: "fine", Status: models.FormationStatusScheduled, StartDate: date("2024-06-10")},
	)
	repo.failWriteOn["broken"] = true
	svc := newReconciler(repo, now)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Started)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, models.FormationStatusInProgress, repo.formations["fine"].Status)
	assert.Equal(t, models.FormationStatusScheduled, repo.formations["broken"].Status)
}

func TestReconcilerIgnoresMissingStartDate(t *testing.T) {
	now := date("2024-06-15")
	repo := newMockReconcilerRepo(
		models.Formation{ID: "undated", Status: models.FormationStatusScheduled},
	)
	svc := newReconciler(repo, now)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Started)
	assert.Equal(t, models.FormationStatusScheduled, repo.formations["undated"].Status)
}
