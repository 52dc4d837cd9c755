package experiment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/mimir/internal/apperror"
	"github.com/rafaeljc/mimir/internal/cohort"
	"github.com/rafaeljc/mimir/internal/experiment"
	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/store"
	"github.com/rafaeljc/mimir/internal/testsupport"
)

type fakeRepo struct {
	mu          sync.Mutex
	experiments map[string]store.Experiment
	assignments map[string]store.Assignment

	// loseRace makes the next CreateAssignment store a competing row and
	// report a unique violation.
	loseRace  *store.Assignment
	createErr error
	readErr   error
	creates   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{experiments: map[string]store.Experiment{}, assignments: map[string]store.Assignment{}}
}

func key(user, exp string) string { return user + "/" + exp }

func (f *fakeRepo) GetAssignment(_ context.Context, userID, experimentID string) (*store.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	a, ok := f.assignments[key(userID, experimentID)]
	if !ok {
		return nil, fmt.Errorf("get assignment: %w", store.ErrNotFound)
	}
	return &a, nil
}

func (f *fakeRepo) CreateAssignment(_ context.Context, a *store.Assignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	if f.loseRace != nil {
		f.assignments[key(a.UserID, a.ExperimentID)] = *f.loseRace
		f.loseRace = nil
		return fmt.Errorf("create assignment: %w", store.ErrConflict)
	}
	k := key(a.UserID, a.ExperimentID)
	if _, exists := f.assignments[k]; exists {
		return fmt.Errorf("create assignment: %w", store.ErrConflict)
	}
	a.AssignedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.assignments[k] = *a
	return nil
}

func (f *fakeRepo) GetExperiment(_ context.Context, id string) (*store.Experiment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.experiments[id]
	if !ok {
		return nil, fmt.Errorf("get experiment: %w", store.ErrNotFound)
	}
	return &e, nil
}

func (f *fakeRepo) ListActiveExperiments(context.Context) ([]store.Experiment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	var out []store.Experiment
	for _, e := range f.experiments {
		if e.IsActive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepo) addExperiment(id string, active bool, cohorts string) {
	f.experiments[id] = store.Experiment{ID: id, Name: id, IsActive: active, Cohorts: json.RawMessage(cohorts)}
}

const splitCohorts = `{"control": 0.5, "treatment": 0.5}`

func TestService_GetAssignment(t *testing.T) {
	ctx := context.Background()

	t.Run("Should create an assignment once and return it unchanged afterwards", func(t *testing.T) {
		repo := newFakeRepo()
		repo.addExperiment("exp-1", true, splitCohorts)
		svc := experiment.NewService(repo, nil)

		var first *experiment.Result
		testsupport.AssertMetricDelta(t, "mimir_experiment_assignments_total", map[string]string{"outcome": "created"}, 1, func() {
			var err error
			first, err = svc.GetAssignment(ctx, "user-1", "exp-1")
			require.NoError(t, err)
		})
		assert.True(t, first.IsNewAssignment)
		assert.Contains(t, []string{"control", "treatment"}, first.Cohort)

		for i := 0; i < 3; i++ {
			again, err := svc.GetAssignment(ctx, "user-1", "exp-1")
			require.NoError(t, err)
			assert.False(t, again.IsNewAssignment)
			assert.Equal(t, first.Cohort, again.Cohort)
		}
		assert.Equal(t, 1, repo.creates)
	})

	t.Run("Should agree with the pure assignment function", func(t *testing.T) {
		repo := newFakeRepo()
		repo.addExperiment("exp-1", true, splitCohorts)
		engine := cohort.NewEngine(nil)
		svc := experiment.NewService(repo, engine)

		dist, err := cohort.ParseDistribution([]byte(splitCohorts))
		require.NoError(t, err)

		for _, user := range []string{"alice", "bob", "carol", "dave"} {
			res, err := svc.GetAssignment(ctx, user, "exp-1")
			require.NoError(t, err)
			assert.Equal(t, engine.Assign(user, "exp-1", dist), res.Cohort, user)
		}
	})

	t.Run("Should keep a stored cohort after the weights change", func(t *testing.T) {
		repo := newFakeRepo()
		repo.addExperiment("exp-1", true, `{"control": 1.0}`)
		svc := experiment.NewService(repo, nil)

		first, err := svc.GetAssignment(ctx, "user-1", "exp-1")
		require.NoError(t, err)
		require.Equal(t, "control", first.Cohort)

		repo.addExperiment("exp-1", true, `{"treatment": 1.0}`)
		again, err := svc.GetAssignment(ctx, "user-1", "exp-1")
		require.NoError(t, err)
		assert.Equal(t, "control", again.Cohort)
	})

	t.Run("Should warn when cohort weights do not sum to one", func(t *testing.T) {
		tests := []struct {
			name     string
			cohorts  string
			wantWarn bool
		}{
			{name: "Should warn on under-weighted cohorts", cohorts: `{"control": 0.25, "treatment": 0.25}`, wantWarn: true},
			{name: "Should warn on over-weighted cohorts", cohorts: `{"control": 0.75, "treatment": 0.75}`, wantWarn: true},
			{name: "Should stay quiet on float rounding", cohorts: `{"a": 0.1, "b": 0.2, "c": 0.7}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var buf bytes.Buffer
				logCtx := logger.WithContext(ctx, slog.New(slog.NewJSONHandler(&buf, nil)))

				repo := newFakeRepo()
				repo.addExperiment("exp-w", true, tt.cohorts)
				_, err := experiment.NewService(repo, nil).GetAssignment(logCtx, "user-1", "exp-w")
				require.NoError(t, err)

				if !tt.wantWarn {
					assert.NotContains(t, buf.String(), "cohort weights do not sum to 1")
					return
				}
				assert.Contains(t, buf.String(), "cohort weights do not sum to 1")
				assert.Contains(t, buf.String(), `"cohorts":[`)
			})
		}
	})

	t.Run("Should return the stored winner when the insert race is lost", func(t *testing.T) {
		repo := newFakeRepo()
		repo.addExperiment("exp-1", true, `{"control": 1.0}`)
		repo.loseRace = &store.Assignment{UserID: "user-1", ExperimentID: "exp-1", Cohort: "winner"}
		svc := experiment.NewService(repo, nil)

		var res *experiment.Result
		testsupport.AssertMetricDelta(t, "mimir_experiment_assignments_total", map[string]string{"outcome": "recovered"}, 1, func() {
			var err error
			res, err = svc.GetAssignment(ctx, "user-1", "exp-1")
			require.NoError(t, err)
		})
		assert.False(t, res.IsNewAssignment)
		assert.Equal(t, "winner", res.Cohort)
	})

	t.Run("Should report exactly one new assignment under concurrent first access", func(t *testing.T) {
		repo := newFakeRepo()
		repo.addExperiment("exp-1", true, splitCohorts)
		svc := experiment.NewService(repo, nil)

		const workers = 16
		results := make([]*experiment.Result, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := svc.GetAssignment(ctx, "user-1", "exp-1")
				assert.NoError(t, err)
				results[i] = res
			}(i)
		}
		wg.Wait()

		newCount := 0
		for _, r := range results {
			require.NotNil(t, r)
			if r.IsNewAssignment {
				newCount++
			}
			assert.Equal(t, results[0].Cohort, r.Cohort)
		}
		assert.Equal(t, 1, newCount)
	})

	t.Run("Should fail with the matching code", func(t *testing.T) {
		tests := []struct {
			name     string
			setup    func(*fakeRepo)
			expID    string
			wantCode apperror.Code
		}{
			{
				name:     "unknown experiment",
				setup:    func(*fakeRepo) {},
				expID:    "missing",
				wantCode: apperror.CodeExperimentNotFound,
			},
			{
				name:     "inactive experiment",
				setup:    func(r *fakeRepo) { r.addExperiment("exp-1", false, splitCohorts) },
				expID:    "exp-1",
				wantCode: apperror.CodeExperimentInactive,
			},
			{
				name:     "empty experiment id",
				setup:    func(*fakeRepo) {},
				expID:    "",
				wantCode: apperror.CodeInvalidIdentifier,
			},
			{
				name: "insert failure",
				setup: func(r *fakeRepo) {
					r.addExperiment("exp-1", true, splitCohorts)
					r.createErr = errors.New("connection reset")
				},
				expID:    "exp-1",
				wantCode: apperror.CodeAssignmentPersistFailed,
			},
			{
				name:     "read failure",
				setup:    func(r *fakeRepo) { r.readErr = errors.New("connection reset") },
				expID:    "exp-1",
				wantCode: apperror.CodeStorageFailed,
			},
			{
				name:     "misconfigured cohorts",
				setup:    func(r *fakeRepo) { r.addExperiment("exp-1", true, `{"control": "half"}`) },
				expID:    "exp-1",
				wantCode: apperror.CodeInternal,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				repo := newFakeRepo()
				tt.setup(repo)
				svc := experiment.NewService(repo, nil)

				res, err := svc.GetAssignment(ctx, "user-1", tt.expID)
				require.Error(t, err)
				assert.Nil(t, res)
				assert.Equal(t, tt.wantCode, apperror.CodeOf(err))
				assert.Empty(t, repo.assignments)
			})
		}
	})

	t.Run("Should count not found outcomes", func(t *testing.T) {
		svc := experiment.NewService(newFakeRepo(), nil)
		testsupport.AssertMetricDelta(t, "mimir_experiment_assignments_total", map[string]string{"outcome": "not_found"}, 1, func() {
			_, _ = svc.GetAssignment(ctx, "user-1", "missing")
		})
	})
}

func TestService_ListActiveExperiments(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return only active experiments", func(t *testing.T) {
		repo := newFakeRepo()
		repo.addExperiment("on", true, splitCohorts)
		repo.addExperiment("off", false, splitCohorts)
		svc := experiment.NewService(repo, nil)

		exps, err := svc.ListActiveExperiments(ctx)
		require.NoError(t, err)
		require.Len(t, exps, 1)
		assert.Equal(t, "on", exps[0].ID)
	})

	t.Run("Should return an empty list rather than nil", func(t *testing.T) {
		svc := experiment.NewService(newFakeRepo(), nil)
		exps, err := svc.ListActiveExperiments(ctx)
		require.NoError(t, err)
		assert.NotNil(t, exps)
		assert.Empty(t, exps)
	})

	t.Run("Should map store failures to STORAGE_FAILED", func(t *testing.T) {
		repo := newFakeRepo()
		repo.readErr = errors.New("boom")
		svc := experiment.NewService(repo, nil)
		_, err := svc.ListActiveExperiments(ctx)
		assert.Equal(t, apperror.CodeStorageFailed, apperror.CodeOf(err))
	})
}

func TestSubjectFor(t *testing.T) {
	tests := []struct {
		name      string
		caller    string
		isAdmin   bool
		requested string
		want      string
		wantErr   bool
	}{
		{name: "no override", caller: "u1", want: "u1"},
		{name: "override equal to caller", caller: "u1", requested: "u1", want: "u1"},
		{name: "non-admin naming another user", caller: "u1", requested: "u2", wantErr: true},
		{name: "admin naming another user", caller: "ops", isAdmin: true, requested: "u2", want: "u2"},
	}

	for _, tt := range tests {
		t.Run("Should resolve "+tt.name, func(t *testing.T) {
			got, err := experiment.SubjectFor(tt.caller, tt.isAdmin, tt.requested)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperror.CodeValidationFailed, apperror.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
