package duplicates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gitlab.com/billit/billit-api/internal/models"
	"gitlab.com/billit/billit-api/internal/repository"
	"pgregory.net/rapid"
)

type fakeStore struct {
	candidates []models.DuplicateCandidate
	findErr    error
	insertErr  error
	lastQuery  repository.CandidateQuery
	inserted   []models.DuplicateDetection

	markResult   bool
	unmarkResult bool
	procErr      error
	markCalls    int
	unmarkCalls  int

	resolved []string
	recent   []models.DuplicateDetection
}

func (s *fakeStore) FindCandidates(_ context.Context, q repository.CandidateQuery) ([]models.DuplicateCandidate, error) {
	s.lastQuery = q
	return s.candidates, s.findErr
}

func (s *fakeStore) Insert(_ context.Context, d *models.DuplicateDetection) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	d.ID = uuid.New()
	s.inserted = append(s.inserted, *d)
	return nil
}

func (s *fakeStore) Recent(_ context.Context, _ uuid.UUID, limit int) ([]models.DuplicateDetection, error) {
	if len(s.recent) > limit {
		return s.recent[:limit], nil
	}
	return s.recent, nil
}

func (s *fakeStore) ResolvePending(_ context.Context, _, _ uuid.UUID, action string) (int64, error) {
	s.resolved = append(s.resolved, action)
	return 1, nil
}

func (s *fakeStore) MarkDuplicate(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) (bool, error) {
	s.markCalls++
	return s.markResult, s.procErr
}

func (s *fakeStore) UnmarkDuplicate(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	s.unmarkCalls++
	return s.unmarkResult, s.procErr
}

type fakeOwners map[uuid.UUID]uuid.UUID

func (o fakeOwners) GetOwner(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	owner, ok := o[id]
	if !ok {
		return uuid.Nil, repository.ErrNotFound
	}
	return owner, nil
}

type recordingNotifier struct{ types []string }

func (n *recordingNotifier) Emit(_ context.Context, _ uuid.UUID, typ, _, _ string, _ map[string]any) {
	n.types = append(n.types, typ)
}

func ptr[T any](v T) *T { return &v }

func validRequest(userID uuid.UUID) DetectRequest {
	return DetectRequest{
		UserID:    userID,
		Supplier:  "Mercadona",
		Total:     ptr(decimal.RequireFromString("42.10")),
		IssueDate: ptr(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
	}
}

func TestDetect_Validation(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	tests := []struct {
		name   string
		mutate func(*DetectRequest)
		want   string
	}{
		{name: "missing supplier", mutate: func(r *DetectRequest) { r.Supplier = "  " }, want: "proveedor"},
		{name: "missing total", mutate: func(r *DetectRequest) { r.Total = nil }, want: "total"},
		{name: "missing date", mutate: func(r *DetectRequest) { r.IssueDate = nil }, want: "fechaEmision"},
		{name: "negative days", mutate: func(r *DetectRequest) { r.ThresholdDays = ptr(-1) }, want: "thresholdDays"},
		{name: "negative amount", mutate: func(r *DetectRequest) { r.ThresholdAmount = ptr(decimal.NewFromInt(-2)) }, want: "thresholdAmount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := &fakeStore{}
			d := NewDetector(store, fakeOwners{}, nil)
			req := validRequest(userID)
			tt.mutate(&req)

			_, err := d.Detect(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidInput)
			require.ErrorContains(t, err, tt.want)
			require.Equal(t, uuid.Nil, store.lastQuery.UserID, "procedure must not be called")
		})
	}
}

func TestDetect_DefaultsAndEcho(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	d := NewDetector(store, fakeOwners{}, nil)

	res, err := d.Detect(context.Background(), validRequest(uuid.New()))
	require.NoError(t, err)
	require.Equal(t, 7, res.Params.ThresholdDays)
	require.True(t, decimal.NewFromInt(5).Equal(res.Params.ThresholdAmount))
	require.Equal(t, 7, store.lastQuery.ThresholdDays)
	require.Zero(t, res.Count)
	require.Empty(t, res.Duplicates)
	require.NotNil(t, res.Duplicates)
	require.Empty(t, store.inserted, "no candidates, no detection row")
}

func TestDetect_CustomThresholds(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	d := NewDetector(store, fakeOwners{}, nil)
	req := validRequest(uuid.New())
	req.ThresholdDays = ptr(0)
	req.ThresholdAmount = ptr(decimal.RequireFromString("0.5"))

	res, err := d.Detect(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 0, res.Params.ThresholdDays)
	require.True(t, decimal.RequireFromString("0.5").Equal(store.lastQuery.ThresholdAmount))
}

func TestDetect_ExcludesSelfAndRecords(t *testing.T) {
	t.Parallel()

	self := uuid.New()
	other := uuid.New()
	store := &fakeStore{candidates: []models.DuplicateCandidate{
		{ReceiptID: self, SimilarityScore: 1},
		{ReceiptID: other, SimilarityScore: 0.8},
	}}
	notifier := &recordingNotifier{}
	d := NewDetector(store, fakeOwners{}, notifier)

	req := validRequest(uuid.New())
	req.ReceiptID = &self

	res, err := d.Detect(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	require.Equal(t, other, res.Duplicates[0].ReceiptID)
	require.NotNil(t, res.DetectionID)

	require.Len(t, store.inserted, 1)
	row := store.inserted[0]
	require.Equal(t, []uuid.UUID{other}, row.DuplicateIDs)
	require.Equal(t, []float64{0.8}, row.SimilarityScores)
	require.Equal(t, models.DetectionPending, row.Action)
	require.Equal(t, &self, row.ReceiptID)
	require.Equal(t, []string{models.NotifyDuplicateDetected}, notifier.types)
}

func TestDetect_OnlySelfFound(t *testing.T) {
	t.Parallel()

	self := uuid.New()
	store := &fakeStore{candidates: []models.DuplicateCandidate{{ReceiptID: self, SimilarityScore: 1}}}
	d := NewDetector(store, fakeOwners{}, nil)
	req := validRequest(uuid.New())
	req.ReceiptID = &self

	res, err := d.Detect(context.Background(), req)
	require.NoError(t, err)
	require.Zero(t, res.Count)
	require.Empty(t, store.inserted)
}

func TestDetect_ProcedureFailure(t *testing.T) {
	t.Parallel()

	store := &fakeStore{findErr: errors.New("connection reset")}
	d := NewDetector(store, fakeOwners{}, nil)

	_, err := d.Detect(context.Background(), validRequest(uuid.New()))
	require.ErrorIs(t, err, ErrDetection)
	require.ErrorContains(t, err, "connection reset")
}

func TestDetect_InsertFailureStillReturnsCandidates(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		candidates: []models.DuplicateCandidate{{ReceiptID: uuid.New(), SimilarityScore: 0.7}},
		insertErr:  errors.New("insert failed"),
	}
	d := NewDetector(store, fakeOwners{}, nil)

	res, err := d.Detect(context.Background(), validRequest(uuid.New()))
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	require.Nil(t, res.DetectionID)
}

func TestExcludeSelf_Property(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		self := uuid.New()
		n := rapid.IntRange(0, 10).Draw(t, "n")
		var in []models.DuplicateCandidate
		others := 0
		for i := 0; i < n; i++ {
			if rapid.Bool().Draw(t, "is_self") {
				in = append(in, models.DuplicateCandidate{ReceiptID: self})
			} else {
				in = append(in, models.DuplicateCandidate{ReceiptID: uuid.New()})
				others++
			}
		}

		out := excludeSelf(in, &self)
		require.Len(t, out, others)
		for _, c := range out {
			require.NotEqual(t, self, c.ReceiptID)
		}
		require.Len(t, excludeSelf(in, nil), len(in))
	})
}

func TestResolve(t *testing.T) {
	t.Parallel()

	alice, bob := uuid.New(), uuid.New()
	aliceA, aliceB, bobC := uuid.New(), uuid.New(), uuid.New()
	owners := fakeOwners{aliceA: alice, aliceB: alice, bobC: bob}

	t.Run("mark requires duplicateOfId", func(t *testing.T) {
		t.Parallel()

		d := NewDetector(&fakeStore{}, owners, nil)
		err := d.Resolve(context.Background(), ResolveRequest{UserID: alice, Action: ActionMark, ReceiptID: aliceA})
		require.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("unknown action", func(t *testing.T) {
		t.Parallel()

		d := NewDetector(&fakeStore{}, owners, nil)
		err := d.Resolve(context.Background(), ResolveRequest{UserID: alice, Action: "delete", ReceiptID: aliceA})
		require.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("mark across users is forbidden", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{markResult: true}
		d := NewDetector(store, owners, nil)
		err := d.Resolve(context.Background(), ResolveRequest{
			UserID: alice, Action: ActionMark, ReceiptID: aliceA, DuplicateOfID: &bobC,
		})
		require.ErrorIs(t, err, ErrForbidden)
		require.Zero(t, store.markCalls)
	})

	t.Run("target of another user is forbidden", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{unmarkResult: true}
		d := NewDetector(store, owners, nil)
		err := d.Resolve(context.Background(), ResolveRequest{UserID: alice, Action: ActionUnmark, ReceiptID: bobC})
		require.ErrorIs(t, err, ErrForbidden)
		require.Zero(t, store.unmarkCalls)
	})

	t.Run("missing receipt is not found", func(t *testing.T) {
		t.Parallel()

		d := NewDetector(&fakeStore{}, owners, nil)
		missing := uuid.New()
		err := d.Resolve(context.Background(), ResolveRequest{
			UserID: alice, Action: ActionMark, ReceiptID: aliceA, DuplicateOfID: &missing,
		})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("mark updates detection and notifies", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{markResult: true}
		notifier := &recordingNotifier{}
		d := NewDetector(store, owners, notifier)
		err := d.Resolve(context.Background(), ResolveRequest{
			UserID: alice, Action: ActionMark, ReceiptID: aliceA, DuplicateOfID: &aliceB,
		})
		require.NoError(t, err)
		require.Equal(t, []string{models.DetectionMarkedDuplicate}, store.resolved)
		require.Equal(t, []string{models.NotifyDuplicateMarked}, notifier.types)
	})

	t.Run("unmark sets ignored", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{unmarkResult: true}
		d := NewDetector(store, owners, nil)
		err := d.Resolve(context.Background(), ResolveRequest{UserID: alice, Action: ActionUnmark, ReceiptID: aliceA})
		require.NoError(t, err)
		require.Equal(t, []string{models.DetectionIgnored}, store.resolved)
	})

	t.Run("no effect is reported", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{markResult: false}
		d := NewDetector(store, owners, nil)
		err := d.Resolve(context.Background(), ResolveRequest{
			UserID: alice, Action: ActionMark, ReceiptID: aliceA, DuplicateOfID: &aliceB,
		})
		require.ErrorIs(t, err, ErrNoEffect)
		require.Empty(t, store.resolved)
	})

	t.Run("procedure failure is upstream", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{procErr: errors.New("boom")}
		d := NewDetector(store, owners, nil)
		err := d.Resolve(context.Background(), ResolveRequest{UserID: alice, Action: ActionUnmark, ReceiptID: aliceA})
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrNoEffect)
		require.NotErrorIs(t, err, ErrInvalidInput)
	})
}

func TestRecent(t *testing.T) {
	t.Parallel()

	rows := make([]models.DuplicateDetection, 60)
	d := NewDetector(&fakeStore{recent: rows}, fakeOwners{}, nil)
	got, err := d.Recent(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, got, RecentLimit)

	d = NewDetector(&fakeStore{}, fakeOwners{}, nil)
	got, err = d.Recent(context.Background(), uuid.New())
	require.NoError(t, err)
	require.NotNil(t, got)
}
