package marathon

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/examprep/internal/domain"
	"github.com/conorfennell/examprep/internal/logger"
	"github.com/conorfennell/examprep/internal/storage"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	db     *storage.DB
	clock  *fakeClock
	sched  *Scheduler
	stores Stores
}

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func storesFor(db *storage.DB) Stores {
	return Stores{
		Pool:     db.Questions(),
		Queue:    db.Queue(),
		Sessions: db.Sessions(),
		Answers:  db.Answers(),
		Tx:       db,
	}
}

// seed adds questions whose correct option is always 0.
func seed(t *testing.T, db *storage.DB, topic string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, db.Questions().Upsert(context.Background(), domain.Question{
			ID:            id,
			TopicID:       topic,
			Prompt:        "prompt " + id,
			Options:       []string{"right", "wrong"},
			CorrectOption: 0,
			Explanation:   "because " + id,
		}, 1))
	}
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db := openTestDB(t)
	clock := &fakeClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	stores := storesFor(db)
	opts = append([]Option{WithClock(clock.Now), WithRand(rand.New(rand.NewPCG(7, 11)))}, opts...)
	return &fixture{
		db:     db,
		clock:  clock,
		sched:  New(stores, logger.Nop(), opts...),
		stores: stores,
	}
}

func (f *fixture) start(t *testing.T, topics ...string) *domain.Session {
	t.Helper()
	sess, err := f.sched.StartSession(context.Background(), "user-1", topics, "")
	require.NoError(t, err)
	return sess
}

func (f *fixture) next(t *testing.T, sessionID string) *NextResult {
	t.Helper()
	res, err := f.sched.NextQuestion(context.Background(), sessionID)
	require.NoError(t, err)
	return res
}

func (f *fixture) answer(t *testing.T, item *domain.QueueItem, correct bool) *AnswerResult {
	t.Helper()
	option := 0
	if !correct {
		option = 1
	}
	res, err := f.sched.SubmitAnswer(context.Background(), AnswerInput{
		SessionID:        item.SessionID,
		ItemID:           item.ID,
		QuestionID:       item.QuestionID,
		SelectedOption:   option,
		TimeTakenSeconds: 10,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) session(t *testing.T, id string) *domain.Session {
	t.Helper()
	sess, err := f.db.Sessions().Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, sess)
	return sess
}

func TestStartSession_Validation(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "algebra", "a1")
	ctx := context.Background()

	_, err := f.sched.StartSession(ctx, "user-1", nil, "")
	assert.ErrorIs(t, err, ErrNoTopicsSelected)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.sched.StartSession(ctx, "user-1", []string{" ", ""}, "")
	assert.ErrorIs(t, err, ErrNoTopicsSelected)

	_, err = f.sched.StartSession(ctx, "user-1", []string{"geometry"}, "")
	assert.ErrorIs(t, err, ErrNoQuestionsAvailable)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.sched.StartSession(ctx, "", []string{"algebra"}, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	sessions, err := f.db.Sessions().ListByUser(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, sessions, "validation failures must not write")
}

func TestStartSession_Membership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed(t, f.db, "algebra", "a1", "a2", "a3")
	seed(t, f.db, "geometry", "g1", "g2")
	seed(t, f.db, "calculus", "c1")
	require.NoError(t, f.db.Questions().Deactivate(ctx, "a3"))

	sess := f.start(t, "algebra", "geometry", "algebra")
	assert.Equal(t, []string{"algebra", "geometry"}, sess.TopicIDs)
	assert.Equal(t, 4, sess.TotalQuestions)
	assert.Equal(t, domain.StatusActive, sess.Status)

	items, err := f.db.Queue().ListBySession(ctx, sess.ID)
	require.NoError(t, err)

	var ids []string
	var priorities []int
	for _, it := range items {
		ids = append(ids, it.QuestionID)
		priorities = append(priorities, it.Priority)
		assert.False(t, it.IsMastered)
		assert.Nil(t, it.NextEligibleAt)
		assert.Zero(t, it.TimesShown)
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"a1", "a2", "g1", "g2"}, ids)
	assert.Equal(t, []int{0, 1, 2, 3}, priorities, "priorities are a permutation of indexes")

	// Membership is fixed even when the pool changes afterwards.
	seed(t, f.db, "algebra", "a4")
	items, err = f.db.Queue().ListBySession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, items, 4)
}

type failingQueue struct {
	QueueStore
	insertErr  error
	staleTimes int
}

func (q *failingQueue) InsertMany(ctx context.Context, items []domain.QueueItem) error {
	if q.insertErr != nil {
		return q.insertErr
	}
	return q.QueueStore.InsertMany(ctx, items)
}

func (q *failingQueue) ApplyOutcome(ctx context.Context, itemID string, version int64, p domain.QueuePatch) (bool, error) {
	if q.staleTimes > 0 {
		q.staleTimes--
		return false, nil
	}
	return q.QueueStore.ApplyOutcome(ctx, itemID, version, p)
}

func TestStartSession_RollsBackOnQueueFailure(t *testing.T) {
	db := openTestDB(t)
	seed(t, db, "algebra", "a1", "a2")
	stores := storesFor(db)
	stores.Queue = &failingQueue{QueueStore: db.Queue(), insertErr: errors.New("disk full")}
	sched := New(stores, logger.Nop())

	_, err := sched.StartSession(context.Background(), "user-1", []string{"algebra"}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)

	sessions, err := db.Sessions().ListByUser(context.Background(), "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, sessions, "session insert must be rolled back")
}

func TestNextQuestion_NoImmediateRepeat(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "algebra", "a1", "a2", "a3", "a4", "a5")
	sess := f.start(t, "algebra")

	var last string
	for i := 0; i < 50; i++ {
		res := f.next(t, sess.ID)
		require.False(t, res.Completed)
		require.NotNil(t, res.Item)
		assert.NotEqual(t, last, res.Item.QuestionID, "served the same question twice in a row")
		last = res.Item.QuestionID
	}
	assert.Equal(t, last, f.session(t, sess.ID).LastQuestionID)
}

func TestNextQuestion_TopKOfOneFollowsPriority(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopK = 1
	f := newFixture(t, WithConfig(cfg))
	seed(t, f.db, "algebra", "a1", "a2", "a3")
	sess := f.start(t, "algebra")

	items, err := f.db.Queue().ListBySession(context.Background(), sess.ID)
	require.NoError(t, err)
	first, second := items[0].QuestionID, items[1].QuestionID

	assert.Equal(t, first, f.next(t, sess.ID).Item.QuestionID)
	assert.Equal(t, second, f.next(t, sess.ID).Item.QuestionID)
	assert.Equal(t, first, f.next(t, sess.ID).Item.QuestionID)
}

func TestNextQuestion_RandomAmongLowestTen(t *testing.T) {
	f := newFixture(t)
	ids := make([]string, 15)
	for i := range ids {
		ids[i] = fmt.Sprintf("q%02d", i)
	}
	seed(t, f.db, "algebra", ids...)
	sess := f.start(t, "algebra")
	ctx := context.Background()

	items, err := f.db.Queue().ListBySession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, items, 15)
	priority := make(map[string]int, len(items))
	for _, it := range items {
		priority[it.QuestionID] = it.Priority
	}

	// Nothing is answered, so priorities stay 0..14. With the last-served
	// item excluded the ten lowest eligible never reach above 10.
	served := map[int]int{}
	for i := 0; i < 200; i++ {
		res := f.next(t, sess.ID)
		require.NotNil(t, res.Item)
		p := priority[res.Item.QuestionID]
		assert.LessOrEqual(t, p, 10, "served priority %d outside the ten lowest", p)
		served[p]++
	}
	assert.Greater(t, len(served), 2, "selection must spread over the lowest candidates")
	assert.Zero(t, served[11]+served[12]+served[13]+served[14])
}

func TestNextQuestion_MarksShown(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "algebra", "a1")
	sess := f.start(t, "algebra")

	res := f.next(t, sess.ID)
	require.NotNil(t, res.Item)
	assert.Equal(t, 1, res.Item.TimesShown)

	stored, err := f.db.Queue().FindByID(context.Background(), res.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TimesShown)
	require.NotNil(t, stored.LastShownAt)
	assert.True(t, stored.LastShownAt.Equal(f.clock.Now()))
}

func TestNextQuestion_FallsBackToLastQuestion(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "algebra", "a1", "a2")
	sess := f.start(t, "algebra")

	first := f.next(t, sess.ID).Item
	f.answer(t, first, true)

	remaining := f.next(t, sess.ID)
	require.NotNil(t, remaining.Item)
	assert.NotEqual(t, first.QuestionID, remaining.Item.QuestionID)

	// Only the last-served question is left: it is served again.
	again := f.next(t, sess.ID)
	require.False(t, again.Completed)
	require.NotNil(t, again.Item)
	assert.Equal(t, remaining.Item.QuestionID, again.Item.QuestionID)
	assert.Equal(t, 2, again.Item.TimesShown)
}

func TestNextQuestion_CompletionIsSticky(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "algebra", "a1", "a2", "a3")
	sess := f.start(t, "algebra")

	for i := 0; i < 3; i++ {
		res := f.next(t, sess.ID)
		require.NotNil(t, res.Item)
		f.answer(t, res.Item, true)
	}

	for i := 0; i < 3; i++ {
		res := f.next(t, sess.ID)
		assert.True(t, res.Completed)
		assert.True(t, res.AllMastered)
		assert.Zero(t, res.Pending)
		assert.Nil(t, res.Item)
	}

	stored := f.session(t, sess.ID)
	assert.Equal(t, domain.StatusActive, stored.Status)
	assert.Nil(t, stored.CompletedAt)
	assert.Equal(t, 3, stored.QuestionsMastered)
	assert.True(t, stored.AllMastered())
}

func TestSubmitAnswer_AfterAllMastered(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "algebra", "a1")
	sess := f.start(t, "algebra")
	ctx := context.Background()
	item := f.next(t, sess.ID).Item
	require.NotNil(t, item)

	in := AnswerInput{
		SessionID:      sess.ID,
		ItemID:         item.ID,
		QuestionID:     item.QuestionID,
		SelectedOption: 0,
		SubmissionID:   "k1",
	}
	first, err := f.sched.SubmitAnswer(ctx, in)
	require.NoError(t, err)
	require.True(t, first.Mastered)

	done := f.next(t, sess.ID)
	require.True(t, done.Completed)
	require.True(t, done.AllMastered)

	retried, err := f.sched.SubmitAnswer(ctx, in)
	require.NoError(t, err)
	assert.True(t, retried.Replayed)
	assert.Equal(t, first.AttemptNumber, retried.AttemptNumber)
	assert.True(t, retried.Correct)

	in.SubmissionID = "k2"
	in.SelectedOption = 1
	late, err := f.sched.SubmitAnswer(ctx, in)
	require.NoError(t, err)
	assert.False(t, late.Replayed)
	assert.False(t, late.Correct)
	assert.True(t, late.Mastered, "mastery is terminal")
	assert.Equal(t, 2, late.AttemptNumber)

	stored := f.session(t, sess.ID)
	assert.Equal(t, domain.StatusActive, stored.Status)
	assert.Equal(t, 2, stored.QuestionsAnswered)
	assert.Equal(t, 1, stored.QuestionsMastered)
}

func TestNextQuestion_DelayHonored(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "algebra", "a1", "a2")
	sess := f.start(t, "algebra")

	missed := f.next(t, sess.ID).Item
	res := f.answer(t, missed, false)
	assert.False(t, res.Correct)
	assert.True(t, res.WillReappear)
	assert.False(t, res.Mastered)

	other := f.next(t, sess.ID).Item
	require.NotNil(t, other)
	assert.NotEqual(t, missed.QuestionID, other.QuestionID)
	f.answer(t, other, true)

	// Only the missed question is left and it is still delay-locked.
	f.clock.Advance(44 * time.Second)
	locked := f.next(t, sess.ID)
	assert.True(t, locked.Completed)
	assert.False(t, locked.AllMastered)
	assert.Equal(t, 1, locked.Pending)
	assert.Equal(t, domain.StatusActive, f.session(t, sess.ID).Status)

	f.clock.Advance(time.Second)
	back := f.next(t, sess.ID)
	require.False(t, back.Completed)
	assert.Equal(t, missed.QuestionID, back.Item.QuestionID)
}

func TestNextQuestion_ExampleScenario(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "algebra", "A", "B", "C")
	sess := f.start(t, "algebra")

	first := f.next(t, sess.ID).Item
	f.answer(t, first, false)

	second := f.next(t, sess.ID).Item
	assert.NotEqual(t, first.QuestionID, second.QuestionID)
	f.answer(t, second, true)

	third := f.next(t, sess.ID).Item
	assert.NotContains(t, []string{first.QuestionID, second.QuestionID}, third.QuestionID)
	f.answer(t, third, true)

	res := f.next(t, sess.ID)
	assert.True(t, res.Completed, "nothing eligible while the missed question is delayed")
	assert.False(t, res.AllMastered)

	stored := f.session(t, sess.ID)
	assert.Equal(t, 3, stored.QuestionsAnswered)
	assert.Equal(t, 2, stored.CorrectAnswers)
	assert.Equal(t, 2, stored.QuestionsMastered)
}

func TestSubmitAnswer_UpdatesItem(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "algebra", "a1", "a2")
	sess := f.start(t, "algebra")
	ctx := context.Background()

	item := f.next(t, sess.ID).Item
	before, err := f.db.Queue().FindByID(ctx, item.ID)
	require.NoError(t, err)

	res := f.answer(t, item, false)
	assert.Equal(t, 0, res.CorrectOption)
	assert.Equal(t, "because "+item.QuestionID, res.Explanation)
	assert.Equal(t, 1, res.AttemptNumber)

	after, err := f.db.Queue().FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.TimesWrong)
	assert.Equal(t, before.Priority+5, after.Priority)
	assert.Equal(t, 10, after.AvgTimeSeconds)
	require.NotNil(t, after.NextEligibleAt)
	assert.True(t, after.NextEligibleAt.Equal(f.clock.Now().Add(45*time.Second)))
	assert.Equal(t, before.Version+1, after.Version)
}

func TestSubmitAnswer_MasteryIsTerminal(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "algebra", "a1", "a2")
	sess := f.start(t, "algebra")
	ctx := context.Background()

	item := f.next(t, sess.ID).Item
	assert.True(t, f.answer(t, item, true).Mastered)

	for i := 0; i < 3; i++ {
		res := f.answer(t, item, false)
		assert.True(t, res.Mastered)
	}

	stored, err := f.db.Queue().FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsMastered)
	assert.Equal(t, SentinelPriority, stored.Priority)
	assert.Nil(t, stored.NextEligibleAt)

	sessAfter := f.session(t, sess.ID)
	assert.Equal(t, 1, sessAfter.QuestionsMastered, "mastery is counted once")
	assert.Equal(t, 4, sessAfter.QuestionsAnswered)
}

func TestSubmitAnswer_AttemptNumbering(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "algebra", "a1", "a2")
	sess := f.start(t, "algebra")
	ctx := context.Background()

	item := f.next(t, sess.ID).Item
	var got []int
	for _, correct := range []bool{false, false, true} {
		got = append(got, f.answer(t, item, correct).AttemptNumber)
		f.clock.Advance(time.Minute)
	}
	assert.Equal(t, []int{1, 2, 3}, got)

	records, err := f.db.Answers().ListBySession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, i+1, r.AttemptNumber)
		assert.Equal(t, item.QuestionID, r.QuestionID)
	}
}

func TestSubmitAnswer_Idempotent(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "algebra", "a1", "a2")
	sess := f.start(t, "algebra")
	ctx := context.Background()
	item := f.next(t, sess.ID).Item

	in := AnswerInput{
		SessionID:      sess.ID,
		ItemID:         item.ID,
		QuestionID:     item.QuestionID,
		SelectedOption: 0,
		SubmissionID:   "client-key-1",
	}
	first, err := f.sched.SubmitAnswer(ctx, in)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.sched.SubmitAnswer(ctx, in)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Correct, second.Correct)
	assert.Equal(t, first.AttemptNumber, second.AttemptNumber)
	assert.True(t, second.Mastered)

	stored := f.session(t, sess.ID)
	assert.Equal(t, 1, stored.QuestionsAnswered)
	assert.Equal(t, 1, stored.CorrectAnswers)
	assert.Equal(t, 1, stored.QuestionsMastered)
}

func TestSubmitAnswer_SubmissionIDBoundToItem(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "algebra", "a1", "a2")
	sess := f.start(t, "algebra")
	ctx := context.Background()
	first := f.next(t, sess.ID).Item
	second := f.next(t, sess.ID).Item
	require.NotEqual(t, first.ID, second.ID)

	_, err := f.sched.SubmitAnswer(ctx, AnswerInput{
		SessionID:    sess.ID,
		ItemID:       first.ID,
		QuestionID:   first.QuestionID,
		SubmissionID: "key-1",
	})
	require.NoError(t, err)

	_, err = f.sched.SubmitAnswer(ctx, AnswerInput{
		SessionID:    sess.ID,
		ItemID:       second.ID,
		QuestionID:   second.QuestionID,
		SubmissionID: "key-1",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.sched.SubmitAnswer(ctx, AnswerInput{
		SessionID:    sess.ID,
		ItemID:       first.ID,
		QuestionID:   second.QuestionID,
		SubmissionID: "key-1",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	stored := f.session(t, sess.ID)
	assert.Equal(t, 1, stored.QuestionsAnswered)
}

func TestSubmitAnswer_ConcurrentOnOneItem(t *testing.T) {
	db, err := storage.Open(storage.DriverSQLite, filepath.Join(t.TempDir(), "marathon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	seed(t, db, "algebra", "a1", "a2")

	sched := New(storesFor(db), logger.Nop(), WithRand(rand.New(rand.NewPCG(1, 2))))
	ctx := context.Background()
	sess, err := sched.StartSession(ctx, "user-1", []string{"algebra"}, "")
	require.NoError(t, err)
	next, err := sched.NextQuestion(ctx, sess.ID)
	require.NoError(t, err)
	item := next.Item
	require.NotNil(t, item)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	attempts := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := sched.SubmitAnswer(ctx, AnswerInput{
				SessionID:        sess.ID,
				ItemID:           item.ID,
				QuestionID:       item.QuestionID,
				SelectedOption:   1,
				TimeTakenSeconds: 5,
				SubmissionID:     fmt.Sprintf("wrong-%d", i),
			})
			errs[i] = err
			if err == nil {
				attempts[i] = res.AttemptNumber
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	sort.Ints(attempts)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, attempts)

	stored, err := db.Sessions().Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, n, stored.QuestionsAnswered)
	assert.Zero(t, stored.CorrectAnswers)

	got, err := db.Queue().FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.TimesWrong)
	assert.Zero(t, got.TimesCorrect)
	assert.False(t, got.IsMastered)
}

func TestSubmitAnswer_NotFound(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "algebra", "a1", "a2")
	one := f.start(t, "algebra")
	two := f.start(t, "algebra")
	ctx := context.Background()
	item := f.next(t, one.ID).Item

	tests := []struct {
		name string
		in   AnswerInput
		want error
	}{
		{"unknown session", AnswerInput{SessionID: "nope", ItemID: item.ID, QuestionID: item.QuestionID}, ErrSessionNotFound},
		{"unknown item", AnswerInput{SessionID: one.ID, ItemID: "nope", QuestionID: item.QuestionID}, ErrNotFound},
		{"item of another session", AnswerInput{SessionID: two.ID, ItemID: item.ID, QuestionID: item.QuestionID}, ErrNotFound},
		{"question mismatch", AnswerInput{SessionID: one.ID, ItemID: item.ID, QuestionID: "other"}, ErrNotFound},
		{"missing ids", AnswerInput{SessionID: one.ID}, ErrInvalidInput},
		{"negative time", AnswerInput{SessionID: one.ID, ItemID: item.ID, QuestionID: item.QuestionID, TimeTakenSeconds: -1}, ErrInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.sched.SubmitAnswer(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSubmitAnswer_RetriesStaleUpdate(t *testing.T) {
	db := openTestDB(t)
	seed(t, db, "algebra", "a1", "a2")
	queue := &failingQueue{QueueStore: db.Queue()}
	stores := storesFor(db)
	stores.Queue = queue
	sched := New(stores, logger.Nop())
	ctx := context.Background()

	sess, err := sched.StartSession(ctx, "user-1", []string{"algebra"}, "")
	require.NoError(t, err)
	next, err := sched.NextQuestion(ctx, sess.ID)
	require.NoError(t, err)
	in := AnswerInput{SessionID: sess.ID, ItemID: next.Item.ID, QuestionID: next.Item.QuestionID}

	queue.staleTimes = 2
	res, err := sched.SubmitAnswer(ctx, in)
	require.NoError(t, err)
	assert.True(t, res.Correct)

	queue.staleTimes = 3
	_, err = sched.SubmitAnswer(ctx, in)
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, ErrStorage)

	records, err := db.Answers().ListBySession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1, "failed attempts leave no record")
}

func TestExitSession(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "algebra", "a1", "a2")
	sess := f.start(t, "algebra")
	ctx := context.Background()
	item := f.next(t, sess.ID).Item

	exited, err := f.sched.ExitSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExited, exited.Status)
	require.NotNil(t, exited.CompletedAt)

	again, err := f.sched.ExitSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExited, again.Status)
	assert.True(t, again.CompletedAt.Equal(*exited.CompletedAt))

	_, err = f.sched.NextQuestion(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotActive)

	_, err = f.sched.SubmitAnswer(ctx, AnswerInput{SessionID: sess.ID, ItemID: item.ID, QuestionID: item.QuestionID})
	assert.ErrorIs(t, err, ErrSessionNotActive)

	_, err = f.sched.ExitSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sched.NextQuestion(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.sched.GetSummary(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.sched.GetSession(ctx, "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetSummary(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "algebra", "a1", "a2", "a3")
	sess := f.start(t, "algebra")
	ctx := context.Background()

	empty, err := f.sched.GetSummary(ctx, sess.ID)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalAttempts)
	assert.Zero(t, empty.Accuracy)
	assert.Zero(t, empty.AvgTimeSeconds)

	item := f.next(t, sess.ID).Item
	f.answer(t, item, false)
	f.answer(t, item, true)
	other := f.next(t, sess.ID).Item
	f.answer(t, other, true)

	summary, err := f.sched.GetSummary(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalAttempts)
	assert.Equal(t, 2, summary.CorrectAttempts)
	assert.Equal(t, 67, summary.Accuracy)
	assert.Equal(t, 10.0, summary.AvgTimeSeconds)
	assert.Equal(t, 3, summary.TotalQuestions)
	assert.Equal(t, 2, summary.Mastered)
}
