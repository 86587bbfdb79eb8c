package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"nesugoshipanic/internal/model"
	"nesugoshipanic/internal/repository"
	"nesugoshipanic/internal/token"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// fakeSessionRepo is an in-memory SessionRepo with the same contract as the
// Mongo one: atomic create on _id, partial $set updates.
type fakeSessionRepo struct {
	docs map[string]*model.Session
	// rejectCreates makes the next n Create calls fail as duplicates,
	// regardless of the candidate ID.
	rejectCreates int
	creates       int
	updates       int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{docs: map[string]*model.Session{}}
}

func (r *fakeSessionRepo) Get(ctx context.Context, gameID string) (*model.Session, error) {
	doc, ok := r.docs[gameID]
	if !ok {
		return nil, nil
	}
	copied := *doc
	return &copied, nil
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *model.Session) error {
	r.creates++
	if r.rejectCreates > 0 {
		r.rejectCreates--
		return repository.ErrDuplicateID
	}
	if _, exists := r.docs[session.GameID]; exists {
		return repository.ErrDuplicateID
	}
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	copied := *session
	r.docs[session.GameID] = &copied
	return nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, gameID string, fields bson.M) error {
	doc, ok := r.docs[gameID]
	if !ok {
		return repository.ErrNoDocument
	}
	r.updates++
	for k, v := range fields {
		switch k {
		case "stage1Completed":
			doc.Stage1Completed = v.(bool)
		case "stage2Completed":
			doc.Stage2Completed = v.(bool)
		case "stage3Completed":
			doc.Stage3Completed = v.(bool)
		case "stage1Score":
			doc.Stage1Score = v.(int)
		case "stage2Score":
			doc.Stage2Score = v.(int)
		case "stage3Score":
			doc.Stage3Score = v.(int)
		case "score":
			doc.Score = v.(int)
		case "totalScore":
			doc.TotalScore = v.(int)
		case "stage3Id":
			doc.Stage3ID = v.(string)
		}
	}
	doc.UpdatedAt = time.Now()
	return nil
}

func (r *fakeSessionRepo) FindRootByOwner(ctx context.Context, lineUserID string) (*model.Session, error) {
	for _, doc := range r.docs {
		if doc.LineUserID == lineUserID && doc.Stage == 1 {
			copied := *doc
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) TopCompleted(ctx context.Context, limit int) ([]*model.Session, error) {
	var out []*model.Session
	for _, doc := range r.docs {
		if doc.Stage3Completed && doc.TotalScore > 0 {
			copied := *doc
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalScore > out[j].TotalScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeUserRepo struct {
	docs map[string]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{docs: map[string]*model.User{}}
}

func (r *fakeUserRepo) Get(ctx context.Context, lineUserID string) (*model.User, error) {
	doc, ok := r.docs[lineUserID]
	if !ok {
		return nil, nil
	}
	copied := *doc
	return &copied, nil
}

func (r *fakeUserRepo) Merge(ctx context.Context, lineUserID string, fields bson.M) error {
	doc, ok := r.docs[lineUserID]
	if !ok {
		doc = &model.User{LineUserID: lineUserID}
		r.docs[lineUserID] = doc
	}
	for k, v := range fields {
		switch k {
		case "email":
			doc.Email = v.(string)
		case "lastGeneratedGameId":
			doc.LastGameID = v.(string)
		case "lastActivity":
			doc.LastActivity = v.(time.Time)
		}
	}
	return nil
}

type fakeLeaderboard struct {
	scores map[string]int
}

func newFakeLeaderboard() *fakeLeaderboard {
	return &fakeLeaderboard{scores: map[string]int{}}
}

func (l *fakeLeaderboard) SetScore(ctx context.Context, gameID string, totalScore int) error {
	l.scores[gameID] = totalScore
	return nil
}

func (l *fakeLeaderboard) Rank(ctx context.Context, gameID string) (int64, error) {
	if _, ok := l.scores[gameID]; !ok {
		return -1, nil
	}
	rank := int64(1)
	for id, score := range l.scores {
		if id != gameID && score > l.scores[gameID] {
			rank++
		}
	}
	return rank, nil
}

type fakeNotifier struct {
	stage3Issued []string
	completed    []string
}

func (n *fakeNotifier) NotifyStage3Issued(ctx context.Context, lineUserID, stage3ID string, subtotal int) error {
	n.stage3Issued = append(n.stage3Issued, stage3ID)
	return nil
}

func (n *fakeNotifier) NotifyCompleted(ctx context.Context, lineUserID string, result *Stage3Result) error {
	n.completed = append(n.completed, lineUserID)
	return nil
}

type testEnv struct {
	svc      *GameService
	sessions *fakeSessionRepo
	users    *fakeUserRepo
	lb       *fakeLeaderboard
	notifier *fakeNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gen, err := token.NewGenerator("", 0)
	require.NoError(t, err)

	env := &testEnv{
		sessions: newFakeSessionRepo(),
		users:    newFakeUserRepo(),
		lb:       newFakeLeaderboard(),
		notifier: &fakeNotifier{},
	}
	mailer := NewMailer("", 0, "", "", "", zerolog.Nop())
	env.svc = NewGameService(env.sessions, env.users, env.lb, gen, mailer,
		"https://stage1.example", "https://stage3.example", zerolog.Nop())
	env.svc.SetNotifier(env.notifier)
	return env
}

func (e *testEnv) seedRoot(gameID, owner string, score int) *model.Session {
	root := &model.Session{GameID: gameID, LineUserID: owner, Stage: 1, Score: score}
	e.sessions.docs[gameID] = root
	return root
}

func TestIssueRootID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.IssueRootID(ctx, "U1")
	require.NoError(t, err)

	assert.Len(t, session.GameID, token.DefaultLength)
	assert.Equal(t, 1, session.Stage)
	assert.False(t, session.Stage1Completed)
	assert.False(t, session.Stage2Completed)
	assert.False(t, session.Stage3Completed)
	assert.Zero(t, session.Score)

	user := env.users.docs["U1"]
	require.NotNil(t, user)
	assert.Equal(t, session.GameID, user.LastGameID)
	assert.False(t, user.LastActivity.IsZero())
}

func TestIssueRootID_ReusesExistingSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.IssueRootID(ctx, "U1")
	require.NoError(t, err)
	second, err := env.svc.IssueRootID(ctx, "U1")
	require.NoError(t, err)

	assert.Equal(t, first.GameID, second.GameID, "re-issuing must not orphan the live session")
	assert.Len(t, env.sessions.docs, 1)
}

func TestIssueRootID_EmptyUser(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.IssueRootID(context.Background(), "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAllocate_RetriesOnCollision(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.rejectCreates = 3

	session, err := env.svc.IssueRootID(context.Background(), "U1")
	require.NoError(t, err)
	assert.NotEmpty(t, session.GameID)
	assert.Equal(t, 4, env.sessions.creates, "three collisions then one accepted insert")
}

func TestAllocate_Exhausted(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.rejectCreates = maxAllocAttempts

	_, err := env.svc.IssueRootID(context.Background(), "U1")
	assert.ErrorIs(t, err, ErrAllocationExhausted)
}

func TestCompleteStage2(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedRoot("AB1", "U1", 0)

	result, err := env.svc.CompleteStage2(ctx, "AB1", 300)
	require.NoError(t, err)
	require.NotEmpty(t, result.Stage3ID)
	assert.Equal(t, 300, result.Subtotal)
	assert.False(t, result.Replayed)

	root := env.sessions.docs["AB1"]
	assert.True(t, root.Stage2Completed)
	assert.Equal(t, 300, root.Stage2Score)
	assert.Equal(t, result.Stage3ID, root.Stage3ID)

	derived := env.sessions.docs[result.Stage3ID]
	require.NotNil(t, derived, "exactly one derived record must exist")
	assert.Equal(t, 3, derived.Stage)
	assert.Equal(t, "AB1", derived.OriginalGameID)
	assert.Equal(t, "U1", derived.LineUserID)
	assert.False(t, derived.Stage3Completed)

	assert.Equal(t, []string{result.Stage3ID}, env.notifier.stage3Issued)
}

func TestCompleteStage2_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CompleteStage2(context.Background(), "ZZZ", 100)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, env.sessions.docs, "a failed notification must not mutate the store")
	assert.Zero(t, env.sessions.creates)
}

func TestCompleteStage2_ReplayIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedRoot("AB1", "U1", 0)

	first, err := env.svc.CompleteStage2(ctx, "AB1", 300)
	require.NoError(t, err)

	creates := env.sessions.creates
	second, err := env.svc.CompleteStage2(ctx, "AB1", 999)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Stage3ID, second.Stage3ID)
	assert.Equal(t, 300, env.sessions.docs["AB1"].Stage2Score, "the replayed score must not overwrite")
	assert.Equal(t, creates, env.sessions.creates)
	assert.Len(t, env.notifier.stage3Issued, 1, "no re-notification on replay")
}

func TestCompleteStage2_RedeliveryFinishesAllocation(t *testing.T) {
	// First delivery crashed after the stage-2 write: the flag and score are
	// recorded but no derived record was ever minted.
	env := newTestEnv(t)
	ctx := context.Background()
	root := env.seedRoot("AB1", "U1", 0)
	root.Stage2Completed = true
	root.Stage2Score = 300

	result, err := env.svc.CompleteStage2(ctx, "AB1", 999)
	require.NoError(t, err)
	assert.True(t, result.Replayed)
	require.NotEmpty(t, result.Stage3ID, "the redelivery must hand out a usable stage-3 id")
	assert.Equal(t, 300, result.Subtotal, "the recorded score wins over the redelivered one")

	assert.Equal(t, 300, env.sessions.docs["AB1"].Stage2Score)
	assert.Equal(t, result.Stage3ID, env.sessions.docs["AB1"].Stage3ID)

	derived := env.sessions.docs[result.Stage3ID]
	require.NotNil(t, derived)
	assert.Equal(t, "AB1", derived.OriginalGameID)
}

func TestCompleteStage3_AggregatesOntoRoot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedRoot("AB1", "U1", 1250)
	env.sessions.docs["Z9Q"] = &model.Session{
		GameID: "Z9Q", LineUserID: "U1", Stage: 3, OriginalGameID: "AB1",
	}

	result, err := env.svc.CompleteStage3(ctx, "Z9Q", 150)
	require.NoError(t, err)
	assert.Equal(t, 1400, result.TotalScore)
	assert.Equal(t, 150, result.Stage3Score)
	assert.Equal(t, 1250, result.Subtotal)
	assert.False(t, result.Replayed)

	derived := env.sessions.docs["Z9Q"]
	assert.True(t, derived.Stage3Completed)
	assert.Equal(t, 150, derived.Stage3Score)

	root := env.sessions.docs["AB1"]
	assert.True(t, root.Stage3Completed)
	assert.Equal(t, 1400, root.TotalScore, "leaderboard reads the root record")
	assert.Equal(t, "Z9Q", root.Stage3ID)

	assert.Equal(t, 1400, env.lb.scores["AB1"])
	assert.Equal(t, []string{"U1"}, env.notifier.completed)
}

func TestCompleteStage3_WithoutRootLink(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.docs["Q2W"] = &model.Session{GameID: "Q2W", LineUserID: "U1", Stage: 3}

	result, err := env.svc.CompleteStage3(context.Background(), "Q2W", 150)
	require.NoError(t, err)
	assert.Equal(t, 150, result.TotalScore, "total degrades to the stage-3 score")
}

func TestCompleteStage3_NotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CompleteStage3(context.Background(), "ZZZ", 150)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteStage3_ReplayIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedRoot("AB1", "U1", 1250)
	env.sessions.docs["Z9Q"] = &model.Session{
		GameID: "Z9Q", LineUserID: "U1", Stage: 3, OriginalGameID: "AB1",
	}

	first, err := env.svc.CompleteStage3(ctx, "Z9Q", 150)
	require.NoError(t, err)

	updates := env.sessions.updates
	second, err := env.svc.CompleteStage3(ctx, "Z9Q", 999)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.TotalScore, second.TotalScore)
	assert.Equal(t, updates, env.sessions.updates, "replay must not write")
	assert.Len(t, env.notifier.completed, 1, "no re-notification on replay")
}

func TestCompleteStage3_RedeliveryRepairsRootAggregation(t *testing.T) {
	// First delivery crashed between the derived write and the root
	// aggregation: the derived record is complete, the root untouched.
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedRoot("AB1", "U1", 1250)
	env.sessions.docs["Z9Q"] = &model.Session{
		GameID: "Z9Q", LineUserID: "U1", Stage: 3, OriginalGameID: "AB1",
		Stage3Completed: true, Stage3Score: 150,
	}

	result, err := env.svc.CompleteStage3(ctx, "Z9Q", 150)
	require.NoError(t, err)
	assert.True(t, result.Replayed)
	assert.Equal(t, 1400, result.TotalScore)

	root := env.sessions.docs["AB1"]
	assert.True(t, root.Stage3Completed, "the redelivery must finish the aggregation")
	assert.Equal(t, 1400, root.TotalScore)
	assert.Equal(t, "Z9Q", root.Stage3ID)
	assert.Equal(t, 1400, env.lb.scores["AB1"])
}

func TestUpdateProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedRoot("AB1", "U1", 0)

	score := 700
	require.NoError(t, env.svc.UpdateProgress(ctx, "AB1", 1, &score, true))
	root := env.sessions.docs["AB1"]
	assert.True(t, root.Stage1Completed)
	assert.Equal(t, 700, root.Score)

	assert.ErrorIs(t, env.svc.UpdateProgress(ctx, "", 1, nil, true), ErrValidation)
	assert.ErrorIs(t, env.svc.UpdateProgress(ctx, "AB1", 4, nil, true), ErrValidation)
	assert.ErrorIs(t, env.svc.UpdateProgress(ctx, "ZZZ", 1, nil, true), ErrNotFound)
}

func TestVerifyStage3ID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedRoot("AB1", "U1", 0)
	env.sessions.docs["Z9Q"] = &model.Session{GameID: "Z9Q", Stage: 3, OriginalGameID: "AB1"}

	session, err := env.svc.VerifyStage3ID(ctx, "Z9Q")
	require.NoError(t, err)
	assert.Equal(t, "AB1", session.OriginalGameID)

	_, err = env.svc.VerifyStage3ID(ctx, "AB1")
	assert.ErrorIs(t, err, ErrNotStage3)

	_, err = env.svc.VerifyStage3ID(ctx, "ZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDebugAdvanceStage3(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedRoot("AB1", "U1", 0)
	env.users.docs["U1"] = &model.User{LineUserID: "U1", LastGameID: "AB1"}

	derived, mailed, err := env.svc.DebugAdvanceStage3(ctx, "U1")
	require.NoError(t, err)
	assert.False(t, mailed, "no SMTP configured in tests")

	root := env.sessions.docs["AB1"]
	assert.True(t, root.Stage1Completed)
	assert.True(t, root.Stage2Completed)
	assert.Equal(t, 500, root.Stage1Score)
	assert.Equal(t, 750, root.Stage2Score)
	assert.Equal(t, 1250, root.Score)

	assert.Equal(t, "AB1", derived.OriginalGameID)
	assert.Equal(t, derived.GameID, env.users.docs["U1"].LastGameID)
}

func TestDebugAdvanceStage3_NoSession(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.svc.DebugAdvanceStage3(context.Background(), "U1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owners := []string{"U1", "U2", "U3", "U4", "U5", "U6"}
	ids := []string{"AA1", "BB2", "CC3", "DD4", "EE5", "FF6"}
	scores := []int{100, 600, 300, 500, 200, 400}
	for i := range ids {
		env.sessions.docs[ids[i]] = &model.Session{
			GameID: ids[i], LineUserID: owners[i], Stage: 1,
			Stage3Completed: true, TotalScore: scores[i],
		}
	}

	entries, err := env.svc.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 5, "top-5 only")

	assert.Equal(t, "BB2", entries[0].GameID)
	assert.Equal(t, 1, entries[0].Rank)
	for i := 1; i < len(entries); i++ {
		assert.GreaterOrEqual(t, entries[i-1].TotalScore, entries[i].TotalScore,
			"scores must be non-increasing")
	}
}

func TestLeaderboard_Empty(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot("AB1", "U1", 1250) // in progress, not completed

	_, err := env.svc.Leaderboard(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNoRankings)
}

func TestIssueForLogin_RequiresEmail(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.IssueForLogin(context.Background(), "U1", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIssueForLogin_StoresEmailAndIssues(t *testing.T) {
	env := newTestEnv(t)

	session, err := env.svc.IssueForLogin(context.Background(), "U1", "u1@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, session.GameID)
	assert.Equal(t, "u1@example.com", env.users.docs["U1"].Email)
}
