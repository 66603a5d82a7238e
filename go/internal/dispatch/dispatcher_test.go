package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parthhay/deskroguelikeproto/go/clients"
	"github.com/parthhay/deskroguelikeproto/go/clients/roguelike_client"
	"github.com/parthhay/deskroguelikeproto/go/internal/protocol"
	"github.com/parthhay/deskroguelikeproto/go/internal/reconcile"
	"github.com/parthhay/deskroguelikeproto/go/internal/session"
)

type fakePusher struct {
	usable bool
	sent   []interface{}
}

func (p *fakePusher) TrySend(msg interface{}) bool {
	if !p.usable {
		return false
	}
	p.sent = append(p.sent, msg)
	return true
}

type fakeAPI struct {
	mu sync.Mutex

	claimCalls int
	startCalls int
	playCalls  int
	stateCalls int

	claimRes  protocol.ClaimResult
	startSnap *protocol.Snapshot
	playSnap  *protocol.Snapshot
	state     protocol.Snapshot
	stateErr  error
	cmdErr    error

	lastClaimName string
	lastPlay      roguelike_client.PlayCardRequest
}

func (a *fakeAPI) Claim(_ context.Context, name string) (protocol.ClaimResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.claimCalls++
	a.lastClaimName = name
	return a.claimRes, a.cmdErr
}

func (a *fakeAPI) Start(context.Context, int) (*protocol.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.startCalls++
	return a.startSnap, a.cmdErr
}

func (a *fakeAPI) PlayCard(_ context.Context, req roguelike_client.PlayCardRequest) (*protocol.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.playCalls++
	a.lastPlay = req
	return a.playSnap, a.cmdErr
}

func (a *fakeAPI) State(context.Context, int) (protocol.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stateCalls++
	return a.state, a.stateErr
}

func (a *fakeAPI) commandCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.claimCalls + a.startCalls + a.playCalls
}

type countingRefresher struct {
	calls int
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls++
	return nil
}

type nopScheduler struct{}

func (nopScheduler) Schedule(time.Duration) {}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []reconcile.Notice
}

func (n *noticeRecorder) OnView(reconcile.View) {}

func (n *noticeRecorder) OnNotice(notice reconcile.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

type harness struct {
	push      *fakePusher
	api       *fakeAPI
	refresher *countingRefresher
	notices   *noticeRecorder
	loop      *session.Loop
	d         *Dispatcher
}

func newHarness(t *testing.T) (*harness, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	h := &harness{
		push:      &fakePusher{},
		api:       &fakeAPI{},
		refresher: &countingRefresher{},
		notices:   &noticeRecorder{},
		loop:      session.NewLoop(session.NewState()),
	}
	rec := reconcile.New(reconcile.DefaultConfig(), nopScheduler{}, h.notices)
	h.d = New(h.push, h.api, h.loop, rec, h.refresher, protocol.NewCardSet(protocol.DefaultTargetedCards...))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = h.loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return h, ctx
}

// join gives the session an identity and a snapshot with the given enemies.
func (h *harness) join(t *testing.T, ctx context.Context, snap protocol.Snapshot) {
	t.Helper()
	require.NoError(t, h.loop.Do(ctx, func(s *session.State) error {
		s.SetIdentity(protocol.ClaimResult{PlayerID: 1, Token: "tok"})
		s.Snapshot = &snap
		return nil
	}))
}

func (h *harness) state(t *testing.T, ctx context.Context) session.State {
	t.Helper()
	var out session.State
	require.NoError(t, h.loop.Do(ctx, func(s *session.State) error {
		out = *s
		return nil
	}))
	return out
}

func ver(v int64) *int64 { return &v }

func TestFallbackExactness(t *testing.T) {
	h, ctx := newHarness(t)
	h.api.claimRes = protocol.ClaimResult{PlayerID: 1, Token: "tok"}
	h.api.playSnap = &protocol.Snapshot{Ver: ver(2), TurnPlayer: 1}
	h.api.state = protocol.Snapshot{Ver: ver(1), TurnPlayer: 1, Enemies: []protocol.Enemy{{ID: 7}}}

	require.NoError(t, h.d.Claim(ctx, "Ada"))
	assert.Equal(t, 1, h.api.commandCalls())

	require.NoError(t, h.d.StartRun(ctx))
	assert.Equal(t, 2, h.api.commandCalls())

	h.join(t, ctx, h.api.state)
	require.NoError(t, h.d.PlayCard(ctx, "Defend", ""))
	assert.Equal(t, 3, h.api.commandCalls())

	// a targeted card triggers a state read, not a second command
	require.NoError(t, h.d.PlayCard(ctx, "Strike", ""))
	assert.Equal(t, 4, h.api.commandCalls())
	assert.Empty(t, h.push.sent)
}

func TestPushPreferredWhenUsable(t *testing.T) {
	h, ctx := newHarness(t)
	h.push.usable = true
	h.join(t, ctx, protocol.Snapshot{Enemies: []protocol.Enemy{{ID: 7}}})

	require.NoError(t, h.d.Claim(ctx, "Ada"))
	require.NoError(t, h.d.StartRun(ctx))
	require.NoError(t, h.d.PlayCard(ctx, "Strike", "enemy_7"))

	assert.Equal(t, 0, h.api.commandCalls())
	require.Len(t, h.push.sent, 3)
	assert.Equal(t, protocol.NewPlayCardMessage(1, "tok", "Strike", "enemy_7"), h.push.sent[2])
	assert.Equal(t, 0, h.refresher.calls, "push path waits for the pushed state")
}

func TestPlayCard_ResolvesFirstEnemy(t *testing.T) {
	h, ctx := newHarness(t)
	h.join(t, ctx, protocol.Snapshot{TurnPlayer: 1})
	h.api.state = protocol.Snapshot{Ver: ver(4), TurnPlayer: 1, Enemies: []protocol.Enemy{{ID: 7}, {ID: 9}}}

	require.NoError(t, h.d.PlayCard(ctx, "Zap", protocol.TargetNone))

	assert.Equal(t, 1, h.api.stateCalls)
	assert.Equal(t, "enemy_7", h.api.lastPlay.Target)
	assert.Equal(t, "enemy_7", h.state(t, ctx).Target, "resolved target becomes the selection")
}

func TestPlayCard_StaleSelectionIsResolved(t *testing.T) {
	h, ctx := newHarness(t)
	h.join(t, ctx, protocol.Snapshot{TurnPlayer: 1, Enemies: []protocol.Enemy{{ID: 3}}})
	h.api.state = protocol.Snapshot{Ver: ver(4), TurnPlayer: 1, Enemies: []protocol.Enemy{{ID: 9}}}

	require.NoError(t, h.d.PlayCard(ctx, "Strike", "enemy_5"))
	assert.Equal(t, "enemy_9", h.api.lastPlay.Target)
}

func TestPlayCard_StaleResolutionUsesAcceptedSnapshot(t *testing.T) {
	h, ctx := newHarness(t)
	h.join(t, ctx, protocol.Snapshot{Ver: ver(5), TurnPlayer: 1, Enemies: []protocol.Enemy{{ID: 3}}})
	require.NoError(t, h.loop.Do(ctx, func(s *session.State) error {
		s.Poll.LastAppliedVersion = 5
		return nil
	}))
	// the fetch lands behind what the push channel already delivered
	h.api.state = protocol.Snapshot{Ver: ver(4), TurnPlayer: 1, Enemies: []protocol.Enemy{{ID: 9}}}

	require.NoError(t, h.d.PlayCard(ctx, "Strike", ""))

	assert.Equal(t, "enemy_3", h.api.lastPlay.Target)
	st := h.state(t, ctx)
	assert.Equal(t, int64(5), st.Poll.LastAppliedVersion)
	assert.Equal(t, "enemy_3", st.EffectiveTarget(), "selection matches the enemies on screen")
}

func TestPlayCard_NoEnemyToTarget(t *testing.T) {
	h, ctx := newHarness(t)
	h.join(t, ctx, protocol.Snapshot{TurnPlayer: 1})
	h.api.state = protocol.Snapshot{Ver: ver(4), TurnPlayer: 1}

	err := h.d.PlayCard(ctx, "Strike", "")
	assert.True(t, errors.Is(err, ErrNoTargetAvailable))
	assert.Equal(t, 0, h.api.commandCalls(), "nothing sent")
	assert.Empty(t, h.push.sent)
	require.Len(t, h.notices.notices, 1)
	assert.Equal(t, reconcile.NoticeNoTarget, h.notices.notices[0].Kind)
}

func TestPlayCard_ResolutionFetchFailureSendsNothing(t *testing.T) {
	h, ctx := newHarness(t)
	h.join(t, ctx, protocol.Snapshot{TurnPlayer: 1})
	h.api.stateErr = &clients.RequestError{Code: clients.CodeNetworkError}

	err := h.d.PlayCard(ctx, "Strike", "")
	require.Error(t, err)
	assert.Equal(t, 0, h.api.commandCalls())
	assert.Equal(t, 1, h.refresher.calls)
}

func TestPlayCard_UntargetedCardKeepsNone(t *testing.T) {
	h, ctx := newHarness(t)
	h.join(t, ctx, protocol.Snapshot{TurnPlayer: 1})

	require.NoError(t, h.d.PlayCard(ctx, "Defend", ""))
	assert.Equal(t, 0, h.api.stateCalls)
	assert.Equal(t, protocol.TargetNone, h.api.lastPlay.Target)
}

func TestPlayCard_LocalRefusals(t *testing.T) {
	h, ctx := newHarness(t)

	err := h.d.PlayCard(ctx, "Defend", "")
	assert.True(t, errors.Is(err, ErrNotJoined))

	h.join(t, ctx, protocol.Snapshot{RunOver: true})
	err = h.d.PlayCard(ctx, "Defend", "")
	assert.True(t, errors.Is(err, ErrRunOver))

	assert.Equal(t, 0, h.api.commandCalls())
	assert.Equal(t, 0, h.api.stateCalls)
}

func TestPlayCard_FallbackResponseIsReconciled(t *testing.T) {
	h, ctx := newHarness(t)
	h.join(t, ctx, protocol.Snapshot{TurnPlayer: 1})
	h.api.playSnap = &protocol.Snapshot{Ver: ver(8), TurnPlayer: 2}

	require.NoError(t, h.d.PlayCard(ctx, "Defend", ""))

	st := h.state(t, ctx)
	assert.Equal(t, int64(8), st.Poll.LastAppliedVersion)
	assert.Equal(t, 2, st.Snapshot.TurnPlayer)
	assert.Equal(t, 0, h.refresher.calls)
}

func TestCommandFailure(t *testing.T) {
	h, ctx := newHarness(t)
	h.join(t, ctx, protocol.Snapshot{TurnPlayer: 1})
	h.api.cmdErr = &clients.RequestError{Code: "not_your_turn", StatusCode: 409}

	err := h.d.PlayCard(ctx, "Defend", "")
	require.Error(t, err)
	code, ok := clients.ErrorCode(err)
	require.True(t, ok)
	assert.Equal(t, "not_your_turn", code)

	assert.Equal(t, 1, h.refresher.calls, "forced resync")
	require.Len(t, h.notices.notices, 1)
	assert.Equal(t, reconcile.NoticeCommandFailed, h.notices.notices[0].Kind)
	assert.Equal(t, "not_your_turn", h.notices.notices[0].Code)
}

func TestClaimName(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "blank", in: "   ", want: "Player"},
		{name: "long", in: "abcdefghijabcdefghijabcdefghij", want: "abcdefghijabcdefghij"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, ctx := newHarness(t)
			h.api.claimRes = protocol.ClaimResult{PlayerID: 2, Token: "t2", Hand: []string{"Zap"}}

			require.NoError(t, h.d.Claim(ctx, tc.in))
			assert.Equal(t, tc.want, h.api.lastClaimName)

			st := h.state(t, ctx)
			assert.Equal(t, 2, st.Identity.ID())
			assert.Equal(t, []string{"Zap"}, st.ProvisionalHand)
			assert.Equal(t, 1, h.refresher.calls)
		})
	}
}

func TestStartRun_OptimisticHint(t *testing.T) {
	h, ctx := newHarness(t)
	h.push.usable = true
	h.join(t, ctx, protocol.Snapshot{Enemies: []protocol.Enemy{{ID: 7}}})
	_, err := h.d.SelectTarget(ctx, "enemy_7")
	require.NoError(t, err)

	require.NoError(t, h.d.StartRun(ctx))

	st := h.state(t, ctx)
	assert.Equal(t, session.StartLabelRestart, st.Hint.StartLabel)
	assert.Equal(t, protocol.TargetNone, st.Target)
}

func TestStartRun_FailureDropsHint(t *testing.T) {
	h, ctx := newHarness(t)
	h.join(t, ctx, protocol.Snapshot{RunOver: true})
	h.api.cmdErr = &clients.RequestError{Code: "not_host", StatusCode: 403}

	require.Error(t, h.d.StartRun(ctx))

	st := h.state(t, ctx)
	assert.Empty(t, st.Hint.StartLabel)
	assert.Equal(t, 1, h.refresher.calls)
}

func TestStartRun_BodilessResponseRefreshes(t *testing.T) {
	h, ctx := newHarness(t)

	require.NoError(t, h.d.StartRun(ctx))
	assert.Equal(t, 1, h.api.startCalls)
	assert.Equal(t, 1, h.refresher.calls)
}

func TestSelectTarget(t *testing.T) {
	h, ctx := newHarness(t)
	h.join(t, ctx, protocol.Snapshot{Enemies: []protocol.Enemy{{ID: 7}}})

	got, err := h.d.SelectTarget(ctx, "enemy_7")
	require.NoError(t, err)
	assert.Equal(t, "enemy_7", got)

	got, err = h.d.SelectTarget(ctx, "enemy_8")
	require.NoError(t, err)
	assert.Equal(t, protocol.TargetNone, got)

	got, err = h.d.SelectTarget(ctx, "garbage")
	require.NoError(t, err)
	assert.Equal(t, protocol.TargetNone, got)
}
