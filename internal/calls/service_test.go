package calls

import (
	"context"
	"errors"
	"testing"
	"time"

	"paircall-platform/internal/chat"
	"paircall-platform/internal/coins"
	"paircall-platform/internal/rbac"
	"paircall-platform/internal/settings"
	"paircall-platform/internal/users"
)

const (
	testPrice    int64 = 500
	testDuration       = 300
)

type capturePublisher struct {
	events []Event
}

func (p *capturePublisher) Publish(ctx context.Context, e Event) {
	p.events = append(p.events, e)
}

type fixture struct {
	svc       *Service
	store     *MemoryStore
	coinStore *coins.MemoryStore
	pub       *capturePublisher
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := users.NewMemoryDirectory(
		users.User{ID: "member-1", Role: rbac.RoleMember, DisplayName: "Member One"},
		users.User{ID: "creator-1", Role: rbac.RoleCreator, DisplayName: "Creator One"},
		users.User{ID: "creator-2", Role: rbac.RoleCreator, DisplayName: "Creator Two"},
	)
	chats := chat.NewMemoryFinder()
	chats.AddActive("chat-1", "member-1", "creator-1")
	chats.AddActive("chat-2", "member-1", "creator-2")

	coinStore := coins.NewMemoryStore()
	coinStore.Seed(coins.Account{UserID: "member-1", Balance: 1200})
	coinStore.Seed(coins.Account{UserID: "creator-1", Balance: 0})
	coinStore.Seed(coins.Account{UserID: "creator-2", Balance: 0})

	f := &fixture{
		store:     NewMemoryStore(),
		coinStore: coinStore,
		pub:       &capturePublisher{},
		now:       time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC),
	}

	coinSvc := coins.NewService(coinStore, nil, 0)
	settingsSvc := settings.NewService(settings.NewMemoryRepo(), testPrice, testDuration)

	f.svc = NewService(f.store, coinSvc, dir, chats, settingsSvc, nil, f.pub)
	f.svc.clock = func() time.Time { return f.now }
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) balance(t *testing.T, userID string) coins.Account {
	t.Helper()
	a, err := f.coinStore.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("get account %s: %v", userID, err)
	}
	return a
}

func TestInitiateLocksCoinsAndRings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l, err := f.svc.Initiate(ctx, "member-1", "creator-1")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if l.Status != StatusRinging || l.BillingStatus != BillingLocked {
		t.Fatalf("got status=%s billing=%s, want ringing/locked", l.Status, l.BillingStatus)
	}
	if l.ChatID != "chat-1" || l.CoinAmount != testPrice || l.CallDurationSeconds != testDuration {
		t.Fatalf("ledger not frozen from settings: %+v", l)
	}

	caller := f.balance(t, "member-1")
	if caller.Balance != 1200-testPrice || caller.LockedBalance != testPrice {
		t.Fatalf("caller account after lock: %+v", caller)
	}
	if !caller.OnCall {
		t.Fatal("caller not flagged on-call")
	}
	if !f.balance(t, "creator-1").OnCall {
		t.Fatal("receiver not flagged on-call")
	}
}

func TestInitiateRejectsInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.coinStore.Seed(coins.Account{UserID: "member-1", Balance: testPrice - 1})

	_, err := f.svc.Initiate(context.Background(), "member-1", "creator-1")
	if !errors.Is(err, ErrInsufficientCoins) {
		t.Fatalf("got %v, want ErrInsufficientCoins", err)
	}
	if Classify(err) != ClassBadRequest {
		t.Fatalf("classified as %v, want bad request", Classify(err))
	}
}

func TestInitiateRejectsWrongRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Initiate(ctx, "creator-1", "member-1"); !errors.Is(err, ErrRoleMismatch) {
		t.Fatalf("creator as caller: got %v, want ErrRoleMismatch", err)
	}
	if _, err := f.svc.Initiate(ctx, "member-1", "member-1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("self call: got %v, want ErrUserNotFound", err)
	}
}

func TestInitiateRejectsBusyParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Initiate(ctx, "member-1", "creator-1"); err != nil {
		t.Fatalf("first initiate: %v", err)
	}
	_, err := f.svc.Initiate(ctx, "member-1", "creator-2")
	if !errors.Is(err, ErrAlreadyOnCall) {
		t.Fatalf("second initiate while busy: got %v, want ErrAlreadyOnCall", err)
	}
	// The failed request must not have touched the second creator.
	if f.balance(t, "creator-2").OnCall {
		t.Fatal("bystander flagged on-call by rejected request")
	}
}

func TestAcceptOnlyFromRinging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l, err := f.svc.Initiate(ctx, "member-1", "creator-1")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	accepted, err := f.svc.Accept(ctx, l.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != StatusAccepted || accepted.AcceptedAt == nil {
		t.Fatalf("after accept: %+v", accepted)
	}

	if _, err := f.svc.Accept(ctx, l.ID); !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("double accept: got %v, want ErrAlreadyAnswered", err)
	}
}

// Scenario: the full happy path. Coins move exactly once, the receiver is
// credited at connect time, and the charged call never refunds.
func TestConnectedCallChargesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l, err := f.svc.Initiate(ctx, "member-1", "creator-1")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if _, err := f.svc.Accept(ctx, l.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	connected, first, err := f.svc.Connect(ctx, l.ID)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !first {
		t.Fatal("first connect reported first=false")
	}
	if connected.Status != StatusConnected || connected.BillingStatus != BillingCharged {
		t.Fatalf("after connect: status=%s billing=%s", connected.Status, connected.BillingStatus)
	}
	if f.balance(t, "creator-1").Balance != testPrice {
		t.Fatalf("receiver balance %d, want %d", f.balance(t, "creator-1").Balance, testPrice)
	}
	if f.balance(t, "member-1").LockedBalance != 0 {
		t.Fatal("caller still has locked coins after settle")
	}

	// Duplicate connect is a no-op.
	again, first, err := f.svc.Connect(ctx, l.ID)
	if err != nil {
		t.Fatalf("duplicate connect: %v", err)
	}
	if first {
		t.Fatal("duplicate connect reported first=true")
	}
	if again.BillingStatus != BillingCharged {
		t.Fatalf("duplicate connect billing %s", again.BillingStatus)
	}
	if f.balance(t, "creator-1").Balance != testPrice {
		t.Fatal("duplicate connect credited the receiver a second time")
	}

	f.advance(time.Duration(testDuration) * time.Second)
	ended, err := f.svc.End(ctx, l.ID, ReasonTimerExpired, "")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.Status != StatusEnded || ended.BillingStatus != BillingCharged {
		t.Fatalf("after end: status=%s billing=%s", ended.Status, ended.BillingStatus)
	}
	if ended.EndedAt == nil || ended.EndReason != ReasonTimerExpired {
		t.Fatalf("end stamp missing: %+v", ended)
	}
	if f.balance(t, "member-1").OnCall || f.balance(t, "creator-1").OnCall {
		t.Fatal("on-call flags survived end")
	}
	if f.balance(t, "member-1").Balance != 1200-testPrice {
		t.Fatal("charged call refunded")
	}
}

// Scenario: the receiver declines during ring. The caller gets every coin
// back and both flags clear.
func TestRejectedCallRefundsCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l, err := f.svc.Initiate(ctx, "member-1", "creator-1")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	ended, err := f.svc.End(ctx, l.ID, ReasonRejected, "creator-1")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.Status != StatusRejected || ended.BillingStatus != BillingRefunded {
		t.Fatalf("after reject: status=%s billing=%s", ended.Status, ended.BillingStatus)
	}

	caller := f.balance(t, "member-1")
	if caller.Balance != 1200 || caller.LockedBalance != 0 {
		t.Fatalf("caller account after refund: %+v", caller)
	}
	if caller.OnCall || f.balance(t, "creator-1").OnCall {
		t.Fatal("on-call flags survived reject")
	}
	if f.balance(t, "creator-1").Balance != 0 {
		t.Fatal("rejected call credited the receiver")
	}

	// Repeat end is idempotent and must not double-refund.
	again, err := f.svc.End(ctx, l.ID, ReasonTimeout, "")
	if err != nil {
		t.Fatalf("repeat end: %v", err)
	}
	if again.Status != StatusRejected {
		t.Fatalf("repeat end changed status to %s", again.Status)
	}
	if f.balance(t, "member-1").Balance != 1200 {
		t.Fatal("repeat end refunded twice")
	}
}

func TestEndReasonMapping(t *testing.T) {
	cases := []struct {
		reason Reason
		status Status
	}{
		{ReasonRejected, StatusRejected},
		{ReasonTimeout, StatusMissed},
		{ReasonCancelled, StatusCancelled},
		{ReasonConnectionFailed, StatusFailed},
		{ReasonCallerEnded, StatusEnded},
	}

	for _, tc := range cases {
		t.Run(string(tc.reason), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			l, err := f.svc.Initiate(ctx, "member-1", "creator-1")
			if err != nil {
				t.Fatalf("initiate: %v", err)
			}
			ended, err := f.svc.End(ctx, l.ID, tc.reason, "")
			if err != nil {
				t.Fatalf("end: %v", err)
			}
			if ended.Status != tc.status {
				t.Fatalf("status %s, want %s", ended.Status, tc.status)
			}
			// Never connected, so coins always come back.
			if ended.BillingStatus != BillingRefunded {
				t.Fatalf("billing %s, want refunded", ended.BillingStatus)
			}
		})
	}
}

// A stray connection_failed arriving after the call connected (or while it is
// interrupted) must not tear the call down or touch billing.
func TestLateConnectionFailedIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l := connectedCall(t, f)

	got, err := f.svc.End(ctx, l.ID, ReasonConnectionFailed, "")
	if err != nil {
		t.Fatalf("late failure: %v", err)
	}
	if got.Status != StatusConnected {
		t.Fatalf("late failure moved status to %s", got.Status)
	}

	if _, err := f.svc.MarkInterrupted(ctx, l.ID, 120); err != nil {
		t.Fatalf("interrupt: %v", err)
	}
	got, err = f.svc.End(ctx, l.ID, ReasonConnectionFailed, "")
	if err != nil {
		t.Fatalf("late failure while interrupted: %v", err)
	}
	if got.Status != StatusInterrupted {
		t.Fatalf("late failure moved interrupted call to %s", got.Status)
	}
}

// Scenario: a participant drops and rejoins within the grace window, but the
// grace timer's expiry lands after the rejoin committed. The stale expiry
// must not end the live call.
func TestStaleGraceExpiryIgnoredAfterRejoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l := connectedCall(t, f)
	if _, err := f.svc.MarkInterrupted(ctx, l.ID, 90); err != nil {
		t.Fatalf("interrupt: %v", err)
	}
	if _, err := f.svc.Rejoin(ctx, l.ID, "member-1"); err != nil {
		t.Fatalf("rejoin: %v", err)
	}

	got, err := f.svc.End(ctx, l.ID, ReasonInterruptionExpired, "")
	if err != nil {
		t.Fatalf("stale expiry: %v", err)
	}
	if got.Status != StatusConnected {
		t.Fatalf("stale expiry moved status to %s", got.Status)
	}
	if got.BillingStatus != BillingCharged {
		t.Fatalf("stale expiry touched billing: %s", got.BillingStatus)
	}
	if !f.balance(t, "member-1").OnCall || !f.balance(t, "creator-1").OnCall {
		t.Fatal("stale expiry cleared on-call flags")
	}
}

// Scenario: duplicate or delayed ring-phase verbs arriving after the call
// connected. None of them may end the established call.
func TestRingPhaseReasonsIgnoredOnceConnected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l := connectedCall(t, f)

	for _, reason := range []Reason{ReasonRejected, ReasonCancelled, ReasonTimeout} {
		got, err := f.svc.End(ctx, l.ID, reason, "creator-1")
		if err != nil {
			t.Fatalf("%s on connected call: %v", reason, err)
		}
		if got.Status != StatusConnected || got.BillingStatus != BillingCharged {
			t.Fatalf("%s on connected call: status=%s billing=%s", reason, got.Status, got.BillingStatus)
		}
	}
}

// Scenario: mid-call drop, rejoin within the grace window, then the same
// participant drops again and has no rejoin left.
func TestInterruptionAndRejoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l := connectedCall(t, f)

	interrupted, err := f.svc.MarkInterrupted(ctx, l.ID, 42)
	if err != nil {
		t.Fatalf("interrupt: %v", err)
	}
	if interrupted.Status != StatusInterrupted || interrupted.RemainingSeconds != 42 {
		t.Fatalf("after interrupt: %+v", interrupted)
	}
	if f.balance(t, "member-1").OnCall {
		t.Fatal("on-call flag survived interruption")
	}

	rejoined, err := f.svc.Rejoin(ctx, l.ID, "member-1")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if rejoined.Status != StatusConnected || rejoined.RejoinCount != 1 {
		t.Fatalf("after rejoin: %+v", rejoined)
	}
	if rejoined.RemainingSeconds != 42 {
		t.Fatalf("remaining entitlement %d, want 42", rejoined.RemainingSeconds)
	}
	if !f.balance(t, "member-1").OnCall || !f.balance(t, "creator-1").OnCall {
		t.Fatal("on-call flags not restored by rejoin")
	}
	if rejoined.BillingStatus != BillingCharged {
		t.Fatal("rejoin touched billing")
	}

	if _, err := f.svc.MarkInterrupted(ctx, l.ID, 30); err != nil {
		t.Fatalf("second interrupt: %v", err)
	}
	if _, err := f.svc.Rejoin(ctx, l.ID, "member-1"); !errors.Is(err, ErrRejoinUsed) {
		t.Fatalf("second rejoin by same user: got %v, want ErrRejoinUsed", err)
	}

	// The other participant still has theirs.
	if _, err := f.svc.Rejoin(ctx, l.ID, "creator-1"); err != nil {
		t.Fatalf("rejoin by other participant: %v", err)
	}
}

func TestRejoinRequiresInterruptedParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l := connectedCall(t, f)

	if _, err := f.svc.Rejoin(ctx, l.ID, "member-1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("rejoin on connected call: got %v, want ErrInvalidState", err)
	}
	if _, err := f.svc.MarkInterrupted(ctx, l.ID, 60); err != nil {
		t.Fatalf("interrupt: %v", err)
	}
	if _, err := f.svc.Rejoin(ctx, l.ID, "creator-2"); !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("rejoin by stranger: got %v, want ErrCallNotFound", err)
	}
}

// Scenario: a ringing call whose relay died. The sweep ends it as a
// connection failure, refunds the coins and publishes the event.
func TestSweepStaleRefundsAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l, err := f.svc.Initiate(ctx, "member-1", "creator-1")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	f.advance(5 * time.Minute)
	if n, err := f.svc.SweepStale(ctx, 10*time.Minute); err != nil || n != 0 {
		t.Fatalf("early sweep: n=%d err=%v", n, err)
	}

	f.advance(6 * time.Minute)
	n, err := f.svc.SweepStale(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d calls, want 1", n)
	}

	got, err := f.svc.Get(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed || got.BillingStatus != BillingRefunded {
		t.Fatalf("after sweep: status=%s billing=%s", got.Status, got.BillingStatus)
	}
	if f.balance(t, "member-1").Balance != 1200 {
		t.Fatal("sweep did not refund the caller")
	}

	if len(f.pub.events) != 1 || f.pub.events[0].Type != EventSwept {
		t.Fatalf("published events: %+v", f.pub.events)
	}
	if f.pub.events[0].Call.ID != l.ID {
		t.Fatal("sweep event carries wrong call")
	}
}

func TestSweepLeavesConnectedCallsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l := connectedCall(t, f)

	f.advance(time.Hour)
	n, err := f.svc.SweepStale(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("sweep touched %d connected calls", n)
	}
	got, err := f.svc.Get(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusConnected {
		t.Fatalf("connected call swept to %s", got.Status)
	}
}

func TestActiveFor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, ok, err := f.svc.ActiveFor(ctx, "member-1"); err != nil || ok {
		t.Fatalf("active before call: ok=%v err=%v", ok, err)
	}

	l, err := f.svc.Initiate(ctx, "member-1", "creator-1")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	got, ok, err := f.svc.ActiveFor(ctx, "creator-1")
	if err != nil || !ok {
		t.Fatalf("active during ring: ok=%v err=%v", ok, err)
	}
	if got.ID != l.ID {
		t.Fatal("active lookup returned wrong call")
	}

	if _, err := f.svc.End(ctx, l.ID, ReasonCancelled, "member-1"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, ok, _ := f.svc.ActiveFor(ctx, "member-1"); ok {
		t.Fatal("terminal call reported as active")
	}
}

func connectedCall(t *testing.T, f *fixture) Ledger {
	t.Helper()
	ctx := context.Background()

	l, err := f.svc.Initiate(ctx, "member-1", "creator-1")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if _, err := f.svc.Accept(ctx, l.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	got, _, err := f.svc.Connect(ctx, l.ID)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return got
}
