package calls

import (
	"context"
	"fmt"
	"time"

	"paircall-platform/internal/audit"
	"paircall-platform/internal/chat"
	"paircall-platform/internal/coins"
	"paircall-platform/internal/rbac"
	"paircall-platform/internal/settings"
	"paircall-platform/internal/users"

	"github.com/google/uuid"
)

// CoinLedger is the coin-account surface the lifecycle manager consumes.
// Satisfied by coins.Service.
type CoinLedger interface {
	Balance(ctx context.Context, userID string) (coins.Account, error)
	Lock(ctx context.Context, callID, callerID, receiverID string, amount int64) error
	Settle(ctx context.Context, callID, callerID, receiverID string, amount int64) error
	Refund(ctx context.Context, callID, callerID string, amount int64) error
	ClearOnCall(ctx context.Context, callID string, userIDs ...string) error
	MarkOnCall(ctx context.Context, callID string, userIDs ...string) error
}

// SettingsProvider resolves the current call price sheet.
// Satisfied by settings.Service.
type SettingsProvider interface {
	Current(ctx context.Context) (settings.CallSettings, error)
}

// Service is the call lifecycle manager: pure business logic that validates
// requests, walks the ledger through its state machine and runs the
// lock/charge/refund billing protocol. It owns no timers and knows nothing
// about the transport; the signaling relay drives it and schedules around it.
type Service struct {
	store    Store
	coins    CoinLedger
	users    users.Directory
	chats    chat.Finder
	settings SettingsProvider
	audit    *audit.Service
	pub      Publisher
	clock    func() time.Time
}

func NewService(store Store, coinLedger CoinLedger, dir users.Directory, chats chat.Finder, sp SettingsProvider, aud *audit.Service, pub Publisher) *Service {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Service{
		store:    store,
		coins:    coinLedger,
		users:    dir,
		chats:    chats,
		settings: sp,
		audit:    aud,
		pub:      pub,
		clock:    time.Now,
	}
}

// SetPublisher late-binds the transition publisher. The relay consumes this
// service and also subscribes to it, so wiring happens in two steps.
func (s *Service) SetPublisher(p Publisher) {
	if p != nil {
		s.pub = p
	}
}

// ValidatedRequest is the outcome of a successful pre-flight check, carrying
// the values that will be frozen onto the ledger at creation time.
type ValidatedRequest struct {
	ChatID          string
	CoinPrice       int64
	DurationSeconds int
}

// ValidateRequest runs the read-only pre-flight checks for a call request.
// It mutates nothing; Initiate re-validates and then locks atomically.
func (s *Service) ValidateRequest(ctx context.Context, callerID, receiverID string) (ValidatedRequest, error) {
	if callerID == "" || receiverID == "" || callerID == receiverID {
		return ValidatedRequest{}, ErrUserNotFound
	}

	caller, ok, err := s.users.Find(ctx, callerID)
	if err != nil {
		return ValidatedRequest{}, fmt.Errorf("calls: caller lookup: %w", err)
	}
	if !ok {
		return ValidatedRequest{}, ErrUserNotFound
	}
	receiver, ok, err := s.users.Find(ctx, receiverID)
	if err != nil {
		return ValidatedRequest{}, fmt.Errorf("calls: receiver lookup: %w", err)
	}
	if !ok {
		return ValidatedRequest{}, ErrUserNotFound
	}

	if !rbac.CanSpend(caller.Role) || !rbac.CanEarn(receiver.Role) {
		return ValidatedRequest{}, ErrRoleMismatch
	}

	callerAcct, err := s.coins.Balance(ctx, callerID)
	if err != nil {
		return ValidatedRequest{}, fmt.Errorf("calls: caller account: %w", err)
	}
	receiverAcct, err := s.coins.Balance(ctx, receiverID)
	if err != nil {
		return ValidatedRequest{}, fmt.Errorf("calls: receiver account: %w", err)
	}
	if callerAcct.OnCall || receiverAcct.OnCall {
		return ValidatedRequest{}, ErrAlreadyOnCall
	}

	chatID, ok, err := s.chats.FindActiveBetween(ctx, callerID, receiverID)
	if err != nil {
		return ValidatedRequest{}, fmt.Errorf("calls: chat lookup: %w", err)
	}
	if !ok {
		return ValidatedRequest{}, ErrNoActiveChat
	}

	cur, err := s.settings.Current(ctx)
	if err != nil {
		return ValidatedRequest{}, fmt.Errorf("calls: settings lookup: %w", err)
	}
	if callerAcct.Balance < cur.CoinPrice {
		return ValidatedRequest{}, ErrInsufficientCoins
	}

	return ValidatedRequest{
		ChatID:          chatID,
		CoinPrice:       cur.CoinPrice,
		DurationSeconds: cur.DurationSeconds,
	}, nil
}

// Initiate re-validates, locks coins via a single conditional update and only
// then creates the ledger row (status=ringing, billing=locked).
//
// ErrCoinLockFailed is a clean rejection, not a retryable error: the
// conditional update matched zero rows because a concurrent call or balance
// change won the race, and nothing moved.
func (s *Service) Initiate(ctx context.Context, callerID, receiverID string) (Ledger, error) {
	vr, err := s.ValidateRequest(ctx, callerID, receiverID)
	if err != nil {
		return Ledger{}, err
	}

	id := uuid.NewString()
	if err := s.coins.Lock(ctx, id, callerID, receiverID, vr.CoinPrice); err != nil {
		return Ledger{}, ErrCoinLockFailed
	}

	l := Ledger{
		ID:                  id,
		CallerID:            callerID,
		ReceiverID:          receiverID,
		ChatID:              vr.ChatID,
		Status:              StatusRinging,
		BillingStatus:       BillingLocked,
		CoinAmount:          vr.CoinPrice,
		CallDurationSeconds: vr.DurationSeconds,
		RemainingSeconds:    vr.DurationSeconds,
		RequestedAt:         s.clock().UTC(),
	}
	if err := s.store.Create(ctx, l); err != nil {
		// Compensate: coins are locked but no ledger row exists to reconcile
		// against, so undo the lock before surfacing the failure.
		_ = s.coins.Refund(ctx, id, callerID, vr.CoinPrice)
		_ = s.coins.ClearOnCall(ctx, id, callerID, receiverID)
		return Ledger{}, fmt.Errorf("calls: create ledger: %w", err)
	}

	_ = s.audit.LogCall(ctx, audit.EventTypeCallCreated, id, callerID, "call requested, coins locked")
	return l, nil
}

// Accept transitions ringing -> accepted. Any other current status reports
// the call as already answered.
func (s *Service) Accept(ctx context.Context, callID string) (Ledger, error) {
	l, err := s.store.Get(ctx, callID)
	if err != nil {
		return Ledger{}, err
	}
	if l.Status != StatusRinging {
		return Ledger{}, ErrAlreadyAnswered
	}

	now := s.clock().UTC()
	l.Status = StatusAccepted
	l.AcceptedAt = &now

	ok, err := s.store.Update(ctx, l, StatusRinging)
	if err != nil {
		return Ledger{}, err
	}
	if !ok {
		return Ledger{}, ErrAlreadyAnswered
	}
	return l, nil
}

// Connect executes the billing charge exactly once: accepted -> connected,
// locked -> charged, receiver credited, transaction pair recorded.
//
// Idempotent: an already-connected or already-billed call is returned
// unchanged with first=false, so late duplicate signals are harmless.
// The transaction records are posted before the method reports success.
func (s *Service) Connect(ctx context.Context, callID string) (l Ledger, first bool, err error) {
	l, err = s.store.Get(ctx, callID)
	if err != nil {
		return Ledger{}, false, err
	}
	if l.Status == StatusConnected || l.BillingStatus != BillingLocked {
		return l, false, nil
	}
	if l.Status != StatusAccepted {
		return Ledger{}, false, ErrInvalidState
	}

	// Coins first: Settle is idempotent per call, so a crash between the coin
	// move and the ledger write is healed by the retried Connect.
	if err := s.coins.Settle(ctx, callID, l.CallerID, l.ReceiverID, l.CoinAmount); err != nil {
		return Ledger{}, false, fmt.Errorf("calls: settle coins: %w", err)
	}

	now := s.clock().UTC()
	l.Status = StatusConnected
	l.BillingStatus = BillingCharged
	l.ConnectedAt = &now

	ok, err := s.store.Update(ctx, l, StatusAccepted)
	if err != nil {
		return Ledger{}, false, err
	}
	if !ok {
		// Lost the race to a duplicate connect; report the winner's view.
		cur, err := s.store.Get(ctx, callID)
		if err != nil {
			return Ledger{}, false, err
		}
		return cur, false, nil
	}

	_ = s.audit.LogCall(ctx, audit.EventTypeCallBilled, callID, "", "call connected, receiver credited")
	return l, true, nil
}

// End resolves the call from the given reason.
//
// Rules:
// - Terminal calls are returned unchanged (idempotent).
// - A late connection_failed signal never downgrades a call that already
//   connected (or is waiting out an interruption). Likewise a stale
//   interruption_expired never ends a call that already rejoined back to
//   connected, and ring-phase reasons never end a call past ringing.
// - Coins still locked always refund: locked means the call never connected.
//   A call that reached connected never refunds regardless of how it later
//   ends.
// - Both participants' on-call flags are always cleared.
func (s *Service) End(ctx context.Context, callID string, reason Reason, actingUserID string) (Ledger, error) {
	for attempt := 0; ; attempt++ {
		l, err := s.store.Get(ctx, callID)
		if err != nil {
			return Ledger{}, err
		}
		if l.Status.IsTerminal() {
			return l, nil
		}
		if l.Status == StatusConnected || l.Status == StatusInterrupted {
			switch reason {
			case ReasonConnectionFailed, ReasonRejected, ReasonCancelled, ReasonTimeout:
				return l, nil
			}
		}
		if reason == ReasonInterruptionExpired && l.Status == StatusConnected {
			// The grace timer lost a race with a rejoin; the call is live again.
			return l, nil
		}

		// Locked billing means the call never connected; such calls always
		// refund in full, whatever reason ends them. A call that reached
		// connected is already charged and never refunds.
		next := statusForReason(reason)
		if l.BillingStatus == BillingLocked {
			// Refund before the ledger write: Refund is idempotent per call,
			// so a crash in between is healed by the retried End.
			if err := s.coins.Refund(ctx, callID, l.CallerID, l.CoinAmount); err != nil {
				return Ledger{}, fmt.Errorf("calls: refund coins: %w", err)
			}
			l.BillingStatus = BillingRefunded
			_ = s.audit.LogCall(ctx, audit.EventTypeCallRefunded, callID, actingUserID, "call never connected, caller refunded")
		}

		prev := l.Status
		now := s.clock().UTC()
		l.Status = next
		l.EndReason = reason
		if l.EndedAt == nil {
			l.EndedAt = &now
		}

		ok, err := s.store.Update(ctx, l, prev)
		if err != nil {
			return Ledger{}, err
		}
		if ok {
			if err := s.coins.ClearOnCall(ctx, callID, l.CallerID, l.ReceiverID); err != nil {
				return l, fmt.Errorf("calls: clear on-call: %w", err)
			}
			return l, nil
		}
		if attempt >= 2 {
			return Ledger{}, ErrInvalidState
		}
		// Another event moved the call; re-read and re-decide.
	}
}

// MarkInterrupted records a soft end: connected -> interrupted, with the
// remaining entitlement persisted for a later rejoin. Billing is untouched
// (the call already charged) and both on-call flags are cleared so either
// participant could, in principle, be called by someone else after the grace
// window lapses.
func (s *Service) MarkInterrupted(ctx context.Context, callID string, remainingSeconds int) (Ledger, error) {
	l, err := s.store.Get(ctx, callID)
	if err != nil {
		return Ledger{}, err
	}
	if l.Status != StatusConnected {
		return Ledger{}, ErrInvalidState
	}
	if remainingSeconds < 0 {
		remainingSeconds = 0
	}

	l.Status = StatusInterrupted
	l.RemainingSeconds = remainingSeconds

	ok, err := s.store.Update(ctx, l, StatusConnected)
	if err != nil {
		return Ledger{}, err
	}
	if !ok {
		return Ledger{}, ErrInvalidState
	}
	if err := s.coins.ClearOnCall(ctx, callID, l.CallerID, l.ReceiverID); err != nil {
		return l, fmt.Errorf("calls: clear on-call: %w", err)
	}
	return l, nil
}

// Rejoin consumes the participant's one allowed rejoin on an interrupted
// call: interrupted -> connected, rejoin bookkeeping updated, both
// participants re-flagged on-call. The relay restarts the duration timer from
// the persisted remaining seconds.
func (s *Service) Rejoin(ctx context.Context, callID, userID string) (Ledger, error) {
	l, err := s.store.Get(ctx, callID)
	if err != nil {
		return Ledger{}, err
	}
	if !l.Participant(userID) {
		return Ledger{}, ErrCallNotFound
	}
	if l.Status != StatusInterrupted {
		return Ledger{}, ErrInvalidState
	}
	if l.HasRejoined(userID) {
		return Ledger{}, ErrRejoinUsed
	}

	l.Status = StatusConnected
	l.RejoinedUserIDs = append(l.RejoinedUserIDs, userID)
	l.RejoinCount++

	ok, err := s.store.Update(ctx, l, StatusInterrupted)
	if err != nil {
		return Ledger{}, err
	}
	if !ok {
		return Ledger{}, ErrInvalidState
	}
	if err := s.coins.MarkOnCall(ctx, callID, l.CallerID, l.ReceiverID); err != nil {
		return l, fmt.Errorf("calls: mark on-call: %w", err)
	}
	return l, nil
}

// Get returns the ledger row.
func (s *Service) Get(ctx context.Context, callID string) (Ledger, error) {
	return s.store.Get(ctx, callID)
}

// ActiveFor returns the participant's current non-terminal call, if any.
func (s *Service) ActiveFor(ctx context.Context, userID string) (Ledger, bool, error) {
	return s.store.ActiveByParticipant(ctx, userID)
}

// History lists a participant's calls in a time window.
func (s *Service) History(ctx context.Context, userID string, from, to time.Time) ([]Ledger, error) {
	return s.store.ListByParticipant(ctx, userID, from, to)
}

// SweepStale force-ends calls stuck in pending/ringing/accepted past the
// staleness window, refunding where coins are still locked. This is the
// safety net against process restarts losing in-memory timers; swept calls
// are published so the relay can clear any client UI that survived.
func (s *Service) SweepStale(ctx context.Context, window time.Duration) (int, error) {
	cutoff := s.clock().UTC().Add(-window)
	stale, err := s.store.ListStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, l := range stale {
		ended, err := s.End(ctx, l.ID, ReasonConnectionFailed, "")
		if err != nil {
			continue
		}
		swept++
		_ = s.audit.LogCall(ctx, audit.EventTypeCallSwept, l.ID, "", "stale call force-ended by sweep")
		s.pub.Publish(ctx, Event{Type: EventSwept, Call: ended})
	}
	return swept, nil
}
