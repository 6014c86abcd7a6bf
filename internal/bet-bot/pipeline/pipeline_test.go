package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/chat-bet-bot/internal/bet-bot/events"
	"github.com/radieske/chat-bet-bot/internal/bet-bot/intent"
	"github.com/radieske/chat-bet-bot/internal/bet-bot/ledger"
	cevents "github.com/radieske/chat-bet-bot/pkg/contracts/events"
)

var errBoom = errors.New("boom")

// faultyStore injeta falhas por operação sobre o ledger em memória
type faultyStore struct {
	*ledger.Memory
	getErr    error
	listErr   error
	updateErr error
	insertErr error
	onInsert  func()
	block     bool // operações esperam o ctx expirar
	updates   int
}

func (f *faultyStore) GetUserByHandle(ctx context.Context, handle string) (*ledger.User, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Memory.GetUserByHandle(ctx, handle)
}

func (f *faultyStore) ListEvents(ctx context.Context, filter ledger.EventFilter) ([]ledger.Event, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Memory.ListEvents(ctx, filter)
}

func (f *faultyStore) UpdateCredits(ctx context.Context, id string, expected, newBalance int64) (bool, error) {
	f.updates++
	if f.updateErr != nil {
		return false, f.updateErr
	}
	return f.Memory.UpdateCredits(ctx, id, expected, newBalance)
}

func (f *faultyStore) InsertBet(ctx context.Context, b *ledger.Bet) error {
	if f.onInsert != nil {
		f.onInsert()
	}
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.Memory.InsertBet(ctx, b)
}

// atomicStore simula um store transacional: PlaceBet sob um único lock
type atomicStore struct {
	*faultyStore
	mu     sync.Mutex
	placed int
}

func (a *atomicStore) PlaceBet(ctx context.Context, b *ledger.Bet) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.placed++
	u, err := a.Memory.GetUserByID(ctx, b.UserID)
	if err != nil {
		return 0, err
	}
	if u.Credits < b.Amount {
		return 0, ledger.ErrInsufficientCredits
	}
	if a.insertErr != nil {
		return 0, a.insertErr
	}
	if _, err := a.Memory.UpdateCredits(ctx, u.ID, u.Credits, u.Credits-b.Amount); err != nil {
		return 0, err
	}
	if err := a.Memory.InsertBet(ctx, b); err != nil {
		return 0, err
	}
	return u.Credits - b.Amount, nil
}

type stubExtractor struct {
	req   intent.BetRequest
	ok    bool
	calls int
}

func (s *stubExtractor) Extract(_ context.Context, _ string) (intent.BetRequest, bool) {
	s.calls++
	return s.req, s.ok
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []cevents.BetPlaced
	err error
}

func (r *recordingPublisher) PublishBetPlaced(_ context.Context, e cevents.BetPlaced) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
	return r.err
}

func newStore() *faultyStore {
	m := ledger.NewMemory()
	m.AddEvent(ledger.Event{ID: "ev-1", Title: "India vs Pakistan", Options: []string{"India", "Pakistan"}})
	return &faultyStore{Memory: m}
}

func newPipeline(store ledger.Store, ex IntentExtractor) *Pipeline {
	r := events.NewResolver(store, ledger.OpenFilter("open", ledger.MatchExact))
	return New(store, r, ex, zap.NewNop(), Options{StoreTimeout: time.Second})
}

func balanceOf(t *testing.T, s ledger.Store, handle string) int64 {
	t.Helper()
	u, err := s.GetUserByHandle(context.Background(), handle)
	if err != nil {
		t.Fatalf("GetUserByHandle(%q) error = %v", handle, err)
	}
	return u.Credits
}

func wantKind(t *testing.T, err error, want Kind) *Error {
	t.Helper()
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *Error of kind %s", err, want)
	}
	if pe.Kind != want {
		t.Fatalf("kind = %s, want %s (err: %v)", pe.Kind, want, err)
	}
	return pe
}

func TestRunPlacesCommandBet(t *testing.T) {
	store := newStore()
	ex := &stubExtractor{}
	pub := &recordingPublisher{}
	p := newPipeline(store, ex).WithPublisher(pub)
	var outcomes []string
	p.OnOutcome = func(o string) { outcomes = append(outcomes, o) }

	res, err := p.Run(context.Background(), Mention{Handle: "alice", Text: "bet 50 on India for India vs Pakistan"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ex.calls != 0 {
		t.Fatalf("extractor called %d times for a structured command", ex.calls)
	}
	if got := balanceOf(t, store, "alice"); got != 50 || res.Balance != 50 {
		t.Fatalf("balance = %d (result %d), want 50", got, res.Balance)
	}
	bets := store.Bets()
	if len(bets) != 1 {
		t.Fatalf("bets = %d, want 1", len(bets))
	}
	if b := bets[0]; b.Amount != 50 || b.Option != "India" || b.EventID != "ev-1" {
		t.Fatalf("bet = %+v", b)
	}
	reply := ReplyFor(res, err)
	for _, want := range []string{"50", "India", "India vs Pakistan"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("reply %q does not mention %q", reply, want)
		}
	}
	if len(pub.got) != 1 || pub.got[0].BalanceLeft != 50 || pub.got[0].ChatHandle != "alice" {
		t.Fatalf("published = %+v", pub.got)
	}
	if len(outcomes) != 1 || outcomes[0] != "placed" {
		t.Fatalf("outcomes = %v", outcomes)
	}
}

func TestRunPublishFailureDoesNotFailBet(t *testing.T) {
	store := newStore()
	p := newPipeline(store, nil).WithPublisher(&recordingPublisher{err: errBoom})

	if _, err := p.Run(context.Background(), Mention{Handle: "alice", Text: "bet 10 on India for pakistan"}, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(store.Bets()) != 1 {
		t.Fatalf("bets = %d, want 1", len(store.Bets()))
	}
}

func TestRunInvalidAmountLeavesStoreUntouched(t *testing.T) {
	tests := []struct {
		name string
		text string
		ex   *stubExtractor
	}{
		{"zero command", "bet 0 on India for India vs Pakistan", &stubExtractor{}},
		{"negative falls back and fails", "bet -5 on India for India vs Pakistan", &stubExtractor{}},
		{"non numeric falls back and fails", "bet lots on India for India vs Pakistan", &stubExtractor{}},
		{"extractor zero amount", "put nothing on India", &stubExtractor{req: intent.BetRequest{Option: "India", EventQuery: "India"}, ok: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore()
			p := newPipeline(store, tt.ex)

			_, err := p.Run(context.Background(), Mention{Handle: "bob", Text: tt.text}, nil)
			wantKind(t, err, IntentUnparseable)
			if store.UserCount() != 0 || len(store.Bets()) != 0 || store.updates != 0 {
				t.Fatalf("store touched: users=%d bets=%d updates=%d", store.UserCount(), len(store.Bets()), store.updates)
			}
		})
	}
}

func TestRunInsufficientCredits(t *testing.T) {
	store := newStore()
	if _, err := store.CreateUser(context.Background(), "carol", "Carol", 10); err != nil {
		t.Fatal(err)
	}
	p := newPipeline(store, nil)

	_, err := p.Run(context.Background(), Mention{Handle: "carol", Text: "bet 50 on India for India vs Pakistan"}, nil)
	pe := wantKind(t, err, InsufficientCredits)
	if pe.Credits != 10 || pe.Amount != 50 {
		t.Fatalf("error detail = %+v", pe)
	}
	if got := balanceOf(t, store, "carol"); got != 10 {
		t.Fatalf("balance = %d, want 10", got)
	}
	if len(store.Bets()) != 0 || store.updates != 0 {
		t.Fatalf("mutation on insufficient credits: bets=%d updates=%d", len(store.Bets()), store.updates)
	}
}

func TestRunFreeTextWithoutMatchingEvent(t *testing.T) {
	store := newStore()
	ex := &stubExtractor{req: intent.BetRequest{Amount: 20, Option: "Pakistan", EventQuery: "Friday's match"}, ok: true}
	p := newPipeline(store, ex)
	acked := 0

	_, err := p.Run(context.Background(), Mention{Handle: "dave", Text: "can I put 20 on Pakistan for Friday's match"}, func() { acked++ })
	pe := wantKind(t, err, EventNotFound)
	if ex.calls != 1 || acked != 1 {
		t.Fatalf("extractor calls = %d, acks = %d, want 1/1", ex.calls, acked)
	}
	if pe.Upstream || !strings.Contains(pe.Reply(), "Friday's match") {
		t.Fatalf("reply = %q", pe.Reply())
	}
	if got := balanceOf(t, store, "dave"); got != 100 {
		t.Fatalf("balance = %d, want 100", got)
	}
	if len(store.Bets()) != 0 {
		t.Fatalf("bets = %d, want 0", len(store.Bets()))
	}
}

func TestRunRejectsEventClosedWhileListingIsCached(t *testing.T) {
	store := newStore()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	open := ledger.OpenFilter("open", ledger.MatchExact)
	p := newPipeline(store, &stubExtractor{}).
		WithListing(events.NewResolver(events.NewCachedLister(store, rdb, 15*time.Second, zap.NewNop()), open))
	ctx := context.Background()

	if list, err := p.OpenEvents(ctx); err != nil || len(list) != 1 {
		t.Fatalf("OpenEvents() = %v, %v; want ev-1", list, err)
	}
	store.SetEventStatus("ev-1", "closed")

	// a listagem ainda vem do cache
	if list, err := p.OpenEvents(ctx); err != nil || len(list) != 1 {
		t.Fatalf("cached OpenEvents() = %v, %v; want stale ev-1", list, err)
	}
	_, err := p.Run(ctx, Mention{Handle: "erin", Text: "bet 10 on India for India vs Pakistan"}, nil)
	wantKind(t, err, EventNotFound)
	if len(store.Bets()) != 0 {
		t.Fatalf("bets = %d, want 0 on a closed event", len(store.Bets()))
	}
	if got := balanceOf(t, store, "erin"); got != 100 {
		t.Fatalf("balance = %d, want 100", got)
	}
}

func TestRunInsertFailureRestoresCredits(t *testing.T) {
	store := newStore()
	store.insertErr = errBoom
	p := newPipeline(store, nil)
	var compensations []bool
	p.OnCompensate = func(ok bool) { compensations = append(compensations, ok) }

	_, err := p.Run(context.Background(), Mention{Handle: "erin", Text: "bet 30 on India for India vs Pakistan"}, nil)
	pe := wantKind(t, err, BetInsertFailed)
	if !pe.Compensated || pe.Credits != 100 {
		t.Fatalf("error detail = %+v", pe)
	}
	if got := balanceOf(t, store, "erin"); got != 100 {
		t.Fatalf("balance = %d, want pre-run 100", got)
	}
	if len(store.Bets()) != 0 {
		t.Fatalf("bets = %d, want 0", len(store.Bets()))
	}
	if len(compensations) != 1 || !compensations[0] {
		t.Fatalf("compensations = %v", compensations)
	}
	if !strings.Contains(pe.Reply(), "restored") {
		t.Fatalf("reply = %q", pe.Reply())
	}
}

func TestCompensationRetriesAfterConcurrentChange(t *testing.T) {
	store := newStore()
	store.insertErr = errBoom
	ctx := context.Background()
	u, _ := store.CreateUser(ctx, "frank", "Frank", 100)
	// crédito concorrente de +20 entre o débito e a falha do insert
	store.onInsert = func() {
		if ok, err := store.Memory.UpdateCredits(ctx, u.ID, 60, 80); !ok || err != nil {
			t.Errorf("concurrent credit failed: ok=%v err=%v", ok, err)
		}
	}
	p := newPipeline(store, nil)

	_, err := p.Run(ctx, Mention{Handle: "frank", Text: "bet 40 on India for India vs Pakistan"}, nil)
	wantKind(t, err, BetInsertFailed)
	if got := balanceOf(t, store, "frank"); got != 120 {
		t.Fatalf("balance = %d, want 120 (100 restored + 20 concurrent)", got)
	}
}

func TestRunStaleBalanceIsDeductionFailed(t *testing.T) {
	store := newStore()
	ctx := context.Background()
	u, _ := store.CreateUser(ctx, "gina", "Gina", 100)
	stale := &staleStore{faultyStore: store, userID: u.ID}
	p := newPipeline(stale, nil)

	_, err := p.Run(ctx, Mention{Handle: "gina", Text: "bet 10 on India for India vs Pakistan"}, nil)
	wantKind(t, err, DeductionFailed)
	if len(store.Bets()) != 0 {
		t.Fatalf("bet written after failed deduction")
	}
	if got := balanceOf(t, store, "gina"); got != 90 {
		t.Fatalf("balance = %d, want 90 (only the concurrent debit)", got)
	}
}

// staleStore debita o usuário por fora logo depois da leitura
type staleStore struct {
	*faultyStore
	userID string
}

func (s *staleStore) GetUserByHandle(ctx context.Context, handle string) (*ledger.User, error) {
	u, err := s.faultyStore.GetUserByHandle(ctx, handle)
	if err == nil {
		_, _ = s.Memory.UpdateCredits(ctx, s.userID, u.Credits, u.Credits-10)
	}
	return u, err
}

func TestRunStoreFailuresMapToStepCategory(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*faultyStore)
		want  Kind
	}{
		{"user lookup", func(s *faultyStore) { s.getErr = errBoom }, DeductionFailed},
		{"list events", func(s *faultyStore) { s.listErr = errBoom }, EventNotFound},
		{"deduction", func(s *faultyStore) { s.updateErr = errBoom }, DeductionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore()
			tt.setup(store)
			p := newPipeline(store, nil)

			_, err := p.Run(context.Background(), Mention{Handle: "hank", Text: "bet 10 on India for India vs Pakistan"}, nil)
			pe := wantKind(t, err, tt.want)
			if !pe.Upstream {
				t.Fatalf("Upstream = false for a store failure")
			}
			if !strings.Contains(pe.Reply(), "try again later") {
				t.Fatalf("reply %q lacks retry hint", pe.Reply())
			}
			if len(store.Bets()) != 0 {
				t.Fatalf("bets = %d, want 0", len(store.Bets()))
			}
		})
	}
}

func TestRunStoreTimeout(t *testing.T) {
	store := newStore()
	store.block = true
	r := events.NewResolver(store, ledger.OpenFilter("open", ledger.MatchExact))
	p := New(store, r, nil, zap.NewNop(), Options{StoreTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := p.Run(context.Background(), Mention{Handle: "ivy", Text: "bet 10 on India for India vs Pakistan"}, nil)
	pe := wantKind(t, err, DeductionFailed)
	if !pe.Upstream || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want upstream deadline", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Run() took %v, timeout not applied", elapsed)
	}
}

func TestConcurrentFirstContactCreatesOneUser(t *testing.T) {
	store := newStore().Memory
	p := newPipeline(store, nil)

	const runs = 10
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Run(context.Background(), Mention{Handle: "newbie", Text: "bet 10 on India for India vs Pakistan"}, nil)
			if err != nil {
				if kind, _ := KindOf(err); kind != DeductionFailed {
					t.Errorf("unexpected failure: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if store.UserCount() != 1 {
		t.Fatalf("users = %d, want 1", store.UserCount())
	}
	bal := balanceOf(t, store, "newbie")
	if want := int64(100 - 10*len(store.Bets())); bal != want || bal < 0 {
		t.Fatalf("balance = %d with %d bets, want %d", bal, len(store.Bets()), want)
	}
}

func TestAtomicStoreSkipsSaga(t *testing.T) {
	store := &atomicStore{faultyStore: newStore()}
	p := newPipeline(store, nil)

	res, err := p.Run(context.Background(), Mention{Handle: "jo", Text: "bet 25 on Pakistan for india"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if store.placed != 1 || store.updates != 0 {
		t.Fatalf("placed=%d updates=%d, want the transactional path only", store.placed, store.updates)
	}
	if res.Balance != 75 || res.Event.Title != "India vs Pakistan" || res.Bet.Option != "Pakistan" {
		t.Fatalf("result = %+v", res)
	}
}

func TestAtomicStoreFailureChargesNothing(t *testing.T) {
	store := &atomicStore{faultyStore: newStore()}
	store.insertErr = errBoom
	p := newPipeline(store, nil)

	_, err := p.Run(context.Background(), Mention{Handle: "kim", Text: "bet 25 on Pakistan for india"}, nil)
	pe := wantKind(t, err, BetInsertFailed)
	if !pe.Compensated || pe.Credits != 100 {
		t.Fatalf("error detail = %+v", pe)
	}
	if got := balanceOf(t, store, "kim"); got != 100 {
		t.Fatalf("balance = %d, want 100", got)
	}
}

func TestBotHandleMention(t *testing.T) {
	store := newStore()
	store.AddEvent(ledger.Event{Title: "Final", Options: []string{"A", "B"}, Status: "closed"})
	ex := &stubExtractor{}
	bot := NewBot(newPipeline(store, ex), zap.NewNop())

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"list open events", "<@UBOT> Show Open Events please", []string{"1. India vs Pakistan — Options: India, Pakistan"}},
		{"balance", "<@UBOT> my credits", []string{"💰 <@liz>, you have *100* credits."}},
		{"bet", "<@UBOT> bet 40 on India for pakistan", []string{"✅ Bet placed: *40* credits on *India* for *India vs Pakistan*. Remaining balance: 60."}},
		{"free text", "<@UBOT> twenty on india please", []string{"Got it, <@liz>! Let me parse that...", "❌ I couldn't understand your bet. " + usageHint}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var said []string
			bot.HandleMention(context.Background(), Mention{Handle: "liz", Text: tt.text}, func(s string) { said = append(said, s) })
			if fmt.Sprint(said) != fmt.Sprint(tt.want) {
				t.Fatalf("said = %q, want %q", said, tt.want)
			}
		})
	}
}

func TestBotListOpenEventsEmpty(t *testing.T) {
	bot := NewBot(newPipeline(&faultyStore{Memory: ledger.NewMemory()}, nil), zap.NewNop())
	var said []string
	bot.HandleMention(context.Background(), Mention{Handle: "max", Text: "show open events"}, func(s string) { said = append(said, s) })
	if len(said) != 1 || said[0] != events.NoOpenEvents {
		t.Fatalf("said = %q", said)
	}
}
