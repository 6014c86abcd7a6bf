package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/chat-bet-bot/internal/bet-bot/events"
	"github.com/radieske/chat-bet-bot/internal/bet-bot/intent"
	"github.com/radieske/chat-bet-bot/internal/bet-bot/ledger"
	cevents "github.com/radieske/chat-bet-bot/pkg/contracts/events"
)

// compensateAttempts limita as tentativas de devolução quando o CAS perde corrida
const compensateAttempts = 5

// IntentExtractor converte texto livre em BetRequest (implementado por intent.Extractor)
type IntentExtractor interface {
	Extract(ctx context.Context, text string) (intent.BetRequest, bool)
}

// BetPublisher publica o evento bet_placed depois de uma aposta gravada
type BetPublisher interface {
	PublishBetPlaced(ctx context.Context, e cevents.BetPlaced) error
}

type Options struct {
	DefaultCredits int64
	StoreTimeout   time.Duration
}

// Mention é a entrada do pipeline: quem falou e o texto já sem o prefixo do bot
type Mention struct {
	Handle      string
	DisplayName string
	Text        string
}

// Result descreve uma aposta concluída
type Result struct {
	User    ledger.User
	Event   ledger.Event
	Bet     ledger.Bet
	Balance int64
	Source  string // "command" | "llm"
}

type Pipeline struct {
	store     ledger.Store
	resolver  *events.Resolver
	listing   *events.Resolver // só listagem; pode vir de cache
	extractor IntentExtractor
	publisher BetPublisher
	log       *zap.Logger
	opts      Options
	now       func() time.Time

	// Hooks de observabilidade (prometheus em main)
	OnOutcome    func(outcome string)
	OnCompensate func(ok bool)
	OnDuration   func(d time.Duration)
}

func New(store ledger.Store, resolver *events.Resolver, extractor IntentExtractor, log *zap.Logger, opts Options) *Pipeline {
	if opts.DefaultCredits <= 0 {
		opts.DefaultCredits = ledger.DefaultCredits
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 3 * time.Second
	}
	return &Pipeline{
		store:     store,
		resolver:  resolver,
		extractor: extractor,
		log:       log,
		opts:      opts,
		now:       time.Now,
	}
}

// WithListing usa outro resolver (ex.: com cache Redis) para "show open events" e a API.
// Apostas sempre resolvem pelo resolver principal, que precisa ler o store sem cache.
func (p *Pipeline) WithListing(r *events.Resolver) *Pipeline {
	p.listing = r
	return p
}

// WithPublisher habilita o bet_placed (best-effort)
func (p *Pipeline) WithPublisher(pub BetPublisher) *Pipeline {
	p.publisher = pub
	return p
}

// Run executa a sequência intent -> usuário -> evento -> saldo -> débito -> aposta.
// ack é chamado antes do fallback para o modelo de linguagem e pode ser nil.
// Toda falha volta como *Error.
func (p *Pipeline) Run(ctx context.Context, m Mention, ack func()) (Result, error) {
	start := p.now()
	res, err := p.run(ctx, m, ack)
	if p.OnDuration != nil {
		p.OnDuration(p.now().Sub(start))
	}

	outcome := "placed"
	if kind, ok := KindOf(err); ok {
		outcome = string(kind)
	}
	if p.OnOutcome != nil {
		p.OnOutcome(outcome)
	}

	fields := []zap.Field{zap.String("handle", m.Handle), zap.String("outcome", outcome)}
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) && (pe.Upstream || (pe.Kind == BetInsertFailed && !pe.Compensated)) {
			p.log.Error("bet pipeline failed", append(fields, zap.Error(err))...)
		} else {
			p.log.Info("bet rejected", append(fields, zap.Error(err))...)
		}
		return res, err
	}
	p.log.Info("bet placed", append(fields,
		zap.String("event_id", res.Event.ID),
		zap.String("bet_id", res.Bet.ID),
		zap.Int64("amount", res.Bet.Amount),
		zap.Int64("balance", res.Balance),
		zap.String("source", res.Source),
	)...)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, m Mention, ack func()) (Result, error) {
	var res Result

	// 1) intent: comando estruturado primeiro, modelo de linguagem depois
	req, source, err := p.resolveIntent(ctx, m, ack)
	if err != nil {
		return res, err
	}
	res.Source = source

	// 2) usuário (criado sob demanda)
	user, err := p.ResolveUser(ctx, m.Handle, m.DisplayName)
	if err != nil {
		return res, err
	}
	res.User = *user

	// 3) evento
	ev, err := p.resolveEvent(ctx, req.EventQuery)
	if err != nil {
		return res, err
	}
	res.Event = ev

	// 4) saldo
	if user.Credits < req.Amount {
		return res, &Error{Kind: InsufficientCredits, Credits: user.Credits, Amount: req.Amount}
	}

	bet := &ledger.Bet{UserID: user.ID, EventID: ev.ID, Amount: req.Amount, Option: req.Option}

	// 5+6) débito e aposta
	var balance int64
	if placer, ok := p.store.(ledger.AtomicPlacer); ok {
		balance, err = p.placeAtomic(ctx, placer, user, bet)
	} else {
		balance, err = p.placeSaga(ctx, user, bet)
	}
	if err != nil {
		return res, err
	}

	res.Bet = *bet
	res.Balance = balance
	res.User.Credits = balance
	p.publish(ctx, res, m)
	return res, nil
}

func (p *Pipeline) resolveIntent(ctx context.Context, m Mention, ack func()) (intent.BetRequest, string, error) {
	if req, ok := intent.ParseCommand(m.Text); ok {
		if !req.Valid() {
			return req, "command", &Error{Kind: IntentUnparseable}
		}
		return req, "command", nil
	}
	if p.extractor == nil {
		return intent.BetRequest{}, "llm", &Error{Kind: IntentUnparseable}
	}
	if ack != nil {
		ack()
	}
	req, ok := p.extractor.Extract(ctx, m.Text)
	if !ok || !req.Valid() {
		return req, "llm", &Error{Kind: IntentUnparseable}
	}
	return req, "llm", nil
}

// ResolveUser busca o usuário pelo handle e cria com o saldo inicial quando não existe.
// Falhas do store viram DeductionFailed com Upstream.
func (p *Pipeline) ResolveUser(ctx context.Context, handle, displayName string) (*ledger.User, error) {
	sctx, cancel := p.storeCtx(ctx)
	defer cancel()

	u, err := p.store.GetUserByHandle(sctx, handle)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return nil, upstream(DeductionFailed, err)
	}
	if displayName == "" {
		displayName = handle
	}
	u, err = p.store.CreateUser(sctx, handle, displayName, p.opts.DefaultCredits)
	if err != nil {
		return nil, upstream(DeductionFailed, err)
	}
	return u, nil
}

func (p *Pipeline) resolveEvent(ctx context.Context, query string) (ledger.Event, error) {
	sctx, cancel := p.storeCtx(ctx)
	defer cancel()

	ev, found, err := p.resolver.Resolve(sctx, query)
	if err != nil {
		e := upstream(EventNotFound, err)
		e.Query = query
		return ev, e
	}
	if !found {
		return ev, &Error{Kind: EventNotFound, Query: query}
	}
	return ev, nil
}

// OpenEvents lista os eventos abertos; falha do store vira EventNotFound com Upstream
func (p *Pipeline) OpenEvents(ctx context.Context) ([]ledger.Event, error) {
	sctx, cancel := p.storeCtx(ctx)
	defer cancel()

	r := p.resolver
	if p.listing != nil {
		r = p.listing
	}
	list, err := r.Open(sctx)
	if err != nil {
		return nil, upstream(EventNotFound, err)
	}
	return list, nil
}

func (p *Pipeline) placeAtomic(ctx context.Context, placer ledger.AtomicPlacer, user *ledger.User, bet *ledger.Bet) (int64, error) {
	sctx, cancel := p.storeCtx(ctx)
	defer cancel()

	balance, err := placer.PlaceBet(sctx, bet)
	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, ledger.ErrInsufficientCredits):
		// saldo mudou entre a leitura e a transação
		return 0, &Error{Kind: DeductionFailed, Err: err, Credits: user.Credits, Amount: bet.Amount}
	case errors.Is(err, ledger.ErrNotFound):
		return 0, &Error{Kind: DeductionFailed, Err: err}
	default:
		// rollback: nada foi debitado
		return 0, &Error{Kind: BetInsertFailed, Upstream: true, Err: err, Credits: user.Credits, Compensated: true}
	}
}

func (p *Pipeline) placeSaga(ctx context.Context, user *ledger.User, bet *ledger.Bet) (int64, error) {
	newBalance := user.Credits - bet.Amount

	sctx, cancel := p.storeCtx(ctx)
	ok, err := p.store.UpdateCredits(sctx, user.ID, user.Credits, newBalance)
	cancel()
	if err != nil {
		return 0, upstream(DeductionFailed, err)
	}
	if !ok {
		return 0, &Error{Kind: DeductionFailed, Err: ledger.ErrStaleBalance}
	}

	sctx, cancel = p.storeCtx(ctx)
	err = p.store.InsertBet(sctx, bet)
	cancel()
	if err == nil {
		return newBalance, nil
	}

	restored, cerr := p.compensate(ctx, user.ID, newBalance, bet.Amount)
	if p.OnCompensate != nil {
		p.OnCompensate(cerr == nil)
	}
	if cerr != nil {
		p.log.Error("credit compensation failed",
			zap.String("user_id", user.ID),
			zap.Int64("amount", bet.Amount),
			zap.Error(cerr))
		return 0, &Error{Kind: BetInsertFailed, Upstream: true, Err: errors.Join(err, cerr), Amount: bet.Amount}
	}
	p.log.Warn("bet insert failed, credits restored",
		zap.String("user_id", user.ID),
		zap.Int64("amount", bet.Amount),
		zap.Int64("balance", restored),
		zap.Error(err))
	return 0, &Error{Kind: BetInsertFailed, Upstream: true, Err: err, Credits: restored, Amount: bet.Amount, Compensated: true}
}

// compensate devolve amount ao saldo (inverso aditivo). Se outro débito entrar no
// meio, relê o saldo e tenta de novo com o valor atual.
// Roda fora do cancelamento do pedido para não deixar o débito órfão.
func (p *Pipeline) compensate(ctx context.Context, userID string, expected, amount int64) (int64, error) {
	base := context.WithoutCancel(ctx)
	var lastErr error
	for attempt := 0; attempt < compensateAttempts; attempt++ {
		sctx, cancel := context.WithTimeout(base, p.opts.StoreTimeout)
		ok, err := p.store.UpdateCredits(sctx, userID, expected, expected+amount)
		if err == nil && ok {
			cancel()
			return expected + amount, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = ledger.ErrStaleBalance
		}
		// relê o saldo atual para a próxima tentativa
		if u, gerr := p.store.GetUserByID(sctx, userID); gerr == nil {
			expected = u.Credits
		}
		cancel()
	}
	return 0, lastErr
}

func (p *Pipeline) publish(ctx context.Context, res Result, m Mention) {
	if p.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.StoreTimeout)
	defer cancel()
	err := p.publisher.PublishBetPlaced(pctx, cevents.BetPlaced{
		BetID:       res.Bet.ID,
		UserID:      res.User.ID,
		ChatHandle:  m.Handle,
		EventID:     res.Event.ID,
		EventTitle:  res.Event.Title,
		Option:      res.Bet.Option,
		Amount:      res.Bet.Amount,
		BalanceLeft: res.Balance,
	})
	if err != nil {
		p.log.Warn("publish bet_placed failed", zap.String("bet_id", res.Bet.ID), zap.Error(err))
	}
}

func (p *Pipeline) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.opts.StoreTimeout)
}
