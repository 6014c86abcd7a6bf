package intent

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// SystemInstruction é a instrução fixa enviada ao modelo
const SystemInstruction = "You are a helpful chat betting assistant. You extract bet details from user messages and answer with JSON only."

const promptTemplate = `Extract 3 pieces of info from the message:
1. The amount they want to bet (a whole number of credits).
2. The team or option they are betting on.
3. The description of the event or match (like "Friday's match").

Input: "%s"

Return only a JSON object like:
{"amount": 50, "option": "India", "event_query": "Friday's match"}
If anything is missing or unclear, return {}`

// CompletionRequest é o contrato de entrada do language model
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
}

// Completer devolve o texto bruto da resposta do modelo
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Extractor converte texto livre em BetRequest usando o language model
type Extractor struct {
	llm         Completer
	log         *zap.Logger
	timeout     time.Duration
	temperature float64

	OnResult func(result string) // métricas: parsed | unparseable | llm_error
}

func NewExtractor(llm Completer, log *zap.Logger, timeout time.Duration, temperature float64) *Extractor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Extractor{llm: llm, log: log, timeout: timeout, temperature: temperature}
}

// Extract devolve ok=false (unparseable) para texto vazio, erro/timeout do provedor
// ou resposta fora do schema. Erros nunca sobem para quem chama.
func (e *Extractor) Extract(ctx context.Context, text string) (BetRequest, bool) {
	text = strings.TrimSpace(text)
	if text == "" || e.llm == nil {
		return BetRequest{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.llm.Complete(ctx, CompletionRequest{
		System:      SystemInstruction,
		User:        buildPrompt(text),
		Temperature: e.temperature,
	})
	if err != nil {
		e.log.Warn("llm completion failed", zap.Error(err))
		e.report("llm_error")
		return BetRequest{}, false
	}

	req, err := DecodeBetRequest(raw)
	if err != nil {
		e.log.Info("llm response unparseable", zap.Error(err), zap.String("raw", Truncate(raw, 300)))
		e.report("unparseable")
		return BetRequest{}, false
	}

	e.log.Debug("llm extracted bet",
		zap.Int64("amount", req.Amount),
		zap.String("option", req.Option),
		zap.String("event_query", req.EventQuery),
	)
	e.report("parsed")
	return req, true
}

func (e *Extractor) report(result string) {
	if e.OnResult != nil {
		e.OnResult(result)
	}
}

func buildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, strings.ReplaceAll(text, `"`, `'`))
}

// Truncate corta s em até n bytes sem partir um caractere UTF-8 ao meio
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
