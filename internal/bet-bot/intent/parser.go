package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// bet <amount> on <option> for <event query>; option é não-guloso até o primeiro " for "
var betCommand = regexp.MustCompile(`(?is)\bbet\s+(\S+)\s+on\s+(.+?)\s+for\s+(.+)`)

// mention no início da mensagem, ex: "<@U0BOT> bet 50 ..."
var leadingMention = regexp.MustCompile(`^\s*<@[^>]+>\s*`)

// ParseCommand tenta casar o comando estruturado. ok=false é NoMatch.
// O amount precisa ser um inteiro não negativo; 0 casa, mas a requisição é inválida.
func ParseCommand(text string) (BetRequest, bool) {
	m := betCommand.FindStringSubmatch(text)
	if m == nil {
		return BetRequest{}, false
	}
	if strings.HasPrefix(m[1], "-") || strings.HasPrefix(m[1], "+") {
		return BetRequest{}, false
	}
	amount, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || amount < 0 {
		return BetRequest{}, false
	}
	return BetRequest{
		Amount:     amount,
		Option:     strings.TrimSpace(m[2]),
		EventQuery: strings.TrimSpace(m[3]),
	}, true
}

// StripMention remove a menção ao bot do começo do texto
func StripMention(text string) string {
	return strings.TrimSpace(leadingMention.ReplaceAllString(text, ""))
}

// IsListOpenEvents reconhece "show open events" em qualquer posição
func IsListOpenEvents(text string) bool {
	return strings.Contains(strings.ToLower(text), "show open events")
}

// IsBalance reconhece "balance" / "my credits" como mensagem inteira
func IsBalance(text string) bool {
	switch strings.Trim(strings.ToLower(strings.TrimSpace(text)), "?!. ") {
	case "balance", "my balance", "credits", "my credits":
		return true
	}
	return false
}
