package intent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrNoJSONObject = errors.New("no json object in response")
	ErrMissingField = errors.New("missing field")
	ErrBadAmount    = errors.New("malformed amount")
)

// FirstJSONObject devolve o primeiro trecho {...} balanceado do texto.
// Chaves dentro de strings JSON são ignoradas. Sem span balanceado, cai no
// trecho guloso do primeiro '{' ao último '}'.
func FirstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	end := strings.LastIndexByte(s, '}')
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// DecodeBetRequest procura o objeto JSON no texto bruto do modelo e valida o schema
// {amount, option, event_query}. Qualquer falha vira erro; nunca entra em pânico.
func DecodeBetRequest(raw string) (BetRequest, error) {
	span, ok := FirstJSONObject(raw)
	if !ok {
		return BetRequest{}, ErrNoJSONObject
	}

	var fields map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader([]byte(span)))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return BetRequest{}, fmt.Errorf("decode json object: %w", err)
	}

	rawAmount, ok := fields["amount"]
	if !ok {
		return BetRequest{}, fmt.Errorf("%w: amount", ErrMissingField)
	}
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return BetRequest{}, err
	}

	option, err := stringField(fields, "option")
	if err != nil {
		return BetRequest{}, err
	}
	query, err := stringField(fields, "event_query")
	if err != nil {
		return BetRequest{}, err
	}

	return BetRequest{Amount: amount, Option: option, EventQuery: query}, nil
}

// parseAmount aceita número inteiro ou string numérica ("20"); frações e negativos são rejeitados
func parseAmount(raw json.RawMessage) (int64, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadAmount, err)
	}

	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	default:
		return 0, fmt.Errorf("%w: %T", ErrBadAmount, v)
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// 20.0 é aceito, 20.5 não
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
			return 0, fmt.Errorf("%w: %q", ErrBadAmount, s)
		}
		n = int64(f)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrBadAmount, n)
	}
	return n, nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s is not a string", ErrMissingField, key)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	return s, nil
}
