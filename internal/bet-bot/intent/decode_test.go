package intent

import (
	"errors"
	"testing"
)

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, true},
		{"prose around", `Sure! {"a":1} hope it helps {"b":2}`, `{"a":1}`, true},
		{"nested", `x {"a":{"b":1}} y`, `{"a":{"b":1}}`, true},
		{"brace in string", `{"option":"team }{ x","a":1}`, `{"option":"team }{ x","a":1}`, true},
		{"escaped quote", `{"q":"say \"hi\" }","a":1}`, `{"q":"say \"hi\" }","a":1}`, true},
		{"unterminated string falls back to greedy", `x {"a": "open } y`, `{"a": "open }`, true},
		{"no object", `nothing here`, "", false},
		{"only open brace", `{ "a": 1`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FirstJSONObject(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("FirstJSONObject(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDecodeBetRequest(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    BetRequest
		wantErr error
	}{
		{"direct", `{"amount": 20, "option": "Pakistan", "event_query": "Friday's match"}`, BetRequest{20, "Pakistan", "Friday's match"}, nil},
		{"code fence", "```json\n{\"amount\": 50, \"option\": \"India\", \"event_query\": \"India vs Pakistan\"}\n```", BetRequest{50, "India", "India vs Pakistan"}, nil},
		{"string amount", `{"amount": "15", "option": "red", "event_query": "roulette"}`, BetRequest{15, "red", "roulette"}, nil},
		{"integral float", `{"amount": 15.0, "option": "red", "event_query": "roulette"}`, BetRequest{15, "red", "roulette"}, nil},
		{"empty object", `{}`, BetRequest{}, ErrMissingField},
		{"missing event", `{"amount": 5, "option": "x"}`, BetRequest{}, ErrMissingField},
		{"blank option", `{"amount": 5, "option": "  ", "event_query": "y"}`, BetRequest{}, ErrMissingField},
		{"option not string", `{"amount": 5, "option": 3, "event_query": "y"}`, BetRequest{}, ErrMissingField},
		{"fraction", `{"amount": 2.5, "option": "x", "event_query": "y"}`, BetRequest{}, ErrBadAmount},
		{"negative", `{"amount": -2, "option": "x", "event_query": "y"}`, BetRequest{}, ErrBadAmount},
		{"zero", `{"amount": 0, "option": "x", "event_query": "y"}`, BetRequest{}, ErrBadAmount},
		{"words", `{"amount": "twenty", "option": "x", "event_query": "y"}`, BetRequest{}, ErrBadAmount},
		{"null amount", `{"amount": null, "option": "x", "event_query": "y"}`, BetRequest{}, ErrBadAmount},
		{"no json", `I am not sure what you mean.`, BetRequest{}, ErrNoJSONObject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBetRequest(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeBetRequest() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeBetRequest() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("DecodeBetRequest() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeBetRequestMalformedJSON(t *testing.T) {
	if _, err := DecodeBetRequest(`{"amount": 5, "option": }`); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}
