package gamma

import (
	"encoding/json"
	"testing"
)

func TestMarketDecodesNestedLists(t *testing.T) {
	// Gamma serves outcomes and token IDs as JSON-encoded strings.
	payload := `{
		"id": 512329,
		"question": "Will it happen?",
		"description": "A binary market.",
		"conditionId": "0xabc",
		"outcomes": "[\"Yes\", \"No\"]",
		"outcomePrices": "[\"0.62\", \"0.38\"]",
		"clobTokenIds": "[\"111\", \"222\"]",
		"bestBid": 0.61,
		"bestAsk": 0.63,
		"volume": "15230.5",
		"liquidity": 880.25,
		"active": true
	}`

	var m Market
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		t.Fatalf("unmarshal market: %v", err)
	}

	if m.ID != "512329" {
		t.Errorf("expected id 512329, got %q", m.ID)
	}
	if len(m.Outcomes) != 2 || m.Outcomes[0] != "Yes" || m.Outcomes[1] != "No" {
		t.Errorf("unexpected outcomes %v", m.Outcomes)
	}
	if len(m.ClobTokenIDs) != 2 || m.ClobTokenIDs[0] != "111" {
		t.Errorf("unexpected token ids %v", m.ClobTokenIDs)
	}
	if m.Volume != 15230.5 {
		t.Errorf("expected string-encoded volume to parse, got %v", m.Volume)
	}
	if m.Liquidity != 880.25 {
		t.Errorf("expected numeric liquidity to parse, got %v", m.Liquidity)
	}
}

func TestMarketDecodesPlainLists(t *testing.T) {
	payload := `{"id": "7", "question": "Q", "outcomes": ["Yes", "No"], "clobTokenIds": ["1", "2"]}`

	var m Market
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		t.Fatalf("unmarshal market: %v", err)
	}
	if len(m.Outcomes) != 2 {
		t.Errorf("unexpected outcomes %v", m.Outcomes)
	}
}

func TestMarketRoundTrip(t *testing.T) {
	m := Market{
		ID:       "99",
		Question: "Q",
		Outcomes: []string{"Yes", "No"},
		Volume:   12.5,
	}
	data, err := json.Marshal(&m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Market
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != m.ID || len(back.Outcomes) != 2 || back.Volume != m.Volume {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestMarketRoundTripNonNumericID(t *testing.T) {
	// A checkpointed Market re-encodes its ID as a JSON string; decode
	// must accept it even when the ID is not numeric.
	m := Market{
		ID:           "mkt-1",
		Question:     "Q",
		Outcomes:     []string{"Yes", "No"},
		ClobTokenIDs: []string{"1", "2"},
	}
	data, err := json.Marshal(&m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Market
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal re-encoded market: %v", err)
	}
	if back.ID != "mkt-1" {
		t.Errorf("id = %q, want mkt-1", back.ID)
	}
	if len(back.ClobTokenIDs) != 2 {
		t.Errorf("token ids lost in round trip: %v", back.ClobTokenIDs)
	}
}

func TestNormalizeOutcome(t *testing.T) {
	cases := map[string]string{
		"Yes":  "YES",
		"yes":  "YES",
		" YES": "YES",
		"No":   "NO",
		"no":   "NO",
	}
	for in, want := range cases {
		if got := NormalizeOutcome(in); got != want {
			t.Errorf("NormalizeOutcome(%q) = %q, want %q", in, got, want)
		}
	}
}
