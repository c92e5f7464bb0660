package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMoneyRoundsToMinorUnit(t *testing.T) {
	m := NewMoneyFromDecimal(decimal.RequireFromString("12.345"))
	if m.String() != "12.35" {
		t.Fatalf("expected 12.35, got %s", m.String())
	}
	sum := MustMoney("10.00").Add(MustMoney("15.00")).Add(MustMoney("30.00"))
	if sum.String() != "55.00" {
		t.Fatalf("expected 55.00, got %s", sum.String())
	}
	if diff := MustMoney("55.00").Sub(MustMoney("2.75")); diff.String() != "52.25" {
		t.Fatalf("expected 52.25, got %s", diff.String())
	}
}

func TestMoneyJSONAcceptsStringAndNumber(t *testing.T) {
	var fromString Money
	if err := json.Unmarshal([]byte(`"20.5"`), &fromString); err != nil {
		t.Fatalf("unmarshal string failed: %v", err)
	}
	var fromNumber Money
	if err := json.Unmarshal([]byte(`20.5`), &fromNumber); err != nil {
		t.Fatalf("unmarshal number failed: %v", err)
	}
	if !fromString.Equal(fromNumber.Decimal) {
		t.Fatalf("expected equal amounts, got %s and %s", fromString, fromNumber)
	}
	out, err := json.Marshal(fromString)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != `"20.50"` {
		t.Fatalf("unexpected json output: %s", out)
	}
}

func TestUintArrayScanHandlesStringAndBytes(t *testing.T) {
	var fromString UintArray
	if err := fromString.Scan(`[1,2,3]`); err != nil {
		t.Fatalf("scan string failed: %v", err)
	}
	var fromBytes UintArray
	if err := fromBytes.Scan([]byte(`[4]`)); err != nil {
		t.Fatalf("scan bytes failed: %v", err)
	}
	if len(fromString) != 3 || fromString[2] != 3 || len(fromBytes) != 1 || fromBytes[0] != 4 {
		t.Fatalf("unexpected scan result: %v %v", fromString, fromBytes)
	}
	var empty UintArray
	if err := empty.Scan(nil); err != nil || len(empty) != 0 {
		t.Fatalf("expected empty array, got %v err=%v", empty, err)
	}
}

func TestCommissionRuleActiveAt(t *testing.T) {
	now := mustParseTime(t, "2026-03-01T12:00:00Z")
	past := now.Add(-1)
	future := now.Add(1)
	cases := []struct {
		name string
		rule CommissionRule
		want bool
	}{
		{name: "no window", rule: CommissionRule{}, want: true},
		{name: "started", rule: CommissionRule{StartDate: &past}, want: true},
		{name: "not started", rule: CommissionRule{StartDate: &future}, want: false},
		{name: "expired", rule: CommissionRule{EndDate: &past}, want: false},
		{name: "open end", rule: CommissionRule{StartDate: &past, EndDate: &future}, want: true},
	}
	for _, tc := range cases {
		if got := tc.rule.ActiveAt(now); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func mustParseTime(t *testing.T, raw string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t.Fatalf("parse time failed: %v", err)
	}
	return parsed
}
