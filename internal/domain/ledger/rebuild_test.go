package ledger

import (
	"testing"
	"time"
)

func day(n int) time.Time {
	return time.Date(2026, 1, n, 0, 0, 0, 0, time.UTC)
}

func ev(dayN int, id int64, kind EventKind, qty string) sourceEvent {
	q := d(qty)
	delta := q
	if kind == Sale || kind == Consumption {
		delta = q.Neg()
	}
	return sourceEvent{Date: day(dayN), RecordID: id, Kind: kind, Quantity: q, Delta: delta}
}

func TestReplayNoDrift(t *testing.T) {
	events := []sourceEvent{
		ev(1, 1, Purchase, "100"),
		ev(2, 2, Consumption, "30"),
		ev(3, 3, Production, "10"),
		ev(4, 4, Sale, "25"),
	}
	entries, report := replay(events, d("55"))

	if !report.Drift.IsZero() {
		t.Fatalf("drift = %s, want 0", report.Drift)
	}
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(entries))
	}
	if !entries[len(entries)-1].BalanceAfter.Equal(d("55")) {
		t.Fatalf("final balance = %s, want 55", entries[len(entries)-1].BalanceAfter)
	}
	// Chain: each entry's after equals the next entry's before.
	for i := 1; i < len(entries); i++ {
		if !entries[i].BalanceBefore.Equal(entries[i-1].BalanceAfter) {
			t.Fatalf("entry %d before = %s, prev after = %s", i, entries[i].BalanceBefore, entries[i-1].BalanceAfter)
		}
	}
}

func TestReplayDriftInsertsSingleAdjustment(t *testing.T) {
	events := []sourceEvent{
		ev(1, 1, Purchase, "100"),
		ev(2, 2, Sale, "40"),
	}
	// History says 60, the article says 75: δ = 15 of inherited inventory.
	entries, report := replay(events, d("75"))

	if !report.Drift.Equal(d("15")) {
		t.Fatalf("drift = %s, want 15", report.Drift)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}

	adj := entries[0]
	if adj.Kind != Adjustment {
		t.Fatalf("first entry kind = %s, want ADJUSTMENT", adj.Kind)
	}
	if !adj.Magnitude.Equal(d("15")) {
		t.Fatalf("adjustment magnitude = %s, want 15", adj.Magnitude)
	}
	if !adj.BalanceBefore.IsZero() || !adj.BalanceAfter.Equal(d("15")) {
		t.Fatalf("adjustment balances = %s/%s, want 0/15", adj.BalanceBefore, adj.BalanceAfter)
	}

	// Subsequent entries are shifted by δ and still land on the truth.
	if !entries[1].BalanceBefore.Equal(d("15")) || !entries[1].BalanceAfter.Equal(d("115")) {
		t.Fatalf("shifted purchase balances = %s/%s, want 15/115", entries[1].BalanceBefore, entries[1].BalanceAfter)
	}
	if !entries[2].BalanceAfter.Equal(d("75")) {
		t.Fatalf("final balance = %s, want 75", entries[2].BalanceAfter)
	}

	count := 0
	for _, en := range entries {
		if en.Kind == Adjustment {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("adjustments = %d, want exactly 1", count)
	}
}

func TestReplayNegativeDrift(t *testing.T) {
	events := []sourceEvent{ev(1, 1, Purchase, "100")}
	// The article only holds 80: δ = -20.
	entries, report := replay(events, d("80"))

	if !report.Drift.Equal(d("-20")) {
		t.Fatalf("drift = %s, want -20", report.Drift)
	}
	if !entries[0].Magnitude.Equal(d("20")) {
		t.Fatalf("adjustment magnitude = %s, want |δ| = 20", entries[0].Magnitude)
	}
	if !entries[0].BalanceAfter.Equal(d("-20")) {
		t.Fatalf("adjustment after = %s, want -20", entries[0].BalanceAfter)
	}
	if !entries[1].BalanceAfter.Equal(d("80")) {
		t.Fatalf("final balance = %s, want 80", entries[1].BalanceAfter)
	}
}

func TestReplayEmptyHistoryWithStock(t *testing.T) {
	entries, report := replay(nil, d("42"))
	if len(entries) != 1 || entries[0].Kind != Adjustment {
		t.Fatalf("want single adjustment entry, got %d entries", len(entries))
	}
	if !report.Drift.Equal(d("42")) {
		t.Fatalf("drift = %s, want 42", report.Drift)
	}
}

func TestReplayOrdersByDateThenRecordID(t *testing.T) {
	// Same date: record id breaks the tie deterministically.
	events := []sourceEvent{
		ev(2, 9, Sale, "5"),
		ev(2, 3, Purchase, "5"),
		ev(1, 7, Purchase, "10"),
	}
	entries, _ := replay(events, d("10"))

	if entries[0].Kind != Purchase || !entries[0].Magnitude.Equal(d("10")) {
		t.Fatalf("first entry should be the day-1 purchase, got %s %s", entries[0].Kind, entries[0].Magnitude)
	}
	if entries[1].Kind != Purchase {
		t.Fatalf("day-2 tiebreak: record 3 (purchase) should precede record 9, got %s", entries[1].Kind)
	}
	if entries[2].Kind != Sale {
		t.Fatalf("last entry should be the day-2 sale, got %s", entries[2].Kind)
	}
}
