package store

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func testIntentRow(id string, at int64) *IntentRow {
	return &IntentRow{
		ID:         id,
		Op:         "create",
		TableName:  "todos",
		Data:       []byte(`{"todo":{"id":"tmp_x"}}`),
		EnqueuedAt: at,
	}
}

// TestInsertIntent_Durability tests that intents survive a reopen
func TestInsertIntent_Durability(t *testing.T) {
	path := testDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	base := time.Now().UnixMilli()
	for i := 0; i < 5; i++ {
		row := testIntentRow(fmt.Sprintf("intent-%d", i), base+int64(i))
		if err := db.InsertIntent(row); err != nil {
			t.Fatalf("InsertIntent() failed: %v", err)
		}
	}

	// Simulate process restart
	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	intents, err := db.ListIntents(3)
	if err != nil {
		t.Fatalf("ListIntents() failed: %v", err)
	}
	if len(intents) != 5 {
		t.Fatalf("ListIntents() returned %d intents, want 5", len(intents))
	}
	for i, row := range intents {
		want := fmt.Sprintf("intent-%d", i)
		if row.ID != want {
			t.Errorf("intents[%d].ID = %q, want %q (order not preserved)", i, row.ID, want)
		}
	}
}

// TestListIntents_RetryFilter tests the retries < max filter
func TestListIntents_RetryFilter(t *testing.T) {
	db := openTestDB(t)

	base := time.Now().UnixMilli()
	fresh := testIntentRow("fresh", base)
	tired := testIntentRow("tired", base+1)
	tired.Retries = 3
	for _, row := range []*IntentRow{fresh, tired} {
		if err := db.InsertIntent(row); err != nil {
			t.Fatalf("InsertIntent() failed: %v", err)
		}
	}

	intents, err := db.ListIntents(3)
	if err != nil {
		t.Fatalf("ListIntents() failed: %v", err)
	}
	if len(intents) != 1 || intents[0].ID != "fresh" {
		t.Errorf("ListIntents(3) = %v, want [fresh]", intents)
	}
}

// TestBumpIntentRetries tests increment and missing-row behavior
func TestBumpIntentRetries(t *testing.T) {
	db := openTestDB(t)

	row := testIntentRow("intent-1", time.Now().UnixMilli())
	if err := db.InsertIntent(row); err != nil {
		t.Fatalf("InsertIntent() failed: %v", err)
	}

	for want := 1; want <= 3; want++ {
		got, err := db.BumpIntentRetries("intent-1")
		if err != nil {
			t.Fatalf("BumpIntentRetries() failed: %v", err)
		}
		if got != want {
			t.Errorf("BumpIntentRetries() = %d, want %d", got, want)
		}
	}

	if _, err := db.BumpIntentRetries("missing"); err == nil {
		t.Error("BumpIntentRetries() on missing intent should fail")
	}
}

// TestDeleteIntent_Idempotent tests delete of present and missing rows
func TestDeleteIntent_Idempotent(t *testing.T) {
	db := openTestDB(t)

	row := testIntentRow("intent-1", time.Now().UnixMilli())
	if err := db.InsertIntent(row); err != nil {
		t.Fatalf("InsertIntent() failed: %v", err)
	}

	if err := db.DeleteIntent("intent-1"); err != nil {
		t.Fatalf("DeleteIntent() failed: %v", err)
	}
	if err := db.DeleteIntent("intent-1"); err != nil {
		t.Errorf("second DeleteIntent() should be a no-op, got %v", err)
	}

	count, err := db.CountIntents()
	if err != nil {
		t.Fatalf("CountIntents() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("CountIntents() = %d, want 0", count)
	}
}

// TestIntentRetryCounts tests the retries histogram
func TestIntentRetryCounts(t *testing.T) {
	db := openTestDB(t)

	base := time.Now().UnixMilli()
	for i, retries := range []int{0, 0, 1, 2} {
		row := testIntentRow(fmt.Sprintf("intent-%d", i), base+int64(i))
		row.Retries = retries
		if err := db.InsertIntent(row); err != nil {
			t.Fatalf("InsertIntent() failed: %v", err)
		}
	}

	counts, err := db.IntentRetryCounts(context.Background())
	if err != nil {
		t.Fatalf("IntentRetryCounts() failed: %v", err)
	}
	if counts[0] != 2 || counts[1] != 1 || counts[2] != 1 {
		t.Errorf("IntentRetryCounts() = %v, want map[0:2 1:1 2:1]", counts)
	}
}
