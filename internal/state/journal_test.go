// internal/state/journal_test.go
package state

import (
	"testing"

	"github.com/user/wechatgram/internal/types"
)

func TestJournal(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir)

	for i := 0; i < 3; i++ {
		rec := &types.DeliveryFailure{
			ID:     types.NewDeliveryID(),
			Source: "wechat",
			Target: "telegram",
			Kind:   types.KindPhoto,
			Error:  "boom",
		}
		if err := j.Append(rec); err != nil {
			t.Fatal(err)
		}
		if rec.Seq != int64(i+1) {
			t.Errorf("expected seq %d, got %d", i+1, rec.Seq)
		}
	}

	tail, err := j.Tail(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 2 || tail[0].Seq != 2 || tail[1].Seq != 3 {
		t.Errorf("unexpected tail %+v", tail)
	}

	// a fresh journal over the same file continues the sequence
	rec := &types.DeliveryFailure{ID: types.NewDeliveryID(), Error: "again"}
	if err := NewJournal(dir).Append(rec); err != nil {
		t.Fatal(err)
	}
	if rec.Seq != 4 {
		t.Errorf("expected seq 4, got %d", rec.Seq)
	}
}

func TestJournalEmpty(t *testing.T) {
	tail, err := NewJournal(t.TempDir()).Tail(10)
	if err != nil || len(tail) != 0 {
		t.Errorf("expected empty tail, got %v, %v", tail, err)
	}
}
