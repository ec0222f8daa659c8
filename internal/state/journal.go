// internal/state/journal.go
package state

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/wechatgram/internal/types"
)

// Journal is a JSONL-backed append-only log of delivery failures, stored
// in deliveries.jsonl.
type Journal struct {
	path string
	mu   sync.Mutex
	seq  int64
}

// NewJournal creates a Journal rooted at the given directory.
func NewJournal(root string) *Journal {
	return &Journal{path: filepath.Join(root, "deliveries.jsonl"), seq: -1}
}

// count reads the journal and counts lines. Caller must hold the lock.
func (j *Journal) count() (int64, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var count int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan journal: %w", err)
	}
	return count, nil
}

// Append adds a record with the next sequence number.
func (j *Journal) Append(rec *types.DeliveryFailure) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.seq < 0 {
		n, err := j.count()
		if err != nil {
			return err
		}
		j.seq = n
	}
	j.seq++
	rec.Seq = j.seq

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal delivery record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write delivery record: %w", err)
	}
	return nil
}

// Tail returns the last limit records, oldest first.
func (j *Journal) Tail(limit int) ([]*types.DeliveryFailure, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var records []*types.DeliveryFailure
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec types.DeliveryFailure
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal delivery record: %w", err)
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}

	if limit >= 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}
