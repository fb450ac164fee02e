// Package memory is an in-process run and record store for tests and local
// one-shot runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/igualparatodos/multiwoven/internal/core"
)

// Store keeps runs and records in maps. Returned values are copies.
type Store struct {
	mu      sync.Mutex
	runs    map[string]*core.Run
	records map[string][]*core.Record // runID -> records ordered by id
	nextID  int64

	// Calls counts store operations by name.
	Calls map[string]int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		runs:    make(map[string]*core.Run),
		records: make(map[string][]*core.Record),
		Calls:   make(map[string]int),
	}
}

// AddRun registers a run.
func (s *Store) AddRun(run *core.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
}

// AddRecords queues pending records for a run and assigns their ids.
func (s *Store) AddRecords(runID string, payloads []map[string]any, action core.Action) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, len(payloads))
	for i, p := range payloads {
		s.nextID++
		ids[i] = s.nextID
		s.records[runID] = append(s.records[runID], &core.Record{
			ID:      s.nextID,
			RunID:   runID,
			Payload: p,
			Action:  action,
			Status:  core.RecordPending,
		})
	}
	return ids
}

// Records returns copies of every record of a run.
func (s *Store) Records(runID string) []core.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Record, len(s.records[runID]))
	for i, rec := range s.records[runID] {
		out[i] = *rec
	}
	return out
}

// CallCount returns how often op was called.
func (s *Store) CallCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Calls[op]
}

func (s *Store) GetRun(_ context.Context, runID string) (*core.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["GetRun"]++
	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	cp := *run
	return &cp, nil
}

func (s *Store) UpdateRunStatus(_ context.Context, run *core.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["UpdateRunStatus"]++
	stored, ok := s.runs[run.ID]
	if !ok {
		return fmt.Errorf("run %s not found", run.ID)
	}
	stored.Status = run.Status
	stored.Error = run.Error
	return nil
}

func (s *Store) SaveRunTotals(_ context.Context, runID string, totals core.RunTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["SaveRunTotals"]++
	stored, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	stored.Totals = totals
	return nil
}

func (s *Store) PendingRecords(_ context.Context, runID string, afterID int64, limit int) ([]*core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["PendingRecords"]++

	recs := s.records[runID]
	start := sort.Search(len(recs), func(i int) bool { return recs[i].ID > afterID })

	var out []*core.Record
	for _, rec := range recs[start:] {
		if len(out) >= limit {
			break
		}
		if rec.Status != core.RecordPending {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) UpdateRecord(_ context.Context, rec *core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["UpdateRecord"]++
	return s.apply(rec)
}

func (s *Store) BulkUpdateStatus(_ context.Context, recs []*core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["BulkUpdateStatus"]++
	for _, rec := range recs {
		if err := s.apply(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) apply(rec *core.Record) error {
	for _, stored := range s.records[rec.RunID] {
		if stored.ID == rec.ID {
			stored.Status = rec.Status
			stored.Log = rec.Log
			return nil
		}
	}
	return fmt.Errorf("record %d not found in run %s", rec.ID, rec.RunID)
}
