package pipeline

import (
	"context"
	"sync"

	"quakewatch/internal/dedup"
)

// FakeStore is an in-memory test fake for DedupStore.
type FakeStore struct {
	mu         sync.Mutex
	Records    map[dedup.Key]dedup.Record
	LookupErr  error
	InsertErr  error
	LookupCnt  int
	InsertCnt  int
	FailInsert map[dedup.Key]error // per-key insert failures
}

func NewFakeStore() *FakeStore {
	return &FakeStore{Records: make(map[dedup.Key]dedup.Record)}
}

func (f *FakeStore) Lookup(ctx context.Context, keys []dedup.Key) ([]dedup.Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LookupCnt++
	if f.LookupErr != nil {
		return nil, f.LookupErr
	}
	var known []dedup.Key
	for _, k := range keys {
		if _, ok := f.Records[k]; ok {
			known = append(known, k)
		}
	}
	return known, nil
}

func (f *FakeStore) Insert(ctx context.Context, rec dedup.Record) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InsertCnt++
	if f.InsertErr != nil {
		return false, f.InsertErr
	}
	if err, ok := f.FailInsert[rec.Key]; ok {
		return false, err
	}
	if _, ok := f.Records[rec.Key]; ok {
		return false, nil
	}
	f.Records[rec.Key] = rec
	return true, nil
}
