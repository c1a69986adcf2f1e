package service_test

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/okian/bsn/internal/domain/model"
)

// memStore keeps artifacts in memory; missing entries report fs.ErrNotExist.
type memStore struct {
	mu        sync.Mutex
	records   map[string]model.VideoRecord
	curves    map[string]model.BoundaryCurve
	proposals map[string][]model.Proposal
	features  map[string]*mat.Dense
	evaluated map[string][]model.Proposal
	results   map[string]model.ResultDocument
}

func newMemStore(records map[string]model.VideoRecord) *memStore {
	for name, r := range records {
		r.Name = name
		records[name] = r
	}
	return &memStore{
		records:   records,
		curves:    map[string]model.BoundaryCurve{},
		proposals: map[string][]model.Proposal{},
		features:  map[string]*mat.Dense{},
		evaluated: map[string][]model.Proposal{},
		results:   map[string]model.ResultDocument{},
	}
}

func missing(kind, name string) error {
	return fmt.Errorf("%s %s: %w", kind, name, fs.ErrNotExist)
}

func (m *memStore) LoadVideoRecords(context.Context) (map[string]model.VideoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.VideoRecord, len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) ReadBoundaryCurve(_ context.Context, video string) (model.BoundaryCurve, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.curves[video]
	if !ok {
		return model.BoundaryCurve{}, missing("curve", video)
	}
	return c, nil
}

func (m *memStore) ReadActionCurve(_ context.Context, video string) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.curves[video]
	if !ok {
		return nil, missing("curve", video)
	}
	return c.Action, nil
}

func (m *memStore) WriteProposals(_ context.Context, video string, props []model.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals[video] = append([]model.Proposal(nil), props...)
	return nil
}

func (m *memStore) ReadProposals(_ context.Context, video string) ([]model.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[video]
	if !ok {
		return nil, missing("proposals", video)
	}
	return p, nil
}

func (m *memStore) WriteFeatures(_ context.Context, video string, d *mat.Dense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features[video] = d
	return nil
}

func (m *memStore) ReadFeatures(_ context.Context, video string) (*mat.Dense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.features[video]
	if !ok {
		return nil, missing("features", video)
	}
	return d, nil
}

func (m *memStore) ReadEvaluatedProposals(_ context.Context, video string) ([]model.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.evaluated[video]
	if !ok {
		return nil, missing("evaluated proposals", video)
	}
	return p, nil
}

func (m *memStore) WriteResults(_ context.Context, subset string, doc model.ResultDocument) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[subset] = doc
	return "mem://" + subset, nil
}
