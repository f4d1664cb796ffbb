package query

import (
	"github.com/amondawa/amondawa/internal/keycodec"
	"github.com/amondawa/amondawa/internal/value"
)

// Simple collects every (timestamp, value) pair per tagset unchanged,
// matching SimpleQueryCallback.
type Simple struct {
	metric     string
	results    []Result
	sampleSize int
	current    *Result
}

// NewSimple builds a Simple callback for metric.
func NewSimple(metric string) *Simple {
	return &Simple{metric: metric}
}

func (s *Simple) StartDatapointSet(tags keycodec.Tags) {
	s.current = &Result{Name: s.metric, Tags: toMultiMap(tags)}
}

func (s *Simple) AddDataPoint(t int64, v value.Value) error {
	s.current.Values = append(s.current.Values, DataPoint{Timestamp: t, Value: v})
	return nil
}

func (s *Simple) EndDatapointSet() error {
	if s.current != nil {
		s.sampleSize += len(s.current.Values)
		s.results = append(s.results, *s.current)
	}
	s.current = nil
	return nil
}

func (s *Simple) Finish() ([]Result, error) {
	return s.results, nil
}

// SampleSize is the total number of datapoints collected across every
// tagset.
func (s *Simple) SampleSize() int { return s.sampleSize }
