package testdoubles

import (
	"context"
	"maps"
	"sync"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// SpanRecord is one recorded span. Finished is false until FinishSpan was called for it.
type SpanRecord struct {
	Name            string
	StartAttributes map[string]string
	Status          string
	EndAttributes   map[string]string
	Finished        bool
}

// SpySpan is the circulation.SpanContext handed out by TracingCollectorSpy.
type SpySpan struct {
	index      int
	mu         sync.Mutex
	status     string
	attributes map[string]string
}

func (c *SpySpan) SetStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = status
}

func (c *SpySpan) AddAttribute(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attributes == nil {
		c.attributes = make(map[string]string)
	}

	c.attributes[key] = value
}

// TracingCollectorSpy records spans. It implements circulation.TracingCollector.
type TracingCollectorSpy struct {
	mu    sync.Mutex
	spans []SpanRecord
}

// NewTracingCollectorSpy creates an empty TracingCollectorSpy.
func NewTracingCollectorSpy() *TracingCollectorSpy {
	return &TracingCollectorSpy{}
}

func (s *TracingCollectorSpy) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, circulation.SpanContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spans = append(s.spans, SpanRecord{Name: name, StartAttributes: maps.Clone(attrs)})

	return ctx, &SpySpan{index: len(s.spans) - 1}
}

func (s *TracingCollectorSpy) FinishSpan(spanCtx circulation.SpanContext, status string, attrs map[string]string) {
	span, ok := spanCtx.(*SpySpan)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.spans[span.index].Status = status
	s.spans[span.index].EndAttributes = maps.Clone(attrs)
	s.spans[span.index].Finished = true
}

// Spans returns a copy of all recorded spans.
func (s *TracingCollectorSpy) Spans() []SpanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]SpanRecord(nil), s.spans...)
}

// SpanNamed returns the first span with the given name.
func (s *TracingCollectorSpy) SpanNamed(name string) (SpanRecord, bool) {
	for _, span := range s.Spans() {
		if span.Name == name {
			return span, true
		}
	}

	return SpanRecord{}, false
}

var _ circulation.TracingCollector = (*TracingCollectorSpy)(nil)
