package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	counts map[pipeline.EntityType]int64
	err    error
}

func (c *fakeCounter) CountLiveRows(ctx context.Context, entity pipeline.EntityType) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	return c.counts[entity], nil
}

type countingSink struct {
	name  string
	count int64
	err   error
}

func (s *countingSink) Name() string { return s.name }

func (s *countingSink) Write(ctx context.Context, event *pipeline.ChangeEvent) error {
	return nil
}

func (s *countingSink) Count(ctx context.Context, entity pipeline.EntityType) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.count, nil
}

func (s *countingSink) Ping(ctx context.Context) error { return nil }

func (s *countingSink) Close() error { return nil }

func testAuditor(source RowCounter,
	targets map[pipeline.EntityType][]pipeline.EventSink, tolerance int64) *Auditor {

	return NewAuditor(source, targets, time.Minute, tolerance, nil,
		observability.NewNopLogger())
}

func TestAuditReportsDriftAboveTolerance(t *testing.T) {
	source := &fakeCounter{counts: map[pipeline.EntityType]int64{
		pipeline.EntityContent: 100,
	}}

	lagging := &countingSink{name: "search", count: 98}

	auditor := testAuditor(source, map[pipeline.EntityType][]pipeline.EventSink{
		pipeline.EntityContent: {lagging},
	}, 1)

	report := auditor.RunOnce(context.Background())

	require.Len(t, report.Entities, 1)
	entity := report.Entities[0]

	assert.True(t, entity.DriftDetected)
	assert.Equal(t, int64(100), entity.SourceCount)

	require.Len(t, entity.SinkCounts, 1)
	assert.Equal(t, int64(98), entity.SinkCounts[0].Count)
	assert.Equal(t, int64(2), entity.SinkCounts[0].Drift)
}

func TestAuditDriftWithinToleranceIsNormalLag(t *testing.T) {
	source := &fakeCounter{counts: map[pipeline.EntityType]int64{
		pipeline.EntityContent: 100,
	}}

	sink := &countingSink{name: "columnar", count: 99}

	auditor := testAuditor(source, map[pipeline.EntityType][]pipeline.EventSink{
		pipeline.EntityContent: {sink},
	}, 2)

	report := auditor.RunOnce(context.Background())

	assert.False(t, report.Entities[0].DriftDetected)
	assert.Equal(t, int64(1), report.Entities[0].SinkCounts[0].Drift)
}

func TestAuditSinkCountErrorIsReportedNotFatal(t *testing.T) {
	source := &fakeCounter{counts: map[pipeline.EntityType]int64{
		pipeline.EntityCreator: 50,
	}}

	broken := &countingSink{name: "bus", err: errors.New("broker unreachable")}
	healthy := &countingSink{name: "search", count: 50}

	auditor := testAuditor(source, map[pipeline.EntityType][]pipeline.EventSink{
		pipeline.EntityCreator: {broken, healthy},
	}, 0)

	report := auditor.RunOnce(context.Background())

	require.Len(t, report.Entities[0].SinkCounts, 2)
	assert.Equal(t, "broker unreachable", report.Entities[0].SinkCounts[0].Error)
	assert.Equal(t, int64(50), report.Entities[0].SinkCounts[1].Count)
	assert.False(t, report.Entities[0].DriftDetected)
}

func TestAuditSourceErrorSkipsEntity(t *testing.T) {
	source := &fakeCounter{err: errors.New("source down")}

	auditor := testAuditor(source, map[pipeline.EntityType][]pipeline.EventSink{
		pipeline.EntityAccount: {&countingSink{name: "bus"}},
	}, 0)

	report := auditor.RunOnce(context.Background())

	require.Len(t, report.Entities, 1)
	assert.Empty(t, report.Entities[0].SinkCounts)
	assert.False(t, report.Entities[0].DriftDetected)
}

func TestAuditReportCarriesRunMetadata(t *testing.T) {
	source := &fakeCounter{counts: map[pipeline.EntityType]int64{}}

	auditor := testAuditor(source, nil, 3)

	report := auditor.RunOnce(context.Background())

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, int64(3), report.Tolerance)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}
