package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dbtuneai/pgvacuum/pkg/events"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestFileSink(t *testing.T) (*FileSink, string) {
	logger := log.New()
	logger.SetLevel(log.ErrorLevel)

	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	sink, err := NewFileSink(path, logger)
	require.NoError(t, err)

	return sink, path
}

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestNewFileSink(t *testing.T) {
	sink, _ := createTestFileSink(t)
	defer sink.Close()

	assert.Equal(t, "file", sink.Name())
	assert.NotNil(t, sink.file)
	assert.NotNil(t, sink.writer)
}

func TestNewFileSinkBadPath(t *testing.T) {
	_, err := NewFileSink(filepath.Join(t.TempDir(), "missing", "decisions.jsonl"), log.New())
	assert.Error(t, err)
}

func TestFileSink_ProcessDecisionEvent(t *testing.T) {
	sink, path := createTestFileSink(t)
	ctx := context.Background()

	event := events.NewDecisionEvent("run-1", events.Decision{
		Class:    "vacuum",
		Table:    "public.orders",
		Action:   "vacuum",
		Decision: "async",
		Rows:     150000000,
		Size:     1024,
	})
	require.NoError(t, sink.Process(ctx, event))
	require.NoError(t, sink.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "decision", lines[0]["type"])
	assert.Equal(t, "run-1", lines[0]["run_id"])
	assert.Equal(t, "public.orders", lines[0]["table"])
	assert.Equal(t, "async", lines[0]["decision"])
	assert.Equal(t, float64(150000000), lines[0]["rows"])
}

func TestFileSink_ReportIsFlushed(t *testing.T) {
	sink, path := createTestFileSink(t)
	defer sink.Close()

	summary := events.Summary{RunID: "run-2", Dispatched: 4, Skipped: 1}
	require.NoError(t, sink.Process(context.Background(), events.NewReportEvent(summary)))

	// No explicit Flush or Close: the report must already be on disk.
	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "report", lines[0]["type"])
	report := lines[0]["summary"].(map[string]interface{})
	assert.Equal(t, float64(4), report["dispatched"])
}

func TestFileSink_AppendsAcrossRuns(t *testing.T) {
	sink, path := createTestFileSink(t)
	require.NoError(t, sink.Process(context.Background(), events.NewErrorEvent("run-1", "public.t", errors.New("boom"))))
	require.NoError(t, sink.Close())

	again, err := NewFileSink(path, log.New())
	require.NoError(t, err)
	require.NoError(t, again.Process(context.Background(), events.NewErrorEvent("run-2", "public.t", errors.New("boom"))))
	require.NoError(t, again.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, "run-1", lines[0]["run_id"])
	assert.Equal(t, "run-2", lines[1]["run_id"])
	assert.Equal(t, "boom", lines[1]["message"])
}

type unknownEvent struct {
	events.BaseEvent
}

func TestFileSink_UnknownEvent(t *testing.T) {
	sink, path := createTestFileSink(t)
	require.NoError(t, sink.Process(context.Background(), unknownEvent{}))
	require.NoError(t, sink.Close())

	assert.Empty(t, readLines(t, path))
}
