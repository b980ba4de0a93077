package cloudwatch

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/dreschagin/quality-gate/pkg/logger"
)

type fakeLogs struct {
	mu        sync.Mutex
	inputs    []*cloudwatchlogs.PutLogEventsInput
	badToken  bool
	groupErr  error
	streamErr error
}

func (f *fakeLogs) PutLogEvents(_ context.Context, in *cloudwatchlogs.PutLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.badToken {
		f.badToken = false
		return nil, &types.InvalidSequenceTokenException{ExpectedSequenceToken: aws.String("expected-token")}
	}
	f.inputs = append(f.inputs, in)
	return &cloudwatchlogs.PutLogEventsOutput{NextSequenceToken: aws.String("next-token")}, nil
}

func (f *fakeLogs) CreateLogGroup(context.Context, *cloudwatchlogs.CreateLogGroupInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error) {
	return &cloudwatchlogs.CreateLogGroupOutput{}, f.groupErr
}

func (f *fakeLogs) CreateLogStream(context.Context, *cloudwatchlogs.CreateLogStreamInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	return &cloudwatchlogs.CreateLogStreamOutput{}, f.streamErr
}

func TestConvertToLogEvent(t *testing.T) {
	timestamp := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	entry := logger.Entry{
		Timestamp: timestamp,
		Level:     "INFO",
		Message:   "Deployment validation completed",
		Fields: map[string]interface{}{
			"approved": true,
			"score":    "94.3",
			"issues":   2,
		},
	}

	event, err := convertToLogEvent(entry)
	if err != nil {
		t.Fatalf("Failed to convert log entry: %v", err)
	}

	if event.Timestamp == nil || *event.Timestamp != timestamp.UnixMilli() {
		t.Errorf("Expected Timestamp=%d, got %v", timestamp.UnixMilli(), event.Timestamp)
	}
	if event.Message == nil {
		t.Fatal("Expected Message to be set")
	}

	var logData map[string]interface{}
	if err := json.Unmarshal([]byte(*event.Message), &logData); err != nil {
		t.Fatalf("Failed to parse log message as JSON: %v", err)
	}
	if logData["level"] != "INFO" {
		t.Errorf("Expected level=INFO, got %v", logData["level"])
	}
	if logData["message"] != "Deployment validation completed" {
		t.Errorf("Unexpected message %v", logData["message"])
	}

	fields, ok := logData["fields"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected fields to be a map")
	}
	if fields["approved"] != true {
		t.Errorf("Expected approved=true, got %v", fields["approved"])
	}
	// JSON numbers are float64
	if issues, ok := fields["issues"].(float64); !ok || issues != 2 {
		t.Errorf("Expected issues=2, got %v", fields["issues"])
	}
}

func TestConvertToLogEvent_Truncation(t *testing.T) {
	entry := logger.Entry{
		Timestamp: time.Now(),
		Level:     "INFO",
		Message:   strings.Repeat("x", maxLogEventSize+1000),
	}

	event, err := convertToLogEvent(entry)
	if err != nil {
		t.Fatalf("Failed to convert log entry: %v", err)
	}

	messageLen := len(*event.Message)
	if messageLen > maxLogEventSize {
		t.Errorf("Expected message to be truncated to %d bytes, got %d", maxLogEventSize, messageLen)
	}
	if !strings.HasSuffix(*event.Message, "...") {
		t.Error("Expected truncation marker '...' at end of message")
	}
}

func TestFlush_SortsChronologicallyAndTracksToken(t *testing.T) {
	api := &fakeLogs{badToken: true}
	p := newLogsPublisher(api, LogsPublisherConfig{LogGroupName: "/quality-gate", LogStreamName: "host-1", BufferSize: 10})

	now := time.Now()
	for _, e := range []logger.Entry{
		{Timestamp: now.Add(5 * time.Second), Level: "INFO", Message: "Third"},
		{Timestamp: now, Level: "INFO", Message: "First"},
		{Timestamp: now.Add(2 * time.Second), Level: "WARN", Message: "Second"},
	} {
		if err := p.Publish(context.Background(), e); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(api.inputs) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(api.inputs))
	}

	input := api.inputs[0]
	if input.SequenceToken == nil || *input.SequenceToken != "expected-token" {
		t.Errorf("Expected retry with expected sequence token, got %v", input.SequenceToken)
	}
	for i, want := range []string{"First", "Second", "Third"} {
		if !strings.Contains(*input.LogEvents[i].Message, want) {
			t.Errorf("Event %d: expected %s, got %s", i, want, *input.LogEvents[i].Message)
		}
	}
	if p.sequenceToken == nil || *p.sequenceToken != "next-token" {
		t.Errorf("Expected next sequence token to be stored")
	}
}

func TestEnsureLogGroupAndStream_IgnoresExisting(t *testing.T) {
	api := &fakeLogs{
		groupErr:  &types.ResourceAlreadyExistsException{},
		streamErr: &types.ResourceAlreadyExistsException{},
	}
	p := newLogsPublisher(api, LogsPublisherConfig{LogGroupName: "/quality-gate", LogStreamName: "host-1"})

	if err := p.ensureLogGroupAndStream(context.Background()); err != nil {
		t.Fatalf("Expected existing resources to be accepted, got %v", err)
	}
}

func TestNormalizeLogsConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    LogsPublisherConfig
		expectErr bool
	}{
		{"valid config", LogsPublisherConfig{LogGroupName: "/aws/test", LogStreamName: "s", Region: "us-east-1"}, false},
		{"missing log group", LogsPublisherConfig{LogStreamName: "s", Region: "us-east-1"}, true},
		{"missing log stream", LogsPublisherConfig{LogGroupName: "/aws/test", Region: "us-east-1"}, true},
		{"missing region", LogsPublisherConfig{LogGroupName: "/aws/test", LogStreamName: "s"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config
			err := normalizeLogsConfig(&cfg)
			if (err != nil) != tt.expectErr {
				t.Fatalf("normalizeLogsConfig() error = %v, expectErr %v", err, tt.expectErr)
			}
			if err == nil && (cfg.BufferSize != 50 || cfg.FlushInterval != 5*time.Second) {
				t.Errorf("Expected defaults applied, got %d / %v", cfg.BufferSize, cfg.FlushInterval)
			}
		})
	}
}
