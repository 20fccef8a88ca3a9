package organizer

import (
	"context"
	"testing"

	"github.com/scwf/prod-scout/internal/domain"
	"github.com/scwf/prod-scout/pkg/logger"
)

func testLogger() logger.Logger { return logger.New(logger.Opts{Env: "development"}) }

type fakeLLM struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func runStageOnce(t *testing.T, s *Stage, post *domain.Post) *domain.Post {
	t.Helper()
	in := make(chan *domain.Post, 2)
	out := make(chan *domain.Post, 2)
	s.in = in
	s.out = out

	in <- post
	in <- nil
	close(in)

	s.Run(context.Background())
	close(out)

	return <-out
}

func TestClassifyParsesValidCompletion(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"event":"Launch","category":"Product","domain":"AI","quality_score":4,"quality_reason":"notable","key_info":["a","b"],"detail":"details here"}`}}
	stage := NewStage(Config{PoolSize: 1, AllowedDomains: []string{"AI", "Others"}}, llm, nil, nil, testLogger())

	got := runStageOnce(t, stage, &domain.Post{Title: "x", Content: "y"})

	if got.Event != "Launch" || got.QualityScore != 4 || got.Domain != "AI" {
		t.Fatalf("unexpected classification: %+v", got)
	}
}

func TestClassifyClampsOutOfRangeScore(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"event":"x","domain":"Others","quality_score":9,"key_info":[]}`}}
	stage := NewStage(Config{PoolSize: 1, AllowedDomains: []string{"Others"}}, llm, nil, nil, testLogger())

	got := runStageOnce(t, stage, &domain.Post{Title: "x"})

	if got.QualityScore != 5 {
		t.Fatalf("expected score clamped to 5, got %d", got.QualityScore)
	}
}

func TestClassifyDefaultsUnknownDomainToOthers(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"event":"x","domain":"NotAllowed","quality_score":3}`}}
	stage := NewStage(Config{PoolSize: 1, AllowedDomains: []string{"AI", "Others"}}, llm, nil, nil, testLogger())

	got := runStageOnce(t, stage, &domain.Post{Title: "x"})

	if got.Domain != "Others" {
		t.Fatalf("expected domain defaulted to Others, got %q", got.Domain)
	}
}

func TestClassifyCapsKeyInfoAtTenItems(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"event":"x","domain":"Others","quality_score":3,"key_info":["1","2","3","4","5","6","7","8","9","10","11","12"]}`}}
	stage := NewStage(Config{PoolSize: 1, AllowedDomains: []string{"Others"}}, llm, nil, nil, testLogger())

	got := runStageOnce(t, stage, &domain.Post{Title: "x"})

	if len(got.KeyInfo) != 10 {
		t.Fatalf("expected key_info capped at 10, got %d", len(got.KeyInfo))
	}
}

func TestClassifyMarksExcludedAfterRepeatedFailure(t *testing.T) {
	llm := &fakeLLM{responses: []string{"not json", "still not json", "nope"}}
	stage := NewStage(Config{PoolSize: 1, RetryOnFailure: 2, AllowedDomains: []string{"Others"}}, llm, nil, nil, testLogger())

	got := runStageOnce(t, stage, &domain.Post{Title: "x"})

	if got.QualityScore != 0 || got.QualityReason != failedQualityReason {
		t.Fatalf("expected organizer_failed marker, got score=%d reason=%q", got.QualityScore, got.QualityReason)
	}
}
