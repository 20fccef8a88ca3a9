package enricher

import (
	"context"
	"testing"

	"github.com/scwf/prod-scout/internal/domain"
	"github.com/scwf/prod-scout/pkg/logger"
)

func testLogger() logger.Logger { return logger.New(logger.Opts{Env: "development"}) }

type fakeRenderer struct {
	text string
	err  error
}

func (f *fakeRenderer) Render(ctx context.Context, url string) (string, error) { return f.text, f.err }

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, batchID, videoURL, sourceName, context string) (string, error) {
	return f.text, f.err
}

func runStageOnce(t *testing.T, s *Stage, post *domain.Post) *domain.Post {
	t.Helper()
	in := make(chan *domain.Post, 2)
	out := make(chan *domain.Post, 2)
	s.in = in
	s.out = out

	in <- post
	in <- nil // sentinel
	close(in)

	s.Run(context.Background())
	close(out)

	got := <-out
	return got
}

func TestEnrichAppendsEmbeddedSection(t *testing.T) {
	post := &domain.Post{
		Content:    "check this out https://blog.example/post-1",
		SourceType: domain.SourceBlog,
	}
	stage := NewStage(Config{PoolSize: 1}, "batch1", &fakeRenderer{text: "article body"}, &fakeTranscriber{}, nil, nil, nil, testLogger())

	got := runStageOnce(t, stage, post)

	if got.ExtraContent == "" {
		t.Fatal("expected non-empty extra_content")
	}
	if got.ContentHash != "" {
		t.Error("enricher must not populate content_hash, that's the writer's job")
	}
}

func TestEnrichFiltersSelfLinks(t *testing.T) {
	post := &domain.Post{
		Content:    "see my other tweet https://x.com/acct/status/123 and https://blog.example/a",
		SourceType: domain.SourceMicroblog,
	}
	stage := NewStage(Config{PoolSize: 1}, "batch1", &fakeRenderer{text: "body"}, &fakeTranscriber{}, nil, nil, nil, testLogger())

	got := runStageOnce(t, stage, post)

	for _, u := range got.ExtraURLs {
		if u == "https://x.com/acct/status/123" {
			t.Error("self-link should have been filtered out")
		}
	}
}

func TestEnrichRoutesVideoURLsToTranscriber(t *testing.T) {
	post := &domain.Post{Content: "watch https://youtube.com/watch?v=abc123"}
	stage := NewStage(Config{PoolSize: 1}, "batch1", &fakeRenderer{}, &fakeTranscriber{text: "spoken words"}, nil, nil, nil, testLogger())

	got := runStageOnce(t, stage, post)

	if got.ExtraContent == "" {
		t.Fatal("expected transcript to be appended to extra_content")
	}
}

func TestEnrichProceedsOnFailure(t *testing.T) {
	post := &domain.Post{Content: "broken link https://dead.example/x"}
	stage := NewStage(Config{PoolSize: 1}, "batch1", &fakeRenderer{err: context.DeadlineExceeded}, &fakeTranscriber{}, nil, nil, nil, testLogger())

	got := runStageOnce(t, stage, post)

	if got == nil {
		t.Fatal("post must proceed downstream even when enrichment fails")
	}
}
