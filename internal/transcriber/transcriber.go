// Package transcriber turns a video URL into corrected plain-text prose:
// it extracts the audio track, transcribes it, and runs the raw transcript
// through an LLM correction pass, persisting the raw and optimized
// artifacts to disk along the way.
package transcriber

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scwf/prod-scout/internal/capability"
	"github.com/scwf/prod-scout/pkg/logger"
)

const optimizationSystemPrompt = `You correct an automatic speech-to-text transcript.
Use the provided context to fix misrecognized domain terms.
Remove filler words. Produce flowing prose that preserves the original
information density. Return only the corrected text, no commentary.`

// Config carries the per-video processing timeout and the data root
// artifacts are written under (data/<batch_id>/raw/<source>_<video_id>/).
type Config struct {
	Timeout time.Duration
	DataDir string // defaults to "data"
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 600 * time.Second
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	return c
}

// Transcriber downloads a video's audio, transcribes it, and produces an
// optimized plain-text transcript.
type Transcriber struct {
	cfg      Config
	asr      capability.ASRBackend
	llm      capability.LLMClient
	ytdlpBin string
	log      logger.Logger
}

func New(cfg Config, asr capability.ASRBackend, llm capability.LLMClient, ytdlpBin string, log logger.Logger) *Transcriber {
	if ytdlpBin == "" {
		ytdlpBin = "yt-dlp"
	}
	return &Transcriber{cfg: cfg.withDefaults(), asr: asr, llm: llm, ytdlpBin: ytdlpBin, log: log.WithComponent("transcriber")}
}

// Transcribe runs audio extraction, ASR, and context-aware LLM correction
// in sequence. Any sub-step failure is logged and returns ("", nil) rather
// than an error, so the caller can keep processing the post's other URLs.
// batchID scopes the written artifacts under data/<batch_id>/raw/, so
// concurrent or successive scheduled runs never collide on disk.
func (t *Transcriber) Transcribe(ctx context.Context, batchID, videoURL, sourceName, contextText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	videoID := videoIDFromURL(videoURL)
	artifactDir := filepath.Join(t.cfg.DataDir, batchID, "raw", fmt.Sprintf("%s_%s", sourceName, videoID))
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		t.log.Warn("failed to create artifact dir", "error", err)
		return "", nil
	}

	audioPath, err := t.extractAudio(ctx, videoURL, artifactDir, videoID)
	if err != nil {
		t.log.Warn("audio extraction failed", "url", videoURL, "error", err)
		return "", nil
	}
	defer os.Remove(audioPath)

	transcript, err := t.asr.Transcribe(ctx, audioPath)
	if err != nil {
		t.log.Warn("asr failed", "url", videoURL, "error", err)
		return "", nil
	}

	if err := t.writeRawArtifacts(artifactDir, videoID, transcript); err != nil {
		t.log.Warn("failed to persist raw transcript", "error", err)
	}

	optimized, err := t.optimize(ctx, transcript.Text, contextText)
	if err != nil {
		t.log.Warn("llm optimization failed", "url", videoURL, "error", err)
		return "", nil
	}

	if err := os.WriteFile(filepath.Join(artifactDir, videoID+".txt"), []byte(optimized), 0o644); err != nil {
		t.log.Warn("failed to persist optimized transcript", "error", err)
	}

	return optimized, nil
}

// extractAudio shells out to yt-dlp for audio-only extraction. No Go
// video-downloader library covers this, so os/exec is used directly
// (see DESIGN.md).
func (t *Transcriber) extractAudio(ctx context.Context, videoURL, dir, videoID string) (string, error) {
	outputPath := filepath.Join(dir, videoID+".m4a")
	cmd := exec.CommandContext(ctx, t.ytdlpBin,
		"-x", "--audio-format", "m4a",
		"-o", outputPath,
		videoURL,
	)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("yt-dlp: %w", err)
	}
	return outputPath, nil
}

func (t *Transcriber) writeRawArtifacts(dir, videoID string, transcript *capability.Transcript) error {
	srtPath := filepath.Join(dir, videoID+".srt")
	return os.WriteFile(srtPath, []byte(toSRT(transcript)), 0o644)
}

func toSRT(transcript *capability.Transcript) string {
	var b strings.Builder
	for i, seg := range transcript.Segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, secondsToSRTTime(seg.StartSeconds), secondsToSRTTime(seg.EndSeconds), seg.Text)
	}
	return b.String()
}

func secondsToSRTTime(s float64) string {
	d := time.Duration(s * float64(time.Second))
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second
	d -= sec * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, sec, ms)
}

// optimize sends the raw transcript and surrounding post context to the
// LLM for domain-term correction and filler removal.
func (t *Transcriber) optimize(ctx context.Context, rawTranscript, contextText string) (string, error) {
	if strings.TrimSpace(rawTranscript) == "" {
		return "", nil
	}
	userPrompt := fmt.Sprintf("Context:\n%s\n\nRaw transcript:\n%s", contextText, rawTranscript)
	return t.llm.Complete(ctx, optimizationSystemPrompt, userPrompt)
}

// videoIDFromURL extracts YouTube's v= query parameter when present,
// falling back to the last URL path segment, and to a random ID when the
// URL has neither.
func videoIDFromURL(rawURL string) string {
	if parsed, err := url.Parse(rawURL); err == nil {
		if v := parsed.Query().Get("v"); v != "" {
			return v
		}
		if base := path.Base(parsed.Path); base != "" && base != "/" && base != "." {
			return base
		}
	}
	return uuid.NewString()[:8]
}
