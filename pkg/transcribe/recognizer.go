// Package transcribe obtains time-aligned transcripts for video sources.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/japaniel/hanzivid/pkg/domain"
)

// StageRecognition names the recognition collaborator in errors.
const StageRecognition = "recognition"

// Recognizer produces timed segments for a source. Zero segments is a valid
// result.
type Recognizer interface {
	Recognize(ctx context.Context, source string) ([]domain.Segment, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, source string) ([]domain.Segment, error)

func (f RecognizerFunc) Recognize(ctx context.Context, source string) ([]domain.Segment, error) {
	return f(ctx, source)
}

// ErrNoTranscript is returned by FileRecognizer when no transcript file
// exists for a source.
var ErrNoTranscript = errors.New("no transcript found")

var sidecarSuffixes = []string{".zh.srt", ".srt", ".zh.json", ".json"}

// FileRecognizer reads transcripts that already exist on disk: the source
// itself when it is an .srt or .json file, otherwise a sidecar next to the
// media file with the same base name.
type FileRecognizer struct{}

func (FileRecognizer) Recognize(ctx context.Context, source string) ([]domain.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, ok := findTranscript(source)
	if !ok {
		return nil, domain.NewCollaboratorError(StageRecognition, fmt.Errorf("%w for %s", ErrNoTranscript, source))
	}
	segs, err := readTranscript(path)
	if err != nil {
		return nil, domain.NewCollaboratorError(StageRecognition, err)
	}
	return segs, nil
}

func findTranscript(source string) (string, bool) {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".srt", ".json":
		if fileExists(source) {
			return source, true
		}
		return "", false
	}
	stem := strings.TrimSuffix(source, filepath.Ext(source))
	for _, suffix := range sidecarSuffixes {
		if p := stem + suffix; fileExists(p) {
			return p, true
		}
	}
	return "", false
}

// HasTranscript reports whether FileRecognizer can serve source.
func HasTranscript(source string) bool {
	_, ok := findTranscript(source)
	return ok
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func readTranscript(path string) ([]domain.Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), ".srt") {
		return ParseSRT(f)
	}
	return ParseWhisperJSON(f)
}

// CommandRecognizer runs a whisper-compatible command line and reads the
// JSON transcript it writes. Args may reference {input}, {output_dir},
// {stem}, {model} and {language}.
type CommandRecognizer struct {
	Command  string
	Args     []string
	Model    string
	Language string
	// WorkDir holds per-run output directories; empty uses the system
	// temp dir.
	WorkDir string
	Logger  *slog.Logger
}

// DefaultWhisperArgs matches the openai-whisper CLI.
var DefaultWhisperArgs = []string{
	"{input}",
	"--model", "{model}",
	"--language", "{language}",
	"--task", "transcribe",
	"--output_format", "json",
	"--output_dir", "{output_dir}",
	"--verbose", "False",
}

// NewWhisperRecognizer returns a CommandRecognizer for the whisper CLI.
func NewWhisperRecognizer(command, model, language string, logger *slog.Logger) *CommandRecognizer {
	return &CommandRecognizer{
		Command:  command,
		Args:     DefaultWhisperArgs,
		Model:    model,
		Language: language,
		Logger:   logger,
	}
}

func (c *CommandRecognizer) Recognize(ctx context.Context, source string) ([]domain.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	outDir, err := os.MkdirTemp(c.WorkDir, "transcribe-*")
	if err != nil {
		return nil, domain.NewCollaboratorError(StageRecognition, err)
	}
	defer os.RemoveAll(outDir)

	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	repl := strings.NewReplacer(
		"{input}", source,
		"{output_dir}", outDir,
		"{stem}", stem,
		"{model}", c.Model,
		"{language}", c.Language,
	)
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = repl.Replace(a)
	}

	cmd := exec.CommandContext(ctx, c.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	logger.Info("running recognizer", slog.String("command", c.Command), slog.String("source", source))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return nil, domain.NewCollaboratorError(StageRecognition, fmt.Errorf("%s: %w: %s", c.Command, err, msg))
	}

	out := filepath.Join(outDir, stem+".json")
	if !fileExists(out) {
		// Some front-ends name the output after the full input file name.
		out = filepath.Join(outDir, filepath.Base(source)+".json")
	}
	segs, err := readTranscript(out)
	if err != nil {
		return nil, domain.NewCollaboratorError(StageRecognition, err)
	}
	return segs, nil
}

// Chain tries each recognizer in order and returns the first success.
// Cancellation stops the chain immediately.
type Chain []Recognizer

func (c Chain) Recognize(ctx context.Context, source string) ([]domain.Segment, error) {
	var errs []error
	for _, r := range c {
		segs, err := r.Recognize(ctx, source)
		if err == nil {
			return segs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, domain.NewCollaboratorError(StageRecognition, errors.New("no recognizer configured"))
	}
	return nil, errors.Join(errs...)
}
