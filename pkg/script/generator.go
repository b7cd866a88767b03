// Package script generates the intro and per-movie hook scripts and
// enforces the hook timing contract.
//
// Hooks for movies after the first are timing-constrained: the spoken
// length must land in an 8–11 second window at 3 words per second, i.e.
// 24–32 words. Out-of-band hooks retry with an escalating word target and
// lowered temperature, up to three semantic retries per hook; exhaustion is
// non-fatal and keeps the last candidate.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/streamgank/videogen/pkg/llm"
	"github.com/streamgank/videogen/pkg/models"
)

// Timing acceptance band for hooks K > 1 (words).
const (
	minHookWords = 24
	maxHookWords = 32
)

// maxTimingRetries is the semantic retry budget per hook. Distinct from the
// transport retry budget inside the LLM client: transport retries repeat
// the same prompt, timing retries change it.
const maxTimingRetries = 3

// Completer is the LLM surface the generator needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// TimingUnmet reports a hook that never satisfied the word band.
type TimingUnmet struct {
	Slot  string
	Words int
}

// Result is the generator output: the bundle plus non-fatal timing misses.
type Result struct {
	Bundle      *models.ScriptBundle
	TimingUnmet []TimingUnmet
}

// Generator produces ScriptBundles.
type Generator struct {
	llm    Completer
	logger *slog.Logger
}

// NewGenerator creates a script generator.
func NewGenerator(completer Completer, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{llm: completer, logger: logger}
}

// Generate produces a ScriptBundle for the given movies. outDir, when
// non-empty, receives one UTF-8 text file per slot plus a combined file;
// persistence failures are fatal (scripts are a pipeline artifact).
func (g *Generator) Generate(ctx context.Context, movies []models.Movie, filter models.Filter, outDir string) (*Result, error) {
	if len(movies) == 0 {
		return nil, fmt.Errorf("%w: no movies to script", models.ErrScriptGenerationFailed)
	}

	intro := g.generateIntro(ctx, filter)

	hooks := make([]string, len(movies))
	var unmet []TimingUnmet
	for i, movie := range movies {
		hook, miss, err := g.generateHook(ctx, movie, filter, i+1)
		if err != nil {
			return nil, err
		}
		hooks[i] = hook
		if miss != nil {
			unmet = append(unmet, *miss)
		}
	}

	bundle := assemble(intro, hooks, movies)
	if outDir != "" {
		if err := persist(bundle, outDir); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrScriptGenerationFailed, err)
		}
	}
	return &Result{Bundle: bundle, TimingUnmet: unmet}, nil
}

// generateIntro makes a single LLM attempt; on any failure it substitutes
// the deterministic template so the pipeline never dies on the intro.
func (g *Generator) generateIntro(ctx context.Context, filter models.Filter) string {
	prompt := fmt.Sprintf(
		"Write one energetic 10-12 word opening sentence for a short promo video "+
			"about %s titles streaming on %s. Do not name any specific movie. "+
			"Return only the sentence.",
		filter.Genre, filter.Platform,
	)
	text, err := g.llm.Complete(ctx, llm.Request{Prompt: prompt, Temperature: 0.8, MaxTokens: 50})
	if err != nil || strings.TrimSpace(text) == "" {
		g.logger.Warn("Intro generation failed, using template fallback", "error", err)
		return fmt.Sprintf("Get ready for the best %s hits on %s", filter.Genre, filter.Platform)
	}
	return text
}

// generateHook produces the hook for a 1-indexed movie position.
// Position 1 is an open hook with no timing constraint; later positions run
// the timing-validation retry loop.
func (g *Generator) generateHook(ctx context.Context, movie models.Movie, filter models.Filter, position int) (string, *TimingUnmet, error) {
	if position == 1 {
		text, err := g.llm.Complete(ctx, llm.Request{
			Prompt:      openHookPrompt(movie, filter),
			Temperature: 0.8,
			MaxTokens:   50,
		})
		if err != nil {
			return "", nil, hookError(movie, err)
		}
		return text, nil, nil
	}

	slot := models.Slot(position)
	var last string
	for retry := 0; retry <= maxTimingRetries; retry++ {
		req := llm.Request{
			Prompt:      timedHookPrompt(movie, filter, 24+2*retry),
			Temperature: 0.4,
			MaxTokens:   80,
		}
		if retry > 0 {
			req.Temperature = 0.3
		}

		text, err := g.llm.Complete(ctx, req)
		if err != nil {
			return "", nil, hookError(movie, err)
		}
		last = text

		words := WordCount(Sanitize(text))
		if words >= minHookWords && words <= maxHookWords {
			return text, nil, nil
		}
		g.logger.Warn("Hook outside timing band, retrying",
			"slot", slot, "title", movie.Title, "words", words, "retry", retry)
	}

	// Budget exhausted: keep the last candidate, surface the miss.
	words := WordCount(Sanitize(last))
	g.logger.Warn("Hook timing budget exhausted, forcing last candidate",
		"slot", slot, "title", movie.Title, "words", words)
	return last, &TimingUnmet{Slot: slot, Words: words}, nil
}

func hookError(movie models.Movie, err error) error {
	if errors.Is(err, llm.ErrContentRejected) {
		return fmt.Errorf("%w: hook for %q: %w", models.ErrHookContentRejected, movie.Title, err)
	}
	return fmt.Errorf("%w: hook for %q: %w", models.ErrScriptGenerationFailed, movie.Title, err)
}

func openHookPrompt(movie models.Movie, filter models.Filter) string {
	return fmt.Sprintf(
		"Write one attention-grabbing 10-18 word hook for the %s %s (%d) on %s. "+
			"Spoken aloud by a presenter. Return only the sentence.",
		strings.ToLower(filter.Genre), movie.Title, movie.Year, filter.Platform,
	)
}

func timedHookPrompt(movie models.Movie, filter models.Filter, targetWords int) string {
	return fmt.Sprintf(
		"Write one spoken hook of exactly %d-%d words for the %s %s (%d) on %s. "+
			"It must take 8-10 seconds to say at a natural pace. "+
			"Return only the sentence, no quotes.",
		targetWords, targetWords+6, strings.ToLower(filter.Genre), movie.Title, movie.Year, filter.Platform,
	)
}

// assemble applies the intro-integration invariant:
// individual["movie1"] = sanitize(intro) + " " + sanitize(hooks[0]),
// individual["movieK"] = sanitize(hooks[K-1]) for K > 1.
func assemble(intro string, hooks []string, movies []models.Movie) *models.ScriptBundle {
	cleanIntro := Sanitize(intro)
	individual := make(map[string]string, len(hooks))
	cleanHooks := make([]string, len(hooks))
	var combined []string

	for i, hook := range hooks {
		clean := Sanitize(hook)
		cleanHooks[i] = clean
		slot := models.Slot(i + 1)
		if i == 0 {
			individual[slot] = cleanIntro + " " + clean
		} else {
			individual[slot] = clean
		}
		combined = append(combined, individual[slot])
	}

	return &models.ScriptBundle{
		Intro:      cleanIntro,
		Hooks:      cleanHooks,
		Combined:   strings.Join(combined, "\n\n"),
		Individual: individual,
	}
}

// persist writes one file per slot plus the combined script under outDir
// and records the paths on the bundle.
func persist(bundle *models.ScriptBundle, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating script directory: %w", err)
	}
	bundle.Paths = make(map[string]string, len(bundle.Individual)+1)
	for slot, text := range bundle.Individual {
		path := filepath.Join(outDir, slot+".txt")
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return fmt.Errorf("writing script for %s: %w", slot, err)
		}
		bundle.Paths[slot] = path
	}
	combinedPath := filepath.Join(outDir, "combined.txt")
	if err := os.WriteFile(combinedPath, []byte(bundle.Combined), 0o644); err != nil {
		return fmt.Errorf("writing combined script: %w", err)
	}
	bundle.Paths["combined"] = combinedPath
	return nil
}
