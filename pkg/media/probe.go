package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const probeTimeout = 30 * time.Second

// charsPerSecond is the speaking-rate estimate used when a real probe is
// unavailable.
const charsPerSecond = 15.0

// runCommand executes a media binary and returns stdout. Injectable so
// tests run without ffprobe/ffmpeg installed.
type runCommand func(ctx context.Context, name string, args ...string) ([]byte, error)

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s failed: %w", name, err)
		}
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, msg)
	}
	return stdout.Bytes(), nil
}

// Prober reads container durations with ffprobe.
type Prober struct {
	binary string
	run    runCommand
	logger *slog.Logger
}

// NewProber creates a Prober. An empty binary defaults to "ffprobe" on
// PATH.
func NewProber(binary string, logger *slog.Logger) *Prober {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffprobe"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{binary: bin, run: execCommand, logger: logger}
}

// Duration probes one local file or remote URL and returns the container
// duration in seconds.
func (p *Prober) Duration(ctx context.Context, source string) (float64, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, probeTimeout)
		defer cancel()
	}

	out, err := p.run(ctx, p.binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		source,
	)
	if err != nil {
		return 0, err
	}
	return parseDuration(out)
}

func parseDuration(out []byte) (float64, error) {
	var payload struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return 0, fmt.Errorf("parsing probe output: %w", err)
	}
	d, err := strconv.ParseFloat(payload.Format.Duration, 64)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("probe output carried no duration")
	}
	return d, nil
}

// EstimateSeconds converts a script length to a speaking-time estimate.
func EstimateSeconds(lengthChars int) float64 {
	return float64(lengthChars) / charsPerSecond
}

// Durations probes every slot's URL in parallel. A failed probe falls
// back to the speaking-rate estimate for that slot's script, so the
// result always covers every slot in urls.
func (p *Prober) Durations(ctx context.Context, urls map[string]string, scriptChars map[string]int) map[string]float64 {
	result := make(map[string]float64, len(urls))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for slot, url := range urls {
		wg.Add(1)
		go func(slot, url string) {
			defer wg.Done()
			d, err := p.Duration(ctx, url)
			if err != nil {
				d = EstimateSeconds(scriptChars[slot])
				p.logger.Warn("Duration probe failed, using estimate",
					"slot", slot, "estimate_seconds", d, "error", err)
			}
			mu.Lock()
			result[slot] = d
			mu.Unlock()
		}(slot, url)
	}
	wg.Wait()
	return result
}
