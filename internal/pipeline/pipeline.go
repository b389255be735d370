// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline chains the extraction stages into a single run:
// ROI coordinates, buffer-zone metrics, covariate volumes, then
// consolidation.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pdiddy/ibis-pipeline/internal/bufferzone"
	"github.com/pdiddy/ibis-pipeline/internal/consolidate"
	"github.com/pdiddy/ibis-pipeline/internal/roi"
	"github.com/pdiddy/ibis-pipeline/internal/variables"
	"github.com/pdiddy/ibis-pipeline/pkg/types"
)

// Step names accepted by Run, in execution order.
const (
	StepROI         = "roi"
	StepBufferZone  = "bufferzone"
	StepVariables   = "variables"
	StepConsolidate = "consolidate"
)

// AllSteps is the full pipeline in execution order.
var AllSteps = []string{StepROI, StepBufferZone, StepVariables, StepConsolidate}

// StepResult records the outcome of one stage.
type StepResult struct {
	Name     string
	Err      error
	Failed   int // per-item failures inside the stage
	NoOutput bool
	Elapsed  time.Duration
}

// RunSummary aggregates the stage outcomes of one pipeline run.
type RunSummary struct {
	Steps []StepResult
}

// HasFailures reports whether any stage errored or skipped items.
func (s RunSummary) HasFailures() bool {
	for _, st := range s.Steps {
		if st.Err != nil || st.Failed > 0 {
			return true
		}
	}
	return false
}

// Run executes the named steps in pipeline order, regardless of the
// order given. An empty steps list runs everything. A stage that errors
// is recorded and the remaining stages still run; the first stage error
// is also returned after the sweep so callers can set an exit status.
func Run(ctx context.Context, cfg types.PipelineConfig, steps []string, w io.Writer) (RunSummary, error) {
	selected := map[string]bool{}
	if len(steps) == 0 {
		for _, s := range AllSteps {
			selected[s] = true
		}
	}
	for _, s := range steps {
		selected[s] = true
	}
	for s := range selected {
		if !validStep(s) {
			return RunSummary{}, fmt.Errorf("unknown pipeline step %q", s)
		}
	}

	var summary RunSummary
	var firstErr error
	for _, name := range AllSteps {
		if !selected[name] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		fmt.Fprintf(w, "==> %s\n", name)
		start := time.Now()
		result := runStep(ctx, cfg, name, w)
		result.Elapsed = time.Since(start)
		summary.Steps = append(summary.Steps, result)

		if result.Err != nil {
			fmt.Fprintf(w, "step %s failed: %v\n\n", name, result.Err)
			if firstErr == nil {
				firstErr = fmt.Errorf("step %s: %w", name, result.Err)
			}
			continue
		}
		fmt.Fprintf(w, "step %s finished in %v\n\n", name, result.Elapsed.Round(time.Millisecond))
	}
	return summary, firstErr
}

func validStep(name string) bool {
	for _, s := range AllSteps {
		if s == name {
			return true
		}
	}
	return false
}

func runStep(ctx context.Context, cfg types.PipelineConfig, name string, w io.Writer) StepResult {
	result := StepResult{Name: name}
	in, out := cfg.Paths.InputDir, cfg.Paths.OutputDir

	switch name {
	case StepROI:
		r, err := roi.Run(cfg.ROI, in, out, w)
		result.Err = err
		result.Failed = r.Failed
		result.NoOutput = r.NoOutput
	case StepBufferZone:
		a := bufferzone.NewAnalyzer(cfg.BufferZone)
		r, err := a.Run(ctx, in, out, w)
		result.Err = err
		result.Failed = r.Failed
		result.NoOutput = r.NoOutput
	case StepVariables:
		r, err := variables.Run(cfg.Variables, in, out, w)
		result.Err = err
		result.Failed = r.Failed
		result.NoOutput = r.NoOutput
	case StepConsolidate:
		r, err := consolidate.Run(cfg.Consolidation, in, out, w)
		result.Err = err
		result.Failed = r.Failed
		result.NoOutput = r.NoOutput
	}
	return result
}
