// Package conversion turns one source/target pair into three artifacts: the
// source and target passed through the vocoder unchanged, and the source
// converted to the target speaker.
package conversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"crossvoice/internal/dataset"
	"crossvoice/internal/inference"
	"crossvoice/internal/logging"
	"crossvoice/internal/outputs"
)

// MelExtractor returns tagged mel features for a file.
type MelExtractor interface {
	Extract(ctx context.Context, path string) (inference.Mel, error)
}

// Embedder returns the speaker embedding of a file.
type Embedder interface {
	Embed(ctx context.Context, path string) (inference.Embedding, error)
}

// Synthesizer writes a mel to <stem>.wav and returns the written path.
type Synthesizer interface {
	Generate(ctx context.Context, mel inference.Mel, stem string) (string, error)
}

// Deps are the collaborators of a Converter.
type Deps struct {
	Mel       MelExtractor
	Embedder  Embedder
	Model     inference.ConversionModel
	Generator Synthesizer
	Layout    outputs.Layout

	// Conflict applies to converted artifacts.
	Conflict outputs.Policy
	// ReconstructionConflict applies to source and target reconstructions.
	ReconstructionConflict outputs.Policy

	Logger *slog.Logger
}

// Converter runs conversion jobs. A sample is reconstructed at most once
// per Converter, however many jobs it appears in.
type Converter struct {
	deps   Deps
	logger *slog.Logger

	mu            sync.Mutex
	reconstructed map[string]string
}

// New validates deps and returns a Converter.
func New(deps Deps) (*Converter, error) {
	switch {
	case deps.Mel == nil:
		return nil, errors.New("conversion: mel extractor is required")
	case deps.Embedder == nil:
		return nil, errors.New("conversion: embedder is required")
	case deps.Model == nil:
		return nil, errors.New("conversion: conversion model is required")
	case deps.Generator == nil:
		return nil, errors.New("conversion: waveform generator is required")
	case deps.Layout.Root == "":
		return nil, errors.New("conversion: output layout root is required")
	}
	if deps.Conflict == "" {
		deps.Conflict = outputs.PolicyFail
	}
	if deps.ReconstructionConflict == "" {
		deps.ReconstructionConflict = outputs.PolicySkip
	}
	return &Converter{
		deps:          deps,
		logger:        logging.NewComponentLogger(deps.Logger, "conversion"),
		reconstructed: make(map[string]string),
	}, nil
}

// plan is one role's input triple and destination.
type plan struct {
	role   Role
	sample dataset.Sample
	claim  outputs.Claim
	mel    inference.Mel
	source inference.Embedding
	target inference.Embedding
	done   string
}

// Convert produces the three artifacts of job. Artifacts whose claim is
// skipped are reported but not synthesized.
func (c *Converter) Convert(ctx context.Context, job Job) (Result, error) {
	return c.ConvertAttempt(ctx, job, Attempt{})
}

// ConvertAttempt is Convert for a job that may have been tried before.
// Paths in attempt.Reclaim are overwritten instead of going through the
// conflict policy, and attempt.Landed sees every artifact as it is written.
func (c *Converter) ConvertAttempt(ctx context.Context, job Job, attempt Attempt) (Result, error) {
	key := job.Key()
	logger := logging.WithContext(logging.WithJobKey(ctx, key), c.logger).With(
		logging.String(logging.FieldTask, job.Task),
		logging.String(logging.FieldSubtask, job.Subtask),
	)
	fail := func(role Role, err error) (Result, error) {
		return Result{Job: job}, &JobError{Key: key, Role: role, Err: err}
	}
	start := time.Now()

	plans := make([]*plan, 0, 3)
	for _, role := range Roles() {
		p, err := c.claim(job, role, attempt.Reclaim)
		if err != nil {
			return fail(role, err)
		}
		plans = append(plans, p)
	}
	src, conv, tgt := plans[0], plans[1], plans[2]

	// Source features feed both the source reconstruction and the converted
	// artifact; the target embedding is needed only for the converted one.
	needSourceMel := !src.skipped() || !conv.skipped()
	var srcMel inference.Mel
	var srcEmb, tgtEmb inference.Embedding
	var err error
	if needSourceMel {
		if srcMel, err = c.deps.Mel.Extract(ctx, job.Source.Path); err != nil {
			return fail(RoleSource, err)
		}
	}
	if !conv.skipped() {
		if srcEmb, err = c.deps.Embedder.Embed(ctx, job.Source.Path); err != nil {
			return fail(RoleSource, err)
		}
		if tgtEmb, err = c.deps.Embedder.Embed(ctx, job.Target.Path); err != nil {
			return fail(RoleTarget, err)
		}
	}

	src.mel, src.source, src.target = srcMel, srcEmb, srcEmb
	conv.mel, conv.source, conv.target = srcMel, srcEmb, tgtEmb
	if !tgt.skipped() {
		tgtMel, err := c.deps.Mel.Extract(ctx, job.Target.Path)
		if err != nil {
			return fail(RoleTarget, err)
		}
		tgt.mel, tgt.source, tgt.target = tgtMel, tgtEmb, tgtEmb
	}

	result := Result{Job: job, Artifacts: make([]Artifact, 0, 3)}
	for _, p := range plans {
		artifact, err := c.produce(ctx, p, logger)
		if err != nil {
			return fail(p.role, err)
		}
		result.Artifacts = append(result.Artifacts, artifact)
		if !artifact.Skipped && attempt.Landed != nil {
			attempt.Landed(artifact)
		}
	}

	logger.Info("job converted",
		logging.String(logging.FieldEventType, "job_converted"),
		logging.Int("written", result.Written()),
		logging.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (p *plan) skipped() bool {
	return p.claim.Skip || p.done != ""
}

func (c *Converter) claim(job Job, role Role, reclaim []string) (*plan, error) {
	layout := c.deps.Layout
	switch role {
	case RoleConverted:
		stem := layout.ConvertedStem(job.Task, job.Subtask, job.ConvertedName())
		claim, err := layout.Claim(stem, c.deps.Conflict, reclaim...)
		if err != nil {
			return nil, err
		}
		return &plan{role: role, sample: job.Source, claim: claim}, nil
	default:
		sample := job.Source
		if role == RoleTarget {
			sample = job.Target
		}
		stem := layout.ReconstructionStem(sample.Speaker, sample.Path)
		c.mu.Lock()
		done := c.reconstructed[stem]
		c.mu.Unlock()
		if done != "" {
			return &plan{role: role, sample: sample, claim: outputs.Claim{Stem: stem, Skip: true}, done: done}, nil
		}
		claim, err := layout.Claim(stem, c.deps.ReconstructionConflict, reclaim...)
		if err != nil {
			return nil, err
		}
		return &plan{role: role, sample: sample, claim: claim}, nil
	}
}

func (c *Converter) produce(ctx context.Context, p *plan, logger *slog.Logger) (Artifact, error) {
	logger = logger.With(logging.String(logging.FieldRole, p.role.String()))
	if p.skipped() {
		path := p.done
		if path == "" {
			path = p.claim.Path()
		}
		logger.Debug("artifact kept", logging.String(logging.FieldPath, path))
		return Artifact{Role: p.role, Path: path, Skipped: true}, nil
	}

	mel := p.mel
	if !p.role.Reconstruction() {
		converted, err := c.deps.Model.Convert(ctx, p.mel, p.source, p.target)
		if err != nil {
			return Artifact{}, fmt.Errorf("convert: %w", err)
		}
		if converted.Convention == "" {
			converted.Convention = p.mel.Convention
		}
		mel = converted
	}

	logger.Info("generating artifact", logging.String(logging.FieldPath, p.claim.Path()))
	path, err := c.deps.Generator.Generate(ctx, mel, p.claim.Stem)
	if err != nil {
		return Artifact{}, err
	}
	if p.role.Reconstruction() {
		c.mu.Lock()
		c.reconstructed[layoutStem(c.deps.Layout, p.sample)] = path
		c.mu.Unlock()
	}
	return Artifact{Role: p.role, Path: path}, nil
}

func layoutStem(layout outputs.Layout, sample dataset.Sample) string {
	return layout.ReconstructionStem(sample.Speaker, sample.Path)
}
