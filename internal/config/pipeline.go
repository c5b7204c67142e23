package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/debug/timing"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/logger"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/processing/chain"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/processing/filters"
)

// StageSpec names one stage and its raw parameters.
type StageSpec struct {
	Kind   string                 `yaml:"kind"`
	Params map[string]interface{} `yaml:"params,omitempty"`
}

// PipelineSpec is an ordered list of stages. An empty list passes frames through unchanged.
type PipelineSpec struct {
	Name   string      `yaml:"name,omitempty"`
	Stages []StageSpec `yaml:"stages"`
}

// LoadPipeline reads a stage list from a YAML file.
func LoadPipeline(path string) (PipelineSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PipelineSpec{}, fmt.Errorf("failed to read pipeline file: %w", err)
	}

	spec, err := ParsePipeline(data)
	if err != nil {
		return PipelineSpec{}, fmt.Errorf("pipeline file %s: %w", path, err)
	}
	return spec, nil
}

// ParsePipeline decodes a stage list. Unknown fields are rejected.
func ParsePipeline(data []byte) (PipelineSpec, error) {
	var spec PipelineSpec

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil && !errors.Is(err, io.EOF) {
		return PipelineSpec{}, fmt.Errorf("failed to parse pipeline: %w", err)
	}

	for i, s := range spec.Stages {
		if s.Kind == "" {
			return PipelineSpec{}, fmt.Errorf("stage %d has no kind", i)
		}
	}
	return spec, nil
}

// Kinds lists the stage kinds in order.
func (p PipelineSpec) Kinds() []string {
	kinds := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		kinds[i] = s.Kind
	}
	return kinds
}

// Build constructs the stages and wraps them in a chain. Parameter ranges are checked when
// the chain is validated, not here.
func (p PipelineSpec) Build(tracker *timing.Tracker, log logger.Logger) (*chain.ProcessingChain, error) {
	stages := make([]chain.Stage, 0, len(p.Stages))
	for _, s := range p.Stages {
		stage, err := filters.Build(s.Kind, filters.Params(s.Params))
		if err != nil {
			closeStages(stages)
			return nil, err
		}
		stages = append(stages, stage)
	}
	return chain.NewProcessingChain(stages, tracker, log), nil
}

func closeStages(stages []chain.Stage) {
	for _, s := range stages {
		if c, ok := s.(chain.Closer); ok {
			c.Close()
		}
	}
}

// Marshal renders the pipeline as YAML in the shape ParsePipeline reads.
func (p PipelineSpec) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}
