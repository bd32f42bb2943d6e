package config

import (
	"bytes"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"redditstudy/internal/shared"
	"redditstudy/internal/study"
)

// LoadPlan reads a YAML study plan from path over study.DefaultPlan and
// validates it. An empty path returns the defaults.
//
//	subreddits: [funny, pics]
//	sample_size: 40
//	sample_interval: 10s
//	collect_interval: 1s
//	repeat: 12
func LoadPlan(path string) (study.Plan, error) {
	if path == "" {
		p := study.DefaultPlan()
		return p, p.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return study.Plan{}, shared.Wrapf(err, "read plan %s", path)
	}
	return ParsePlan(data)
}

// ParsePlan decodes YAML over the default plan. Unknown keys are rejected.
func ParsePlan(data []byte) (study.Plan, error) {
	p := study.DefaultPlan()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return study.Plan{}, shared.MarkKind(shared.Wrap(err, "decode plan"), shared.KindValidation)
	}
	if err := p.Validate(); err != nil {
		return study.Plan{}, err
	}
	return p, nil
}
