// Package prompt holds the catalogue of language model prompts. Defaults are
// embedded; an optional YAML file overrides them and is hot reloaded.
package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/V4T54L/worksync/internal/domain"
)

//go:embed defaults.yaml
var defaultYAML []byte

// Prompt is one system/user pair. Both halves are templates.
type Prompt struct {
	System      string  `yaml:"system"`
	User        string  `yaml:"user"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	system *template.Template
	user   *template.Template
}

// Catalogue is the full set of prompts used by the pipeline.
type Catalogue struct {
	Summary   Prompt            `yaml:"summary"`
	Classify  Prompt            `yaml:"classify"`
	Retrieval Prompt            `yaml:"retrieval"`
	Analysis  Prompt            `yaml:"analysis"`
	NoData    Prompt            `yaml:"no_data"`
	Emphasis  map[string]string `yaml:"emphasis"`
}

// Request renders the prompt with data into a completion request.
func (p *Prompt) Request(data any) (domain.CompletionRequest, error) {
	system, err := execute(p.system, data)
	if err != nil {
		return domain.CompletionRequest{}, err
	}
	user, err := execute(p.user, data)
	if err != nil {
		return domain.CompletionRequest{}, err
	}
	return domain.CompletionRequest{
		SystemPrompt: strings.TrimSpace(system),
		UserPrompt:   strings.TrimSpace(user),
		Temperature:  p.Temperature,
		MaxTokens:    p.MaxTokens,
	}, nil
}

// EmphasisFor returns the analysis emphasis line for a query type.
func (c *Catalogue) EmphasisFor(t domain.QueryType) string {
	return c.Emphasis[string(t)]
}

func (p *Prompt) compile(name string) error {
	var err error
	if p.system, err = template.New(name + ".system").Parse(p.System); err != nil {
		return fmt.Errorf("parse %s system prompt: %w", name, err)
	}
	if p.user, err = template.New(name + ".user").Parse(p.User); err != nil {
		return fmt.Errorf("parse %s user prompt: %w", name, err)
	}
	return nil
}

func (c *Catalogue) compile() error {
	prompts := map[string]*Prompt{
		"summary":   &c.Summary,
		"classify":  &c.Classify,
		"retrieval": &c.Retrieval,
		"analysis":  &c.Analysis,
		"no_data":   &c.NoData,
	}
	for name, p := range prompts {
		if strings.TrimSpace(p.User) == "" {
			return fmt.Errorf("prompt %s has no user template", name)
		}
		if err := p.compile(name); err != nil {
			return err
		}
	}
	return nil
}

// parse decodes YAML on top of base, so a file only needs the keys it overrides.
func parse(base *Catalogue, data []byte) (*Catalogue, error) {
	var c Catalogue
	if base != nil {
		c = *base
		c.Emphasis = make(map[string]string, len(base.Emphasis))
		for k, v := range base.Emphasis {
			c.Emphasis[k] = v
		}
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode prompt catalogue: %w", err)
	}
	if err := c.compile(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns the embedded catalogue.
func Default() *Catalogue {
	c, err := parse(nil, defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded prompt catalogue is invalid: %v", err))
	}
	return c
}

func execute(t *template.Template, data any) (string, error) {
	if t == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
