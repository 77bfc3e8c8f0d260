package prompts

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

const defaultPromptsPath = "prompts.yaml"

//go:embed default.yaml
var defaultPrompts []byte

type Prompts struct {
	System  SystemPrompts  `yaml:"system"`
	Agentic AgenticPrompts `yaml:"agentic"`
	Image   ImagePrompts   `yaml:"image"`
}

type SystemPrompts struct {
	Agentic string `yaml:"agentic"`
	Image   string `yaml:"image"`
}

type AgenticPrompts struct {
	Generate string `yaml:"generate"`
}

type ImagePrompts struct {
	Generate string `yaml:"generate"`
}

type AgenticParams struct {
	Topic        string
	Tone         string
	UserContext  string
	PlatformList string
	WantsTitle   bool
}

type ImageParams struct {
	Topic       string
	Tone        string
	UserContext string
	Index       int
	Count       int
}

// Load reads prompts.yaml from the working directory, falling back to the
// built-in prompts when the file does not exist.
func Load() (*Prompts, error) {
	p, err := LoadFrom(defaultPromptsPath)
	if errors.Is(err, os.ErrNotExist) {
		return Default()
	}
	return p, err
}

func LoadFrom(path string) (*Prompts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	p, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}

	return p, nil
}

func Default() (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(defaultPrompts, &p); err != nil {
		return nil, fmt.Errorf("failed to parse built-in prompts: %w", err)
	}
	return &p, nil
}

func (p *Prompts) RenderAgentic(params AgenticParams) (string, error) {
	return render(p.Agentic.Generate, params)
}

func (p *Prompts) RenderImage(params ImageParams) (string, error) {
	return render(p.Image.Generate, params)
}

func render(tmpl string, data any) (string, error) {
	t, err := template.New("prompt").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
