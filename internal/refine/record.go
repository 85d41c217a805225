package refine

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Entry is the raw input and output of one stage.
type Entry struct {
	Stage  Stage     `yaml:"stage"`
	Input  string    `yaml:"input"`
	Output string    `yaml:"output"`
	At     time.Time `yaml:"at"`
}

// Record is the append-only log of one refinement.
type Record struct {
	UserID     string    `yaml:"user_id"`
	ImageURL   string    `yaml:"image_url"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at,omitempty"`
	Entries    []Entry   `yaml:"entries"`
	Error      string    `yaml:"error,omitempty"`
}

func (r *Record) add(stage Stage, input, output string) {
	r.Entries = append(r.Entries, Entry{Stage: stage, Input: input, Output: output, At: time.Now().UTC()})
}

// Output returns the recorded output of stage.
func (r *Record) Output(stage Stage) (string, bool) {
	for _, e := range r.Entries {
		if e.Stage == stage {
			return e.Output, true
		}
	}
	return "", false
}

var (
	schemePrefix = regexp.MustCompile(`^https?://`)
	unsafeChars  = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)
)

// LogFileName turns an image URL into the name of its refinement log.
func LogFileName(imageURL string) (string, error) {
	if strings.TrimSpace(imageURL) == "" {
		return "", fmt.Errorf("image url is empty")
	}
	safe := unsafeChars.ReplaceAllString(schemePrefix.ReplaceAllString(imageURL, ""), "_")
	return safe + "-refinement-log.yaml", nil
}

// WriteLog writes the record as YAML into dir and returns the file path.
func (r *Record) WriteLog(dir string) (string, error) {
	name, err := LogFileName(r.ImageURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating refinement log directory: %w", err)
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding refinement log: %w", err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("writing refinement log: %w", err)
	}
	return p, nil
}
