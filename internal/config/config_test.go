package config

import (
	"errors"
	"flag"
	"testing"
	"time"

	"github.com/backmassage/clipmaster/internal/jobs"
	"github.com/backmassage/clipmaster/internal/naming"
)

func TestNormalizeDirArg(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no trailing slash", "/media/cards", "/media/cards"},
		{"single trailing slash", "/media/cards/", "/media/cards"},
		{"multiple trailing slashes", "/media/cards///", "/media/cards"},
		{"root path", "/", "/"},
		{"relative path", "output", "output"},
		{"relative with slash", "output/", "output"},
		{"empty string", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDirArg(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeDirArg(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFlags(t *testing.T) {
	cfg := DefaultConfig()
	err := ParseFlags(&cfg, []string{
		"-e", "nle", "-p", "prores-proxy", "-o", "/out/", "--template", "{reel}_{source_name}",
		"--overwrite", "increment", "--batch", "0", "--grace", "2s", "--no-thumbs", "--no-color",
		"--state", "jobs.db", "/cards/A001/", "/cards/B001.mov",
	})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if cfg.Engine != jobs.EngineNLE || cfg.PresetID != "prores-proxy" {
		t.Errorf("engine/preset = %s/%s", cfg.Engine, cfg.PresetID)
	}
	if cfg.OutputDir != "/out" || cfg.Overwrite != naming.PolicyIncrement {
		t.Errorf("output/overwrite = %q/%q", cfg.OutputDir, cfg.Overwrite)
	}
	if cfg.MaxSourcesPerJob != 0 || cfg.GracePeriod != 2*time.Second {
		t.Errorf("batch/grace = %d/%s", cfg.MaxSourcesPerJob, cfg.GracePeriod)
	}
	if cfg.Thumbnails || cfg.ColorMode != ColorNever {
		t.Errorf("negated flags not applied: thumbs=%v color=%s", cfg.Thumbnails, cfg.ColorMode)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0] != "/cards/A001" {
		t.Errorf("sources = %v", cfg.Sources)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	rules := cfg.NamingRules()
	if rules.Template != "{reel}_{source_name}" || rules.Policy != naming.PolicyIncrement {
		t.Errorf("rules = %+v", rules)
	}
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"help", []string{"-h"}, flag.ErrHelp},
		{"version", []string{"--version"}, ErrVersion},
		{"bad engine", []string{"--engine", "resolve"}, nil},
		{"bad policy", []string{"--overwrite", "sometimes"}, nil},
		{"unknown flag", []string{"--vaapi"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			err := ParseFlags(&cfg, tt.args)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMode(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   Mode
	}{
		{"run", func(c *Config) { c.Sources = []string{"a.mov"} }, ModeRun},
		{"watch", func(c *Config) { c.WatchDir = "/in" }, ModeWatch},
		{"check wins", func(c *Config) { c.CheckOnly = true; c.WatchDir = "/in" }, ModeCheck},
		{"list", func(c *Config) { c.List = true }, ModeList},
		{"resume", func(c *Config) { c.ResumeID = "j1" }, ModeResume},
		{"retry", func(c *Config) { c.RetryID = "j1" }, ModeRetry},
		{"cancel over watch", func(c *Config) { c.CancelID = "j1"; c.WatchDir = "/in" }, ModeCancel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if got := cfg.Mode(); got != tt.want {
				t.Errorf("Mode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"run with sources", func(c *Config) {}, false},
		{"run without sources", func(c *Config) { c.Sources = nil }, true},
		{"check needs nothing", func(c *Config) { c.Sources = nil; c.CheckOnly = true }, false},
		{"watch without sources", func(c *Config) { c.Sources = nil; c.WatchDir = "/in" }, false},
		{"watch with sources", func(c *Config) { c.WatchDir = "/in" }, true},
		{"unknown engine", func(c *Config) { c.Engine = "resolve" }, true},
		{"unknown policy", func(c *Config) { c.Overwrite = "sometimes" }, true},
		{"unknown color", func(c *Config) { c.ColorMode = "rainbow" }, true},
		{"empty preset", func(c *Config) { c.PresetID = " " }, true},
		{"negative preserve", func(c *Config) { c.PreserveDirs = -1 }, true},
		{"zero tail", func(c *Config) { c.TailLines = 0 }, true},
		{"negative batch", func(c *Config) { c.MaxSourcesPerJob = -1 }, true},
		{"unlimited batch", func(c *Config) { c.MaxSourcesPerJob = 0 }, false},
		{"zero workers", func(c *Config) { c.WatchWorkers = 0 }, true},
		{"zero grace", func(c *Config) { c.GracePeriod = 0 }, true},
		{"negative poll", func(c *Config) { c.PollInterval = -time.Second }, true},
		{"list needs state", func(c *Config) { c.List = true }, true},
		{"list with state", func(c *Config) { c.List = true; c.StateDB = "jobs.db" }, false},
		{"two operator commands", func(c *Config) { c.StateDB = "jobs.db"; c.ResumeID = "a"; c.CancelID = "b" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Sources = []string{"/cards/A001.mov"}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig_SaneDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Engine != jobs.EngineSubprocess {
		t.Errorf("default Engine = %q, want %q", cfg.Engine, jobs.EngineSubprocess)
	}
	if cfg.Overwrite != naming.PolicyNever {
		t.Errorf("default Overwrite = %q, want never", cfg.Overwrite)
	}
	if cfg.MaxSourcesPerJob != 1 {
		t.Errorf("default MaxSourcesPerJob = %d, want 1", cfg.MaxSourcesPerJob)
	}
	if cfg.Template != "{source_name}" {
		t.Errorf("default Template = %q", cfg.Template)
	}
	if !cfg.Thumbnails {
		t.Error("default Thumbnails should be true")
	}
}
