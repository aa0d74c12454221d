package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	ResetForTest(t.TempDir())

	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if c.MaxIterations != 10 {
		t.Errorf("Expected max_iterations 10, got %d", c.MaxIterations)
	}
	if c.QualityThreshold != 0.8 {
		t.Errorf("Expected quality_threshold 0.8, got %g", c.QualityThreshold)
	}
	if c.AIDetectionThreshold != 0.999 {
		t.Errorf("Expected ai_detection_threshold 0.999, got %g", c.AIDetectionThreshold)
	}
	if c.UnitTimeout != 10*time.Minute {
		t.Errorf("Expected unit_timeout 10m, got %s", c.UnitTimeout)
	}
	if c.TopN != 3 || c.ResumeTarget != 4000 || c.CoverLetterTarget != 2400 {
		t.Errorf("Unexpected defaults: %+v", c)
	}
	if !c.Cache {
		t.Error("Expected cache enabled by default")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestSetAndGet(t *testing.T) {
	dir := t.TempDir()
	ResetForTest(dir)

	if err := Set("agent", "gemini-2.5-flash"); err != nil {
		t.Fatalf("Set agent error: %v", err)
	}
	if err := Set("unit_timeout", "90s"); err != nil {
		t.Fatalf("Set unit_timeout error: %v", err)
	}
	if err := Set("pool_size", "4"); err != nil {
		t.Fatalf("Set pool_size error: %v", err)
	}

	// Reload from the written file
	ResetForTest(dir)

	agent, err := Get("agent")
	if err != nil {
		t.Fatalf("Get agent error: %v", err)
	}
	if agent != "gemini-2.5-flash" {
		t.Errorf("Expected agent 'gemini-2.5-flash', got '%s'", agent)
	}

	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.UnitTimeout != 90*time.Second {
		t.Errorf("Expected unit_timeout 90s, got %s", c.UnitTimeout)
	}
	if c.PoolSize != 4 {
		t.Errorf("Expected pool_size 4, got %d", c.PoolSize)
	}
	if c.AgentCLI() != "gemini" {
		t.Errorf("Expected gemini CLI, got %s", c.AgentCLI())
	}
}

func TestSetRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"invalid_key", "value"},
		{"quality_threshold", "1.5"},
		{"ai_detection_threshold", "-0.1"},
		{"max_iterations", "0"},
		{"max_iterations", "ten"},
		{"unit_timeout", "soon"},
		{"pool_size", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			ResetForTest(t.TempDir())
			if err := Set(tt.key, tt.value); err == nil {
				t.Errorf("Expected error for %s=%s", tt.key, tt.value)
			}
			if tt.key == "quality_threshold" {
				c, _ := Load()
				if c.QualityThreshold != 0.8 {
					t.Errorf("rejected value leaked into config: %g", c.QualityThreshold)
				}
			}
		})
	}
}

func TestGetInvalidKey(t *testing.T) {
	ResetForTest(t.TempDir())

	_, err := Get("invalid_key")
	if err == nil {
		t.Error("Expected error for invalid key, got nil")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TAILOR_TOP_N", "5")
	ResetForTest(t.TempDir())

	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.TopN != 5 {
		t.Errorf("Expected TAILOR_TOP_N to override top_n, got %d", c.TopN)
	}
}

func TestWrittenFileIsYAML(t *testing.T) {
	dir := t.TempDir()
	ResetForTest(dir)

	if err := Set("top_n", "2"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "top_n: 2") {
		t.Errorf("config file missing top_n:\n%s", data)
	}
}

func TestAllListsEveryKey(t *testing.T) {
	ResetForTest(t.TempDir())
	all, err := All()
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range Keys {
		if _, ok := all[k]; !ok {
			t.Errorf("All() missing %s", k)
		}
	}
}

func TestRunConfig(t *testing.T) {
	c := &Config{MaxIterations: 4, QualityThreshold: 0.7, TopN: 2, PoolSize: 3, ResumeTarget: 100, CoverLetterTarget: 50}
	rc := c.Run()
	if rc.MaxIterations != 4 || rc.TopN != 2 || rc.PoolSize != 3 || rc.ResumeTarget != 100 {
		t.Errorf("unexpected run config %+v", rc)
	}
}
