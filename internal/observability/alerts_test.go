package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertSpec struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestQueueAlertRules(t *testing.T) {
	path := filepath.Join("..", "..", "deploy", "prometheus", "alerts", "queues.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read alert file: %v", err)
	}

	var spec alertSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		t.Fatalf("failed to parse alert file: %v", err)
	}
	if len(spec.Groups) == 0 {
		t.Fatal("expected at least one alert group")
	}

	byName := make(map[string]alertRule)
	for _, group := range spec.Groups {
		for _, rule := range group.Rules {
			if rule.Expr == "" {
				t.Fatalf("rule %s has empty expr", rule.Alert)
			}
			if rule.Labels["severity"] == "" {
				t.Fatalf("rule %s has no severity label", rule.Alert)
			}
			byName[rule.Alert] = rule
		}
	}

	warning, ok := byName["QueueBacklogWarning"]
	if !ok {
		t.Fatal("QueueBacklogWarning rule missing")
	}
	if !strings.Contains(warning.Expr, "unimaster_queue_depth") {
		t.Fatalf("warning rule should watch unimaster_queue_depth, got %q", warning.Expr)
	}

	critical, ok := byName["QueueBacklogCritical"]
	if !ok {
		t.Fatal("QueueBacklogCritical rule missing")
	}
	if critical.Labels["severity"] != "critical" {
		t.Fatalf("expected critical severity, got %q", critical.Labels["severity"])
	}
}

func TestQueueBacklogSeverity(t *testing.T) {
	cases := map[int]string{
		0:    SeverityOK,
		49:   SeverityOK,
		50:   SeverityWarning,
		199:  SeverityWarning,
		200:  SeverityCritical,
		5000: SeverityCritical,
	}
	for depth, want := range cases {
		if got := QueueBacklogSeverity(depth); got != want {
			t.Fatalf("depth %d: expected %s, got %s", depth, want, got)
		}
	}
}
