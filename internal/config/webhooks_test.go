package config

import (
	"strings"
	"testing"
)

func TestParseWebhookConfig(t *testing.T) {
	data := []byte(`
webhooks:
  - name: ops-slack
    url: https://hooks.slack.com/services/T/B/X
    formatter: slack
    events: [timer.expired, schedule.transition]
    filter:
      agent: "10.0.0.*"
  - name: audit
    url: http://localhost:9000/events
`)
	cfgs, err := ParseWebhookConfig(data)
	if err != nil {
		t.Fatalf("ParseWebhookConfig: %v", err)
	}
	if len(cfgs) != 2 {
		t.Fatalf("got %d webhooks, want 2", len(cfgs))
	}

	slack := cfgs[0]
	if slack.Name != "ops-slack" || slack.Formatter != "slack" {
		t.Errorf("slack = %+v", slack)
	}
	if slack.Filter.Agent != "10.0.0.*" {
		t.Errorf("filter.agent = %q", slack.Filter.Agent)
	}
	if len(slack.Events) != 2 {
		t.Errorf("events = %v", slack.Events)
	}

	// Defaults applied to the second entry.
	audit := cfgs[1]
	if audit.Formatter != "json" || audit.Timeout != "10s" {
		t.Errorf("defaults not applied: %+v", audit)
	}
	if audit.Retry.MaxAttempts != 5 || audit.Retry.Backoff != "exponential" {
		t.Errorf("retry defaults not applied: %+v", audit.Retry)
	}
}

func TestParseWebhookConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "webhooks:\n  - url: https://example.com\n", "name is required"},
		{"missing url", "webhooks:\n  - name: x\n", "url is required"},
		{"bad scheme", "webhooks:\n  - name: x\n    url: ftp://example.com\n", "scheme"},
		{"unknown event", "webhooks:\n  - name: x\n    url: https://example.com\n    events: [agent.vanished]\n", "unknown event"},
		{"unknown formatter", "webhooks:\n  - name: x\n    url: https://example.com\n    formatter: xml\n", "unknown formatter"},
		{"unknown field", "webhooks:\n  - name: x\n    url: https://example.com\n    frmt: json\n", "frmt"},
		{"not a list", "webhooks: yes\n", "expected a list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWebhookConfig([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseWebhookConfigIgnoresOtherKeys(t *testing.T) {
	cfgs, err := ParseWebhookConfig([]byte("something_else:\n  foo: bar\n"))
	if err != nil {
		t.Fatalf("ParseWebhookConfig: %v", err)
	}
	if cfgs != nil {
		t.Errorf("got %v, want nil", cfgs)
	}
}

func TestParseWebhookConfigExpandsEnv(t *testing.T) {
	t.Setenv("HOOK_SECRET", "s3cret")
	data := []byte("webhooks:\n  - name: x\n    url: https://example.com\n    secret: ${HOOK_SECRET}\n")
	cfgs, err := ParseWebhookConfig(data)
	if err != nil {
		t.Fatalf("ParseWebhookConfig: %v", err)
	}
	if cfgs[0].Secret != "s3cret" {
		t.Errorf("secret = %q", cfgs[0].Secret)
	}
}

func TestParseWebhookConfigMissingEnv(t *testing.T) {
	data := []byte("webhooks:\n  - name: x\n    url: https://example.com\n    secret: ${BOTMASTER_TEST_UNSET_VAR}\n")
	_, err := ParseWebhookConfig(data)
	if err == nil || !strings.Contains(err.Error(), "BOTMASTER_TEST_UNSET_VAR") {
		t.Fatalf("err = %v, want missing env error", err)
	}
}
