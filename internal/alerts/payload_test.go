package alerts

import (
	"encoding/json"
	"strings"
	"testing"

	"spendwatch/internal/types"
)

func sampleAlert() types.AlertContext {
	return types.AlertContext{
		AlertID:        "alert-1",
		Threshold:      100,
		ObservedSpend:  180,
		ExceedAmount:   80,
		PercentageOver: 80,
		TopServices: []types.ServiceCost{
			{Name: "EC2", Cost: 120, Percentage: 66.7},
			{Name: "S3", Cost: 60, Percentage: 33.3},
		},
		Severity: types.SeverityCritical,
	}
}

func pushEnabled() PushOptions {
	return PushOptions{Enabled: true, BundleID: "io.spendwatch.app"}
}

func TestBuildMessageAlwaysCarriesDefault(t *testing.T) {
	for _, push := range []PushOptions{pushEnabled(), {}} {
		message, _, err := buildMessage(sampleAlert(), push)
		if err != nil {
			t.Fatalf("buildMessage(enabled=%v) failed: %v", push.Enabled, err)
		}

		var entries map[string]string
		if err := json.Unmarshal([]byte(message), &entries); err != nil {
			t.Fatalf("message is not a JSON object: %v", err)
		}
		if entries[channelDefault] == "" {
			t.Errorf("enabled=%v: default entry missing", push.Enabled)
		}
	}
}

func TestBuildMessageChannelKeys(t *testing.T) {
	message, channels, err := buildMessage(sampleAlert(), pushEnabled())
	if err != nil {
		t.Fatal(err)
	}

	var entries map[string]string
	if err := json.Unmarshal([]byte(message), &entries); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{channelDefault, channelEmail, channelSMS, channelAPNS} {
		if _, ok := entries[key]; !ok {
			t.Errorf("missing channel key %q", key)
		}
	}
	if _, ok := entries[channelAPNSSandbox]; ok {
		t.Error("production options must not emit the sandbox key")
	}

	// Each push value must itself be valid JSON (the provider requires
	// per-channel values to be JSON-encoded strings of the sub-payload).
	var push pushPayload
	if err := json.Unmarshal([]byte(entries[channelAPNS]), &push); err != nil {
		t.Fatalf("APNS entry is not a serialized push payload: %v", err)
	}
	if push.Data.AlertID != "alert-1" {
		t.Errorf("push custom data alert ID = %s", push.Data.AlertID)
	}
	if push.Data.App != "io.spendwatch.app" {
		t.Errorf("push custom data app = %s", push.Data.App)
	}

	hasPush := false
	for _, ch := range channels {
		if ch == channelAPNS {
			hasPush = true
		}
	}
	if !hasPush {
		t.Error("channel list should include APNS")
	}
}

func TestBuildMessageSandboxSelectsSandboxKey(t *testing.T) {
	opts := pushEnabled()
	opts.Sandbox = true

	message, channels, err := buildMessage(sampleAlert(), opts)
	if err != nil {
		t.Fatal(err)
	}

	var entries map[string]string
	if err := json.Unmarshal([]byte(message), &entries); err != nil {
		t.Fatal(err)
	}
	if _, ok := entries[channelAPNSSandbox]; !ok {
		t.Error("sandbox options must emit the sandbox key")
	}
	if _, ok := entries[channelAPNS]; ok {
		t.Error("sandbox options must not emit the production key")
	}
	if len(channels) != 3 || channels[2] != channelAPNSSandbox {
		t.Errorf("channels = %v", channels)
	}
}

func TestBuildMessageWithoutPushOmitsPushKeys(t *testing.T) {
	message, channels, err := buildMessage(sampleAlert(), PushOptions{})
	if err != nil {
		t.Fatal(err)
	}

	var entries map[string]string
	if err := json.Unmarshal([]byte(message), &entries); err != nil {
		t.Fatal(err)
	}
	if _, ok := entries[channelAPNS]; ok {
		t.Error("push key present in a push-free message")
	}
	for _, ch := range channels {
		if ch == channelAPNS || ch == channelAPNSSandbox {
			t.Error("channel list should not include push channels")
		}
	}
}

func TestRenderPushSeveritySound(t *testing.T) {
	alert := sampleAlert()

	serialized, err := renderPush(alert, pushEnabled())
	if err != nil {
		t.Fatal(err)
	}
	var payload pushPayload
	if err := json.Unmarshal([]byte(serialized), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.APS.Sound != "critical.caf" {
		t.Errorf("critical sound = %s", payload.APS.Sound)
	}

	alert.Severity = types.SeverityWarning
	serialized, err = renderPush(alert, pushEnabled())
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(serialized), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.APS.Sound != "default" {
		t.Errorf("warning sound = %s", payload.APS.Sound)
	}
}

func TestRenderPushTruncatesBodyOnly(t *testing.T) {
	alert := sampleAlert()
	// An absurdly long service name inflates the body past the APNS limit.
	alert.TopServices = []types.ServiceCost{
		{Name: strings.Repeat("x", 5000), Cost: 120},
	}

	serialized, err := renderPush(alert, pushEnabled())
	if err != nil {
		t.Fatalf("renderPush failed: %v", err)
	}
	if len(serialized) > maxPushPayloadBytes {
		t.Fatalf("payload is %d bytes, limit %d", len(serialized), maxPushPayloadBytes)
	}

	var payload pushPayload
	if err := json.Unmarshal([]byte(serialized), &payload); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(payload.APS.Alert.Body, truncationMarker) {
		t.Error("truncated body should end with the truncation marker")
	}
	// The bounded custom-data block is untouched by body truncation.
	if payload.Data.TopService != alert.TopServices[0].Name[:maxCustomDataServiceLen] {
		t.Error("custom data must not be affected by body truncation")
	}
	if payload.Data.Exceed != alert.ExceedAmount {
		t.Error("custom data fields must survive truncation")
	}
}

func TestRenderSubjectSummarizesExceedAmount(t *testing.T) {
	subject := renderSubject(sampleAlert())
	if !strings.Contains(subject, "80.00") {
		t.Errorf("subject %q should carry the exceed amount", subject)
	}
}

func TestRenderBulkTextListsServices(t *testing.T) {
	body := renderBulkText(sampleAlert())
	if !strings.Contains(body, "EC2") || !strings.Contains(body, "S3") {
		t.Error("bulk text should list top services")
	}
	if !strings.Contains(body, "alert-1") {
		t.Error("bulk text should carry the alert ID")
	}
}
