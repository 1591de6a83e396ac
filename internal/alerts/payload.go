package alerts

import (
	"encoding/json"
	"fmt"
	"strings"

	"spendwatch/internal/types"
)

// Channel keys inside the provider message. The provider fans one publish
// out to every subscribed channel, falling back to the "default" entry for
// protocols without a dedicated key.
const (
	channelDefault     = "default"
	channelAPNS        = "APNS"
	channelAPNSSandbox = "APNS_SANDBOX"
	channelEmail       = "email"
	channelSMS         = "sms"
)

// maxPushPayloadBytes is the APNS notification payload size limit.
const maxPushPayloadBytes = 4096

// truncationMarker terminates a push body cut down to fit the payload limit.
const truncationMarker = "..."

// maxCustomDataServiceLen bounds the service name carried in the custom-data
// block, keeping the block itself within a fixed size so only the visible
// body ever needs truncation.
const maxCustomDataServiceLen = 100

// PushOptions selects whether and how the push sub-payload is rendered.
// Sandbox decides which platform channel key carries it; BundleID identifies
// the receiving app inside the custom-data block.
type PushOptions struct {
	Enabled  bool
	Sandbox  bool
	BundleID string
}

// apnsAlert is the visible alert portion of an APNS payload.
type apnsAlert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// apsBlock is the reserved "aps" dictionary of an APNS payload.
type apsBlock struct {
	Alert apnsAlert `json:"alert"`
	Sound string    `json:"sound"`
	Badge int       `json:"badge"`
}

// pushCustomData is the bounded custom-data block carried alongside the
// visible alert. It is never truncated.
type pushCustomData struct {
	AlertID    string  `json:"alert_id"`
	App        string  `json:"app,omitempty"`
	Spend      float64 `json:"spend"`
	Threshold  float64 `json:"threshold"`
	Exceed     float64 `json:"exceed"`
	TopService string  `json:"top_service,omitempty"`
	Severity   string  `json:"severity"`
}

// pushPayload is the full APNS payload.
type pushPayload struct {
	APS  apsBlock       `json:"aps"`
	Data pushCustomData `json:"data"`
}

// severitySound maps alert severity to the APNS sound flag. Critical alerts
// use a distinct sound so they cut through notification grouping.
func severitySound(s types.Severity) string {
	if s == types.SeverityCritical {
		return "critical.caf"
	}
	return "default"
}

// renderBulkText renders the long-form alert body used by the default and
// email channels.
func renderBulkText(alert types.AlertContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s: spend threshold exceeded\n\n", alert.Severity)
	fmt.Fprintf(&b, "Observed spend: $%.2f\n", alert.ObservedSpend)
	fmt.Fprintf(&b, "Threshold:      $%.2f\n", alert.Threshold)
	fmt.Fprintf(&b, "Over by:        $%.2f (%.1f%%)\n", alert.ExceedAmount, alert.PercentageOver)

	if len(alert.TopServices) > 0 {
		b.WriteString("\nTop services by cost:\n")
		for i, svc := range alert.TopServices {
			fmt.Fprintf(&b, "  %d. %s: $%.2f (%.1f%%)\n", i+1, svc.Name, svc.Cost, svc.Percentage)
		}
	}

	fmt.Fprintf(&b, "\nAlert ID: %s\n", alert.AlertID)
	return b.String()
}

// renderSMS renders the short body for the SMS channel.
func renderSMS(alert types.AlertContext) string {
	return fmt.Sprintf("%s: spend $%.2f exceeds threshold $%.2f by $%.2f",
		alert.Severity, alert.ObservedSpend, alert.Threshold, alert.ExceedAmount)
}

// renderSubject summarizes the exceed amount for the provider Subject line.
func renderSubject(alert types.AlertContext) string {
	return fmt.Sprintf("Spend alert: $%.2f over threshold", alert.ExceedAmount)
}

// renderPush builds and serializes the APNS payload. If the serialized form
// exceeds the provider limit, the body text (never the custom-data block) is
// truncated and serialization retried once. A payload that still does not
// fit is reported as push_payload_rejected without any provider call.
func renderPush(alert types.AlertContext, push PushOptions) (string, error) {
	title := fmt.Sprintf("Spend threshold exceeded by $%.2f", alert.ExceedAmount)

	body := fmt.Sprintf("Spend is $%.2f, $%.2f over your $%.2f threshold.",
		alert.ObservedSpend, alert.ExceedAmount, alert.Threshold)
	boundedService := ""
	if len(alert.TopServices) > 0 {
		top := alert.TopServices[0]
		body = fmt.Sprintf("%s Top service: %s ($%.2f).", body, top.Name, top.Cost)
		boundedService = top.Name
		if len(boundedService) > maxCustomDataServiceLen {
			boundedService = strings.ToValidUTF8(boundedService[:maxCustomDataServiceLen], "")
		}
	}

	payload := pushPayload{
		APS: apsBlock{
			Alert: apnsAlert{Title: title, Body: body},
			Sound: severitySound(alert.Severity),
			Badge: 1,
		},
		Data: pushCustomData{
			AlertID:    alert.AlertID,
			App:        push.BundleID,
			Spend:      alert.ObservedSpend,
			Threshold:  alert.Threshold,
			Exceed:     alert.ExceedAmount,
			TopService: boundedService,
			Severity:   string(alert.Severity),
		},
	}

	serialized, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to serialize push payload", err)
	}
	if len(serialized) <= maxPushPayloadBytes {
		return string(serialized), nil
	}

	// Trim only the body by the overflow and retry serialization once.
	overflow := len(serialized) - maxPushPayloadBytes + len(truncationMarker)
	if overflow >= len(body) {
		return "", types.NewAppError(types.ErrCodePushPayloadRejected,
			"push payload exceeds provider limit even without body text", nil)
	}
	payload.APS.Alert.Body = strings.ToValidUTF8(body[:len(body)-overflow], "") + truncationMarker

	serialized, err = json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to serialize truncated push payload", err)
	}
	if len(serialized) > maxPushPayloadBytes {
		return "", types.NewAppError(types.ErrCodePushPayloadRejected,
			"push payload exceeds provider limit after truncation", nil)
	}

	return string(serialized), nil
}

// buildMessage assembles the channel-keyed provider message. The default
// entry is always present; the push entry is included only when enabled,
// under the sandbox or production key per the options. Returns the
// serialized message and the channel names it carries.
func buildMessage(alert types.AlertContext, push PushOptions) (string, []string, error) {
	bulk := renderBulkText(alert)

	entries := map[string]string{
		channelDefault: bulk,
		channelEmail:   bulk,
		channelSMS:     renderSMS(alert),
	}
	channels := []string{channelEmail, channelSMS}

	if push.Enabled {
		rendered, err := renderPush(alert, push)
		if err != nil {
			return "", nil, err
		}
		key := channelAPNS
		if push.Sandbox {
			key = channelAPNSSandbox
		}
		entries[key] = rendered
		channels = append(channels, key)
	}

	serialized, err := json.Marshal(entries)
	if err != nil {
		return "", nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to serialize provider message", err)
	}

	return string(serialized), channels, nil
}
