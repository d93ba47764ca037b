package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("tabwarden: %s", event.Kind),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Host:* %s", event.Host)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Profile:* %s", event.ProfileID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Risk:* %d (%s)", event.Risk, riskLabelFor(event.Risk))},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Tab:* %s", event.TabID)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	severity := "info"
	switch {
	case event.Risk >= 90:
		severity = "critical"
	case event.Risk >= 70:
		severity = "error"
	case event.Risk >= 40:
		severity = "warning"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("tabwarden %s: %s", event.Kind, event.Host),
			"severity": severity,
			"source":   "tabwarden",
			"custom_details": map[string]any{
				"host":       event.Host,
				"profile_id": event.ProfileID,
				"risk":       event.Risk,
				"tab_id":     event.TabID,
			},
		},
	}
	return json.Marshal(payload)
}

func riskLabelFor(risk int) string {
	switch {
	case risk >= 90:
		return "critical"
	case risk >= 70:
		return "high"
	case risk >= 40:
		return "elevated"
	default:
		return "low"
	}
}
