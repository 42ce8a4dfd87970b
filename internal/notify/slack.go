package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// SlackWebhook posts run announcements to a Slack incoming webhook.
type SlackWebhook struct {
	URL    string
	Client *http.Client
}

// NewSlackWebhook returns a webhook channel with a bounded request timeout.
func NewSlackWebhook(url string) *SlackWebhook {
	return &SlackWebhook{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// slackPayload is the incoming-webhook message shape.
type slackPayload struct {
	Text        string       `json:"text"`
	Attachments []slackPanel `json:"attachments,omitempty"`
}

type slackPanel struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Announce posts the event. A webhook without a URL is disabled and
// announces nothing.
func (s *SlackWebhook) Announce(e RunEvent) error {
	if s.URL == "" {
		return nil
	}

	payload := slackPayload{
		Text: e.Title(),
		Attachments: []slackPanel{{
			Color: attachmentColor(e.Level),
			Title: fmt.Sprintf("run %s: %s", e.RunID, e.Outcome),
			Text:  e.Body(),
			Fields: []slackField{
				{Title: "Iterations", Value: strconv.Itoa(e.Iterations), Short: true},
				{Title: "Elapsed", Value: e.Elapsed.Round(time.Second).String(), Short: true},
			},
			Footer: "claude-loop",
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := s.Client.Post(s.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}

func attachmentColor(l Level) string {
	switch l {
	case LevelSuccess:
		return "good"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "danger"
	default:
		return "#439FE0"
	}
}
