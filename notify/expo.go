package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/h-like/sleeprism-chat/databases"
	"github.com/h-like/sleeprism-chat/models"
)

const (
	expoPushURL    = "https://exp.host/--/api/v2/push/send"
	expoBatchLimit = 100
)

// ExpoPushMessage represents a single push notification message for the Expo push API
type ExpoPushMessage struct {
	To        string                 `json:"to"`
	Title     string                 `json:"title,omitempty"`
	Body      string                 `json:"body,omitempty"`
	Sound     string                 `json:"sound,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Priority  string                 `json:"priority,omitempty"`
	ChannelID string                 `json:"channelId,omitempty"`
}

// ExpoSink pushes the event to every device the user registered
type ExpoSink struct {
	Tokens databases.PushTokenDatabase
	Client *http.Client
	URL    string
}

// NewExpoSink creates a sink posting to the public Expo endpoint
func NewExpoSink(tokens databases.PushTokenDatabase) *ExpoSink {
	return &ExpoSink{
		Tokens: tokens,
		Client: &http.Client{Timeout: 15 * time.Second},
		URL:    expoPushURL,
	}
}

// Name implements Sink
func (*ExpoSink) Name() string { return "expo" }

// Deliver implements Sink
func (s *ExpoSink) Deliver(ctx context.Context, userID uint, ev models.NotificationEvent) error {
	tokens, err := s.Tokens.FindByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load push tokens of user %d: %w", userID, err)
	}
	if len(tokens) == 0 {
		return nil
	}

	messages := make([]ExpoPushMessage, 0, len(tokens))
	for _, t := range tokens {
		messages = append(messages, ExpoPushMessage{
			To:    t.Token,
			Title: pushTitle(ev.Type),
			Body:  ev.Message,
			Sound: "default",
			Data: map[string]interface{}{
				"type":         ev.Type,
				"targetType":   ev.TargetType,
				"targetId":     ev.TargetID,
				"redirectPath": ev.RedirectPath,
			},
			Priority:  "high",
			ChannelID: "default",
		})
	}

	var failed int
	for i := 0; i < len(messages); i += expoBatchLimit {
		end := i + expoBatchLimit
		if end > len(messages) {
			end = len(messages)
		}
		if err := s.sendBatch(ctx, messages[i:end]); err != nil {
			failed++
			zap.S().Errorw("failed to send Expo push batch", "userId", userID, "from", i, "to", end-1, "error", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d push batches failed", failed, (len(messages)+expoBatchLimit-1)/expoBatchLimit)
	}
	return nil
}

func (s *ExpoSink) sendBatch(ctx context.Context, messages []ExpoPushMessage) error {
	jsonData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal push messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expo push API returned status %d", resp.StatusCode)
	}
	zap.S().Debugw("sent push notifications via Expo", "count", len(messages))
	return nil
}

func pushTitle(eventType string) string {
	switch eventType {
	case models.NotificationChatInvite:
		return "Chat invitation"
	case models.NotificationChatMessage:
		return "New message"
	}
	return "Sleeprism"
}
