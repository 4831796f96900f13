package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sleeplog-backend/internal/models"
)

const pushbulletURL = "https://api.pushbullet.com/v2/pushes"

// PushbulletService sends notes to every device on the account.
type PushbulletService struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewPushbulletService(apiKey string) *PushbulletService {
	return &PushbulletService{
		apiKey:  apiKey,
		baseURL: pushbulletURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *PushbulletService) Name() string { return "pushbullet" }

func (s *PushbulletService) Send(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(map[string]string{
		"type":  "note",
		"title": n.Title,
		"body":  n.Body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Access-Token", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushbullet request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pushbullet returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
