package badge

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/huddlekit/huddle/internal/models"
)

type captureSender struct {
	sent []models.Message
}

func (s *captureSender) Send(msg models.Message) {
	s.sent = append(s.sent, msg)
}

type captureNotifier struct {
	warnings []string
}

func (n *captureNotifier) Warn(message string) {
	n.warnings = append(n.warnings, message)
}

func loginOK(c *Client) {
	c.HandleResponse(models.BadgeResponsePayload{Action: models.BadgeActionLoginUser, Status: "success"})
}

func TestActionsRequireLogin(t *testing.T) {
	sender := &captureSender{}
	c := New(sender, &captureNotifier{})

	tests := []struct {
		name string
		call func() error
	}{
		{"award", func() error { return c.Award("sam", 1) }},
		{"add badge", func() error { return c.AddBadge(models.Badge{Name: "x"}) }},
		{"delete badge", func() error { return c.DeleteBadge(1) }},
		{"add category", func() error { return c.AddCategory(models.BadgeCategory{Name: "x"}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrNotLoggedIn) {
				t.Errorf("error = %v, want ErrNotLoggedIn", err)
			}
		})
	}
	if len(sender.sent) != 0 {
		t.Errorf("rejected actions still sent %d messages", len(sender.sent))
	}
}

func TestLoginFlow(t *testing.T) {
	sender := &captureSender{}
	c := New(sender, &captureNotifier{})

	c.Login("sam")
	if c.LoggedIn() {
		t.Error("logged in before the server acknowledged")
	}
	if len(sender.sent) != 1 || sender.sent[0].Type != models.MessageBadgeUpdate {
		t.Fatalf("expected one badge_update, got %+v", sender.sent)
	}
	var p models.BadgeUpdatePayload
	if err := json.Unmarshal(sender.sent[0].Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.Action != models.BadgeActionLoginUser || p.User != "sam" {
		t.Errorf("login payload = %+v", p)
	}

	loginOK(c)
	if !c.LoggedIn() {
		t.Error("success response did not mark the client logged in")
	}

	if err := c.Award("ada", 2); err != nil {
		t.Errorf("award after login rejected: %v", err)
	}
}

func TestErrorResponsesSurfaceAsWarnings(t *testing.T) {
	notifier := &captureNotifier{}
	c := New(&captureSender{}, notifier)
	loginOK(c)

	c.HandleResponse(models.BadgeResponsePayload{
		Action:  models.BadgeActionAwardBadge,
		Status:  "error",
		Message: "unknown badge 7",
	})

	if len(notifier.warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", notifier.warnings)
	}
}
