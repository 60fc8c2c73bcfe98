package hub

import (
	"encoding/json"
	"testing"

	"github.com/huddlekit/huddle/internal/models"
)

func badgeResponse(t *testing.T, msg models.Message) models.BadgeResponsePayload {
	t.Helper()
	if msg.Type != models.MessageBadgeUpdateResponse {
		t.Fatalf("message type = %q, want badge_update_response", msg.Type)
	}
	var p models.BadgeResponsePayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestBadgeLifecycle(t *testing.T) {
	r := newBadgeRegistry()

	resp := badgeResponse(t, r.handle(models.BadgeUpdatePayload{Action: models.BadgeActionLoginUser, User: "sam"}))
	if resp.Status != "success" {
		t.Fatalf("login failed: %+v", resp)
	}

	resp = badgeResponse(t, r.handle(models.BadgeUpdatePayload{
		Action: models.BadgeActionAddBadge,
		Badge:  &models.Badge{Name: "Ship It"},
	}))
	if resp.Status != "success" {
		t.Fatalf("add badge failed: %+v", resp)
	}

	resp = badgeResponse(t, r.handle(models.BadgeUpdatePayload{Action: models.BadgeActionAwardBadge, User: "sam", BadgeID: 1}))
	if resp.Status != "success" {
		t.Fatalf("award failed: %+v", resp)
	}

	resp = badgeResponse(t, r.handle(models.BadgeUpdatePayload{Action: models.BadgeActionDeleteBadge, BadgeID: 1}))
	if resp.Status != "success" {
		t.Fatalf("delete failed: %+v", resp)
	}
}

func TestBadgeErrorsEchoTheAction(t *testing.T) {
	r := newBadgeRegistry()

	tests := []struct {
		name    string
		payload models.BadgeUpdatePayload
	}{
		{"login without user", models.BadgeUpdatePayload{Action: models.BadgeActionLoginUser}},
		{"award unknown badge", models.BadgeUpdatePayload{Action: models.BadgeActionAwardBadge, User: "sam", BadgeID: 99}},
		{"add badge without name", models.BadgeUpdatePayload{Action: models.BadgeActionAddBadge, Badge: &models.Badge{}}},
		{"update unknown badge", models.BadgeUpdatePayload{Action: models.BadgeActionUpdateBadge, Badge: &models.Badge{ID: 99, Name: "x"}}},
		{"delete unknown category", models.BadgeUpdatePayload{Action: models.BadgeActionDeleteCategory, Category: &models.BadgeCategory{ID: 99}}},
		{"unknown action", models.BadgeUpdatePayload{Action: "promote_user"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := badgeResponse(t, r.handle(tt.payload))
			if resp.Status != "error" {
				t.Errorf("status = %q, want error", resp.Status)
			}
			if resp.Action != tt.payload.Action {
				t.Errorf("response action = %q, want %q", resp.Action, tt.payload.Action)
			}
			if resp.Message == "" {
				t.Error("error response without a message")
			}
		})
	}
}

func TestBadgeCategoryLifecycle(t *testing.T) {
	r := newBadgeRegistry()

	resp := badgeResponse(t, r.handle(models.BadgeUpdatePayload{
		Action:   models.BadgeActionAddCategory,
		Category: &models.BadgeCategory{Name: "Team Spirit"},
	}))
	if resp.Status != "success" {
		t.Fatalf("add category failed: %+v", resp)
	}

	resp = badgeResponse(t, r.handle(models.BadgeUpdatePayload{
		Action:   models.BadgeActionUpdateCategory,
		Category: &models.BadgeCategory{ID: 1, Name: "Craft"},
	}))
	if resp.Status != "success" {
		t.Fatalf("update category failed: %+v", resp)
	}

	resp = badgeResponse(t, r.handle(models.BadgeUpdatePayload{
		Action:   models.BadgeActionDeleteCategory,
		Category: &models.BadgeCategory{ID: 1},
	}))
	if resp.Status != "success" {
		t.Fatalf("delete category failed: %+v", resp)
	}
}
