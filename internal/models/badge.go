package models

// BadgeAction discriminates badge_update requests to the badge endpoint.
type BadgeAction string

const (
	BadgeActionLoginUser      BadgeAction = "login_user"
	BadgeActionAwardBadge     BadgeAction = "award_badge"
	BadgeActionAddBadge       BadgeAction = "add_badge"
	BadgeActionUpdateBadge    BadgeAction = "update_badge"
	BadgeActionDeleteBadge    BadgeAction = "delete_badge"
	BadgeActionAddCategory    BadgeAction = "add_category"
	BadgeActionUpdateCategory BadgeAction = "update_category"
	BadgeActionDeleteCategory BadgeAction = "delete_category"
)

// Badge is a recognition badge definition.
type Badge struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	CategoryID  int    `json:"categoryId,omitempty"`
}

// BadgeCategory groups badges for display.
type BadgeCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// BadgeUpdatePayload is a badge_update request. The fields beyond Action are
// populated per-action: login and award name a user, badge CRUD carries
// Badge, category CRUD carries Category.
type BadgeUpdatePayload struct {
	Action   BadgeAction    `json:"action"`
	User     string         `json:"user,omitempty"`
	BadgeID  int            `json:"badgeId,omitempty"`
	Badge    *Badge         `json:"badge,omitempty"`
	Category *BadgeCategory `json:"category,omitempty"`
}

// BadgeResponsePayload echoes a badge_update with its outcome.
type BadgeResponsePayload struct {
	Action  BadgeAction `json:"action"`
	Status  string      `json:"status"` // "success" or "error"
	Message string      `json:"message,omitempty"`
}
