// Package badge is the client for the badge/recognition endpoint. Badge
// actions ride the same channel as room traffic but address a separate
// server-side collaborator; every action is echoed back as a
// badge_update_response carrying success or error.
package badge

import (
	"errors"
	"fmt"

	"github.com/huddlekit/huddle/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrNotLoggedIn rejects badge actions before a login_user action succeeded.
var ErrNotLoggedIn = errors.New("badge user not logged in")

// Sender transmits a message toward the server.
type Sender interface {
	Send(models.Message)
}

// Notifier surfaces badge action failures to the user.
type Notifier interface {
	Warn(message string)
}

// Client issues badge actions and folds their responses back.
type Client struct {
	sender   Sender
	notifier Notifier
	user     string
	loggedIn bool
}

// New returns a badge client bound to a sender.
func New(sender Sender, notifier Notifier) *Client {
	return &Client{sender: sender, notifier: notifier}
}

// Login identifies the acting user to the badge endpoint.
func (c *Client) Login(user string) {
	c.user = user
	c.send(models.BadgeUpdatePayload{Action: models.BadgeActionLoginUser, User: user})
}

// Award grants a badge to a user.
func (c *Client) Award(user string, badgeID int) error {
	if !c.loggedIn {
		return ErrNotLoggedIn
	}
	c.send(models.BadgeUpdatePayload{Action: models.BadgeActionAwardBadge, User: user, BadgeID: badgeID})
	return nil
}

// AddBadge creates a badge definition.
func (c *Client) AddBadge(b models.Badge) error {
	return c.crud(models.BadgeActionAddBadge, &b, nil)
}

// UpdateBadge edits a badge definition.
func (c *Client) UpdateBadge(b models.Badge) error {
	return c.crud(models.BadgeActionUpdateBadge, &b, nil)
}

// DeleteBadge removes a badge definition.
func (c *Client) DeleteBadge(id int) error {
	if !c.loggedIn {
		return ErrNotLoggedIn
	}
	c.send(models.BadgeUpdatePayload{Action: models.BadgeActionDeleteBadge, BadgeID: id})
	return nil
}

// AddCategory creates a badge category.
func (c *Client) AddCategory(cat models.BadgeCategory) error {
	return c.crud(models.BadgeActionAddCategory, nil, &cat)
}

// UpdateCategory edits a badge category.
func (c *Client) UpdateCategory(cat models.BadgeCategory) error {
	return c.crud(models.BadgeActionUpdateCategory, nil, &cat)
}

// DeleteCategory removes a badge category.
func (c *Client) DeleteCategory(id int) error {
	return c.crud(models.BadgeActionDeleteCategory, nil, &models.BadgeCategory{ID: id})
}

// HandleResponse folds a badge_update_response back into the client.
func (c *Client) HandleResponse(p models.BadgeResponsePayload) {
	if p.Status == "success" {
		if p.Action == models.BadgeActionLoginUser {
			c.loggedIn = true
		}
		log.Debug().Str("action", string(p.Action)).Msg("badge action succeeded")
		return
	}
	log.Warn().Str("action", string(p.Action)).Str("message", p.Message).Msg("badge action failed")
	if c.notifier != nil {
		c.notifier.Warn(fmt.Sprintf("badge %s failed: %s", p.Action, p.Message))
	}
}

// LoggedIn reports whether the badge endpoint acknowledged a login.
func (c *Client) LoggedIn() bool {
	return c.loggedIn
}

func (c *Client) crud(action models.BadgeAction, b *models.Badge, cat *models.BadgeCategory) error {
	if !c.loggedIn {
		return ErrNotLoggedIn
	}
	c.send(models.BadgeUpdatePayload{Action: action, Badge: b, Category: cat})
	return nil
}

func (c *Client) send(p models.BadgeUpdatePayload) {
	c.sender.Send(models.MustMessage(models.MessageBadgeUpdate, "", p))
}
