package hub

import (
	"fmt"
	"sync"

	"github.com/huddlekit/huddle/internal/models"
	"github.com/rs/zerolog/log"
)

// badgeRegistry is the server side of the badge protocol. Badge data is
// global, not room-scoped, and every badge_update is answered with a
// badge_update_response addressed only to the requester.
type badgeRegistry struct {
	mu         sync.Mutex
	users      map[string]bool
	badges     map[int]models.Badge
	categories map[int]models.BadgeCategory
	awards     map[string][]int
	nextBadge  int
	nextCat    int
}

func newBadgeRegistry() *badgeRegistry {
	return &badgeRegistry{
		users:      make(map[string]bool),
		badges:     make(map[int]models.Badge),
		categories: make(map[int]models.BadgeCategory),
		awards:     make(map[string][]int),
		nextBadge:  1,
		nextCat:    1,
	}
}

func (r *badgeRegistry) handle(p models.BadgeUpdatePayload) models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	resp := models.BadgeResponsePayload{Action: p.Action, Status: "success"}
	if err := r.applyLocked(p); err != nil {
		resp.Status = "error"
		resp.Message = err.Error()
		log.Warn().Str("action", string(p.Action)).Err(err).Msg("badge action rejected")
	}
	return models.MustMessage(models.MessageBadgeUpdateResponse, "", resp)
}

func (r *badgeRegistry) applyLocked(p models.BadgeUpdatePayload) error {
	switch p.Action {
	case models.BadgeActionLoginUser:
		if p.User == "" {
			return fmt.Errorf("login requires a user name")
		}
		r.users[p.User] = true
		return nil

	case models.BadgeActionAwardBadge:
		if _, ok := r.badges[p.BadgeID]; !ok {
			return fmt.Errorf("unknown badge %d", p.BadgeID)
		}
		if p.User == "" {
			return fmt.Errorf("award requires a user name")
		}
		r.awards[p.User] = append(r.awards[p.User], p.BadgeID)
		return nil

	case models.BadgeActionAddBadge:
		if p.Badge == nil || p.Badge.Name == "" {
			return fmt.Errorf("badge requires a name")
		}
		b := *p.Badge
		if b.ID == 0 {
			b.ID = r.nextBadge
		}
		if b.ID >= r.nextBadge {
			r.nextBadge = b.ID + 1
		}
		r.badges[b.ID] = b
		return nil

	case models.BadgeActionUpdateBadge:
		if p.Badge == nil {
			return fmt.Errorf("update requires a badge")
		}
		if _, ok := r.badges[p.Badge.ID]; !ok {
			return fmt.Errorf("unknown badge %d", p.Badge.ID)
		}
		r.badges[p.Badge.ID] = *p.Badge
		return nil

	case models.BadgeActionDeleteBadge:
		if _, ok := r.badges[p.BadgeID]; !ok {
			return fmt.Errorf("unknown badge %d", p.BadgeID)
		}
		delete(r.badges, p.BadgeID)
		return nil

	case models.BadgeActionAddCategory:
		if p.Category == nil || p.Category.Name == "" {
			return fmt.Errorf("category requires a name")
		}
		c := *p.Category
		if c.ID == 0 {
			c.ID = r.nextCat
		}
		if c.ID >= r.nextCat {
			r.nextCat = c.ID + 1
		}
		r.categories[c.ID] = c
		return nil

	case models.BadgeActionUpdateCategory:
		if p.Category == nil {
			return fmt.Errorf("update requires a category")
		}
		if _, ok := r.categories[p.Category.ID]; !ok {
			return fmt.Errorf("unknown category %d", p.Category.ID)
		}
		r.categories[p.Category.ID] = *p.Category
		return nil

	case models.BadgeActionDeleteCategory:
		if p.Category == nil {
			return fmt.Errorf("delete requires a category")
		}
		if _, ok := r.categories[p.Category.ID]; !ok {
			return fmt.Errorf("unknown category %d", p.Category.ID)
		}
		delete(r.categories, p.Category.ID)
		return nil

	default:
		return fmt.Errorf("unknown badge action %q", p.Action)
	}
}
