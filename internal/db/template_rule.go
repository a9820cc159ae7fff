package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// AutomationRule is the row shape for a platform account's intent-to-template mapping.
type AutomationRule struct {
	ID                uuid.UUID
	PlatformAccountID uuid.UUID
	TriggerType       string
	ActionType        string
	Intent            string
	TemplateName      string
	Priority          int
	IsEnabled         bool
}

// FindRuleByIntent returns the applicable rule for an account and intent,
// ordered by lowest priority first, then oldest, per the ordering invariant.
func (q *Queries) FindRuleByIntent(ctx context.Context, platformAccountID uuid.UUID, intent string) (AutomationRule, bool, error) {
	var r AutomationRule
	err := q.db.QueryRow(ctx, `
		SELECT id, platform_account_id, trigger_type, action_type, intent, template_name, priority, is_enabled
		FROM automation_rules
		WHERE platform_account_id = $1 AND intent = $2
		ORDER BY priority ASC, created_at ASC
		LIMIT 1`, platformAccountID, intent,
	).Scan(&r.ID, &r.PlatformAccountID, &r.TriggerType, &r.ActionType, &r.Intent, &r.TemplateName, &r.Priority, &r.IsEnabled)
	if err != nil {
		if isNoRows(err) {
			return AutomationRule{}, false, nil
		}
		return AutomationRule{}, false, fmt.Errorf("finding rule by intent: %w", err)
	}
	return r, true, nil
}

// Template is the row shape for a reply template.
type Template struct {
	ID                uuid.UUID
	PlatformAccountID *uuid.UUID
	Name              string
	Locale            string
	Body              string
	Variables         []string
	IsActive          bool
}

// FindTemplate resolves a template by name, preferring a platform-scoped
// template over a global one with the same name.
func (q *Queries) FindTemplate(ctx context.Context, platformAccountID uuid.UUID, name string) (Template, bool, error) {
	var t Template
	err := q.db.QueryRow(ctx, `
		SELECT id, platform_account_id, name, locale, body, variables, is_active
		FROM templates
		WHERE name = $2 AND is_active = true AND (platform_account_id = $1 OR platform_account_id IS NULL)
		ORDER BY platform_account_id NULLS LAST
		LIMIT 1`, platformAccountID, name,
	).Scan(&t.ID, &t.PlatformAccountID, &t.Name, &t.Locale, &t.Body, &t.Variables, &t.IsActive)
	if err != nil {
		if isNoRows(err) {
			return Template{}, false, nil
		}
		return Template{}, false, fmt.Errorf("finding template: %w", err)
	}
	return t, true, nil
}
