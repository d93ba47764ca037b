package policydiff

import (
	"fmt"

	"github.com/tabwarden/tabwarden/internal/policy"
)

// Change represents a scalar field change.
type Change struct {
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Comment string `json:"comment,omitempty"`
}

// ListChange represents a domain list entry addition or removal.
type ListChange struct {
	Type    string `json:"type"` // "added", "removed"
	Profile string `json:"profile,omitempty"`
	List    string `json:"list"`
	Entry   string `json:"entry"`
}

// DiffResult holds the comparison of two policy documents.
type DiffResult struct {
	OldPath     string       `json:"old_path"`
	NewPath     string       `json:"new_path"`
	Changes     []Change     `json:"changes"`
	ListChanges []ListChange `json:"list_changes"`
	HasChanges  bool         `json:"has_changes"`
}

// Diff compares two policy documents and returns the differences.
// The admin PIN is reported as configured or absent, never by value.
func Diff(old, new *policy.Document) *DiffResult {
	r := &DiffResult{}

	if old.SelectedProfileID != new.SelectedProfileID {
		r.Changes = append(r.Changes, Change{
			Field: "selected_profile_id",
			Old:   old.SelectedProfileID,
			New:   new.SelectedProfileID,
		})
	}

	diffPIN(r, old.AdminPIN, new.AdminPIN)
	diffString(r, "redirect_url", old.RedirectURL, new.RedirectURL)
	diffString(r, "user_role", old.UserRole, new.UserRole)
	diffList(r, "", "custom_ai_domains", old.CustomAIDomains, new.CustomAIDomains)

	diffProfiles(r, old.Profiles, new.Profiles)

	r.HasChanges = len(r.Changes) > 0 || len(r.ListChanges) > 0
	return r
}

func diffPIN(r *DiffResult, old, new string) {
	if old == new {
		return
	}
	if (old != "") && (new != "") {
		r.Changes = append(r.Changes, Change{
			Field:   "admin_pin",
			Old:     "configured",
			New:     "configured",
			Comment: "rotated",
		})
		return
	}
	c := Change{Field: "admin_pin", Old: pinState(old), New: pinState(new)}
	if new != "" {
		c.Comment = "stricter"
	} else {
		c.Comment = "looser"
	}
	r.Changes = append(r.Changes, c)
}

func pinState(pin string) string {
	if pin == "" {
		return "(none)"
	}
	return "configured"
}

func diffProfiles(r *DiffResult, oldProfiles, newProfiles []policy.Profile) {
	oldByID := make(map[string]policy.Profile, len(oldProfiles))
	for _, p := range oldProfiles {
		oldByID[p.ID] = p
	}
	newByID := make(map[string]policy.Profile, len(newProfiles))
	for _, p := range newProfiles {
		newByID[p.ID] = p
	}

	for _, np := range newProfiles {
		op, exists := oldByID[np.ID]
		if !exists {
			r.Changes = append(r.Changes, Change{Field: "profiles", New: np.ID, Comment: "added"})
			continue
		}
		diffProfile(r, op, np)
	}
	for _, op := range oldProfiles {
		if _, exists := newByID[op.ID]; !exists {
			r.Changes = append(r.Changes, Change{Field: "profiles", Old: op.ID, Comment: "removed"})
		}
	}
}

func diffProfile(r *DiffResult, old, new policy.Profile) {
	prefix := "profiles." + new.ID + "."

	diffString(r, prefix+"mode", old.Mode, new.Mode)

	// Lower threshold means prompts open at lower risk.
	diffInt(r, prefix+"risk_threshold", old.RiskThreshold, new.RiskThreshold, false)

	if old.RequirePIN != new.RequirePIN {
		c := Change{
			Field: prefix + "require_pin",
			Old:   fmt.Sprintf("%v", old.RequirePIN),
			New:   fmt.Sprintf("%v", new.RequirePIN),
		}
		if new.RequirePIN {
			c.Comment = "stricter"
		} else {
			c.Comment = "looser"
		}
		r.Changes = append(r.Changes, c)
	}

	if old.TrackUsers != new.TrackUsers {
		r.Changes = append(r.Changes, Change{
			Field: prefix + "track_users",
			Old:   fmt.Sprintf("%v", old.TrackUsers),
			New:   fmt.Sprintf("%v", new.TrackUsers),
		})
	}
	diffString(r, prefix+"track_prompts", old.TrackPrompts, new.TrackPrompts)

	diffInt(r, prefix+"weights.ai_domain", old.Weights.AIDomain, new.Weights.AIDomain, true)
	diffInt(r, prefix+"weights.ai_on_page", old.Weights.AIOnPage, new.Weights.AIOnPage, true)
	diffInt(r, prefix+"weights.internal_site", old.Weights.InternalSite, new.Weights.InternalSite, true)
	for _, kind := range []string{policy.FieldPassword, policy.FieldEmail, policy.FieldCredit, policy.FieldID} {
		diffInt(r, prefix+"weights.sensitive_field."+kind,
			old.Weights.SensitiveField[kind], new.Weights.SensitiveField[kind], true)
	}

	diffList(r, new.ID, "allowed_domains", old.AllowedDomains, new.AllowedDomains)
	diffList(r, new.ID, "blocked_domains", old.BlockedDomains, new.BlockedDomains)
}

func diffString(r *DiffResult, field, old, new string) {
	if old != new {
		r.Changes = append(r.Changes, Change{Field: field, Old: old, New: new})
	}
}

func diffInt(r *DiffResult, field string, old, new int, higherIsStricter bool) {
	if old != new {
		r.Changes = append(r.Changes, Change{
			Field:   field,
			Old:     fmt.Sprintf("%d", old),
			New:     fmt.Sprintf("%d", new),
			Comment: intComment(old, new, higherIsStricter),
		})
	}
}

func intComment(old, new int, higherIsStricter bool) string {
	if higherIsStricter {
		if new > old {
			return "stricter"
		}
		return "looser"
	}
	// Lower is stricter (e.g. risk_threshold: prompts open at lower risk)
	if new < old {
		return "stricter"
	}
	return "looser"
}

func diffList(r *DiffResult, profile, list string, oldEntries, newEntries []string) {
	oldSet := make(map[string]bool, len(oldEntries))
	for _, e := range oldEntries {
		oldSet[e] = true
	}
	newSet := make(map[string]bool, len(newEntries))
	for _, e := range newEntries {
		newSet[e] = true
	}

	emitted := make(map[string]bool)
	for _, e := range newEntries {
		if !oldSet[e] && !emitted[e] {
			emitted[e] = true
			r.ListChanges = append(r.ListChanges, ListChange{
				Type: "added", Profile: profile, List: list, Entry: e,
			})
		}
	}
	emitted = make(map[string]bool)
	for _, e := range oldEntries {
		if !newSet[e] && !emitted[e] {
			emitted[e] = true
			r.ListChanges = append(r.ListChanges, ListChange{
				Type: "removed", Profile: profile, List: list, Entry: e,
			})
		}
	}
}
