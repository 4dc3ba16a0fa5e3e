package domain

import "strings"

// CanonicalSkill rewrites a skill identifier into the canonical
// "category/subcategory" form. An observation carrying only a category
// becomes "category/default".
func CanonicalSkill(skill string) string {
	skill = strings.TrimSpace(strings.ToLower(skill))
	if skill == "" {
		return ""
	}
	if !strings.Contains(skill, "/") {
		return skill + "/default"
	}
	return skill
}

// SplitSkill breaks a skill into (category, subcategory). A bare category
// yields an empty subcategory so rate-history lookups can join on
// category alone.
func SplitSkill(skill string) (category, subcategory string) {
	parts := strings.SplitN(skill, "/", 2)
	category = parts[0]
	if len(parts) == 2 {
		subcategory = parts[1]
	}
	return category, subcategory
}
