package news

import "strings"

// Category is one label of the closed story taxonomy.
type Category string

const (
	CategoryConflict    Category = "conflict"
	CategoryEconomy     Category = "economy"
	CategoryPolitics    Category = "politics"
	CategoryEnvironment Category = "environment"
	CategoryTechnology  Category = "technology"
	CategoryHealth      Category = "health"
	CategoryGeneral     Category = "general"
)

// rules are checked in order; the first hit wins.
var categoryRules = []struct {
	category Category
	terms    []string
}{
	{CategoryConflict, []string{"war", "conflict", "military"}},
	{CategoryEconomy, []string{"economy", "market", "financial"}},
	{CategoryPolitics, []string{"election", "political", "government"}},
	{CategoryEnvironment, []string{"climate", "environment"}},
	{CategoryTechnology, []string{"technology", "ai", "tech"}},
	{CategoryHealth, []string{"health", "medical"}},
}

// DetectCategory labels a story by the first rule whose term occurs in the
// title or description.
func DetectCategory(s Story) Category {
	text := s.text()
	for _, rule := range categoryRules {
		for _, term := range rule.terms {
			if strings.Contains(text, term) {
				return rule.category
			}
		}
	}
	return CategoryGeneral
}
