package service

import "github.com/voyagen/tvvault/internal/models"

// Fallbacks for entries missing a group or display name. Absent data
// degrades to these, never to an error.
const (
	defaultCategory = "Uncategorized"
	defaultItemName = "Unknown"
)

// Categorize groups raw playlist entries into categories in a single pass.
// A category is created the first time its group-title is seen, taking its
// kind from that entry's location; later entries with the same group-title
// join as items without re-deriving the kind. Categories come back in
// first-seen order with items in arrival order.
func Categorize(entries []models.RawEntry) []models.Category {
	categories := make([]models.Category, 0)
	index := make(map[string]int)

	for _, e := range entries {
		name := e.Attributes["group-title"]
		if name == "" {
			name = defaultCategory
		}
		i, ok := index[name]
		if !ok {
			i = len(categories)
			index[name] = i
			categories = append(categories, models.Category{
				Name: name,
				Kind: models.KindFromLocation(e.Location),
			})
		}

		itemName := e.Attributes["tvg-name"]
		if itemName == "" {
			itemName = defaultItemName
		}
		var logo *string
		if v := e.Attributes["tvg-logo"]; v != "" {
			logo = &v
		}
		categories[i].Items = append(categories[i].Items, models.Item{
			Name: itemName,
			Logo: logo,
			URL:  e.Location,
		})
	}
	return categories
}
