package domain

import "fmt"

// Category is the fixed content classification attached to a document and
// inherited by its chunks.
type Category string

const (
	CategoryWork          Category = "work"
	CategoryPersonal      Category = "personal"
	CategoryGeneralInfo   Category = "general info"
	CategoryContactsInfo  Category = "contacts info"
	CategoryConversations Category = "conversations"
	CategoryMeetings      Category = "meetings"
	CategoryNotes         Category = "notes"
	CategoryUnclassified  Category = "unclassified"
)

// Categories lists the classifiable categories in a fixed order. The order is
// load-bearing: category detection breaks ties by position in this slice.
func Categories() []Category {
	return []Category{
		CategoryWork,
		CategoryPersonal,
		CategoryGeneralInfo,
		CategoryContactsInfo,
		CategoryConversations,
		CategoryMeetings,
		CategoryNotes,
	}
}

// ParseCategory validates a category string. An empty string maps to
// unclassified.
func ParseCategory(s string) (Category, error) {
	if s == "" {
		return CategoryUnclassified, nil
	}
	c := Category(s)
	if c == CategoryUnclassified {
		return c, nil
	}
	for _, known := range Categories() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category: %q", s)
}
