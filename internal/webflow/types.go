package webflow

import "fmt"

// Collection is a CMS collection as listed for a site.
type Collection struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	SingularName string `json:"singularName,omitempty"`
	Slug         string `json:"slug"`
}

type collectionsResponse struct {
	Collections []Collection `json:"collections"`
}

// Item is a CMS item. It keeps every property the API returned so it can be
// passed through to clients unchanged.
type Item map[string]any

// ID returns the item id.
func (it Item) ID() string {
	s, _ := it["id"].(string)
	return s
}

// Fields returns the item's fieldData, or nil.
func (it Item) Fields() map[string]any {
	m, _ := it["fieldData"].(map[string]any)
	return m
}

// Field returns fieldData[key] as a string; non-string values yield "".
func (it Item) Field(key string) string {
	s, _ := it.Fields()[key].(string)
	return s
}

// Clone returns a shallow copy with its own fieldData map.
func (it Item) Clone() Item {
	out := make(Item, len(it)+3)
	for k, v := range it {
		out[k] = v
	}
	if f := it.Fields(); f != nil {
		cp := make(map[string]any, len(f))
		for k, v := range f {
			cp[k] = v
		}
		out["fieldData"] = cp
	}
	return out
}

// Pagination is the paging block of item listings.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

type itemsResponse struct {
	Items      []Item     `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// APIError is returned for non-2xx answers.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("webflow: status %d: %s", e.Status, e.Body)
}
