package domain

type Category struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Slug     string     `json:"slug"`
	ParentID string     `json:"parentId,omitempty"`
	Image    string     `json:"image,omitempty"`
	Children []Category `json:"children,omitempty"`
}

type Subcategory struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	CategoryID string `json:"categoryId"`
}
