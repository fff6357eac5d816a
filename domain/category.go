package domain

// Category groups tasks on the board. Categories belong to exactly one
// user and relate to tasks many-to-many via Task.CategoryIDs.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}
