package model

// HeadingRecord is one heading read from the article body, in document order.
type HeadingRecord struct {
	ID    string `json:"id" yaml:"id" binding:"required"`
	Title string `json:"title" yaml:"title"`
	Level int    `json:"level" yaml:"level" binding:"min=1,max=6"`
}
