package models

import "time"

// Course groups related workshops and drives the public catalog.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Public      bool      `db:"public" json:"public"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter captures filtering criteria for catalog listings.
type CourseFilter struct {
	PublicOnly bool
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
