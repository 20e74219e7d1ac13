package types

import "fmt"

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

type Pagination struct {
	Page    int `form:"page" json:"page"`
	PerPage int `form:"per_page" json:"per_page"`
}

// Normalize fills zero values with defaults and rejects out of range values.
func (p *Pagination) Normalize() error {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.PerPage == 0 {
		p.PerPage = DefaultPerPage
	}
	if p.Page < 1 {
		return fmt.Errorf("page must be >= 1")
	}
	if p.PerPage < 1 || p.PerPage > MaxPerPage {
		return fmt.Errorf("per_page must be between 1 and %d", MaxPerPage)
	}
	return nil
}

func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}
