package common

import (
	"net/http"
	"strconv"
)

// Page is a parsed page/limit query.
type Page struct {
	Number  int
	PerPage int
}

func (p Page) Offset() int { return (p.Number - 1) * p.PerPage }

// Pagination is the metadata block of list responses.
type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalItems int  `json:"total_items"`
	HasMore    bool `json:"has_more"`
}

// ParsePage reads ?page= and ?limit=, clamping limit to maxPerPage.
func ParsePage(r *http.Request, defaultPerPage, maxPerPage int) Page {
	p := Page{Number: 1, PerPage: defaultPerPage}
	q := r.URL.Query()
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.Number = n
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		p.PerPage = n
	}
	if maxPerPage > 0 && p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p
}

// Meta builds the response metadata for a page of a total-item listing.
func (p Page) Meta(total int) Pagination {
	return Pagination{
		Page:       p.Number,
		PerPage:    p.PerPage,
		TotalItems: total,
		HasMore:    p.Offset()+p.PerPage < total,
	}
}
