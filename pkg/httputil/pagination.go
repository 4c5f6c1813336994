package httputil

import (
	"net/http"
	"net/url"
	"strconv"
)

// Meta describes one page of a listing.
type Meta struct {
	CurrentPage int     `json:"current_page"`
	PerPage     int     `json:"per_page"`
	Total       int     `json:"total"`
	LastPage    int     `json:"last_page"`
	Next        *string `json:"next"`
	Prev        *string `json:"prev"`
}

// NewMeta builds the pagination meta for r. Next and prev links are absolute
// and keep every query parameter except page.
func NewMeta(r *http.Request, page, perPage, total int) *Meta {
	lastPage := 1
	if perPage > 0 && total > 0 {
		lastPage = (total + perPage - 1) / perPage
	}

	meta := &Meta{
		CurrentPage: page,
		PerPage:     perPage,
		Total:       total,
		LastPage:    lastPage,
	}
	if page < lastPage {
		next := pageURL(r, page+1)
		meta.Next = &next
	}
	if page > 1 {
		prev := pageURL(r, min(page-1, lastPage))
		meta.Prev = &prev
	}
	return meta
}

func pageURL(r *http.Request, page int) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	q := r.URL.Query()
	q.Set("page", strconv.Itoa(page))
	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     r.URL.Path,
		RawQuery: q.Encode(),
	}
	return u.String()
}
