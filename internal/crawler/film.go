package crawler

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Film is one award-nominated film scraped from the source, immutable
// once produced. Field names match the upstream ajax payload.
type Film struct {
	Title       string `json:"title"`
	Year        int    `json:"year"`
	Nominations int    `json:"nominations"`
	Awards      int    `json:"awards"`
	BestPicture bool   `json:"best_picture"`
}

// rawFilm mirrors one ajax payload item before validation. Pointers
// distinguish absent fields from zero values.
type rawFilm struct {
	Title       *string `json:"title"`
	Year        *int    `json:"year"`
	Nominations *int    `json:"nominations"`
	Awards      *int    `json:"awards"`
	BestPicture *bool   `json:"best_picture"`
}

// NewFilm builds a validated Film. The title is trimmed before any
// other check; best_picture defaults to false when not observed.
func NewFilm(title string, year, nominations, awards int, bestPicture bool) (Film, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Film{}, &ParseError{Year: year, Reason: "empty title"}
	}
	if nominations < 0 {
		return Film{}, &ParseError{Year: year, Reason: fmt.Sprintf("negative nominations %d", nominations)}
	}
	if awards < 0 {
		return Film{}, &ParseError{Year: year, Reason: fmt.Sprintf("negative awards %d", awards)}
	}
	return Film{
		Title:       title,
		Year:        year,
		Nominations: nominations,
		Awards:      awards,
		BestPicture: bestPicture,
	}, nil
}

// ParseFilms decodes an ajax response body into validated Films. The
// year argument is only used to annotate parse failures; each item
// carries its own year field.
func ParseFilms(body []byte, year int) ([]Film, error) {
	var raw []rawFilm
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ParseError{Year: year, Reason: "malformed payload", Err: err}
	}
	films := make([]Film, 0, len(raw))
	for i, item := range raw {
		film, err := item.validate(year, i)
		if err != nil {
			return nil, err
		}
		films = append(films, film)
	}
	return films, nil
}

func (r rawFilm) validate(year, index int) (Film, error) {
	if r.Title == nil {
		return Film{}, &ParseError{Year: year, Reason: fmt.Sprintf("item %d: missing title", index)}
	}
	if r.Year != nil {
		year = *r.Year
	}
	if r.Nominations == nil || r.Awards == nil {
		return Film{}, &ParseError{Year: year, Reason: fmt.Sprintf("item %d: missing nominations or awards", index)}
	}
	bestPicture := false
	if r.BestPicture != nil {
		bestPicture = *r.BestPicture
	}
	return NewFilm(*r.Title, year, *r.Nominations, *r.Awards, bestPicture)
}
