package crawler

import (
	"errors"
	"testing"
)

func TestNewFilmTrimsTitle(t *testing.T) {
	t.Parallel()

	film, err := NewFilm(" Inception ", 2010, 8, 4, true)
	if err != nil {
		t.Fatalf("NewFilm() error = %v", err)
	}
	want := Film{Title: "Inception", Year: 2010, Nominations: 8, Awards: 4, BestPicture: true}
	if film != want {
		t.Fatalf("NewFilm() = %+v, want %+v", film, want)
	}
}

func TestNewFilmValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		title       string
		nominations int
		awards      int
	}{
		{name: "empty title", title: "   ", nominations: 1, awards: 0},
		{name: "negative nominations", title: "Up", nominations: -1, awards: 0},
		{name: "negative awards", title: "Up", nominations: 1, awards: -2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewFilm(tc.title, 2012, tc.nominations, tc.awards, false)
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("NewFilm() error = %v, want *ParseError", err)
			}
		})
	}
}

func TestParseFilms(t *testing.T) {
	t.Parallel()

	body := []byte(`[
		{"title":" The King's Speech ","year":2010,"nominations":12,"awards":4,"best_picture":true},
		{"title":"True Grit","year":2010,"nominations":10,"awards":0}
	]`)
	films, err := ParseFilms(body, 2010)
	if err != nil {
		t.Fatalf("ParseFilms() error = %v", err)
	}
	if len(films) != 2 {
		t.Fatalf("ParseFilms() returned %d films, want 2", len(films))
	}
	if films[0].Title != "The King's Speech" || !films[0].BestPicture {
		t.Fatalf("unexpected first film %+v", films[0])
	}
	if films[1].BestPicture {
		t.Fatal("best_picture should default to false when absent")
	}
}

func TestParseFilmsMalformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{name: "not json", body: `<html>boom</html>`},
		{name: "missing title", body: `[{"year":2011,"nominations":1,"awards":0}]`},
		{name: "missing counts", body: `[{"title":"The Artist","year":2011}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseFilms([]byte(tc.body), 2011)
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("ParseFilms() error = %v, want *ParseError", err)
			}
			if parseErr.Year != 2011 {
				t.Fatalf("ParseError.Year = %d, want 2011", parseErr.Year)
			}
		})
	}
}
