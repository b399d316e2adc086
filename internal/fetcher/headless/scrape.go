package headless

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/lmvianna/oscar-crawler/internal/crawler"
)

// rowsExpr extracts the raw cell text of every populated film row. The
// flag cell is reported as the presence of its marker element, since
// the cell itself is always rendered.
const rowsExpr = `Array.from(document.querySelectorAll('tbody#table-body tr.film')).map(function(row) {
	var cell = function(sel) {
		var el = row.querySelector(sel);
		return el ? el.textContent : '';
	};
	return {
		title: cell('td.film-title'),
		nominations: cell('td.film-nominations'),
		awards: cell('td.film-awards'),
		best_picture: row.querySelector('td.film-best-picture i.glyphicon-flag') !== null
	};
})`

// tableRow is one scraped film row before validation.
type tableRow struct {
	Title       string `json:"title"`
	Nominations string `json:"nominations"`
	Awards      string `json:"awards"`
	BestPicture bool   `json:"best_picture"`
}

// scrapeTable waits until at least one film row is present, then
// extracts every row. The clicked year triggers an async table load,
// so the wait is mandatory.
func scrapeTable(wait time.Duration, rows *[]tableRow) chromedp.Action {
	return chromedp.Tasks{
		pollFor(`document.querySelectorAll('tbody#table-body tr.film').length > 0`, wait),
		chromedp.Evaluate(rowsExpr, rows),
	}
}

func pollFor(expr string, timeout time.Duration) chromedp.Action {
	return chromedp.Poll(expr, nil, chromedp.WithPollingTimeout(timeout))
}

func yearSelector(year int) string {
	return fmt.Sprintf(`a.year-link[id="%d"]`, year)
}

func yearLinkPresent(year int) string {
	return fmt.Sprintf(`document.querySelector('a.year-link[id="%d"]') !== null`, year)
}

// filmsFromRows converts scraped rows into validated records. Cell
// parse failures are parse errors, never retried.
func filmsFromRows(rows []tableRow, year int) ([]crawler.Film, error) {
	films := make([]crawler.Film, 0, len(rows))
	for i, row := range rows {
		nominations, err := parseCount(row.Nominations)
		if err != nil {
			return nil, &crawler.ParseError{Year: year, Reason: fmt.Sprintf("row %d: nominations", i), Err: err}
		}
		awards, err := parseCount(row.Awards)
		if err != nil {
			return nil, &crawler.ParseError{Year: year, Reason: fmt.Sprintf("row %d: awards", i), Err: err}
		}
		film, err := crawler.NewFilm(row.Title, year, nominations, awards, row.BestPicture)
		if err != nil {
			return nil, err
		}
		films = append(films, film)
	}
	return films, nil
}

func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", s, err)
	}
	return n, nil
}
