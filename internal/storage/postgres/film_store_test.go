package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/lmvianna/oscar-crawler/internal/crawler"
)

func TestStoreFilmsInsertsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewFilmStoreWithPool(mock, "films")
	require.NoError(t, err)

	films := []crawler.Film{
		{Title: "Inception", Year: 2010, Nominations: 8, Awards: 4},
		{Title: "The King's Speech", Year: 2010, Nominations: 12, Awards: 4, BestPicture: true},
	}

	for _, film := range films {
		mock.ExpectExec("INSERT INTO films").
			WithArgs(
				"job-1",
				film.Title,
				film.Year,
				film.Nominations,
				film.Awards,
				film.BestPicture,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	require.NoError(t, store.StoreFilms(context.Background(), "job-1", films))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreFilmsExecFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewFilmStoreWithPool(mock, "films")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO films").
		WithArgs("job-1", "Argo", 2012, 7, 3, true).
		WillReturnError(errors.New("connection reset"))

	err = store.StoreFilms(context.Background(), "job-1", []crawler.Film{
		{Title: "Argo", Year: 2012, Nominations: 7, Awards: 3, BestPicture: true},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewFilmStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewFilmStoreWithPool(mock, "films; drop table films")
	require.Error(t, err)

	store, err := NewFilmStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "films", store.table)
}

func TestStoreFilmsRequiresJobID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewFilmStoreWithPool(mock, "films")
	require.NoError(t, err)

	require.Error(t, store.StoreFilms(context.Background(), "", nil))
}
