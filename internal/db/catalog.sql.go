package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const artistExists = `SELECT EXISTS (SELECT 1 FROM artists WHERE id = $1)`

func (q *Queries) ArtistExists(ctx context.Context, id pgtype.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, artistExists, id).Scan(&exists)
	return exists, err
}

const albumExists = `SELECT EXISTS (SELECT 1 FROM albums WHERE id = $1)`

func (q *Queries) AlbumExists(ctx context.Context, id pgtype.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, albumExists, id).Scan(&exists)
	return exists, err
}

const genreExists = `SELECT EXISTS (SELECT 1 FROM genres WHERE id = $1)`

func (q *Queries) GenreExists(ctx context.Context, id pgtype.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, genreExists, id).Scan(&exists)
	return exists, err
}

const trackColumns = `id, upload_id, owner_id, title, artist_id, album_id, genre_id, status,
    audio_url, cover_url, duration_seconds, play_count, like_count, created_at`

func scanTrack(row pgx.Row) (Track, error) {
	var i Track
	err := row.Scan(
		&i.ID,
		&i.UploadID,
		&i.OwnerID,
		&i.Title,
		&i.ArtistID,
		&i.AlbumID,
		&i.GenreID,
		&i.Status,
		&i.AudioURL,
		&i.CoverURL,
		&i.DurationSeconds,
		&i.PlayCount,
		&i.LikeCount,
		&i.CreatedAt,
	)
	return i, err
}

const createTrack = `INSERT INTO tracks (
    id, upload_id, owner_id, title, artist_id, album_id, genre_id, status,
    audio_url, cover_url, duration_seconds, play_count, like_count
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, 0)
RETURNING ` + trackColumns

type CreateTrackParams struct {
	ID              pgtype.UUID
	UploadID        string
	OwnerID         pgtype.UUID
	Title           string
	ArtistID        pgtype.UUID
	AlbumID         pgtype.UUID
	GenreID         pgtype.UUID
	Status          string
	AudioURL        string
	CoverURL        pgtype.Text
	DurationSeconds int32
}

func (q *Queries) CreateTrack(ctx context.Context, arg CreateTrackParams) (Track, error) {
	row := q.db.QueryRow(ctx, createTrack,
		arg.ID,
		arg.UploadID,
		arg.OwnerID,
		arg.Title,
		arg.ArtistID,
		arg.AlbumID,
		arg.GenreID,
		arg.Status,
		arg.AudioURL,
		arg.CoverURL,
		arg.DurationSeconds,
	)
	return scanTrack(row)
}

const getTrack = `SELECT ` + trackColumns + ` FROM tracks WHERE id = $1`

func (q *Queries) GetTrack(ctx context.Context, id pgtype.UUID) (Track, error) {
	return scanTrack(q.db.QueryRow(ctx, getTrack, id))
}

const getTrackForOwner = `SELECT ` + trackColumns + ` FROM tracks WHERE id = $1 AND owner_id = $2`

type GetTrackForOwnerParams struct {
	ID      pgtype.UUID
	OwnerID pgtype.UUID
}

func (q *Queries) GetTrackForOwner(ctx context.Context, arg GetTrackForOwnerParams) (Track, error) {
	return scanTrack(q.db.QueryRow(ctx, getTrackForOwner, arg.ID, arg.OwnerID))
}
