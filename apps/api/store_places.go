package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/istadmins/RotamBenim-sub000/libs/places"
)

const placeColumns = `
	id::text,
	user_id,
	name,
	city,
	country,
	category,
	description,
	visited,
	map_query,
	lat,
	lng,
	created_at,
	updated_at
`

const insertPlaceSQL = `
	INSERT INTO places (id, user_id, name, city, country, category, description, visited, map_query, lat, lng)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING` + placeColumns

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlace(scanner rowScanner) (places.Place, error) {
	var p places.Place
	var lat, lng sql.NullFloat64
	if err := scanner.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.City,
		&p.Country,
		&p.Category,
		&p.Description,
		&p.Visited,
		&p.MapQuery,
		&lat,
		&lng,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return places.Place{}, err
	}
	if lat.Valid && lng.Valid {
		latValue, lngValue := lat.Float64, lng.Float64
		p.Lat = &latValue
		p.Lng = &lngValue
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func scanPlaces(rows *sql.Rows) ([]places.Place, error) {
	defer rows.Close()
	out := make([]places.Place, 0)
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (a *App) storeListPlaces(ctx context.Context, userID int64) ([]places.Place, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT`+placeColumns+`FROM places WHERE user_id = $1 ORDER BY lower(name), created_at`, userID)
	if err != nil {
		return nil, err
	}
	return scanPlaces(rows)
}

// storeInsertPlaces writes all inputs in one transaction.
func (a *App) storeInsertPlaces(ctx context.Context, userID int64, inputs []placeInput) ([]places.Place, error) {
	if len(inputs) == 0 {
		return []places.Place{}, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	inserted, err := insertPlacesTx(ctx, tx, userID, inputs)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return inserted, nil
}

func insertPlacesTx(ctx context.Context, tx *sql.Tx, userID int64, inputs []placeInput) ([]places.Place, error) {
	stmt, err := tx.PrepareContext(ctx, insertPlaceSQL)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	out := make([]places.Place, 0, len(inputs))
	for _, in := range inputs {
		p, err := scanPlace(stmt.QueryRowContext(ctx,
			uuid.NewString(),
			userID,
			in.Name,
			in.City,
			in.Country,
			in.Category,
			in.Description,
			in.Visited,
			in.MapQuery,
			in.Lat,
			in.Lng,
		))
		if err != nil {
			return nil, fmt.Errorf("insert place %q: %w", in.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// storeSeedUserPlaces inserts the starter places once per user. It reports
// false when the user was already seeded.
func (a *App) storeSeedUserPlaces(ctx context.Context, userID int64, inputs []placeInput) (bool, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var claimed int64
	err = tx.QueryRowContext(ctx, `
		UPDATE users
		SET seeded_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND seeded_at IS NULL
		RETURNING id
	`, userID).Scan(&claimed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := insertPlacesTx(ctx, tx, userID, inputs); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func buildPlaceUpdateQuery(userID int64, placeID string, patch placePatch) (string, []any) {
	sets := []string{}
	args := []any{}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.City != nil {
		add("city", *patch.City)
	}
	if patch.Country != nil {
		add("country", *patch.Country)
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Visited != nil {
		add("visited", *patch.Visited)
	}
	if patch.MapQuery != nil {
		add("map_query", *patch.MapQuery)
	}
	if patch.ClearLocation {
		sets = append(sets, "lat = NULL", "lng = NULL")
	} else if patch.Lat != nil && patch.Lng != nil {
		add("lat", *patch.Lat)
		add("lng", *patch.Lng)
	}
	sets = append(sets, "updated_at = NOW()")

	args = append(args, placeID, userID)
	query := fmt.Sprintf(
		"UPDATE places SET %s WHERE id = $%d AND user_id = $%d RETURNING%s",
		strings.Join(sets, ", "), len(args)-1, len(args), placeColumns,
	)
	return query, args
}

func (a *App) storeUpdatePlace(ctx context.Context, userID int64, placeID string, patch placePatch) (*places.Place, error) {
	query, args := buildPlaceUpdateQuery(userID, placeID, patch)
	p, err := scanPlace(a.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (a *App) storeTogglePlaceVisited(ctx context.Context, userID int64, placeID string) (*places.Place, error) {
	p, err := scanPlace(a.db.QueryRowContext(ctx, `
		UPDATE places
		SET visited = NOT visited, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING`+placeColumns, placeID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (a *App) storeDeletePlace(ctx context.Context, userID int64, placeID string) (bool, error) {
	res, err := a.db.ExecContext(ctx, `DELETE FROM places WHERE id = $1 AND user_id = $2`, placeID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (a *App) storeListPlacesNeedingLocation(ctx context.Context) ([]places.Place, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT`+placeColumns+`
		FROM places
		WHERE lat IS NOT NULL AND lng IS NOT NULL AND (city = '' OR country = '')
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	return scanPlaces(rows)
}

func (a *App) storeFillPlaceLocation(ctx context.Context, placeID, city, country string) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE places
		SET city = CASE WHEN city = '' THEN $2 ELSE city END,
			country = CASE WHEN country = '' THEN $3 ELSE country END,
			updated_at = NOW()
		WHERE id = $1
	`, placeID, city, country)
	return err
}
