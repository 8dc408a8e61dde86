package main

import (
	"context"
	"database/sql"
)

const userColumns = `id, google_subject, email, display_name, avatar_url, seeded_at, created_at, updated_at`

func scanUser(scanner rowScanner) (*User, error) {
	var u User
	var seededAt sql.NullTime
	if err := scanner.Scan(&u.ID, &u.GoogleSubject, &u.Email, &u.DisplayName, &u.AvatarURL, &seededAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if seededAt.Valid {
		t := seededAt.Time.UTC()
		u.SeededAt = &t
	}
	return &u, nil
}

// storeUpsertGoogleUser creates the user on first sign-in and refreshes the
// profile fields on later ones.
func (a *App) storeUpsertGoogleUser(ctx context.Context, identity GoogleIdentity) (*User, error) {
	return scanUser(a.db.QueryRowContext(ctx, `
		INSERT INTO users (google_subject, email, display_name, avatar_url)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (google_subject) DO UPDATE
		SET email = EXCLUDED.email,
			display_name = COALESCE(EXCLUDED.display_name, users.display_name),
			avatar_url = COALESCE(EXCLUDED.avatar_url, users.avatar_url),
			updated_at = NOW()
		RETURNING `+userColumns,
		identity.Subject, identity.Email, identity.Name, identity.Picture,
	))
}
