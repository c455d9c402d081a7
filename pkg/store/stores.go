// Package store persists advert history and message history in Postgres.
package store

import (
	"github.com/jmoiron/sqlx"
)

// Stores groups the persistence interfaces handed to the rest of the app.
type Stores struct {
	Adverts  AdvertStore
	Messages MessageStore
}

// NewStores builds the Postgres-backed store set on a shared connection pool.
func NewStores(db *sqlx.DB) *Stores {
	return &Stores{
		Adverts:  &advertStore{db: db},
		Messages: &messageStore{db: db},
	}
}
