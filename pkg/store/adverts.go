package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/wombatinua/meshcore-ai/pkg/models"
)

// AdvertStore keeps the latest known profile per peer public key.
type AdvertStore interface {
	UpsertAdvert(ctx context.Context, rec *models.AdvertRecord) error
	GetAdverts(ctx context.Context, limit int) ([]*models.AdvertRecord, error)
	GetAdvertByKey(ctx context.Context, pubKey []byte) (*models.AdvertRecord, error)
	FindAdvertsByName(ctx context.Context, name string, limit int) ([]*models.AdvertRecord, error)
}

type advertStore struct {
	db *sqlx.DB
}

const upsertAdvertSQL = `
INSERT INTO adverts (pub_key, node_type, name, last_advert, last_mod, latitude, longitude, updated_at)
VALUES (:pub_key, :node_type, :name, :last_advert, :last_mod, :latitude, :longitude, NOW())
ON CONFLICT (pub_key) DO UPDATE SET
	node_type   = COALESCE(EXCLUDED.node_type, adverts.node_type),
	name        = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE adverts.name END,
	last_advert = COALESCE(EXCLUDED.last_advert, adverts.last_advert),
	last_mod    = COALESCE(EXCLUDED.last_mod, adverts.last_mod),
	latitude    = COALESCE(EXCLUDED.latitude, adverts.latitude),
	longitude   = COALESCE(EXCLUDED.longitude, adverts.longitude),
	updated_at  = NOW()`

func (s *advertStore) UpsertAdvert(ctx context.Context, rec *models.AdvertRecord) error {
	if _, err := s.db.NamedExecContext(ctx, upsertAdvertSQL, rec); err != nil {
		return fmt.Errorf("upsert advert: %w", err)
	}
	return nil
}

const getAdvertsSQL = `
SELECT pub_key, node_type, name, last_advert, last_mod, latitude, longitude, updated_at
FROM adverts
ORDER BY updated_at DESC
LIMIT $1`

func (s *advertStore) GetAdverts(ctx context.Context, limit int) ([]*models.AdvertRecord, error) {
	var recs []*models.AdvertRecord
	if err := s.db.SelectContext(ctx, &recs, getAdvertsSQL, limit); err != nil {
		return nil, fmt.Errorf("get adverts: %w", err)
	}
	return recs, nil
}

const getAdvertByKeySQL = `
SELECT pub_key, node_type, name, last_advert, last_mod, latitude, longitude, updated_at
FROM adverts
WHERE pub_key = $1`

func (s *advertStore) GetAdvertByKey(ctx context.Context, pubKey []byte) (*models.AdvertRecord, error) {
	var rec models.AdvertRecord
	err := s.db.GetContext(ctx, &rec, getAdvertByKeySQL, pubKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get advert by key: %w", err)
	}
	return &rec, nil
}

const findAdvertsByNameSQL = `
SELECT pub_key, node_type, name, last_advert, last_mod, latitude, longitude, updated_at
FROM adverts
WHERE name = $1
ORDER BY last_mod DESC NULLS LAST, updated_at DESC
LIMIT $2`

func (s *advertStore) FindAdvertsByName(ctx context.Context, name string, limit int) ([]*models.AdvertRecord, error) {
	var recs []*models.AdvertRecord
	if err := s.db.SelectContext(ctx, &recs, findAdvertsByNameSQL, name, limit); err != nil {
		return nil, fmt.Errorf("find adverts by name: %w", err)
	}
	return recs, nil
}
