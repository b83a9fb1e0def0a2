package httpapi

import (
	"context"
	"errors"

	"github.com/denisok6893-rgb/property-ranking/internal/domain"
	"github.com/denisok6893-rgb/property-ranking/internal/storage"
)

type SQLiteListingsRepo struct {
	Store *storage.SQLiteStore
}

var errNoStore = errors.New("sqlite listings repo: no store")

func (r *SQLiteListingsRepo) List(ctx context.Context, f storage.ListingFilter) ([]domain.Listing, int, error) {
	if r == nil || r.Store == nil {
		return nil, 0, errNoStore
	}
	return r.Store.ListListingsFiltered(ctx, f)
}

func (r *SQLiteListingsRepo) All(ctx context.Context) ([]domain.Listing, error) {
	if r == nil || r.Store == nil {
		return nil, errNoStore
	}
	return r.Store.AllListings(ctx)
}

func (r *SQLiteListingsRepo) Get(ctx context.Context, id string) (domain.Listing, error) {
	if r == nil || r.Store == nil {
		return domain.Listing{}, errNoStore
	}
	return r.Store.GetListing(ctx, id)
}

func (r *SQLiteListingsRepo) Create(ctx context.Context, l domain.Listing) (domain.Listing, error) {
	if r == nil || r.Store == nil {
		return domain.Listing{}, errNoStore
	}
	return r.Store.CreateListing(ctx, l)
}

func (r *SQLiteListingsRepo) Delete(ctx context.Context, id string) error {
	if r == nil || r.Store == nil {
		return errNoStore
	}
	return r.Store.DeleteListing(ctx, id)
}
