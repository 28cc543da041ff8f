package service

import (
	"context"
	"sync"
	"testing"

	"storefront/internal/apperr"
	"storefront/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveAndRelease(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.addProduct("lamp", "20.00", "8.00", 5)

	err := e.repo.WithTx(ctx, func(tx store.Tx) error {
		_, err := e.ledger.Reserve(ctx, tx, id, 3)
		return err
	})
	require.NoError(t, err)

	p := e.product(t, id)
	assert.Equal(t, 2, p.QuantityInStock)
	assert.Equal(t, 3, p.TotalSold)

	err = e.repo.WithTx(ctx, func(tx store.Tx) error {
		return e.ledger.Release(ctx, tx, id, 5)
	})
	require.NoError(t, err)

	p = e.product(t, id)
	assert.Equal(t, 7, p.QuantityInStock, "release has no upper bound")
	assert.Equal(t, 0, p.TotalSold, "total_sold never goes negative")
}

func TestReserveRejectsOverdraw(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.addProduct("lamp", "20.00", "8.00", 2)

	err := e.repo.WithTx(ctx, func(tx store.Tx) error {
		_, err := e.ledger.Reserve(ctx, tx, id, 3)
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, 2, e.product(t, id).QuantityInStock)

	err = e.repo.WithTx(ctx, func(tx store.Tx) error {
		_, err := e.ledger.Reserve(ctx, tx, id, 0)
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidQuantity)

	err = e.repo.WithTx(ctx, func(tx store.Tx) error {
		_, err := e.ledger.Reserve(ctx, tx, 999, 1)
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.addProduct("lamp", "20.00", "8.00", 5)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := e.repo.WithTx(ctx, func(tx store.Tx) error {
				_, err := e.ledger.Reserve(ctx, tx, id, 1)
				return err
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	p := e.product(t, id)
	assert.Equal(t, 0, p.QuantityInStock)
	assert.Equal(t, 5, p.TotalSold)
}
