// Package redisstore keeps buyer carts in Redis.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace/internal/domain/cart"
)

const (
	cartKeyPrefix = "marketplace:cart:"

	// updateAttempts bounds optimistic retries when a cart keeps changing.
	updateAttempts = 16
)

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store. Each cart is one JSON value that expires
// after ttl without writes.
type CartStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCartStore returns a CartStore using client. A zero ttl keeps carts forever.
func NewCartStore(client redis.UniversalClient, ttl time.Duration) *CartStore {
	return &CartStore{client: client, ttl: ttl}
}

func cartKey(buyerID int64) string {
	return cartKeyPrefix + strconv.FormatInt(buyerID, 10)
}

// Get returns the buyer's cart, empty when nothing is stored.
func (s *CartStore) Get(ctx context.Context, buyerID int64) (*cart.Cart, error) {
	return readCart(buyerID, s.client.Get(ctx, cartKey(buyerID)))
}

func readCart(buyerID int64, cmd *redis.StringCmd) (*cart.Cart, error) {
	data, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return cart.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting cart of buyer %d: %w", buyerID, err)
	}

	lines, err := decodeLines(data)
	if err != nil {
		return nil, fmt.Errorf("decoding cart of buyer %d: %w", buyerID, err)
	}
	return cart.FromLines(lines), nil
}

// Save stores c, or deletes the entry when c is empty.
func (s *CartStore) Save(ctx context.Context, buyerID int64, c *cart.Cart) error {
	if err := s.write(ctx, s.client, buyerID, c); err != nil {
		return fmt.Errorf("saving cart of buyer %d: %w", buyerID, err)
	}
	return nil
}

// Update reads the cart under WATCH, applies fn and writes the result in a
// MULTI block. A concurrent write to the same cart restarts the cycle.
func (s *CartStore) Update(ctx context.Context, buyerID int64, fn func(c *cart.Cart) error) (*cart.Cart, error) {
	key := cartKey(buyerID)

	var c *cart.Cart
	txf := func(tx *redis.Tx) error {
		var err error
		if c, err = readCart(buyerID, tx.Get(ctx, key)); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.write(ctx, pipe, buyerID, c)
		})
		return err
	}

	for range updateAttempts {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("updating cart of buyer %d: %w", buyerID, cart.ErrConflict)
}

func (s *CartStore) write(ctx context.Context, cmd redis.Cmdable, buyerID int64, c *cart.Cart) error {
	key := cartKey(buyerID)
	if c.IsEmpty() {
		return cmd.Del(ctx, key).Err()
	}
	return cmd.Set(ctx, key, encodeLines(c.Lines()), s.ttl).Err()
}

func encodeLines(lines []cart.Line) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(l.ProductID)
		e.FieldStart("seller_id")
		e.Int64(l.SellerID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("unit_price")
		e.Str(l.UnitPrice.String())
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

func decodeLines(data []byte) ([]cart.Line, error) {
	var lines []cart.Line
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var l cart.Line
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "product_id":
				l.ProductID, err = d.Int64()
			case "seller_id":
				l.SellerID, err = d.Int64()
			case "name":
				l.Name, err = d.Str()
			case "unit_price":
				var raw string
				if raw, err = d.Str(); err == nil {
					l.UnitPrice, err = decimal.NewFromString(raw)
				}
			case "quantity":
				l.Quantity, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		lines = append(lines, l)
		return nil
	})
	return lines, err
}
