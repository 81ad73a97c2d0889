package redisstore

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/marketplace/internal/domain/cart"
)

func TestCartCodec(t *testing.T) {
	lines := []cart.Line{
		{ProductID: 1, SellerID: 7, Name: `Café "especial"`, UnitPrice: decimal.RequireFromString("10.50"), Quantity: 2},
		{ProductID: 9, SellerID: 7, Name: "Pão", UnitPrice: decimal.RequireFromString("0.35"), Quantity: 12},
	}

	got, err := decodeLines(encodeLines(lines))
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range lines {
		assert.Equal(t, lines[i].ProductID, got[i].ProductID)
		assert.Equal(t, lines[i].Name, got[i].Name)
		assert.Equal(t, lines[i].Quantity, got[i].Quantity)
		assert.True(t, lines[i].UnitPrice.Equal(got[i].UnitPrice))
	}
}

func TestDecodeLines_IgnoresUnknownFields(t *testing.T) {
	got, err := decodeLines([]byte(`[{"product_id":3,"image":"x","quantity":1,"unit_price":"2.00","seller_id":4}]`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(4), got[0].SellerID)
}

func TestDecodeLines_BadPrice(t *testing.T) {
	_, err := decodeLines([]byte(`[{"product_id":3,"unit_price":"abc"}]`))
	require.Error(t, err)
}

func TestCartKey(t *testing.T) {
	assert.Equal(t, "marketplace:cart:42", cartKey(42))
}
