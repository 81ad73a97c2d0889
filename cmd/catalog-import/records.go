package main

import (
	"bufio"
	"context"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace/internal/domain/catalog"
	"github.com/xenking/marketplace/internal/domain/seller"
)

// maxLine bounds one JSONL record; product images are inlined as base64.
const maxLine = 16 << 20

// sellerRecord is one line of sellers.jsonl.gz. Ref links products to it.
type sellerRecord struct {
	Ref string
	Req seller.RegisterRequest
}

// productRecord is one line of products.jsonl.gz.
type productRecord struct {
	SellerRef   string
	Category    string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Active      bool
	Image       []byte
}

type buyerRecord struct {
	ID   int64
	Name string
}

func decodeSeller(line []byte) (sellerRecord, error) {
	var rec sellerRecord
	err := jx.DecodeBytes(line).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "ref":
			rec.Ref, err = d.Str()
		case "kind":
			var v string
			v, err = d.Str()
			rec.Req.Kind = seller.Kind(v)
		case "name":
			rec.Req.Name, err = d.Str()
		case "store_name":
			rec.Req.StoreName, err = d.Str()
		case "email":
			rec.Req.Email, err = d.Str()
		case "document":
			rec.Req.Document, err = d.Str()
		case "phone":
			rec.Req.Phone, err = d.Str()
		case "password":
			rec.Req.Password, err = d.Str()
		case "address":
			err = decodeSellerAddress(d, &rec.Req.Address)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return rec, err
	}
	if rec.Ref == "" {
		return rec, errors.New("ref required")
	}
	return rec, nil
}

func decodeSellerAddress(d *jx.Decoder, a *seller.Address) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var (
			dst *string
			err error
		)
		switch key {
		case "street":
			dst = &a.Street
		case "number":
			dst = &a.Number
		case "neighborhood":
			dst = &a.Neighborhood
		case "city":
			dst = &a.City
		case "state":
			dst = &a.State
		case "postal_code":
			dst = &a.PostalCode
		default:
			return d.Skip()
		}
		*dst, err = d.Str()
		return err
	})
}

func decodeProduct(line []byte) (productRecord, error) {
	rec := productRecord{Active: true}
	err := jx.DecodeBytes(line).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "seller":
			rec.SellerRef, err = d.Str()
		case "category":
			rec.Category, err = d.Str()
		case "name":
			rec.Name, err = d.Str()
		case "description":
			rec.Description, err = d.Str()
		case "price":
			var v string
			if v, err = d.Str(); err == nil {
				rec.Price, err = decimal.NewFromString(v)
			}
		case "stock":
			rec.Stock, err = d.Int()
		case "active":
			rec.Active, err = d.Bool()
		case "image":
			rec.Image, err = d.Base64()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return rec, err
	}
	switch {
	case rec.SellerRef == "":
		return rec, errors.New("seller required")
	case rec.Name == "":
		return rec, errors.New("name required")
	}
	if reason := catalog.CheckPrice(rec.Price); reason != "" {
		return rec, errors.New(reason)
	}
	return rec, nil
}

func decodeBuyer(line []byte) (buyerRecord, error) {
	var rec buyerRecord
	err := jx.DecodeBytes(line).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			rec.ID, err = d.Int64()
		case "name":
			rec.Name, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil && rec.ID <= 0 {
		err = errors.New("id required")
	}
	return rec, err
}

// streamGzFile opens a gzip-compressed file and calls fn for each non-empty
// line with its 1-based number. The line slice is only valid during the call.
func streamGzFile(ctx context.Context, path string, fn func(n int, line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64<<10), maxLine)
	n := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		if err := fn(n, scanner.Bytes()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
