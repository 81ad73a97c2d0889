package order

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/marketplace/internal/domain/catalog"
)

// ErrBuyerRequired is returned when the request carries no buyer.
var ErrBuyerRequired = errors.New("buyer required")

// MaxQuantity is the largest quantity a single line may carry.
const MaxQuantity = math.MaxInt32

// MaxTotal is the largest order total that can be stored.
var MaxTotal = decimal.RequireFromString("999999999999.99")

const instrumentationName = "github.com/xenking/marketplace/internal/domain/order"

// Item is one cart line submitted for checkout.
type Item struct {
	ProductID int64
	// SellerID is the seller snapshot taken when the item was carted. Zero
	// means unknown.
	SellerID  int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	BuyerID int64
	// SellerID may be zero, in which case it is taken from the items.
	SellerID int64
	Items    []Item
	Address  *Address
}

// Config controls order placement.
type Config struct {
	StockPolicy catalog.StockPolicy
	// LockTimeout bounds every row lock wait inside the transaction.
	LockTimeout time.Duration
	// Timeout bounds the whole placement, independent of the caller.
	Timeout time.Duration
}

// Service is the order transaction manager.
type Service struct {
	store     Store
	publisher Publisher
	cfg       Config

	tracer trace.Tracer
	placed metric.Int64Counter
	failed metric.Int64Counter
}

// NewService creates an order Service. A nil publisher drops events.
func NewService(
	store Store,
	publisher Publisher,
	cfg Config,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Service, error) {
	if publisher == nil {
		publisher = NopPublisher()
	}
	if cfg.StockPolicy == "" {
		cfg.StockPolicy = catalog.StockReject
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	meter := mp.Meter(instrumentationName)
	placed, err := meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders committed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create placed counter")
	}
	failed, err := meter.Int64Counter("orders.failed",
		metric.WithDescription("Order placements rolled back"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create failed counter")
	}

	return &Service{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		tracer:    tp.Tracer(instrumentationName),
		placed:    placed,
		failed:    failed,
	}, nil
}

// StockPolicy returns the policy applied to stock decrements.
func (s *Service) StockPolicy() catalog.StockPolicy {
	return s.cfg.StockPolicy
}

// PlaceOrder validates the request, then writes the order, its lines and the
// stock decrements in one transaction. The caller's cancellation does not
// interrupt a started placement; Config.Timeout bounds it instead.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	o, err := prepare(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "PlaceOrder", trace.WithAttributes(
		attribute.Int64("marketplace.buyer_id", o.BuyerID),
		attribute.Int64("marketplace.seller_id", o.SellerID),
		attribute.Int("marketplace.lines", len(o.Lines)),
		attribute.String("marketplace.stock_policy", string(s.cfg.StockPolicy)),
	))
	defer span.End()

	err = s.store.InTx(ctx, TxOptions{LockTimeout: s.cfg.LockTimeout}, func(ctx context.Context, tx Tx) error {
		id, createdAt, err := tx.InsertOrder(ctx, o)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		o.ID, o.CreatedAt = id, createdAt

		// Lines are sorted by product, so concurrent checkouts lock stock rows
		// in the same order.
		for i := range o.Lines {
			l := &o.Lines[i]
			l.OrderID = id
			if l.ID, err = tx.InsertLine(ctx, id, *l); err != nil {
				return fmt.Errorf("insert line for product %d: %w", l.ProductID, err)
			}
			if _, err := tx.DecrementStock(ctx, l.ProductID, o.SellerID, l.Quantity, s.cfg.StockPolicy); err != nil {
				return fmt.Errorf("decrement stock of product %d: %w", l.ProductID, err)
			}
		}
		return nil
	})
	if err != nil {
		s.failed.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "place order")
		return nil, classify(err)
	}

	s.placed.Add(ctx, 1)
	span.SetAttributes(attribute.Int64("marketplace.order_id", o.ID))

	if err := s.publisher.OrderPlaced(ctx, o); err != nil {
		zctx.From(ctx).Warn("Publish order placed",
			zap.Int64("order_id", o.ID),
			zap.Error(err),
		)
	}
	return o, nil
}

// classify keeps catalog rejections as they are and turns everything else
// into a retryable PersistenceError.
func classify(err error) error {
	var (
		stockErr       *catalog.InsufficientStockError
		unavailableErr *catalog.ProductUnavailableError
	)
	if errors.As(err, &stockErr) || errors.As(err, &unavailableErr) {
		return err
	}
	return &PersistenceError{Op: "place order", Err: err}
}

// prepare validates req and builds the pending order with its total.
func prepare(req PlaceOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if req.Address == nil {
		return nil, &InvalidAddressError{}
	}
	if missing := req.Address.missing(); len(missing) > 0 {
		return nil, &InvalidAddressError{Missing: missing}
	}
	if req.BuyerID <= 0 {
		return nil, ErrBuyerRequired
	}

	lines := make([]Line, 0, len(req.Items))
	seen := make(map[int64]struct{}, len(req.Items))
	total := decimal.Zero
	for _, it := range req.Items {
		if reason := validateItem(it); reason != "" {
			return nil, &InvalidItemError{ProductID: it.ProductID, Reason: reason}
		}
		if _, dup := seen[it.ProductID]; dup {
			return nil, &InvalidItemError{ProductID: it.ProductID, Reason: "duplicate product"}
		}
		seen[it.ProductID] = struct{}{}

		l := Line{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
		total = total.Add(l.Subtotal())
		if total.GreaterThan(MaxTotal) {
			return nil, &InvalidItemError{ProductID: it.ProductID, Reason: "order total exceeds " + MaxTotal.String()}
		}
		lines = append(lines, l)
	}

	seller, err := resolveSeller(req)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(lines, func(a, b Line) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})

	return &Order{
		BuyerID:  req.BuyerID,
		SellerID: seller,
		Total:    total,
		Status:   StatusPending,
		Address:  *req.Address,
		Lines:    lines,
	}, nil
}

func validateItem(it Item) string {
	switch {
	case it.ProductID <= 0:
		return "product required"
	case it.Quantity < 1:
		return "quantity must be at least 1"
	case it.Quantity > MaxQuantity:
		return "quantity exceeds " + strconv.Itoa(MaxQuantity)
	default:
		return catalog.CheckPrice(it.UnitPrice)
	}
}

// resolveSeller returns the one seller named by the request and its items.
func resolveSeller(req PlaceOrderRequest) (int64, error) {
	var ids []int64
	add := func(id int64) {
		if id != 0 && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	add(req.SellerID)
	for _, it := range req.Items {
		add(it.SellerID)
	}
	if len(ids) != 1 {
		slices.Sort(ids)
		return 0, &MixedSellerError{SellerIDs: ids}
	}
	return ids[0], nil
}
