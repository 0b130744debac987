package firestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/studiobook/api/internal/domain"
	pfirestore "github.com/studiobook/api/internal/platform/firestore"
	"github.com/studiobook/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists bookings in Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

// Insert creates the order document, failing on duplicate ids.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	if _, err := coll.Doc(order.ID).Create(ctx, encodeOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update overwrites the order document, requiring it to exist.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	doc := coll.Doc(order.ID)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(doc); err != nil {
			return err
		}
		return tx.Set(doc, encodeOrderDocument(order))
	})
	if err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	snap, err := coll.Doc(orderID).Get(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.find", err)
	}
	return decodeOrderDocument(snap)
}

// List returns orders newest first with cursor paging.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	query := coll.Query
	if creative := strings.TrimSpace(filter.CreativeID); creative != "" {
		query = query.Where("creativeId", "==", creative)
	}
	if client := strings.TrimSpace(filter.ClientID); client != "" {
		query = query.Where("clientId", "==", client)
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status", "in", statuses)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}

	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	var fetchLimit int
	if limit > 0 {
		fetchLimit = limit + 1
		query = query.Limit(fetchLimit)
	}

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeOrderToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("orders.list: invalid page token: %w", err)
		}
		query = query.StartAfter(tokenTime, tokenID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		order, err := decodeOrderDocument(snap)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		orders = append(orders, order)
	}

	nextToken := ""
	if limit > 0 && len(orders) == fetchLimit {
		last := orders[len(orders)-1]
		nextToken = encodeOrderToken(last.CreatedAt, last.ID)
		orders = orders[:len(orders)-1]
	}

	return domain.CursorPage[domain.Order]{
		Items:         orders,
		NextPageToken: nextToken,
	}, nil
}

func (r *OrderRepository) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(orderCollection), nil
}

type orderDocument struct {
	OrderNumber     string                `firestore:"orderNumber"`
	CreativeID      string                `firestore:"creativeId"`
	ClientID        string                `firestore:"clientId"`
	ServiceRef      string                `firestore:"serviceRef,omitempty"`
	Price           int64                 `firestore:"price"`
	Currency        string                `firestore:"currency"`
	PaymentOption   string                `firestore:"paymentOption"`
	AmountPaid      int64                 `firestore:"amountPaid"`
	Status          string                `firestore:"status"`
	BookingDate     *time.Time            `firestore:"bookingDate,omitempty"`
	SplitDeposit    *int64                `firestore:"splitDeposit,omitempty"`
	PayoutAccountID string                `firestore:"payoutAccountId,omitempty"`
	Deliverables    []deliveredFileRecord `firestore:"deliverables,omitempty"`
	CancelReason    *string               `firestore:"cancelReason,omitempty"`
	CanceledBy      *string               `firestore:"canceledBy,omitempty"`
	Metadata        map[string]any        `firestore:"metadata,omitempty"`
	CreatedAt       time.Time             `firestore:"createdAt"`
	UpdatedAt       time.Time             `firestore:"updatedAt"`
	ApprovedAt      *time.Time            `firestore:"approvedAt,omitempty"`
	RejectedAt      *time.Time            `firestore:"rejectedAt,omitempty"`
	CanceledAt      *time.Time            `firestore:"canceledAt,omitempty"`
	CompletedAt     *time.Time            `firestore:"completedAt,omitempty"`
}

type deliveredFileRecord struct {
	URL         string `firestore:"fileUrl"`
	Name        string `firestore:"fileName"`
	SizeBytes   int64  `firestore:"fileSize"`
	ContentType string `firestore:"fileType"`
}

func encodeOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:     order.OrderNumber,
		CreativeID:      order.CreativeID,
		ClientID:        order.ClientID,
		ServiceRef:      order.ServiceRef,
		Price:           order.Price,
		Currency:        order.Currency,
		PaymentOption:   string(order.PaymentOption),
		AmountPaid:      order.AmountPaid,
		Status:          string(order.Status),
		BookingDate:     order.BookingDate,
		SplitDeposit:    order.SplitDeposit,
		PayoutAccountID: order.PayoutAccountID,
		CancelReason:    order.CancelReason,
		CanceledBy:      order.CanceledBy,
		Metadata:        order.Metadata,
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
		ApprovedAt:      order.ApprovedAt,
		RejectedAt:      order.RejectedAt,
		CanceledAt:      order.CanceledAt,
		CompletedAt:     order.CompletedAt,
	}
	for _, file := range order.Deliverables {
		doc.Deliverables = append(doc.Deliverables, deliveredFileRecord(file))
	}
	return doc
}

func decodeOrderDocument(snapshot *firestore.DocumentSnapshot) (domain.Order, error) {
	var doc orderDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", snapshot.Ref.ID, err)
	}

	order := domain.Order{
		ID:              snapshot.Ref.ID,
		OrderNumber:     doc.OrderNumber,
		CreativeID:      doc.CreativeID,
		ClientID:        doc.ClientID,
		ServiceRef:      doc.ServiceRef,
		Price:           doc.Price,
		Currency:        doc.Currency,
		PaymentOption:   domain.PaymentOption(doc.PaymentOption),
		AmountPaid:      doc.AmountPaid,
		Status:          domain.OrderStatus(doc.Status),
		BookingDate:     doc.BookingDate,
		SplitDeposit:    doc.SplitDeposit,
		PayoutAccountID: doc.PayoutAccountID,
		CancelReason:    doc.CancelReason,
		CanceledBy:      doc.CanceledBy,
		Metadata:        doc.Metadata,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
		ApprovedAt:      doc.ApprovedAt,
		RejectedAt:      doc.RejectedAt,
		CanceledAt:      doc.CanceledAt,
		CompletedAt:     doc.CompletedAt,
	}
	for _, file := range doc.Deliverables {
		order.Deliverables = append(order.Deliverables, domain.DeliveredFile(file))
	}
	return order, nil
}

func encodeOrderToken(createdAt time.Time, orderID string) string {
	raw := fmt.Sprintf("%d|%s", createdAt.UTC().UnixNano(), orderID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeOrderToken(token string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", errors.New("malformed token")
	}
	var nanos int64
	if _, err := fmt.Sscanf(parts[0], "%d", &nanos); err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, nanos).UTC(), parts[1], nil
}
