package service

import (
	"context"
	"fmt"
	"sync"

	"storefront-service/internal/models"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func strptr(s string) *string { return &s }
func intptr(i int) *int       { return &i }

// memCatalog is an in-memory product catalog and inventory store. Its
// counter mutations are guarded by a mutex and apply the same
// conditional semantics as the SQL store's conditional updates.
type memCatalog struct {
	mu       sync.Mutex
	products map[int64]*models.Product
}

func newMemCatalog(products ...*models.Product) *memCatalog {
	m := &memCatalog{products: make(map[int64]*models.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *memCatalog) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memCatalog) GetProducts(_ context.Context) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Product
	for _, p := range m.products {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memCatalog) CommitInventory(_ context.Context, lines []models.CommitLine) ([]models.LineFailure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var failures []models.LineFailure
	for _, line := range lines {
		p, ok := m.products[line.ProductID]
		if !ok {
			failures = append(failures, models.LineFailure{ProductID: line.ProductID, Reason: models.ReasonOutOfStock})
			continue
		}
		if p.AllowPreorder {
			if p.PreorderCap != nil && p.PreorderCount+line.Quantity > *p.PreorderCap {
				failures = append(failures, models.LineFailure{ProductID: line.ProductID, Reason: models.ReasonPreorderCapReached})
			}
		} else if p.StockQuantity < line.Quantity {
			failures = append(failures, models.LineFailure{ProductID: line.ProductID, Reason: models.ReasonOutOfStock})
		}
	}
	if len(failures) > 0 {
		return failures, nil
	}

	for _, line := range lines {
		p := m.products[line.ProductID]
		if p.AllowPreorder {
			p.PreorderCount += line.Quantity
		} else {
			p.StockQuantity -= line.Quantity
		}
	}
	return nil, nil
}

func (m *memCatalog) ReleaseInventory(_ context.Context, lines []models.CommitLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, line := range lines {
		p, ok := m.products[line.ProductID]
		if !ok {
			continue
		}
		if p.AllowPreorder {
			p.PreorderCount -= line.Quantity
			if p.PreorderCount < 0 {
				p.PreorderCount = 0
			}
		} else {
			p.StockQuantity += line.Quantity
		}
	}
	return nil
}

// memDiscountStore holds discount codes keyed by normalized code.
type memDiscountStore struct {
	mu          sync.Mutex
	nextID      int64
	codes       map[string]*models.DiscountCode
	redemptions []models.DiscountRedemption
}

func newMemDiscountStore(codes ...*models.DiscountCode) *memDiscountStore {
	m := &memDiscountStore{codes: make(map[string]*models.DiscountCode), nextID: 1}
	for _, dc := range codes {
		dc.ID = m.nextID
		m.nextID++
		m.codes[dc.Code] = dc
	}
	return m
}

func (m *memDiscountStore) GetDiscountCode(_ context.Context, code string) (*models.DiscountCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dc, ok := m.codes[code]
	if !ok {
		return nil, nil
	}
	copied := *dc
	return &copied, nil
}

func (m *memDiscountStore) ConsumeDiscountUsage(_ context.Context, codeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, dc := range m.codes {
		if dc.ID != codeID {
			continue
		}
		if dc.UsageLimit != nil && dc.UsageCount >= *dc.UsageLimit {
			return false, nil
		}
		dc.UsageCount++
		return true, nil
	}
	return false, fmt.Errorf("discount code not found: %d", codeID)
}

func (m *memDiscountStore) CountRedemptionsByUser(_ context.Context, codeID int64, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, r := range m.redemptions {
		if r.CodeID == codeID && r.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *memDiscountStore) RecordRedemption(_ context.Context, codeID int64, userID string, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redemptions = append(m.redemptions, models.DiscountRedemption{CodeID: codeID, UserID: userID, OrderID: orderID})
	return nil
}

func (m *memDiscountStore) CreateDiscountCode(_ context.Context, dc *models.DiscountCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dc.ID = m.nextID
	m.nextID++
	m.codes[dc.Code] = dc
	return nil
}

func (m *memDiscountStore) UpdateDiscountCode(_ context.Context, dc *models.DiscountCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, existing := range m.codes {
		if existing.ID == dc.ID {
			dc.Code = code
			dc.UsageCount = existing.UsageCount
			m.codes[code] = dc
			return nil
		}
	}
	return fmt.Errorf("discount code not found: %d", dc.ID)
}

func (m *memDiscountStore) DeleteDiscountCode(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, existing := range m.codes {
		if existing.ID == id {
			delete(m.codes, code)
			return nil
		}
	}
	return nil
}

func (m *memDiscountStore) ListDiscountCodes(_ context.Context) ([]models.DiscountCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DiscountCode
	for _, dc := range m.codes {
		out = append(out, *dc)
	}
	return out, nil
}

func (m *memDiscountStore) usageCount(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dc, ok := m.codes[code]; ok {
		return dc.UsageCount
	}
	return 0
}

// memOrderStore implements OrderStore and OrderLedgerStore with the same
// status-guard semantics as the SQL store.
type memOrderStore struct {
	mu       sync.Mutex
	nextID   int64
	orders   map[int64]*models.Order
	items    map[int64][]models.OrderItem
	webhooks map[string]string
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{
		nextID:   1,
		orders:   make(map[int64]*models.Order),
		items:    make(map[int64][]models.OrderItem),
		webhooks: make(map[string]string),
	}
}

func (m *memOrderStore) CreateOrder(_ context.Context, order *models.Order, items []models.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order.ID = m.nextID
	m.nextID++
	m.orders[order.ID] = order
	for i := range items {
		items[i].OrderID = order.ID
		items[i].ID = int64(i + 1)
	}
	m.items[order.ID] = items
	return nil
}

func (m *memOrderStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	copied := *order
	return &copied, nil
}

func (m *memOrderStore) GetOrderByReference(_ context.Context, reference string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.orders {
		if order.PaystackReference == reference {
			copied := *order
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("order not found for reference: %s", reference)
}

func (m *memOrderStore) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OrderItem(nil), m.items[orderID]...), nil
}

func (m *memOrderStore) SettlePayment(_ context.Context, orderID int64, paymentStatus, orderStatus string, failureReason *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok || order.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	order.PaymentStatus = paymentStatus
	order.OrderStatus = orderStatus
	order.FailureReason = failureReason
	return true, nil
}

func (m *memOrderStore) MarkRefunded(_ context.Context, orderID int64, refundStatus string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok || order.PaymentStatus != models.PaymentStatusCompleted || order.RefundStatus != models.RefundStatusNone {
		return false, nil
	}
	order.PaymentStatus = models.PaymentStatusRefunded
	order.RefundStatus = refundStatus
	order.OrderStatus = models.OrderStatusCancelled
	return true, nil
}

func (m *memOrderStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.webhooks[eventID]
	return ok, nil
}

func (m *memOrderStore) RecordWebhookEvent(_ context.Context, eventID, eventType, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.webhooks[eventID]; !ok {
		m.webhooks[eventID] = status
	}
	return nil
}

// seedOrder inserts a pre-built order with items.
func (m *memOrderStore) seedOrder(order *models.Order, items []models.OrderItem) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	order.ID = m.nextID
	m.nextID++
	m.orders[order.ID] = order
	for i := range items {
		items[i].OrderID = order.ID
	}
	m.items[order.ID] = items
	return order
}

// memCartStore implements CartStore and CartFreezer.
type memCartStore struct {
	mu     sync.Mutex
	nextID int64
	carts  map[string]*models.Cart
}

func newMemCartStore() *memCartStore {
	return &memCartStore{nextID: 1, carts: make(map[string]*models.Cart)}
}

func (m *memCartStore) GetCartByToken(_ context.Context, token string) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[token]
	if !ok {
		return nil, nil
	}
	copied := *cart
	copied.Items = append([]models.CartItem(nil), cart.Items...)
	return &copied, nil
}

func (m *memCartStore) CreateCart(_ context.Context, cart *models.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart.ID = m.nextID
	m.nextID++
	m.carts[cart.SessionToken] = cart
	return nil
}

func (m *memCartStore) UpsertCartItem(_ context.Context, item *models.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cart := range m.carts {
		if cart.ID != item.CartID {
			continue
		}
		for i := range cart.Items {
			if cart.Items[i].ProductID == item.ProductID {
				cart.Items[i].Quantity += item.Quantity
				item.ID = cart.Items[i].ID
				return nil
			}
		}
		item.ID = int64(len(cart.Items) + 1)
		cart.Items = append(cart.Items, *item)
		return nil
	}
	return fmt.Errorf("cart not found: %d", item.CartID)
}

func (m *memCartStore) UpdateCartItemQuantity(_ context.Context, itemID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cart := range m.carts {
		for i := range cart.Items {
			if cart.Items[i].ID == itemID {
				cart.Items[i].Quantity = quantity
				return nil
			}
		}
	}
	return fmt.Errorf("cart item not found: %d", itemID)
}

func (m *memCartStore) DeleteCartItem(_ context.Context, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cart := range m.carts {
		for i := range cart.Items {
			if cart.Items[i].ID == itemID {
				cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (m *memCartStore) TouchCart(_ context.Context, cartID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cart := range m.carts {
		if cart.ID != cartID {
			continue
		}
		total := decimal.Zero
		for _, item := range cart.Items {
			total = total.Add(item.PriceAtAdd.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
		cart.TotalAmount = total
	}
	return nil
}

func (m *memCartStore) FreezeCart(_ context.Context, cartID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cart := range m.carts {
		if cart.ID == cartID {
			if cart.ConvertedToOrder {
				return false, nil
			}
			cart.ConvertedToOrder = true
			return true, nil
		}
	}
	return false, nil
}

// capturePublisher records published events.
type capturePublisher struct {
	mu       sync.Mutex
	created  []*models.OrderCreatedEvent
	paid     []*models.OrderPaidEvent
	failed   []*models.OrderFailedEvent
	refunded []*models.OrderRefundedEvent
}

func (p *capturePublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *capturePublisher) PublishOrderPaid(_ context.Context, e *models.OrderPaidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid = append(p.paid, e)
	return nil
}

func (p *capturePublisher) PublishOrderFailed(_ context.Context, e *models.OrderFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, e)
	return nil
}

func (p *capturePublisher) PublishOrderRefunded(_ context.Context, e *models.OrderRefundedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunded = append(p.refunded, e)
	return nil
}
