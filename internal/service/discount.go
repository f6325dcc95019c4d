package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DiscountStore is the persistence surface the evaluator needs. The SQL
// store implements it; tests plug in in-memory fakes.
type DiscountStore interface {
	GetDiscountCode(ctx context.Context, code string) (*models.DiscountCode, error)
	ConsumeDiscountUsage(ctx context.Context, codeID int64) (bool, error)
	CountRedemptionsByUser(ctx context.Context, codeID int64, userID string) (int, error)
	RecordRedemption(ctx context.Context, codeID int64, userID string, orderID int64) error
	CreateDiscountCode(ctx context.Context, dc *models.DiscountCode) error
	UpdateDiscountCode(ctx context.Context, dc *models.DiscountCode) error
	DeleteDiscountCode(ctx context.Context, id int64) error
	ListDiscountCodes(ctx context.Context) ([]models.DiscountCode, error)
}

// ProductCatalog resolves products for category/tag eligibility checks.
type ProductCatalog interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}

// LineItem is one cart line as seen by the evaluator: the price is the
// frozen price-at-add, never the live catalog price.
type LineItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// DiscountEffect is the computed impact of a valid code on a cart.
// Amount reduces the subtotal; FreeShipping zeroes the shipping component
// and is orthogonal to subtotal discounts.
type DiscountEffect struct {
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	FreeShipping bool            `json:"free_shipping"`
}

// Verdict is the evaluation outcome. A rejected code carries the Reason;
// a valid one carries the code and its computed effect.
type Verdict struct {
	Valid  bool                 `json:"valid"`
	Reason models.Reason        `json:"reason,omitempty"`
	Code   *models.DiscountCode `json:"-"`
	Effect *DiscountEffect      `json:"effect,omitempty"`
}

// DiscountService evaluates discount codes and consumes usage on
// fulfilled payments.
type DiscountService struct {
	store           DiscountStore
	catalog         ProductCatalog
	maxStack        int
	caseInsensitive bool
	logger          *zap.Logger
	now             func() time.Time
}

// NewDiscountService creates a new discount service
func NewDiscountService(store DiscountStore, catalog ProductCatalog, maxStack int, caseInsensitive bool) *DiscountService {
	if maxStack < 1 {
		maxStack = 1
	}
	return &DiscountService{
		store:           store,
		catalog:         catalog,
		maxStack:        maxStack,
		caseInsensitive: caseInsensitive,
		logger:          util.NamedLogger("discount"),
		now:             time.Now,
	}
}

// Normalize trims the raw code and uppercases it when case-insensitive
// matching is configured. Lookup always uses the normalized form.
func (s *DiscountService) Normalize(raw string) string {
	code := strings.TrimSpace(raw)
	if s.caseInsensitive {
		code = strings.ToUpper(code)
	}
	return code
}

// Evaluate validates a code against a cart and computes its effect.
// Checks run in a fixed order and the first failure wins, so rejection
// messages are unambiguous. appliedStack is the number of
// subtotal-affecting codes already on the cart. Rejections are verdicts,
// not errors; the error return is for infrastructure failures only.
func (s *DiscountService) Evaluate(ctx context.Context, rawCode string, cartSubtotal decimal.Decimal, items []LineItem, userID *string, appliedStack int) (*Verdict, error) {
	ctx, span := util.StartSpan(ctx, "DiscountService.Evaluate")
	defer span.End()

	code, err := s.store.GetDiscountCode(ctx, s.Normalize(rawCode))
	if err != nil {
		return nil, fmt.Errorf("lookup discount code: %w", err)
	}
	if code == nil {
		return s.reject(models.ReasonCodeNotFound), nil
	}

	if !code.IsActive {
		return s.reject(models.ReasonCodeInactive), nil
	}

	if code.ExpiresAt != nil && !code.ExpiresAt.After(s.now()) {
		return s.reject(models.ReasonCodeExpired), nil
	}

	if code.UsageLimit != nil && code.UsageCount >= *code.UsageLimit {
		return s.reject(models.ReasonUsageLimitReached), nil
	}

	if code.PerUserLimit != nil && userID != nil {
		redemptions, err := s.store.CountRedemptionsByUser(ctx, code.ID, *userID)
		if err != nil {
			return nil, fmt.Errorf("count redemptions: %w", err)
		}
		if redemptions >= *code.PerUserLimit {
			return s.reject(models.ReasonAlreadyUsedByUser), nil
		}
	}

	if code.MinimumPurchase != nil && cartSubtotal.LessThan(*code.MinimumPurchase) {
		return s.reject(models.ReasonMinimumNotMet), nil
	}

	eligible, err := s.eligibleLines(ctx, code, cartSubtotal, items)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 && len(eligible.lines) == 0 {
		return s.reject(models.ReasonCategoryExcluded), nil
	}

	// Free-shipping codes target the shipping component, not the
	// subtotal, so they do not count against the stack limit.
	if code.Type != models.DiscountTypeFreeShipping && appliedStack >= s.maxStack {
		return s.reject(models.ReasonStackLimitExceeded), nil
	}

	effect := computeEffect(code, eligible)
	util.DiscountValidationsTotal.WithLabelValues("valid").Inc()
	s.logger.Debug("discount code accepted",
		zap.String("code", code.Code),
		zap.String("type", code.Type),
		zap.String("amount", effect.Amount.String()))

	return &Verdict{Valid: true, Code: code, Effect: effect}, nil
}

func (s *DiscountService) reject(reason models.Reason) *Verdict {
	util.DiscountValidationsTotal.WithLabelValues(string(reason)).Inc()
	return &Verdict{Valid: false, Reason: reason}
}

// eligibleCart is the portion of the cart a code may discount.
type eligibleCart struct {
	subtotal decimal.Decimal
	lines    []LineItem
}

// eligibleLines filters cart lines through the code's category inclusion
// and tag exclusion rules. With no line detail (the bare validate
// endpoint sends only a subtotal) the whole subtotal is treated as
// eligible; the checkout path always passes real lines.
func (s *DiscountService) eligibleLines(ctx context.Context, code *models.DiscountCode, cartSubtotal decimal.Decimal, items []LineItem) (eligibleCart, error) {
	if len(items) == 0 {
		return eligibleCart{subtotal: cartSubtotal, lines: []LineItem{{UnitPrice: cartSubtotal, Quantity: 1}}}, nil
	}

	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	products, err := s.catalog.GetProductsByIDs(ctx, ids)
	if err != nil {
		return eligibleCart{}, fmt.Errorf("resolve products for eligibility: %w", err)
	}
	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	out := eligibleCart{subtotal: decimal.Zero}
	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok || !lineEligible(code, product) {
			continue
		}
		out.lines = append(out.lines, item)
		out.subtotal = out.subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return out, nil
}

func lineEligible(code *models.DiscountCode, product *models.Product) bool {
	for _, tag := range code.ExcludedTags {
		if product.HasTag(tag) {
			return false
		}
	}
	if len(code.IncludedCategories) == 0 {
		return true
	}
	for _, category := range code.IncludedCategories {
		if product.InCategory(category) {
			return true
		}
	}
	return false
}

// computeEffect derives the monetary effect of a valid code. Rounding is
// applied once, to the final amount, never per line.
func computeEffect(code *models.DiscountCode, eligible eligibleCart) *DiscountEffect {
	effect := &DiscountEffect{Type: code.Type, Amount: decimal.Zero}

	switch code.Type {
	case models.DiscountTypePercent:
		effect.Amount = eligible.subtotal.Mul(code.Value).Div(decimal.NewFromInt(100)).Round(2)

	case models.DiscountTypeFixed:
		effect.Amount = decimal.Min(code.Value, eligible.subtotal).Round(2)

	case models.DiscountTypeFreeShipping:
		effect.FreeShipping = true

	case models.DiscountTypeBOGO:
		effect.Amount = bogoDiscount(eligible.lines).Round(2)
	}

	if effect.Amount.IsNegative() {
		effect.Amount = decimal.Zero
	}
	return effect
}

// bogoDiscount gives 100% off the cheapest eligible unit, provided the
// eligible lines hold at least two units between them.
func bogoDiscount(lines []LineItem) decimal.Decimal {
	units := 0
	cheapest := decimal.Zero
	found := false
	for _, line := range lines {
		units += line.Quantity
		if !found || line.UnitPrice.LessThan(cheapest) {
			cheapest = line.UnitPrice
			found = true
		}
	}
	if units < 2 {
		return decimal.Zero
	}
	return cheapest
}

// CreateCode persists a new code, normalizing it first so customer
// lookups and admin edits agree on the stored form.
func (s *DiscountService) CreateCode(ctx context.Context, dc *models.DiscountCode) error {
	dc.Code = s.Normalize(dc.Code)
	if err := s.store.CreateDiscountCode(ctx, dc); err != nil {
		return fmt.Errorf("create discount code: %w", err)
	}
	return nil
}

// UpdateCode updates the mutable fields of an existing code.
func (s *DiscountService) UpdateCode(ctx context.Context, dc *models.DiscountCode) error {
	if err := s.store.UpdateDiscountCode(ctx, dc); err != nil {
		return fmt.Errorf("update discount code: %w", err)
	}
	return nil
}

// DeleteCode removes a code.
func (s *DiscountService) DeleteCode(ctx context.Context, id int64) error {
	if err := s.store.DeleteDiscountCode(ctx, id); err != nil {
		return fmt.Errorf("delete discount code: %w", err)
	}
	return nil
}

// ListCodes returns all codes for the admin surface.
func (s *DiscountService) ListCodes(ctx context.Context) ([]models.DiscountCode, error) {
	return s.store.ListDiscountCodes(ctx)
}

// ConsumeUsage burns one usage of a code after a fulfilled payment. The
// increment is bounded by the usage limit inside the store's conditional
// update; losing that race is reported, not retried, since the payment
// has already settled.
func (s *DiscountService) ConsumeUsage(ctx context.Context, code *models.DiscountCode, userID *string, orderID int64) error {
	ok, err := s.store.ConsumeDiscountUsage(ctx, code.ID)
	if err != nil {
		return fmt.Errorf("consume usage for %s: %w", code.Code, err)
	}
	if !ok {
		s.logger.Warn("usage cap exhausted after payment settled",
			zap.String("code", code.Code),
			zap.Int64("order_id", orderID))
	} else {
		util.DiscountUsageConsumedTotal.Inc()
	}

	if userID != nil {
		if err := s.store.RecordRedemption(ctx, code.ID, *userID, orderID); err != nil {
			return fmt.Errorf("record redemption for %s: %w", code.Code, err)
		}
	}
	return nil
}
