package models

// Reason identifies why a domain operation was rejected. Reasons are
// structured data returned to callers, not Go errors: a rejected discount
// code or an oversold line item is an expected outcome, not a failure of
// the request itself.
type Reason string

// Discount evaluation reasons, in check order.
const (
	ReasonCodeNotFound       Reason = "CODE_NOT_FOUND"
	ReasonCodeInactive       Reason = "CODE_INACTIVE"
	ReasonCodeExpired        Reason = "CODE_EXPIRED"
	ReasonUsageLimitReached  Reason = "USAGE_LIMIT_REACHED"
	ReasonAlreadyUsedByUser  Reason = "ALREADY_USED_BY_USER"
	ReasonMinimumNotMet      Reason = "MINIMUM_NOT_MET"
	ReasonCategoryExcluded   Reason = "CATEGORY_EXCLUDED"
	ReasonStackLimitExceeded Reason = "STACK_LIMIT_EXCEEDED"
)

// Inventory commit reasons.
const (
	ReasonOutOfStock         Reason = "OUT_OF_STOCK"
	ReasonPreorderCapReached Reason = "PREORDER_CAP_REACHED"
)

// Webhook and refund reasons.
const (
	ReasonAlreadyProcessed Reason = "ALREADY_PROCESSED"
	ReasonAlreadyRefunded  Reason = "ALREADY_REFUNDED"
)

// Message returns the human-readable text shown inline at checkout.
func (r Reason) Message() string {
	switch r {
	case ReasonCodeNotFound:
		return "This discount code does not exist"
	case ReasonCodeInactive:
		return "This discount code is no longer active"
	case ReasonCodeExpired:
		return "This discount code has expired"
	case ReasonUsageLimitReached:
		return "This discount code has reached its usage limit"
	case ReasonAlreadyUsedByUser:
		return "You have already used this discount code"
	case ReasonMinimumNotMet:
		return "Your order does not meet the minimum spend for this code"
	case ReasonCategoryExcluded:
		return "This discount code does not apply to the items in your cart"
	case ReasonStackLimitExceeded:
		return "Another discount is already applied to this order"
	case ReasonOutOfStock:
		return "One or more items are out of stock"
	case ReasonPreorderCapReached:
		return "Pre-order allocation for an item has been exhausted"
	case ReasonAlreadyRefunded:
		return "This order has already been refunded"
	default:
		return string(r)
	}
}
