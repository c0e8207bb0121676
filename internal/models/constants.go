package models

const (
	OrderStatusPending        = "pending"
	OrderStatusPreparing      = "preparing"
	OrderStatusReady          = "ready"
	OrderStatusCompleted      = "completed"
	OrderStatusCancelled      = "cancelled"
	OrderStatusOutForDelivery = "out_for_delivery"

	GiftTypePercentage = "PERCENTAGE"
	GiftTypeItem       = "ITEM"
	GiftTypeFixedValue = "FIXED_VALUE"

	GiftStatusUnused    = "unused"
	GiftStatusConverted = "converted"
	GiftStatusUsed      = "used"

	TransactionTypeEarn        = "EARN"
	TransactionTypeConvertGift = "CONVERT_GIFT"

	TierNew   = "NEW"
	TierSoft  = "SOFT"
	TierLoyal = "LOYAL"

	RoleOwner = "owner"
	RoleAdmin = "admin"
	RoleStaff = "staff"

	EventTypeVisit         = "visit"
	EventTypeRecoveryVisit = "recovery_visit"
	EventTypeLoyalReached  = "loyal_status_reached"
	EventTypeOfferApplied  = "offer_applied"
	EventTypeGiftGranted   = "gift_granted"
	EventTypeGiftConverted = "gift_converted"

	MessageKeyRecoveryAvailable = "recovery_available"
	MessageKeyGiftAvailable     = "gift_available"
	MessageKeyLoyalDiscount     = "loyal_discount"
	MessageKeyLoyalProgress     = "progress_toward_loyal"
	MessageKeyWelcomeAvailable  = "welcome_available"

	RewardTypeDiscount = "discount"
	RewardTypeItem     = "item"
)

// ValidOrderStatuses is the closed set accepted by the status update endpoint.
var ValidOrderStatuses = map[string]bool{
	OrderStatusPending:        true,
	OrderStatusPreparing:      true,
	OrderStatusReady:          true,
	OrderStatusCompleted:      true,
	OrderStatusCancelled:      true,
	OrderStatusOutForDelivery: true,
}
