package models

// TokenPair is the credential pair returned by a successful login.
type TokenPair struct {
	// AccessToken is the short-lived bearer credential sent on every
	// authenticated call.
	AccessToken string `json:"access_token"`

	// RefreshToken is the longer-lived credential used solely to mint
	// new access tokens via POST /users/refresh.
	RefreshToken string `json:"refresh_token"`
}

// User identifies a registered account. The API resolves between the
// two representations via GET /users/resolve/{usernameOrId}.
type User struct {
	ID       int64  `json:"user_id"`
	Username string `json:"username"`
}

// Group is a collection of users sharing receipts.
type Group struct {
	ID          int64  `json:"group_id"`
	Name        string `json:"group_name"`
	Description string `json:"description"`
}

// Receipt is one uploaded shop receipt. It belongs to exactly one
// group.
type Receipt struct {
	ID int64 `json:"receipt_id"`

	// OrderID is the shop's own order reference.
	OrderID int64 `json:"order_id"`

	// SlotTime is the delivery/purchase time as a Unix timestamp.
	SlotTime float64 `json:"slot_time"`

	TotalPrice float64 `json:"total_price"`

	// PaymentCard is the reference of the card charged for this
	// receipt.
	PaymentCard int64 `json:"payment_card"`
}

// Item is a single line on a receipt. Exactly one of Quantity or
// Weight is set: quantity for discrete units, weight for continuous
// goods. Both are pointers so an absent measure is distinguishable
// from a zero one.
type Item struct {
	ID       int64    `json:"item_id"`
	Name     string   `json:"item_name"`
	Quantity *float64 `json:"quantity"`
	Weight   *float64 `json:"weight"`
	Price    float64  `json:"price"`
}

// UserItem records how many of an item's divisible units a user
// claims. Allocations for an item need not cover its full quantity.
type UserItem struct {
	UserID int64   `json:"user_id"`
	ItemID int64   `json:"item_id"`
	Unit   float64 `json:"unit"`
}

// UserCost is one user's computed share of one receipt, as stored and
// returned by the /users/costs endpoints.
type UserCost struct {
	UserID    int64   `json:"user_id,omitempty"`
	ReceiptID int64   `json:"receipt_id"`
	SlotTime  float64 `json:"slot_time,omitempty"`
	Cost      float64 `json:"cost"`
}
