package rewards

import "time"

// SourceOrderPlaced is the reward source credited on checkout.
const SourceOrderPlaced = "order_placed"

// Reward is one CrashCash credit in the ledger.
type Reward struct {
	RewardID  string    `json:"rewardId" dynamodbav:"reward_id"` // PK, see ID
	UserID    string    `json:"userId" dynamodbav:"user_id"`
	OrderID   string    `json:"orderId" dynamodbav:"order_id"`
	Source    string    `json:"source" dynamodbav:"source"`
	Amount    float64   `json:"amount" dynamodbav:"amount"`
	IssuedAt  time.Time `json:"issuedAt" dynamodbav:"issued_at"`
	ExpiresAt time.Time `json:"expiresAt" dynamodbav:"expires_at"`
}

// ID is the deterministic ledger key for (orderID, userID, source).
func ID(orderID, userID, source string) string {
	return orderID + "#" + userID + "#" + source
}
