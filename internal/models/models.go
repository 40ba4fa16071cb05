package models

// Key prefixes. The flat keyspace is the only schema the backend enforces.
const (
	PrefixSession       = "session:"
	PrefixOrder         = "cadlink:order:"
	PrefixPaymentIntent = "cadlink:pi:"
	PrefixLegacyOrder   = "order:"
	PrefixChatSession   = "chat:session:"
	PrefixAbandoned     = "abandoned:"
	PrefixAnalytics     = "analytics:"
	PrefixPresence      = "presence:"
	PrefixProduct       = "product:"
)

// Well-known analytics and config keys.
const (
	KeyScripts          = "cadlink:scripts"
	KeyVisits           = "analytics:visits"
	KeyCartEvents       = "analytics:cart_events"
	KeyCheckoutStarts   = "analytics:checkout_starts"
	KeyRecentCartEvents = "analytics:recent_cart_events"
	KeyCountries        = "analytics:countries"
)

// Order is one completed checkout, written once and never mutated. A
// secondary key cadlink:pi:{PaymentIntentID} -> ID exists for O(1)
// duplicate lookup.
type Order struct {
	ID              string  `json:"id"`
	Email           string  `json:"email"`
	Name            string  `json:"name"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Status          string  `json:"status"`
	Timestamp       int64   `json:"timestamp"` // epoch milliseconds
	PaymentIntentID string  `json:"paymentIntentId"`
}

const OrderStatusCompleted = "completed"

// ChatMessage is one entry in a session's append-only message log.
type ChatMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"` // "user" or "admin"
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

const (
	SenderUser  = "user"
	SenderAdmin = "admin"
)

// ChatSession holds the full per-visitor conversation plus presence
// bookkeeping. The session id is generated client-side and identifies a
// browser, not a person.
type ChatSession struct {
	ID            string        `json:"id"`
	LastMessage   string        `json:"lastMessage"`
	LastTimestamp int64         `json:"lastTimestamp"`
	UnreadCount   int           `json:"unreadCount"`
	Messages      []ChatMessage `json:"messages"`
	IsOnline      bool          `json:"isOnline"`
	LastSeen      int64         `json:"lastSeen"`
}

// ChatSummary is the admin-inbox view of a session, without the message log.
type ChatSummary struct {
	ID            string `json:"id"`
	LastMessage   string `json:"lastMessage"`
	LastTimestamp int64  `json:"lastTimestamp"`
	UnreadCount   int    `json:"unreadCount"`
	IsOnline      bool   `json:"isOnline"`
	LastSeen      int64  `json:"lastSeen"`
}

// CartItem is one line of an abandoned cart or recovery email.
type CartItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// AbandonedCheckout is an append-only telemetry event keyed by time+id.
type AbandonedCheckout struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	CartValue float64    `json:"cartValue"`
	Items     []CartItem `json:"items"`
	Stage     string     `json:"stage"`
	Status    string     `json:"status"`
	CreatedAt int64      `json:"createdAt"`
}

const (
	AbandonedStatusOpen      = "abandoned"
	AbandonedStatusEmailSent = "email_sent"
)

// PresenceRecord approximates one live visitor; stored with a 60s TTL under
// presence:{ip}.
type PresenceRecord struct {
	Timestamp int64  `json:"timestamp"`
	Country   string `json:"country"`
}

// Product is the single storefront product record.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Image       string  `json:"image"`
	COGS        float64 `json:"cogs"`
	Stock       int     `json:"stock"`
	Description string  `json:"description"`
}

// Script is one admin-configured snippet injected into the storefront DOM.
// Injection is an admin-trusted capability, not a security boundary.
type Script struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	Location string `json:"location"` // "head" or "body"
	Enabled  bool   `json:"enabled"`
}

// DailyRevenue is one bucket of the 7-day revenue series.
type DailyRevenue struct {
	Day     string  `json:"day"`
	Revenue float64 `json:"revenue"`
	Orders  int     `json:"orders"`
}

// DashboardStats is the admin dashboard aggregate. Visits and ActiveUsers
// prefer the external analytics provider when it reports non-zero figures.
type DashboardStats struct {
	Visits            int64          `json:"visits"`
	ActiveUsers       int            `json:"activeUsers"`
	CartEvents        int64          `json:"cartEvents"`
	CheckoutStarts    int64          `json:"checkoutStarts"`
	Orders            int            `json:"orders"`
	Revenue           float64        `json:"revenue"`
	AverageOrderValue float64        `json:"averageOrderValue"`
	ConversionRate    float64        `json:"conversionRate"`
	DailyRevenue      []DailyRevenue `json:"dailyRevenue"`
	Countries         map[string]int `json:"countries"`
}

// LiveStats answers the "what is happening right now" poll.
type LiveStats struct {
	ActiveUsers      int            `json:"activeUsers"`
	RecentCartEvents int            `json:"recentCartEvents"`
	ActiveRegions    map[string]int `json:"activeRegions"`
}
