package settings

// DB config keys for bridge client settings.
const (
	// ClientIDKey is the DB config key for the vehicle OAuth client id.
	ClientIDKey = "BRIDGE_CLIENT_ID"
	// ClientSecretKey is the DB config key for the vehicle OAuth client secret.
	ClientSecretKey = "BRIDGE_CLIENT_SECRET"
	// PurchaseModeKey is the DB config key for the advertised purchase mode.
	PurchaseModeKey = "PURCHASE_MODE"
	// DefaultPurchaseMode is the fallback purchase mode.
	DefaultPurchaseMode = "creditPack"
)
