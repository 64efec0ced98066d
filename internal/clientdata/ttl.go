package clientdata

import "time"

// TTL constants for cached data. These are added to time.Now() when storing.
const (
	TTLSectorMomentum = 24 * time.Hour     // refreshed once per trading day
	TTLExchangeRate   = time.Hour          // Currency exchange rates
	TTLScanResults    = 7 * 24 * time.Hour // latest scan snapshot served by the API
)
