package cart

import "time"

var testNow = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
