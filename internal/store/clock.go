package store

import "time"

// nowFunc is overridden in tests that need deterministic timestamps,
// rather than calling time.Now() directly inside persistence code.
var nowFunc = time.Now
