// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is the shared client for outbound calls (ops webhook alerts)
var HTTPClient = &http.Client{
	Timeout: 15 * time.Second,
}
