package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// ParseRetryAfter reads the standard Retry-After header, accepting both
// the delay-seconds and HTTP-date forms.
func ParseRetryAfter(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{}

	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return info
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		info.RetryAfter = time.Duration(seconds) * time.Second
		return info
	}

	if at, err := http.ParseTime(retryAfter); err == nil {
		info.ResetTime = at.Unix()
	}

	return info
}
