package imagegen

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
)

// FailureCategory is the classification of a provider failure.
type FailureCategory string

const (
	// CategoryQuotaOrPayment is the only category that may trigger fallback.
	CategoryQuotaOrPayment FailureCategory = "quota_or_payment"
	CategoryRateLimited    FailureCategory = "rate_limited"
	CategoryTransient      FailureCategory = "transient"
	CategoryFatal          FailureCategory = "fatal"
)

// AllowsFallback reports whether a failure of this category may move on to the secondary provider.
func (c FailureCategory) AllowsFallback() bool {
	return c == CategoryQuotaOrPayment
}

// Kind maps a category onto the error taxonomy. Transient failures surface
// as provider-fatal for a single request.
func (c FailureCategory) Kind() ErrorKind {
	switch c {
	case CategoryQuotaOrPayment:
		return KindProviderQuota
	case CategoryRateLimited:
		return KindProviderRateLimit
	default:
		return KindProviderFatal
	}
}

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// Substring markers, matched against the lower-cased error text.
var (
	quotaMarkers = []string{
		"payment required",
		"quota exceeded",
		"exceeded your current quota",
		"insufficient_quota",
		"included credits",
		"billing",
		"credit balance",
		"pre-paid credits",
	}
	rateMarkers = []string{
		"rate limit",
		"rate_limit",
		"too many requests",
	}
	fatalMarkers = []string{
		"unauthorized",
		"invalid credentials",
		"invalid api key",
		"incorrect api key",
		"invalid_api_key",
		"forbidden",
		"not found",
		"does not exist",
		"bad request",
		"content_policy_violation",
		"safety system",
	}
	transientMarkers = []string{
		"currently loading",
		"timeout",
		"timed out",
		"temporarily unavailable",
		"service unavailable",
		"bad gateway",
		"connection refused",
		"connection reset",
		"unexpected eof",
		"no such host",
	}
)

// Classify assigns a FailureCategory to a provider error.
//
// It is a pure function over the error's status code (when the error carries
// one via StatusCoder) and its lower-cased text. Quota and payment signals are
// checked first because some providers report exhausted quota with a 429.
// Anything unrecognized, including nil, is CategoryFatal.
//
// Example:
//
//	Classify(&StatusError{Code: 402, Message: "Payment Required"})  // CategoryQuotaOrPayment
//	Classify(errors.New("Rate limit reached"))                       // CategoryRateLimited
//	Classify(errors.New("Model is currently loading"))               // CategoryTransient
func Classify(err error) FailureCategory {
	if err == nil {
		return CategoryFatal
	}

	status := 0
	var sc StatusCoder
	if errors.As(err, &sc) {
		status = sc.StatusCode()
	}
	text := strings.ToLower(err.Error())

	switch {
	case status == http.StatusPaymentRequired || containsAny(text, quotaMarkers):
		return CategoryQuotaOrPayment
	case status == http.StatusTooManyRequests || containsAny(text, rateMarkers):
		return CategoryRateLimited
	case status >= 400 && status < 500:
		return CategoryFatal
	case status >= 500:
		return CategoryTransient
	case containsAny(text, fatalMarkers):
		return CategoryFatal
	case isNetworkError(err) || containsAny(text, transientMarkers):
		return CategoryTransient
	default:
		return CategoryFatal
	}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
