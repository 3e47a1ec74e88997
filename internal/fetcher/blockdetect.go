package fetcher

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot page detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
)

// DetectBlock checks a response for an anti-bot interstitial. Captcha
// markers only count on error statuses: listing pages legitimately embed
// captcha widgets on their login forms.
func DetectBlock(statusCode int, header http.Header, body []byte) (bool, BlockType) {
	errorStatus := statusCode == http.StatusForbidden || statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusTooManyRequests

	if errorStatus {
		if header.Get("cf-ray") != "" || header.Get("cf-mitigated") != "" ||
			strings.EqualFold(header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cf-challenge") {
		return true, BlockCloudflare
	}

	if errorStatus && (strings.Contains(lower, "captcha") || strings.Contains(lower, "hcaptcha")) {
		return true, BlockCaptcha
	}

	return false, BlockNone
}
