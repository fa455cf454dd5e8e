package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

const replayWindow = 300 * time.Second

// sign computes HMAC-SHA256(secretKey, "<timestamp>.<body>") and returns it
// as lowercase hex, matching spec 4.5's signature wire format exactly.
func sign(secretKey string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(fmt.Sprintf("%d.", timestamp)))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerificationResult is the outcome of verifyWebhookSignature.
type VerificationResult struct {
	Valid  bool
	Reason string
}

// VerifySignature implements spec 4.5's verifyWebhookSignature. signature
// is expected in the "sha256=<hex>" wire form the way deliverEvent sends it;
// a bare hex string is also accepted for callers that already stripped the
// prefix.
func VerifySignature(body []byte, signature, timestampStr, secretKey string, now time.Time) VerificationResult {
	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return VerificationResult{Valid: false, Reason: "Invalid timestamp"}
	}

	delta := now.Unix() - timestamp
	if delta < 0 {
		delta = -delta
	}
	if time.Duration(delta)*time.Second > replayWindow {
		return VerificationResult{Valid: false, Reason: "Webhook timestamp too old"}
	}

	provided := signature
	if len(provided) > 7 && provided[:7] == "sha256=" {
		provided = provided[7:]
	}
	expected := sign(secretKey, timestamp, body)

	if subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
		return VerificationResult{Valid: false, Reason: "Signature mismatch"}
	}
	return VerificationResult{Valid: true}
}
