package gateway

import "context"

// MaxBatchSize is the provider's multicast ceiling; callers never submit
// more tokens than this per call.
const MaxBatchSize = 500

// Payload is the push message: notification part plus opaque data.
type Payload struct {
	Title string
	Body  string
	Data  map[string]string
}

// Failure is one undelivered token with the provider's error code, already
// normalized to the codes the dispatcher triages on.
type Failure struct {
	Token string `json:"token"`
	Code  string `json:"code"`
}

// Report aggregates one multicast call.
type Report struct {
	SuccessCount int
	FailureCount int
	Failures     []Failure
}

// Gateway is the push provider seam. Implementations must accept up to
// MaxBatchSize tokens and report per-token outcomes; a returned error means
// the whole batch failed (classified by the caller as batch-error).
type Gateway interface {
	SendMulticast(ctx context.Context, tokens []string, payload Payload) (Report, error)
}

// Normalized gateway error codes. Everything outside the retryable set is a
// permanent verdict: the token is discarded.
const (
	CodeUnregistered         = "unregistered"
	CodeInvalidToken         = "invalid-token"
	CodeMismatchedCredential = "mismatched-credential"
	CodeThirdPartyAuth       = "third-party-auth-error"
	CodeServerUnavailable    = "server-unavailable"
	CodeInternalError        = "internal-error"
	CodeQuotaExceeded        = "quota-exceeded"
	CodeTimeout              = "timeout"
	CodeUnavailable          = "unavailable"
	CodeBatchError           = "batch-error"
	CodeUnknown              = "unknown"
)

var retryableCodes = map[string]bool{
	CodeServerUnavailable: true,
	CodeInternalError:     true,
	CodeQuotaExceeded:     true,
	CodeTimeout:           true,
	CodeUnavailable:       true,
	CodeBatchError:        true,
}

// Retryable reports whether a failure code is transient.
func Retryable(code string) bool {
	return retryableCodes[code]
}

// Partition splits failures into retryable and permanent sets.
func Partition(failures []Failure) (retryable, permanent []Failure) {
	for _, f := range failures {
		if Retryable(f.Code) {
			retryable = append(retryable, f)
		} else {
			permanent = append(permanent, f)
		}
	}
	return retryable, permanent
}
