// Package failure implements the two-level closed FailureReason taxonomy
// (spec.md §7) and the ordered inference rules that derive a code from a
// raw error or provider message.
package failure

type (
	// Category is the higher-level grouping of a FailureCode.
	Category string

	// Code is the specific, closed-set failure code attached to a
	// terminal or mid-stream failure event.
	Code string

	// Reason is the pair persisted on a job/sub-task and reported in
	// terminal event payloads as {failureReason.code, failureReason.category}.
	Reason struct {
		Code     Code     `json:"code"`
		Category Category `json:"category"`
	}
)

const (
	CategoryTimeout    Category = "timeout"
	CategoryNetwork    Category = "network"
	CategoryService    Category = "service"
	CategoryContent    Category = "content"
	CategoryProcessing Category = "processing"
	CategoryJob        Category = "job"
	CategoryUnknown    Category = "unknown"
)

const (
	CodeTimeoutJobOverall  Code = "timeout_job_overall"
	CodeTimeoutPerSource   Code = "timeout_per_source"
	CodeTimeoutPerSubtask  Code = "timeout_per_subtask"
	CodeTimeoutPolling     Code = "timeout_polling"

	CodeConnectionRefused   Code = "connection_refused"
	CodeConnectionTimeout   Code = "connection_timeout"
	CodeDNSResolutionFailed Code = "dns_resolution_failed"
	CodeNetworkUnreachable  Code = "network_unreachable"
	CodeSSLHandshakeFailed  Code = "ssl_handshake_failed"

	CodeServiceUnavailable Code = "service_unavailable"
	CodeServiceOverloaded  Code = "service_overloaded"
	CodeServiceError       Code = "service_error"

	CodeEmptyContent     Code = "empty_content"
	CodeParseError       Code = "parse_error"
	CodeInvalidURL       Code = "invalid_url"
	CodeBlockedByRobots  Code = "blocked_by_robots"
	CodeBlockedByCaptcha Code = "blocked_by_captcha"
	CodeContentTooLarge  Code = "content_too_large"

	CodeAnalysisFailed   Code = "analysis_failed"
	CodeExtractionFailed Code = "extraction_failed"

	CodeCancelled             Code = "cancelled"
	CodeDuplicateCallback     Code = "duplicate_callback"
	CodeInvalidCallbackToken  Code = "invalid_callback_token"

	CodeUnknown Code = "unknown"
)

// categoryOf is the static code → category table from spec.md §7.
var categoryOf = map[Code]Category{
	CodeTimeoutJobOverall: CategoryTimeout,
	CodeTimeoutPerSource:  CategoryTimeout,
	CodeTimeoutPerSubtask: CategoryTimeout,
	CodeTimeoutPolling:    CategoryTimeout,

	CodeConnectionRefused:   CategoryNetwork,
	CodeConnectionTimeout:   CategoryNetwork,
	CodeDNSResolutionFailed: CategoryNetwork,
	CodeNetworkUnreachable:  CategoryNetwork,
	CodeSSLHandshakeFailed:  CategoryNetwork,

	CodeServiceUnavailable: CategoryService,
	CodeServiceOverloaded:  CategoryService,
	CodeServiceError:       CategoryService,

	CodeEmptyContent:     CategoryContent,
	CodeParseError:       CategoryContent,
	CodeInvalidURL:       CategoryContent,
	CodeBlockedByRobots:  CategoryContent,
	CodeBlockedByCaptcha: CategoryContent,
	CodeContentTooLarge:  CategoryContent,

	CodeAnalysisFailed:   CategoryProcessing,
	CodeExtractionFailed: CategoryProcessing,

	CodeCancelled:            CategoryJob,
	CodeDuplicateCallback:    CategoryJob,
	CodeInvalidCallbackToken: CategoryJob,

	CodeUnknown: CategoryUnknown,
}

// CategoryFor returns the static category for a code. Unrecognized codes
// (e.g. a caller-constructed Code that isn't one of the closed constants)
// map to CategoryUnknown.
func CategoryFor(code Code) Category {
	if cat, ok := categoryOf[code]; ok {
		return cat
	}

	return CategoryUnknown
}

// New builds a Reason from a code, resolving its category from the static
// table.
func New(code Code) Reason {
	return Reason{Code: code, Category: CategoryFor(code)}
}

// AggregateCategory picks the category a terminal PARTIAL_SUCCESS/FAILED
// parent event reports when its sub-tasks failed for more than one
// category (spec.md §8 scenario 6): report the earliest non-content
// category present, in sub-task order; if every failing sub-task is
// `content`, report `content`.
func AggregateCategory(categories []Category) Category {
	var firstContent Category

	for _, cat := range categories {
		if cat != CategoryContent {
			return cat
		}

		if firstContent == "" {
			firstContent = cat
		}
	}

	return firstContent
}
