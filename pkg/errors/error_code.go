package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

// Kind groups error codes into the categories the engine reacts to.
type Kind string

const (
	KindUnknown  Kind = "unknown"
	KindConfig   Kind = "config"
	KindAuth     Kind = "auth"
	KindFeed     Kind = "feed"
	KindStrategy Kind = "strategy"
	KindGateway  Kind = "gateway"
	KindEngine   Kind = "engine"
	KindJournal  Kind = "journal"
	KindCallback Kind = "callback"
)

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration errors (100-199)
	ErrCodeInvalidParameter      ErrorCode = 100
	ErrCodeInvalidConfiguration  ErrorCode = 101
	ErrCodeMissingParameter      ErrorCode = 102
	ErrCodeInvalidVersion        ErrorCode = 103
	ErrCodeNoSubscriptions       ErrorCode = 104
	ErrCodeUnknownStrategy       ErrorCode = 105
	ErrCodeInvalidOffsetPriority ErrorCode = 106
	ErrCodeInvalidPriceMode      ErrorCode = 107
	ErrCodeInvalidVolumeRange    ErrorCode = 108
	ErrCodeInvalidAccountList    ErrorCode = 109
	ErrCodeInvalidMode           ErrorCode = 110
	ErrCodeVersionMismatch       ErrorCode = 111

	// Session / authentication errors (200-299)
	ErrCodeAuthFailed        ErrorCode = 200
	ErrCodeUnsupportedBroker ErrorCode = 201
	ErrCodeSessionClosed     ErrorCode = 202

	// Market data feed errors (300-399)
	ErrCodeSubscribeFailed       ErrorCode = 300
	ErrCodeFeedClosed            ErrorCode = 301
	ErrCodeFeedTransient         ErrorCode = 302
	ErrCodeMarketDataParseFailed ErrorCode = 303
	ErrCodeReplayDataUnavailable ErrorCode = 304
	ErrCodeQueryFailed           ErrorCode = 305
	ErrCodeUnknownInstrument     ErrorCode = 306

	// Strategy errors (400-499)
	ErrCodeStrategyInitFailed    ErrorCode = 400
	ErrCodeStrategyRuntimeError  ErrorCode = 401
	ErrCodeStrategyPanic         ErrorCode = 402
	ErrCodeInsufficientData      ErrorCode = 403
	ErrCodeStrategyAlreadyExists ErrorCode = 404
	ErrCodeStrategyMissingSeries ErrorCode = 406
	ErrCodeStrategyDisabled      ErrorCode = 407
	ErrCodeIndicatorCalculation  ErrorCode = 408

	// Order gateway errors (500-599)
	ErrCodeOrderFailed        ErrorCode = 500
	ErrCodeOrderRejected      ErrorCode = 501
	ErrCodeOrderNotFound      ErrorCode = 502
	ErrCodeCancelFailed       ErrorCode = 503
	ErrCodeAccountQueryFailed ErrorCode = 504
	ErrCodeMarketDataMissing  ErrorCode = 505
	ErrCodeInsufficientFunds  ErrorCode = 506
	ErrCodeUnknownAccount     ErrorCode = 507

	// Engine errors (600-699)
	ErrCodeEngineInitFailed ErrorCode = 600
	ErrCodeEngineState      ErrorCode = 601
	ErrCodeTaskNotFound     ErrorCode = 602

	// Journal errors (700-799)
	ErrCodeJournalInitFailed  ErrorCode = 700
	ErrCodeJournalWriteFailed ErrorCode = 701

	// Callback errors (800-899)
	ErrCodeCallbackFailed ErrorCode = 800
)

// Kind returns the category the code belongs to.
func (c ErrorCode) Kind() Kind {
	switch {
	case c >= 100 && c < 200:
		return KindConfig
	case c >= 200 && c < 300:
		return KindAuth
	case c >= 300 && c < 400:
		return KindFeed
	case c >= 400 && c < 500:
		return KindStrategy
	case c >= 500 && c < 600:
		return KindGateway
	case c >= 600 && c < 700:
		return KindEngine
	case c >= 700 && c < 800:
		return KindJournal
	case c >= 800 && c < 900:
		return KindCallback
	default:
		return KindUnknown
	}
}
