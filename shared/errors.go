package shared

import "errors"

var (
	// ErrSessionConfiguration is returned for session options that cannot produce a session.
	ErrSessionConfiguration = errors.New("session configuration error")
	// ErrInsufficientData is returned when the historical data is too short for the session.
	ErrInsufficientData = errors.New("insufficient historical data")
	// ErrProviderInvalidData is returned when a data provider serves unusable quotes.
	ErrProviderInvalidData = errors.New("provider returned invalid data")
	// ErrProviderAccess is returned when a data provider cannot be reached or has no data loaded.
	ErrProviderAccess = errors.New("provider access error")
	// ErrTickerNotFound is returned when a ticker symbol is unknown.
	ErrTickerNotFound = errors.New("ticker not found")
	// ErrWrongDecision is returned for decisions that do not fit the session's progress.
	ErrWrongDecision = errors.New("wrong decision")
	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session not found")
)
