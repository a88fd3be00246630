package shared

// Codes shared by every domain package. The HTTP layer maps codes, not
// sentinels, to statuses.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeJobAlreadyRunning = "JOB_ALREADY_RUNNING"
)

// DomainError is a coded error. Sentinels are compared by identity, so two
// errors with the same code stay distinguishable with errors.Is.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	base *DomainError
}

func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is lets copies made by WithMessage match the sentinel they came from
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e == t || (e.base != nil && e.base == t)
}

// WithMessage returns a copy of the error with a more specific message
func (e *DomainError) WithMessage(message string) *DomainError {
	base := e
	if e.base != nil {
		base = e.base
	}
	return &DomainError{Code: e.Code, Message: message, base: base}
}
