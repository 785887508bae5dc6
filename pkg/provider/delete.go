package provider

// ObjectIdentifier names one object in a bulk delete.
type ObjectIdentifier struct {
	Key string `json:"key"`
}

// DeleteRequest is a multi-object delete payload. Order is preserved.
type DeleteRequest struct {
	Objects []ObjectIdentifier `json:"objects"`

	// Quiet asks the store to report only failures.
	Quiet bool `json:"quiet,omitempty"`
}

// Keys returns the keys in request order.
func (r *DeleteRequest) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, len(r.Objects))
	for i, obj := range r.Objects {
		keys[i] = obj.Key
	}
	return keys
}

// Len returns the number of entries.
func (r *DeleteRequest) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Objects)
}

// DeleteResult reports the outcome of a bulk delete.
type DeleteResult struct {
	// Deleted lists keys the store confirmed. Quiet requests may leave it empty.
	Deleted []string

	// Errors lists per-key rejections.
	Errors []DeleteError
}

// DeleteError is a per-key rejection inside a bulk delete.
type DeleteError struct {
	Key     string
	Code    string
	Message string

	// Err is the rejection mapped onto a provider sentinel, when one applies.
	Err error
}

// Error implements the error interface.
func (e DeleteError) Error() string {
	if e.Code != "" {
		return e.Key + ": " + e.Code + ": " + e.Message
	}
	return e.Key + ": " + e.Message
}

// Unwrap returns the mapped sentinel, if any.
func (e DeleteError) Unwrap() error {
	return e.Err
}

// ErrorFor returns the rejection for key, or nil when the key was not rejected.
func (r *DeleteResult) ErrorFor(key string) *DeleteError {
	if r == nil {
		return nil
	}
	for i := range r.Errors {
		if r.Errors[i].Key == key {
			return &r.Errors[i]
		}
	}
	return nil
}
