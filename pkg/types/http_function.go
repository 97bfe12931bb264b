package types

// RegisterFunctionRequest is the registration payload accepted from the API
// layer. Code may be inline source or an ipfs:// URI in CodeURI.
type RegisterFunctionRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description,omitempty"`
	Trigger     TriggerConfig   `json:"trigger"`
	Permissions *Permissions    `json:"permissions,omitempty"`
	Resources   *ResourceLimits `json:"resources,omitempty"`
	Code        string          `json:"code,omitempty"`
	CodeURI     string          `json:"code_uri,omitempty"`
}

// RegisterFunctionResponse returns the assigned id and initial version.
type RegisterFunctionResponse struct {
	ID      uint64 `json:"id"`
	Version uint64 `json:"version"`
}

// UpdateFunctionRequest carries partial fields; nil fields keep their stored
// value. ExpectedVersion guards against concurrent updates.
type UpdateFunctionRequest struct {
	Name            *string         `json:"name,omitempty"`
	Description     *string         `json:"description,omitempty"`
	Trigger         *TriggerConfig  `json:"trigger,omitempty"`
	Permissions     *Permissions    `json:"permissions,omitempty"`
	Resources       *ResourceLimits `json:"resources,omitempty"`
	Code            *string         `json:"code,omitempty"`
	CodeURI         *string         `json:"code_uri,omitempty"`
	ExpectedVersion uint64          `json:"expected_version"`
}

// UpdateFunctionResponse returns the bumped version.
type UpdateFunctionResponse struct {
	ID      uint64 `json:"id"`
	Version uint64 `json:"version"`
}

// ListFunctionsRequest filters and paginates function listings. PageToken is
// opaque to callers.
type ListFunctionsRequest struct {
	TriggerType TriggerType `json:"trigger_type,omitempty"`
	NamePrefix  string      `json:"name_prefix,omitempty"`
	PageToken   string      `json:"page_token,omitempty"`
	PageSize    int         `json:"page_size,omitempty"`
}

type ListFunctionsResponse struct {
	Functions     []FunctionMetadata `json:"functions"`
	NextPageToken string             `json:"next_page_token,omitempty"`
}

// SubmitEventRequest is the direct-request intake: the payload becomes a
// request-trigger event emitted exactly once per request id.
type SubmitEventRequest struct {
	ID      string      `json:"id,omitempty"`
	Trigger TriggerKind `json:"trigger,omitempty"`
	Payload Value       `json:"payload"`
}

// SubmitEventResponse acknowledges intake. Matching happens on the async
// ingestion path, so the response only confirms acceptance.
type SubmitEventResponse struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}
