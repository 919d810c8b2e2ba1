package api

// GJSON paths into backend response bodies
const (
	PathReply  = "reply"
	PathSource = "source"
	PathDetail = "detail"
	// FastAPI validation errors carry a list of {loc, msg, type} objects
	PathDetailMsgs = "detail.#.msg"
	PathStatus     = "status"
)

// Body size limits
const (
	maxErrorBody   = 4 << 10
	maxSuccessBody = 1 << 20
)
