package handlers

// StatusResponse is the body for acknowledgement-style endpoints that have
// nothing to return beyond a phrase.
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}
