package exporter

import "net/http"

// errorBody is the JSON envelope returned by /lookup on failure. Context
// carries the underlying error text and is empty for request validation
// errors.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Context string `json:"context"`
}

func newErrorBody(message string, err error) errorBody {
	body := errorBody{Error: errorDetail{Message: message}}
	if err != nil {
		body.Error.Context = err.Error()
	}
	return body
}

// sendError writes a JSON error envelope with statusCode.
func sendError(w http.ResponseWriter, err error, message string, statusCode int) {
	encodeJSON(w, statusCode, newErrorBody(message, err))
}
