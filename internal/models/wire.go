package models

// UploadResponse is the JSON body of a successful POST /upload.
type UploadResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
	Name    string `json:"name"`
}

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Message string `json:"message"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Passcode string `json:"passcode"`
}

// LoginResponse carries the operator session token.
type LoginResponse struct {
	Token string `json:"token"`
}
