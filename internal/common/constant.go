// Package common contains shared constants, sentinel errors and error types
// used across PhotoDrop components.
package common

// AuthorizationHeaderName is the HTTP header carrying the operator session
// token on outbound requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the session token in the Authorization header.
const BearerPrefix = "Bearer "

// Metadata field names attached to every stored submission object.
const (
	FieldEmail        = "email"
	FieldFolderNumber = "folderNumber"
)
