// Package models defines the submission types shared by the server and the
// client, together with their JSON wire form.
package models

import "time"

// Submission is one customer's captured image plus identifying metadata as
// held by the record store. Email and FolderNumber never change for an ID.
type Submission struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FolderNumber string    `json:"folderNumber"`
	PhotoRef     string    `json:"photo"`
	CreatedAt    time.Time `json:"createdAt,omitzero"`
}

// Valid reports whether both identifying fields are present. Objects without
// them are not submissions.
func (s Submission) Valid() bool {
	return s.Email != "" && s.FolderNumber != ""
}

// NewSubmission carries a freshly uploaded photo to the record store.
type NewSubmission struct {
	Email        string
	FolderNumber string
	FileName     string
	ContentType  string
	Photo        []byte
}

// Receipt is what the record store returns for a created submission.
type Receipt struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
