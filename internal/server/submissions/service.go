// Package submissions validates customer uploads and orchestrates the
// record store for the HTTP layer.
package submissions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/dmitrijs2005/photodrop/internal/logging"
	"github.com/dmitrijs2005/photodrop/internal/models"
	"github.com/dmitrijs2005/photodrop/internal/server/recordstore"
	"github.com/dmitrijs2005/photodrop/internal/textx"
)

// Upload is one customer upload as decoded from the multipart request.
type Upload struct {
	Email        string
	FolderNumber string
	FileName     string
	ContentType  string
	Photo        []byte
}

// Service validates uploads and forwards them to a recordstore.Collection.
type Service struct {
	coll     recordstore.Collection
	pageSize int
	log      logging.Logger
	now      func() time.Time
}

func NewService(coll recordstore.Collection, pageSize int, log logging.Logger) *Service {
	return &Service{
		coll:     coll,
		pageSize: recordstore.PageSize(pageSize),
		log:      log.With("module", "submissions"),
		now:      time.Now,
	}
}

// Submit normalizes the identifying fields, checks the payload is an image
// and stores it. Validation failures match common.ErrValidation.
func (s *Service) Submit(ctx context.Context, u Upload) (models.Receipt, error) {
	email := textx.NormalizeEmail(u.Email)
	folder := textx.Normalize(u.FolderNumber)

	switch {
	case len(u.Photo) == 0:
		return models.Receipt{}, fmt.Errorf("%w: no file uploaded", common.ErrValidation)
	case email == "" || folder == "":
		return models.Receipt{}, fmt.Errorf("%w: email and folder number are required", common.ErrValidation)
	case !textx.LooksLikeEmail(email):
		return models.Receipt{}, fmt.Errorf("%w: %q is not an email address", common.ErrValidation, email)
	}

	contentType := http.DetectContentType(u.Photo)
	if !strings.HasPrefix(contentType, "image/") {
		return models.Receipt{}, fmt.Errorf("%w: file is not an image (%s)", common.ErrValidation, contentType)
	}

	name := textx.SafeFileComponent(u.FileName)
	if strings.Trim(name, "_.") == "" {
		name = s.fileName(email, folder)
	}

	r, err := s.coll.Create(ctx, models.NewSubmission{
		Email:        email,
		FolderNumber: folder,
		FileName:     name,
		ContentType:  contentType,
		Photo:        u.Photo,
	})
	if err != nil {
		s.log.Error(ctx, "store submission", "email", email, "folder_number", folder, "error", err)
		return models.Receipt{}, err
	}

	s.log.Info(ctx, "submission stored", "id", r.ID, "email", email, "folder_number", folder, "size", len(u.Photo))
	return r, nil
}

func (s *Service) fileName(email, folder string) string {
	millis := strconv.FormatInt(s.now().UnixMilli(), 10)
	return textx.SafeFileComponent(email) + "-" + textx.SafeFileComponent(folder) + "-" + millis + ".jpg"
}

// List returns the first page of submissions, newest first.
func (s *Service) List(ctx context.Context) ([]models.Submission, error) {
	list, err := s.coll.List(ctx, s.pageSize)
	if err != nil {
		s.log.Error(ctx, "list submissions", "error", err)
		return nil, err
	}
	return list, nil
}

// Delete removes a submission. The store's error is returned unchanged so a
// missing id still matches common.ErrorNotFound.
func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty id", common.ErrValidation)
	}
	if err := s.coll.Delete(ctx, id); err != nil {
		s.log.Warn(ctx, "delete submission", "id", id, "error", err)
		return err
	}
	s.log.Info(ctx, "submission deleted", "id", id)
	return nil
}

// Photo opens the stored image of a submission.
func (s *Service) Photo(ctx context.Context, id string) (io.ReadCloser, string, error) {
	return s.coll.Photo(ctx, id)
}

// Ready reports whether the backing store answers.
func (s *Service) Ready(ctx context.Context) error {
	return s.coll.Ping(ctx)
}
