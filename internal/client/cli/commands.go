package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/client/capture"
	"github.com/dmitrijs2005/photodrop/internal/client/journal"
	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/dmitrijs2005/photodrop/internal/models"
	"github.com/dmitrijs2005/photodrop/internal/shared"
	"github.com/dmitrijs2005/photodrop/internal/textx"
)

const (
	msgMissingFields  = "Please fill out all fields and take a photo."
	msgBadPasscode    = "Incorrect password. Please try again."
	msgConfirmDelete  = "Are you sure you want to permanently delete this entry?"
	defaultHistoryLen = 20
)

// getSimpleText and getPasscode are indirections used to facilitate testing.
var (
	getSimpleText = GetSimpleText
	getPasscode   = GetPasscode
	confirm       = Confirm
)

// Submit runs the kiosk flow: collect the customer's email and folder
// number, take one photo and upload the three together. args may carry the
// email and folder number to skip the prompts.
func (a *App) Submit(ctx context.Context, args []string) error {
	email, folder, err := a.submissionFields(args)
	if err != nil {
		return err
	}

	var img capture.Image
	err = capture.Run(ctx, a.device, a.encoder, a.log, func(ctx context.Context, s *capture.Session) error {
		src := s.Source()
		if src.Fallback {
			printlnFn(fmt.Sprintf("Rear camera unavailable, using %s.", src.Label))
		}
		if _, err := getSimpleText(a.reader, "Camera ready. Press Enter to take the photo", a.out); err != nil {
			return err
		}
		var gerr error
		img, gerr = s.Grab(ctx)
		return gerr
	})
	if err != nil {
		if errors.Is(err, common.ErrDeviceUnavailable) {
			printlnFn("Could not access camera. Please ensure it is connected and not in use.")
		}
		return err
	}

	receipt, err := a.api.Submit(ctx, img.Data, email, folder)
	if err != nil {
		var uerr *common.UploadError
		if errors.As(err, &uerr) {
			return errors.New(uerr.Message)
		}
		return err
	}

	printlnFn("Thank You! Your information has been received.")
	printlnFn(fmt.Sprintf("A digital copy of your photo will be sent to %s soon.", email))

	a.record(ctx, receipt, img, email, folder)
	return nil
}

func (a *App) submissionFields(args []string) (string, string, error) {
	var email, folder string
	if len(args) > 0 {
		email = args[0]
	}
	if len(args) > 1 {
		folder = args[1]
	}

	var err error
	if email == "" {
		if email, err = getSimpleText(a.reader, "Customer email", a.out); err != nil {
			return "", "", err
		}
	}
	if folder == "" {
		if folder, err = getSimpleText(a.reader, "Folder number (on your print)", a.out); err != nil {
			return "", "", err
		}
	}

	email = textx.NormalizeEmail(email)
	folder = textx.Normalize(folder)
	if email == "" || folder == "" {
		return "", "", fmt.Errorf("%w: %s", common.ErrValidation, msgMissingFields)
	}
	if !textx.LooksLikeEmail(email) {
		return "", "", fmt.Errorf("%w: %q is not an email address", common.ErrValidation, email)
	}
	return email, folder, nil
}

// record journals an accepted submission. The upload already succeeded, so
// a journal failure is logged and not returned.
func (a *App) record(ctx context.Context, r models.Receipt, img capture.Image, email, folder string) {
	if a.journal == nil {
		return
	}
	taken := img.TakenAt
	if taken.IsZero() {
		taken = time.Now()
	}
	err := a.journal.Add(ctx, journal.Entry{
		ID:           r.ID,
		Name:         r.Name,
		Email:        email,
		FolderNumber: folder,
		Device:       img.Source.Device,
		Width:        img.Width,
		Height:       img.Height,
		SubmittedAt:  taken,
	})
	if err != nil {
		a.log.Warn(ctx, "journal write failed", "id", r.ID, "error", err)
	}
}

// History prints the kiosk journal, newest first. args[0] may set the count.
func (a *App) History(ctx context.Context, args []string) error {
	if a.journal == nil {
		printlnFn("Journal is disabled.")
		return nil
	}
	limit := defaultHistoryLen
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: history count must be a positive number", common.ErrValidation)
		}
		limit = n
	}
	entries, err := a.journal.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		printlnFn("No submissions recorded on this kiosk yet.")
		return nil
	}
	fmt.Fprint(a.out, renderJournal(entries, a.tty))
	if a.tty {
		fmt.Fprintln(a.out)
	}
	return nil
}

// Login asks for the operator passcode. A successful login loads the
// submission listing through the session hook.
func (a *App) Login(ctx context.Context) error {
	if a.isLoggedIn() {
		printlnFn("Already logged in.")
		return nil
	}
	pass, err := getPasscode(a.out)
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(pass)

	if err := a.session.Login(ctx, a.api, string(pass)); err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			return errors.New(msgBadPasscode)
		}
		return err
	}
	printlnFn(fmt.Sprintf("Logged in. %d submission(s).", a.cache.Len()))
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	a.session.Clear()
	printlnFn("Logged out.")
	return nil
}

// List prints the cached submissions; "refresh" reloads them first.
func (a *App) List(ctx context.Context, args []string) error {
	if !a.isLoggedIn() {
		return errNotLoggedIn
	}
	if len(args) > 0 && args[0] == "refresh" {
		if err := a.cache.Load(ctx); err != nil {
			return a.authFailed(err)
		}
	}
	entries := a.cache.Entries()
	if len(entries) == 0 {
		printlnFn("No submissions.")
		return nil
	}
	fmt.Fprint(a.out, renderSubmissions(entries, a.cache.Removing, a.tty))
	if a.tty {
		fmt.Fprintln(a.out)
	}
	return nil
}

// Tree prints the cached submissions grouped by folder number.
func (a *App) Tree(ctx context.Context) error {
	if !a.isLoggedIn() {
		return errNotLoggedIn
	}
	fmt.Fprint(a.out, renderTree(a.cache.Entries(), "submissions"))
	return nil
}

// Delete removes one submission after confirmation. The entry leaves the
// listing at once and comes back if the server refuses.
func (a *App) Delete(ctx context.Context, args []string) error {
	s, err := a.pick(args, "Enter submission id to delete")
	if err != nil {
		return err
	}
	ok, err := confirm(a.reader, fmt.Sprintf("%s (%s, folder %s)", msgConfirmDelete, s.Email, s.FolderNumber), a.out)
	if err != nil || !ok {
		return err
	}
	if err := a.cache.Remove(ctx, s.ID); err != nil {
		return a.authFailed(fmt.Errorf("could not delete submission: %w", err))
	}
	printlnFn("Deleted.")
	return nil
}

// Draft prints a notification email body for one submission.
func (a *App) Draft(ctx context.Context, args []string) error {
	s, err := a.pick(args, "Enter submission id")
	if err != nil {
		return err
	}
	if a.drafts.Generating(s.ID) {
		printlnFn("A draft for this entry is already being generated.")
		return nil
	}
	printlnFn("Generating...")
	text, err := a.drafts.Generate(ctx, s)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("To: %s\n\n%s", s.Email, text))
	return nil
}

// Photo saves a submission's image; args[1] may name the output file.
func (a *App) Photo(ctx context.Context, args []string) error {
	s, err := a.pick(args, "Enter submission id")
	if err != nil {
		return err
	}
	path := textx.SafeFileComponent(s.ID) + ".jpg"
	if len(args) > 1 {
		path = args[1]
	}
	data, _, err := a.api.Photo(ctx, s.ID)
	if err != nil {
		return a.authFailed(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save photo: %w", err)
	}
	printlnFn(fmt.Sprintf("Saved %s (%d bytes).", path, len(data)))
	return nil
}

// pick resolves a submission id from args or a prompt against the cache.
func (a *App) pick(args []string, prompt string) (models.Submission, error) {
	if !a.isLoggedIn() {
		return models.Submission{}, errNotLoggedIn
	}
	var id string
	if len(args) > 0 {
		id = args[0]
	} else {
		var err error
		if id, err = getSimpleText(a.reader, prompt, a.out); err != nil {
			return models.Submission{}, err
		}
	}
	s, ok := a.cache.Get(id)
	if !ok {
		if n, err := strconv.Atoi(id); err == nil && n >= 1 && n <= a.cache.Len() {
			return a.cache.Entries()[n-1], nil
		}
		return models.Submission{}, fmt.Errorf("%w: no submission %q", common.ErrorNotFound, id)
	}
	return s, nil
}
