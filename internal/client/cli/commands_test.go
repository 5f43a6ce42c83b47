package cli

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/client/capture/imagedev"
	"github.com/dmitrijs2005/photodrop/internal/client/encoder"
	"github.com/dmitrijs2005/photodrop/internal/client/journal"
	"github.com/dmitrijs2005/photodrop/internal/client/session"
	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/dmitrijs2005/photodrop/internal/logging"
	"github.com/dmitrijs2005/photodrop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type submitCall struct {
	image         []byte
	email, folder string
}

type fakeBackend struct {
	mu sync.Mutex

	pingErr   error
	token     string
	loginErr  error
	list      []models.Submission
	listErr   error
	deleteErr error
	deleted   []string
	photo     []byte
	photoErr  error
	receipt   models.Receipt
	submitErr error
	submitted []submitCall
}

func (f *fakeBackend) Ping(context.Context) error { return f.pingErr }

func (f *fakeBackend) Login(_ context.Context, passcode string) (string, error) {
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return f.token, nil
}

func (f *fakeBackend) List(context.Context) ([]models.Submission, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Submission(nil), f.list...), nil
}

func (f *fakeBackend) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeBackend) Photo(context.Context, string) ([]byte, string, error) {
	return f.photo, "image/jpeg", f.photoErr
}

func (f *fakeBackend) Submit(_ context.Context, img []byte, email, folder string) (models.Receipt, error) {
	f.submitted = append(f.submitted, submitCall{image: img, email: email, folder: folder})
	if f.submitErr != nil {
		return models.Receipt{}, f.submitErr
	}
	return f.receipt, nil
}

type fakeDrafter struct {
	busy bool
	text string
	err  error
	got  []models.Submission
}

func (d *fakeDrafter) Generate(_ context.Context, s models.Submission) (string, error) {
	d.got = append(d.got, s)
	return d.text, d.err
}

func (d *fakeDrafter) Generating(string) bool { return d.busy }

var sampleList = []models.Submission{
	{ID: "s2", Email: "c@d.com", FolderNumber: "B2", CreatedAt: time.UnixMilli(1760000060000)},
	{ID: "s1", Email: "a@b.com", FolderNumber: "A101", CreatedAt: time.UnixMilli(1760000000000)},
}

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "still.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func newTestApp(t *testing.T, fb *fakeBackend, input string) (*App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	a := newApp(logging.Discard(), fb, session.New(logging.Discard()), strings.NewReader(input), &out)
	a.encoder = encoder.JPEG{Quality: encoder.Quality}
	a.drafts = &fakeDrafter{}
	return a, &out
}

func withJournal(t *testing.T, a *App) journal.Repository {
	t.Helper()
	db, err := journal.Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	a.journal = journal.NewSQLiteRepository(db)
	return a.journal
}

func loggedIn(t *testing.T, a *App) {
	t.Helper()
	stubPasscode(t, "pw")
	require.NoError(t, a.Login(context.Background()))
	require.True(t, a.isLoggedIn())
}

func stubPasscode(t *testing.T, pw string) {
	t.Helper()
	orig := getPasscode
	getPasscode = func(io.Writer) ([]byte, error) { return []byte(pw), nil }
	t.Cleanup(func() { getPasscode = orig })
}

func TestSubmit_UploadsAndJournals(t *testing.T) {
	lines := capturePrintln(t)
	fb := &fakeBackend{receipt: models.Receipt{ID: "f1", Name: "a_b.com-A101-1.jpg"}}
	a, _ := newTestApp(t, fb, "\n")
	a.device = imagedev.New(writePNG(t, 800, 600))
	j := withJournal(t, a)

	require.NoError(t, a.Submit(context.Background(), []string{" a@B.com ", "A101"}))

	require.Len(t, fb.submitted, 1)
	call := fb.submitted[0]
	assert.Equal(t, "a@b.com", call.email)
	assert.Equal(t, "A101", call.folder)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(call.image))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 800, cfg.Width)
	assert.Equal(t, 600, cfg.Height)

	entries, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "f1", entries[0].ID)
	assert.Equal(t, "a@b.com", entries[0].Email)
	assert.Equal(t, 800, entries[0].Width)
	assert.Equal(t, 600, entries[0].Height)

	assert.Contains(t, strings.Join(*lines, "\n"), "will be sent to a@b.com soon")
}

func TestSubmit_PromptsForFields(t *testing.T) {
	capturePrintln(t)
	fb := &fakeBackend{}
	a, out := newTestApp(t, fb, "j@d.com\nB2\n\n")
	a.device = imagedev.New(writePNG(t, 4, 3))

	require.NoError(t, a.Submit(context.Background(), nil))

	require.Len(t, fb.submitted, 1)
	assert.Equal(t, "j@d.com", fb.submitted[0].email)
	assert.Equal(t, "B2", fb.submitted[0].folder)
	assert.Contains(t, out.String(), "Customer email")
	assert.Contains(t, out.String(), "Press Enter")
}

func TestSubmit_InvalidFieldsNeverOpenCamera(t *testing.T) {
	capturePrintln(t)
	tests := []struct {
		name string
		args []string
	}{
		{"empty folder", []string{"a@b.com", "  "}},
		{"not an email", []string{"ab.com", "A1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBackend{}
			a, _ := newTestApp(t, fb, "\n")
			a.device = imagedev.New(filepath.Join(t.TempDir(), "missing.png"))

			err := a.Submit(context.Background(), tt.args)
			assert.ErrorIs(t, err, common.ErrValidation)
			assert.Empty(t, fb.submitted)
		})
	}
}

func TestSubmit_UploadErrorShowsServerMessage(t *testing.T) {
	capturePrintln(t)
	fb := &fakeBackend{submitErr: &common.UploadError{Status: 500, Message: "Folder not configured"}}
	a, _ := newTestApp(t, fb, "\n")
	a.device = imagedev.New(writePNG(t, 4, 4))
	j := withJournal(t, a)

	err := a.Submit(context.Background(), []string{"a@b.com", "A101"})
	require.Error(t, err)
	assert.Equal(t, "Folder not configured", err.Error())

	entries, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubmit_CameraUnavailable(t *testing.T) {
	lines := capturePrintln(t)
	fb := &fakeBackend{}
	a, _ := newTestApp(t, fb, "\n")
	a.device = imagedev.New(filepath.Join(t.TempDir(), "missing.png"))

	err := a.Submit(context.Background(), []string{"a@b.com", "A101"})
	assert.ErrorIs(t, err, common.ErrDeviceUnavailable)
	assert.Empty(t, fb.submitted)
	assert.Contains(t, strings.Join(*lines, "\n"), "Could not access camera")
}

func TestLogin_LoadsListing(t *testing.T) {
	capturePrintln(t)
	fb := &fakeBackend{token: "tok", list: sampleList}
	a, _ := newTestApp(t, fb, "")

	loggedIn(t, a)
	assert.Equal(t, 2, a.cache.Len())
	assert.Equal(t, "(operator)", a.getStatus())

	require.NoError(t, a.Logout(context.Background()))
	assert.False(t, a.isLoggedIn())
}

func TestLogin_WrongPasscode(t *testing.T) {
	capturePrintln(t)
	stubPasscode(t, "nope")
	fb := &fakeBackend{loginErr: common.ErrorUnauthorized}
	a, _ := newTestApp(t, fb, "")

	err := a.Login(context.Background())
	require.Error(t, err)
	assert.Equal(t, msgBadPasscode, err.Error())
	assert.False(t, a.isLoggedIn())
}

func TestOperatorCommands_RequireLogin(t *testing.T) {
	a, _ := newTestApp(t, &fakeBackend{}, "")
	ctx := context.Background()

	assert.ErrorIs(t, a.List(ctx, nil), errNotLoggedIn)
	assert.ErrorIs(t, a.Tree(ctx), errNotLoggedIn)
	assert.ErrorIs(t, a.Delete(ctx, []string{"s1"}), errNotLoggedIn)
	assert.ErrorIs(t, a.Draft(ctx, []string{"s1"}), errNotLoggedIn)
	assert.ErrorIs(t, a.Photo(ctx, []string{"s1"}), errNotLoggedIn)
}

func TestList_PlainOutput(t *testing.T) {
	capturePrintln(t)
	fb := &fakeBackend{token: "tok", list: sampleList}
	a, out := newTestApp(t, fb, "")
	loggedIn(t, a)
	out.Reset()

	require.NoError(t, a.List(context.Background(), nil))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "1\ts2\tc@d.com\tB2\t"))
	assert.True(t, strings.HasPrefix(lines[1], "2\ts1\ta@b.com\tA101\t"))
}

func TestList_RefreshAuthFailureSignsOut(t *testing.T) {
	capturePrintln(t)
	fb := &fakeBackend{token: "tok", list: sampleList}
	a, _ := newTestApp(t, fb, "")
	loggedIn(t, a)

	fb.listErr = common.ErrorUnauthorized
	err := a.List(context.Background(), []string{"refresh"})
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.False(t, a.isLoggedIn())
	assert.Equal(t, 2, a.cache.Len())
}

func TestDelete_Confirmed(t *testing.T) {
	capturePrintln(t)
	fb := &fakeBackend{token: "tok", list: sampleList}
	a, out := newTestApp(t, fb, "y\n")
	loggedIn(t, a)

	require.NoError(t, a.Delete(context.Background(), []string{"s1"}))
	assert.Equal(t, []string{"s1"}, fb.deleted)
	assert.Equal(t, -1, a.cache.Index("s1"))
	assert.Contains(t, out.String(), msgConfirmDelete)
}

func TestDelete_DeclinedDoesNothing(t *testing.T) {
	capturePrintln(t)
	fb := &fakeBackend{token: "tok", list: sampleList}
	a, _ := newTestApp(t, fb, "n\n")
	loggedIn(t, a)

	require.NoError(t, a.Delete(context.Background(), []string{"2"}))
	assert.Empty(t, fb.deleted)
	assert.Equal(t, 2, a.cache.Len())
}

func TestDelete_FailureRestoresEntry(t *testing.T) {
	capturePrintln(t)
	fb := &fakeBackend{token: "tok", list: sampleList, deleteErr: errors.New("boom")}
	a, _ := newTestApp(t, fb, "y\n")
	loggedIn(t, a)

	err := a.Delete(context.Background(), []string{"s2"})
	require.Error(t, err)
	assert.Equal(t, 0, a.cache.Index("s2"))
	assert.True(t, a.isLoggedIn())
}

func TestDelete_UnknownID(t *testing.T) {
	capturePrintln(t)
	fb := &fakeBackend{token: "tok", list: sampleList}
	a, _ := newTestApp(t, fb, "")
	loggedIn(t, a)

	assert.ErrorIs(t, a.Delete(context.Background(), []string{"zzz"}), common.ErrorNotFound)
	assert.ErrorIs(t, a.Delete(context.Background(), []string{"3"}), common.ErrorNotFound)
}

func TestDraft(t *testing.T) {
	lines := capturePrintln(t)
	fb := &fakeBackend{token: "tok", list: sampleList}
	a, _ := newTestApp(t, fb, "")
	d := &fakeDrafter{text: "Dear customer"}
	a.drafts = d
	loggedIn(t, a)

	require.NoError(t, a.Draft(context.Background(), []string{"s1"}))
	require.Len(t, d.got, 1)
	assert.Equal(t, "A101", d.got[0].FolderNumber)
	assert.Contains(t, strings.Join(*lines, "\n"), "To: a@b.com\n\nDear customer")

	d.busy = true
	require.NoError(t, a.Draft(context.Background(), []string{"s1"}))
	assert.Len(t, d.got, 1)
}

func TestPhoto_SavesFile(t *testing.T) {
	capturePrintln(t)
	fb := &fakeBackend{token: "tok", list: sampleList, photo: []byte{0xff, 0xd8, 0xff}}
	a, _ := newTestApp(t, fb, "")
	loggedIn(t, a)

	path := filepath.Join(t.TempDir(), "out.jpg")
	require.NoError(t, a.Photo(context.Background(), []string{"s1", path}))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fb.photo, got)
}

func TestHistory(t *testing.T) {
	lines := capturePrintln(t)
	a, out := newTestApp(t, &fakeBackend{}, "")
	ctx := context.Background()

	require.NoError(t, a.History(ctx, nil))
	assert.Contains(t, *lines, "Journal is disabled.")

	j := withJournal(t, a)
	require.NoError(t, a.History(ctx, nil))
	assert.Contains(t, *lines, "No submissions recorded on this kiosk yet.")

	require.NoError(t, j.Add(ctx, journal.Entry{ID: "f1", Name: "n.jpg", Email: "a@b.com", FolderNumber: "A101", Width: 800, Height: 600, SubmittedAt: time.Now()}))
	require.NoError(t, a.History(ctx, []string{"5"}))
	assert.Contains(t, out.String(), "a@b.com\tA101\tn.jpg\t800x600")

	assert.ErrorIs(t, a.History(ctx, []string{"x"}), common.ErrValidation)
}

func TestStatusWatcher(t *testing.T) {
	fb := &fakeBackend{}
	a, _ := newTestApp(t, fb, "")
	ctx := context.Background()

	a.checkOnline(ctx)
	assert.Equal(t, ModeOnline, a.Mode())
	assert.Equal(t, "(kiosk online)", a.getStatus())

	fb.pingErr = common.ErrUnavailable
	a.checkOnline(ctx)
	assert.Equal(t, ModeOffline, a.Mode())
}
