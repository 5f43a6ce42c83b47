package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/dmitrijs2005/photodrop/internal/models"
	"github.com/dmitrijs2005/photodrop/internal/textx"
)

// MsgNetworkFailure is the upload error text when no response arrived.
const MsgNetworkFailure = "An unknown error occurred. Please check your connection and try again."

const msgUnexpectedResponse = "unexpected response from server"

// FileName builds the outbound name of an upload from the submission fields
// and the capture time.
func FileName(email, folderNumber string, at time.Time) string {
	return textx.SafeFileComponent(email) + "-" + textx.SafeFileComponent(folderNumber) + "-" + strconv.FormatInt(at.UnixMilli(), 10) + ".jpg"
}

// Submit uploads one JPEG with its email and folder number in a single
// multipart request. Any failure comes back as *common.UploadError.
func (c *Client) Submit(ctx context.Context, image []byte, email, folderNumber string) (models.Receipt, error) {
	name := FileName(email, folderNumber, c.now())

	body, contentType, err := multipartBody(image, name, email, folderNumber)
	if err != nil {
		return models.Receipt{}, &common.UploadError{Message: "could not build upload request", Err: err}
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload", body)
	if err != nil {
		return models.Receipt{}, &common.UploadError{Message: MsgNetworkFailure, Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error(ctx, "upload failed", "email", email, "folder_number", folderNumber, "error", err)
		return models.Receipt{}, &common.UploadError{Message: MsgNetworkFailure, Err: fmt.Errorf("%w: %w", common.ErrUnavailable, err)}
	}
	defer drain(resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.Receipt{}, &common.UploadError{Status: resp.StatusCode, Message: MsgNetworkFailure, Err: err}
	}

	if resp.StatusCode/100 != 2 {
		msg := serverMessage(raw)
		if msg == "" {
			msg = fmt.Sprintf("Upload failed with status: %d", resp.StatusCode)
		}
		c.log.Error(ctx, "upload rejected", "status", resp.StatusCode, "email", email, "folder_number", folderNumber, "message", msg)
		return models.Receipt{}, &common.UploadError{Status: resp.StatusCode, Message: msg}
	}

	var out models.UploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		c.log.Error(ctx, "upload response unreadable", "status", resp.StatusCode, "error", err)
		return models.Receipt{}, &common.UploadError{Status: resp.StatusCode, Message: msgUnexpectedResponse, Err: err}
	}
	if strings.TrimSpace(out.ID) == "" {
		c.log.Error(ctx, "upload response has no record id", "status", resp.StatusCode)
		return models.Receipt{}, &common.UploadError{Status: resp.StatusCode, Message: msgUnexpectedResponse}
	}

	if stored := strings.TrimSpace(out.Name); stored != "" {
		name = stored
	}
	c.log.Info(ctx, "upload accepted", "id", out.ID, "name", name, "email", email, "folder_number", folderNumber)
	return models.Receipt{ID: out.ID, Name: name}, nil
}

func multipartBody(image []byte, name, email, folderNumber string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, name))
	h.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField(common.FieldEmail, email); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField(common.FieldFolderNumber, folderNumber); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
