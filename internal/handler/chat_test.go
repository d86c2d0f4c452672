package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voucherhub-api/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChatTestHandler() *ChatHandler {
	// The help path never touches storage, so a negotiator without a backing
	// repository is enough for boundary tests.
	negotiator := service.NewNegotiator(nil, nil, 0)
	return NewChatHandler(negotiator, nil, []string{"alice", "bob"})
}

func postJSON(t *testing.T, h http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/message", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandleMessageRejectsUnknownRequester(t *testing.T) {
	h := newChatTestHandler()

	rec := postJSON(t, h.HandleMessage, map[string]string{
		"requester_id": "mallory",
		"text":         "?",
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "allow-list")
}

func TestHandleMessageRequiresRequesterID(t *testing.T) {
	h := newChatTestHandler()

	rec := postJSON(t, h.HandleMessage, map[string]string{"text": "?"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMessageHelp(t *testing.T) {
	h := newChatTestHandler()

	rec := postJSON(t, h.HandleMessage, map[string]string{
		"requester_id": "alice",
		"text":         "?",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Messages []string `json:"messages"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotEmpty(t, resp.Data.Messages)
	assert.Contains(t, resp.Data.Messages[0], "Voucher commands")
}

func TestHandleImportRejectsNonExcelUpload(t *testing.T) {
	h := newChatTestHandler()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("requester_id", "alice"))
	part, err := mw.CreateFormFile("file", "vouchers.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("link,amount\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.HandleImport(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, strings.ToLower(rec.Body.String()), "excel")
}

func TestHandleImportRejectsUnknownRequester(t *testing.T) {
	h := newChatTestHandler()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("requester_id", "mallory"))
	part, err := mw.CreateFormFile("file", "vouchers.xlsx")
	require.NoError(t, err)
	_, err = part.Write([]byte("PK"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.HandleImport(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
