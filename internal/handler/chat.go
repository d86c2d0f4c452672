package handler

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"voucherhub-api/internal/ingest"
	"voucherhub-api/internal/service"
	"voucherhub-api/internal/source"
	"voucherhub-api/pkg/apierror"
	"voucherhub-api/pkg/response"
)

// maxImportSize caps uploaded spreadsheet size (10 MiB).
const maxImportSize = 10 << 20

// ChatHandler is the chat transport boundary: it authorizes requesters
// against the allow-list and forwards their messages to the negotiator.
// The core never sees unauthorized traffic.
type ChatHandler struct {
	negotiator *service.Negotiator
	importer   *ingest.BatchImporter
	allowed    map[string]bool
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(negotiator *service.Negotiator, importer *ingest.BatchImporter, allowedRequesters []string) *ChatHandler {
	allowed := make(map[string]bool, len(allowedRequesters))
	for _, id := range allowedRequesters {
		if id = strings.TrimSpace(id); id != "" {
			allowed[id] = true
		}
	}
	return &ChatHandler{
		negotiator: negotiator,
		importer:   importer,
		allowed:    allowed,
	}
}

// messageRequest is one inbound chat message.
type messageRequest struct {
	RequesterID string `json:"requester_id"`
	Text        string `json:"text"`
}

// chatImage is a barcode image reference in a chat reply.
type chatImage struct {
	Caption string `json:"caption"`
	URL     string `json:"url"`
}

// messageResponse is the negotiator's reply to one message.
type messageResponse struct {
	Messages []string    `json:"messages"`
	Images   []chatImage `json:"images,omitempty"`
}

// HandleMessage handles POST /api/v1/chat/message
func (h *ChatHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON body"))
		return
	}
	if req.RequesterID == "" {
		response.Error(w, apierror.BadRequest("requester_id is required"))
		return
	}
	if !h.authorize(w, req.RequesterID) {
		return
	}

	reply, err := h.negotiator.Handle(r.Context(), req.RequesterID, req.Text)
	if err != nil {
		log.Printf("[ChatHandler] Handle failed for %s: %v", req.RequesterID, err)
		response.Error(w, apierror.InternalError("failed to process message"))
		return
	}

	resp := messageResponse{Messages: reply.Messages}
	for _, img := range reply.Images {
		resp.Images = append(resp.Images, chatImage{
			Caption: img.Caption,
			URL:     "/barcodes/" + filepath.Base(img.Path),
		})
	}
	response.OK(w, resp)
}

// HandleImport handles POST /api/v1/chat/import, the chat channel's
// bulk-import path: a multipart spreadsheet upload.
func (h *ChatHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		response.Error(w, apierror.BadRequest("invalid multipart form"))
		return
	}

	requesterID := r.FormValue("requester_id")
	if requesterID == "" {
		response.Error(w, apierror.BadRequest("requester_id is required"))
		return
	}
	if !h.authorize(w, requesterID) {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.Error(w, apierror.BadRequest("file is required"))
		return
	}
	defer file.Close()

	name := strings.ToLower(header.Filename)
	if !strings.HasSuffix(name, ".xlsx") && !strings.HasSuffix(name, ".xls") {
		response.Error(w, apierror.BadRequest("please upload an Excel file (.xlsx); other file types are not supported"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxImportSize))
	if err != nil {
		response.Error(w, apierror.BadRequest("failed to read upload"))
		return
	}

	report, err := h.importer.Import(r.Context(), source.NewExcelSource(data))
	if err != nil {
		log.Printf("[ChatHandler] Import by %s failed: %v", requesterID, err)
		response.Error(w, apierror.BadRequest("import failed: "+err.Error()))
		return
	}

	log.Printf("[ChatHandler] Import by %s: imported=%d skipped_used=%d skipped_error=%d",
		requesterID, report.Imported, report.SkippedUsed, report.SkippedError)
	response.OK(w, report)
}

// authorize enforces the requester allow-list at the channel boundary. An
// unauthorized requester gets a 403 and never reaches the core.
func (h *ChatHandler) authorize(w http.ResponseWriter, requesterID string) bool {
	if h.allowed[requesterID] {
		return true
	}
	log.Printf("[ChatHandler] Blocked unauthorized requester_id=%s", requesterID)
	response.Error(w, apierror.Forbidden("requester is not on the allow-list"))
	return false
}
