package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	middleware "github.com/markdave123-py/virtual-teacher/internal/api/middlewares"
	"github.com/markdave123-py/virtual-teacher/internal/core/ingestion_engine"
	"github.com/markdave123-py/virtual-teacher/internal/logger"
	"github.com/markdave123-py/virtual-teacher/internal/services"
)

const (
	maxPDFUpload      = 32 << 20
	maxDocumentUpload = 52 << 20
)

type DocumentHandler struct {
	log      *logger.Logger
	docs     *services.DocumentService
	ingestor ingestion_engine.Ingestor
}

// NewDocumentHandler wires document routes. ingestor may be nil when object
// storage is not configured; UploadDocument then answers 503.
func NewDocumentHandler(log *logger.Logger, docs *services.DocumentService, ing ingestion_engine.Ingestor) *DocumentHandler {
	return &DocumentHandler{log: log.With("component", "DocumentHandler"), docs: docs, ingestor: ing}
}

// UploadPDF extracts the text of a posted PDF (form field pdf_file) and
// returns it as {"text": ...}. Nothing is stored.
func (h *DocumentHandler) UploadPDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPDFUpload)
	file, header, err := r.FormFile("pdf_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No PDF file found in the request.")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "Invalid file type. Please upload a PDF.")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read the uploaded file.")
		return
	}

	text, err := h.docs.ExtractPDFText(r.Context(), data)
	if errors.Is(err, ingestion_engine.ErrEmptyText) || (err == nil && text == "") {
		writeError(w, http.StatusBadRequest, "Could not extract any text from the PDF.")
		return
	}
	if err != nil {
		h.log.Error("pdf extraction failed", "file", header.Filename, "err", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred while processing the PDF: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// UploadDocument stores the file, records it and schedules ingestion.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if h.ingestor == nil {
		writeError(w, http.StatusServiceUnavailable, "document storage is not configured")
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploadctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	doc, err := h.docs.UploadAndCreate(uploadctx, userID, filepath.Base(header.Filename), contentType, file)
	if err != nil {
		h.log.Error("document upload failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	if err := h.ingestor.Enqueue(uploadctx, doc.ID); err != nil {
		h.log.Error("enqueue ingestion failed", "doc_id", doc.ID, "err", err)
		writeError(w, http.StatusServiceUnavailable, "document stored but could not be queued for processing")
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	documents, err := h.docs.ListByUser(r.Context(), userID)
	if err != nil {
		h.log.Error("list documents failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not list documents")
		return
	}
	writeJSON(w, http.StatusOK, documents)
}
