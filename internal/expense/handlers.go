package expense

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/expense-tracker/internal/scanning"
)

// maxUploadSize allows high-resolution phone photos
const maxUploadSize = int64(50 << 20) // 50MB

const noErrors = "No errors"

// processReceiptRequest is the JSON body of POST /api/process-receipt
type processReceiptRequest struct {
	Image  string `json:"image"`
	UserID string `json:"userId"`
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes {"error": message}
func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleProcessReceipt runs the receipt pipeline for a JSON or multipart upload
func (s *Server) handleProcessReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	var req ProcessRequest
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, err = readMultipartUpload(r)
	} else {
		req, err = readJSONUpload(r)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "File is too large. Maximum size is 50MB. Please compress or resize your image.", http.StatusRequestEntityTooLarge)
			return
		}
		slog.Warn("Error reading receipt upload", "error", err)
		writeError(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	out := s.service.ProcessReceipt(r.Context(), req)

	switch out.State {
	case StateCommitted:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"expense":       out.Expense,
			"extractedData": out.Candidate,
			"message":       out.Message,
			"debug": map[string]any{
				"modelsAttempted": len(out.Extraction.Attempts),
				"lastError":       lastError(out),
				"expenseId":       out.Expense.ID,
				"userId":          out.Expense.UserID,
				"model":           out.Extraction.Backend,
				"totalSource":     out.Reconciliation.Source,
				"divergent":       out.Reconciliation.Divergent,
				"needsReview":     out.Expense.NeedsReview,
				"attempts":        out.Extraction.Attempts,
				"trail":           out.Trail,
			},
		})
	case StateCommittedFallback:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"expense":       out.Expense,
			"extractedData": out.Expense.ExtractedData,
			"message":       out.Message,
			"debug": map[string]any{
				"error":     "AI processing failed",
				"fallback":  true,
				"expenseId": out.Expense.ID,
				"userId":    out.Expense.UserID,
				"trail":     out.Trail,
			},
		})
	default:
		writeJSON(w, http.StatusInternalServerError, rejectedResponse(out))
	}
}

// rejectedResponse reports why neither the primary nor the last-resort write succeeded
func rejectedResponse(out *Outcome) map[string]any {
	prefix := "Complete failure"
	if out.FallbackPanicked {
		prefix = "Complete system failure"
	}

	debug := map[string]any{
		"modelsAttempted": len(out.Extraction.Attempts),
		"lastError":       lastError(out),
		"candidate":       out.Candidate,
		"trail":           out.Trail,
	}
	if diag := out.CommitErr; diag != nil {
		debug["code"] = diag.Code
		debug["message"] = diag.Message
		debug["details"] = diag.Detail
		debug["hint"] = diag.Hint
	} else if out.FallbackErr != nil {
		diag := diagnose("insert_expense", out.FallbackErr)
		debug["code"] = diag.Code
		debug["message"] = diag.Message
		debug["details"] = diag.Detail
		debug["hint"] = diag.Hint
	}

	return map[string]any{
		"error": fmt.Sprintf("%s: %v", prefix, out.FallbackErr),
		"debug": debug,
	}
}

func lastError(out *Outcome) string {
	if out.Cause != nil {
		return out.Cause.Error()
	}
	if last := out.Extraction.LastError(); last != "" {
		return last
	}
	return noErrors
}

func readJSONUpload(r *http.Request) (ProcessRequest, error) {
	var body processReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return ProcessRequest{}, fmt.Errorf("decoding request: %w", err)
	}
	if strings.TrimSpace(body.Image) == "" || strings.TrimSpace(body.UserID) == "" {
		return ProcessRequest{}, fmt.Errorf("image and userId are required")
	}
	return ProcessRequest{UserID: strings.TrimSpace(body.UserID), Payload: body.Image}, nil
}

func readMultipartUpload(r *http.Request) (ProcessRequest, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return ProcessRequest{}, fmt.Errorf("parsing multipart form: %w", err)
	}

	userID := strings.TrimSpace(r.FormValue("user_id"))
	if userID == "" {
		userID = strings.TrimSpace(r.FormValue("userId"))
	}
	if userID == "" {
		return ProcessRequest{}, fmt.Errorf("user_id is required")
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		return ProcessRequest{}, fmt.Errorf("getting file from form: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return ProcessRequest{}, fmt.Errorf("reading file data: %w", err)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFromExt(header.Filename)
	}

	img, err := scanning.NewImage(data, contentType)
	if err != nil {
		return ProcessRequest{}, fmt.Errorf("reading file data: %w", err)
	}
	return ProcessRequest{UserID: userID, Image: &img}, nil
}

// contentTypeFromExt guesses a MIME type for phone uploads that omit one
func contentTypeFromExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return ""
	}
}

// handleListExpenses returns a user's expenses
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	expenses, err := s.service.ListExpenses(r.Context(), userID)
	if err != nil {
		slog.Error("Error listing expenses", "user_id", userID, "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

// handleGetExpense returns a single expense
func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	expense, err := s.service.GetExpense(r.Context(), id)
	if err != nil {
		writeStoreError(w, "getting", id, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// handleUpdateExpense applies a user's edits
func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var update ExpenseUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	expense, err := s.service.UpdateExpense(r.Context(), id, update)
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidDate):
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		writeStoreError(w, "updating", id, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// handleDeleteExpense removes an expense
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.service.DeleteExpense(r.Context(), id); err != nil {
		writeStoreError(w, "deleting", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListCategories returns a user's categories
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	categories, err := s.service.ListCategories(r.Context(), userID)
	if err != nil {
		slog.Error("Error listing categories", "user_id", userID, "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func writeStoreError(w http.ResponseWriter, action, id string, err error) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, "Expense not found", http.StatusNotFound)
		return
	}
	slog.Error("Error "+action+" expense", "id", id, "error", err)
	writeError(w, "Internal server error", http.StatusInternalServerError)
}
