package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lox/spend-advisor/internal/types"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	sessionHeader = "X-Session-ID"
	sessionField  = "session_id"
	uploadField   = "csv"

	// multipart parts beyond this are spooled to disk by net/http
	formMemory = 8 << 20
)

type analyzeResponse struct {
	Actions         *types.StructuredInsights `json:"actions"`
	TopTransactions []types.TransactionRecord `json:"top_transactions"`
	CategoryTotals  []types.CategoryTotal     `json:"category_totals"`
	SessionID       string                    `json:"session_id"`
	Degraded        bool                      `json:"degraded"`
	Warnings        []string                  `json:"warnings"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "spend-advisor is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAnalyzeSpending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	if err := r.ParseMultipartForm(formMemory); err != nil {
		s.writeError(w, r, formError(err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		s.writeError(w, r, invalidInput("no file provided in field "+uploadField))
		return
	}
	defer file.Close()

	path, cleanup, err := s.saveUpload(file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer cleanup()

	sessionID := sessionIDFrom(r)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	w.Header().Set(sessionHeader, sessionID)

	s.logger.Info("Analyzing export",
		"session", sessionID,
		"filename", header.Filename,
		"size", header.Size,
		"profile", s.extractor.Profile().Name())

	start := time.Now()
	extraction := s.extractor.Extract(ctx, path)
	resp := analyzeResponse{
		TopTransactions: extraction.Top(s.config.Top),
		CategoryTotals:  s.extractor.Summarize(extraction.Transactions),
		SessionID:       sessionID,
		Degraded:        extraction.Degraded(),
		Warnings:        []string{},
	}
	if extraction.Err != nil {
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("could not read transactions: %v", extraction.Err))
	}
	if extraction.Skipped > 0 {
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("skipped %d rows without a valid date", extraction.Skipped))
	}

	var primeErr error
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		actions, err := s.insights.AnalyzeSpending(gCtx, path)
		if err != nil {
			return err
		}
		resp.Actions = actions
		return nil
	})
	g.Go(func() error {
		// a failed prime only costs the follow-up judgments, not this response
		primeErr = s.insights.PrimeConversationContext(gCtx, sessionID, path)
		return nil
	})
	if err := g.Wait(); err != nil {
		s.writeError(w, r, err)
		return
	}

	if primeErr != nil {
		s.logger.Warn("Failed to prime conversation", "session", sessionID, "error", primeErr)
		_, kind := errorStatus(primeErr)
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("conversation context unavailable (%s): follow-up judgments will fail until the export is re-uploaded", kind))
	}

	s.logger.Info("Analyzed export",
		"session", sessionID,
		"transactions", extraction.Total,
		"skipped", extraction.Skipped,
		"degraded", resp.Degraded,
		"duration", time.Since(start))

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNewTransaction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	tx, sessionID, err := parseNewTransaction(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sessionID != "" {
		w.Header().Set(sessionHeader, sessionID)
	}

	judgment, err := s.insights.ClassifyTransaction(r.Context(), sessionID, tx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, judgment)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		s.writeError(w, r, invalidInput("session id is required"))
		return
	}

	if err := s.insights.ResetSession(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type newTransactionRequest struct {
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      json.RawMessage `json:"amount"`
	SessionID   string          `json:"session_id"`
}

// parseNewTransaction accepts a JSON body or form fields
func parseNewTransaction(r *http.Request) (types.NewTransaction, string, error) {
	var (
		req       newTransactionRequest
		amountRaw string
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return types.NewTransaction{}, "", invalidInput(fmt.Sprintf("invalid JSON body: %v", err))
		}
		amountRaw = strings.Trim(string(req.Amount), `"`)
	} else {
		if err := r.ParseMultipartForm(formMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return types.NewTransaction{}, "", formError(err)
		}
		if err := r.ParseForm(); err != nil {
			return types.NewTransaction{}, "", formError(err)
		}
		req.Description = r.FormValue("description")
		req.Category = r.FormValue("category")
		req.SessionID = r.FormValue(sessionField)
		amountRaw = r.FormValue("amount")
	}

	sessionID := strings.TrimSpace(r.Header.Get(sessionHeader))
	if sessionID == "" {
		sessionID = strings.TrimSpace(req.SessionID)
	}

	var invalids []string
	amount, err := parseAmount(amountRaw)
	if err != nil {
		invalids = append(invalids, err.Error())
	}
	tx := types.NewTransaction{
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		Amount:      amount,
	}
	if err := tx.Validate(); err != nil {
		invalids = append(invalids, err.Error())
	}
	if len(invalids) > 0 {
		return types.NewTransaction{}, sessionID, invalidInput(strings.Join(invalids, "; "))
	}

	return tx, sessionID, nil
}

func parseAmount(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return 0, fmt.Errorf("amount is required")
	}
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(raw)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("amount=%q is not a number", raw)
	}
	return d.InexactFloat64(), nil
}

func sessionIDFrom(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(sessionHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(r.FormValue(sessionField))
}

func formError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return invalidInput(fmt.Sprintf("upload exceeds %d bytes", maxErr.Limit))
	}
	return invalidInput(fmt.Sprintf("invalid form: %v", err))
}
