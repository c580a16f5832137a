package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/expense-tracker/internal/scanning"
)

// Confidence recorded with each way of arriving at the stored amount
const (
	confidenceExtracted   = 0.85
	confidenceRebuilt     = 0.6
	confidenceNominal     = 0.2
	confidenceSynthesized = 0.1
)

const (
	genericDescription     = "Receipt"
	manualEntryDescription = "Receipt uploaded - Please edit amount and details"

	// FallbackMessage is shown when only the last-resort record could be stored
	FallbackMessage = "Receipt uploaded! AI extraction failed - please edit the expense manually."
	synthesizedMsg  = "Receipt uploaded, but no amount could be read - please edit the expense manually."
)

var (
	// ErrInvalidAmount is returned for edits with a non-positive or non-finite amount
	ErrInvalidAmount = errors.New("amount must be a positive number")
	// ErrInvalidDate is returned for edits with an unreadable date
	ErrInvalidDate = errors.New("date must be YYYY-MM-DD")
)

// IDGenerator generates unique IDs for expenses
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// Extractor turns a receipt image into raw model text
type Extractor interface {
	Extract(ctx context.Context, img scanning.Image, prompt string) scanning.Extraction
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service runs the receipt pipeline and the expense operations behind the API
type Service struct {
	store       Store
	extractor   Extractor
	provisioner *Provisioner
	prompt      string
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(store Store, extractor Extractor) *Service {
	return NewServiceWithDeps(store, extractor, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(store Store, extractor Extractor, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		store:       store,
		extractor:   extractor,
		provisioner: NewProvisioner(store),
		prompt:      scanning.ReceiptPrompt,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// ProcessRequest is one receipt upload. Payload is a data URI or bare base64
// string; Image is used instead when the caller already has the bytes.
type ProcessRequest struct {
	UserID  string
	Payload string
	Image   *scanning.Image
}

// ProcessReceipt runs the pipeline and always returns an Outcome. The outcome's
// State is Committed, CommittedFallback or Rejected.
func (s *Service) ProcessReceipt(ctx context.Context, req ProcessRequest) (out *Outcome) {
	out = &Outcome{}
	out.advance(StateStart)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Receipt pipeline panicked", "user_id", req.UserID, "state", out.State, "panic", r)
			s.commitManualEntry(ctx, req.UserID, out, fmt.Errorf("pipeline panic: %v", r))
		}
	}()

	out.Provisioning = s.provisioner.Provision(ctx, req.UserID)
	out.advance(StateProvisioned)

	img, err := s.loadImage(req)
	if err != nil {
		slog.Error("Failed to decode receipt image", "user_id", req.UserID, "error", err)
		s.commitManualEntry(ctx, req.UserID, out, err)
		return out
	}

	out.Extraction = s.extractor.Extract(ctx, img, s.prompt)

	var candidate *scanning.Candidate
	if out.Extraction.OK {
		out.advance(StateModelSucceeded)
		var ok bool
		if candidate, ok = scanning.ParseCandidate(out.Extraction.Text); !ok {
			slog.Warn("Model response held no receipt JSON", "backend", out.Extraction.Backend, "response", truncate(out.Extraction.Text, 200))
		}
	} else {
		out.advance(StateModelsExhausted)
	}

	now := s.timeSource.Now()
	if candidate != nil {
		out.advance(StateParsedCandidate)
	} else {
		out.advance(StateNoCandidate)
		fallback := scanning.SynthesizeFallback(now)
		candidate = &fallback
		out.Synthesized = true
	}

	rec := scanning.Reconcile(*candidate)
	out.Reconciliation = &rec
	out.Candidate = &rec.Candidate
	out.advance(StateReconciled)

	expense := s.buildExpense(req.UserID, out, now)
	stored, err := s.store.InsertExpense(context.WithoutCancel(ctx), expense)
	if err != nil {
		out.CommitErr = diagnose("insert_expense", err)
		slog.Error("Failed to commit expense",
			"user_id", req.UserID,
			"code", out.CommitErr.Code,
			"message", out.CommitErr.Message,
			"detail", out.CommitErr.Detail,
			"hint", out.CommitErr.Hint,
			"models_attempted", len(out.Extraction.Attempts),
		)
		s.commitManualEntry(ctx, req.UserID, out, fmt.Errorf("committing expense: %w", err))
		return out
	}

	out.Expense = stored
	out.advance(StateCommitted)
	if out.Synthesized {
		out.Message = synthesizedMsg
	} else {
		out.Message = fmt.Sprintf("Successfully extracted: $%.2f from %s using %s",
			stored.Amount, displayStore(rec.Candidate.StoreName), out.Extraction.Backend)
	}

	slog.Info("Committed expense",
		"expense_id", stored.ID,
		"user_id", req.UserID,
		"amount", stored.Amount,
		"status", stored.ProcessingStatus,
		"total_source", rec.Source,
		"backend", out.Extraction.Backend,
	)
	return out
}

// loadImage decodes the request payload and normalizes it to PNG
func (s *Service) loadImage(req ProcessRequest) (scanning.Image, error) {
	var img scanning.Image
	if req.Image != nil {
		img = *req.Image
	} else {
		decoded, err := scanning.DecodeImage(req.Payload)
		if err != nil {
			return scanning.Image{}, fmt.Errorf("decoding image payload: %w", err)
		}
		img = decoded
	}

	prepared, err := scanning.PrepareImage(img)
	if err != nil {
		return scanning.Image{}, fmt.Errorf("preparing image: %w", err)
	}
	return prepared, nil
}

// buildExpense maps the reconciled candidate onto a new expense
func (s *Service) buildExpense(userID string, out *Outcome, now time.Time) *Expense {
	rec := out.Reconciliation
	c := rec.Candidate

	description := c.StoreName
	if description == "" {
		description = genericDescription
	}

	expense := &Expense{
		ID:               s.idGenerator.Generate(),
		UserID:           userID,
		Amount:           *c.Total,
		Description:      description,
		Merchant:         c.StoreName,
		Category:         scanning.NormalizeCategory(c.Category),
		Date:             scanning.ParseDate(c.Date, now),
		ExtractedData:    out.Candidate,
		ProcessingStatus: StatusCompleted,
		AIConfidence:     confidenceFor(rec.Source),
		NeedsReview:      rec.NeedsReview || rec.Divergent,
		ExtractionModel:  out.Extraction.Backend,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if out.Synthesized {
		expense.ProcessingStatus = StatusFailed
		expense.AIConfidence = ptr(confidenceSynthesized)
		expense.NeedsReview = true
	}
	return expense
}

// commitManualEntry writes the last-resort record. It never panics.
func (s *Service) commitManualEntry(ctx context.Context, userID string, out *Outcome, cause error) {
	out.Cause = cause

	defer func() {
		if r := recover(); r != nil {
			out.FallbackErr = fmt.Errorf("%v", r)
			out.FallbackPanicked = true
			out.Expense = nil
			out.advance(StateRejected)
			slog.Error("Last-resort expense write panicked", "user_id", userID, "panic", r, "cause", cause)
		}
	}()

	now := s.timeSource.Now()
	rec := scanning.Reconcile(scanning.SynthesizeManualEntry(now))
	manual := rec.Candidate

	expense := &Expense{
		ID:               s.idGenerator.Generate(),
		UserID:           userID,
		Amount:           *manual.Total,
		Description:      manualEntryDescription,
		Date:             scanning.ParseDate(manual.Date, now),
		ExtractedData:    &manual,
		ProcessingStatus: StatusFailed,
		NeedsReview:      true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	stored, err := s.store.InsertExpense(context.WithoutCancel(ctx), expense)
	if err != nil {
		out.FallbackErr = err
		out.advance(StateRejected)
		slog.Error("Last-resort expense write failed", "user_id", userID, "error", err, "cause", cause)
		return
	}

	out.Expense = stored
	out.Message = FallbackMessage
	out.advance(StateCommittedFallback)
	slog.Warn("Stored manual entry expense", "expense_id", stored.ID, "user_id", userID, "cause", cause)
}

// GetExpense retrieves an expense by ID
func (s *Service) GetExpense(ctx context.Context, id string) (*Expense, error) {
	expense, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	return expense, nil
}

// ListExpenses returns a user's expenses, newest first
func (s *Service) ListExpenses(ctx context.Context, userID string) ([]*Expense, error) {
	expenses, err := s.store.ListExpenses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	return expenses, nil
}

// ListCategories returns a user's categories
func (s *Service) ListCategories(ctx context.Context, userID string) ([]*Category, error) {
	categories, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return categories, nil
}

// ExpenseUpdate holds a user's edits; nil fields are left unchanged
type ExpenseUpdate struct {
	Amount      *float64 `json:"amount"`
	Description *string  `json:"description"`
	Merchant    *string  `json:"merchant"`
	Category    *string  `json:"category"`
	Date        *string  `json:"date"`
}

// UpdateExpense applies a user's edits. An edited expense is considered
// reviewed, so it is marked completed and no longer needs review.
func (s *Service) UpdateExpense(ctx context.Context, id string, update ExpenseUpdate) (*Expense, error) {
	expense, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting expense for update: %w", err)
	}

	if update.Amount != nil {
		amount := *update.Amount
		if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
			return nil, ErrInvalidAmount
		}
		expense.Amount = math.Round(amount*100) / 100
	}
	if update.Date != nil {
		date, err := time.Parse(scanning.DateLayout, strings.TrimSpace(*update.Date))
		if err != nil {
			return nil, ErrInvalidDate
		}
		expense.Date = date
	}
	if update.Description != nil {
		expense.Description = strings.TrimSpace(*update.Description)
	}
	if update.Merchant != nil {
		expense.Merchant = strings.TrimSpace(*update.Merchant)
	}
	if update.Category != nil {
		expense.Category = strings.TrimSpace(*update.Category)
	}

	expense.ProcessingStatus = StatusCompleted
	expense.NeedsReview = false
	expense.UpdatedAt = s.timeSource.Now()

	if err := s.store.UpdateExpense(ctx, expense); err != nil {
		return nil, fmt.Errorf("updating expense: %w", err)
	}
	return expense, nil
}

// DeleteExpense removes an expense
func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	if err := s.store.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("deleting expense: %w", err)
	}
	return nil
}

func confidenceFor(source scanning.TotalSource) *float64 {
	switch source {
	case scanning.SourceExtracted:
		return ptr(confidenceExtracted)
	case scanning.SourceItems, scanning.SourceSubtotal:
		return ptr(confidenceRebuilt)
	default:
		return ptr(confidenceNominal)
	}
}

func displayStore(name string) string {
	if name == "" {
		return "Unknown Store"
	}
	return name
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func ptr(v float64) *float64 {
	return &v
}
