package http

import (
	"log/slog"
	"net/http"

	"despesas/internal/core"
	"despesas/internal/log"
)

type createdResponse struct {
	ID string `json:"id"`
}

// handleListExpenses returns the whole collection, newest date first.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	records, err := s.expenses.List(r.Context())
	if err != nil {
		log.LogError(r.Context(), "Failed to list expenses", err, log.OpList, nil)
		storeError(err).Write(w)
		return
	}
	if records == nil {
		records = []core.Expense{}
	}
	NewJSONResponse().Body(records).Write(w)
}

// handleCreateExpense stores the submitted record as is. Clients validate
// before writing.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var rec core.NewExpense
	if err := decodeJSON(w, r, &rec); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	rec.Description = sanitizeInput(rec.Description)

	id, err := s.expenses.AddRecord(r.Context(), rec)
	if err != nil {
		log.LogError(r.Context(), "Failed to create expense", err, log.OpCreate,
			log.NewFields().WithExpense("", rec.Category, rec.Amount.Cents))
		storeError(err).Write(w)
		return
	}

	log.FromContext(r.Context()).Fields(r.Context(), slog.LevelInfo, "Expense created",
		log.NewFields().WithOperation(log.OpCreate).WithExpense(id, rec.Category, rec.Amount.Cents))
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+id).
		Body(createdResponse{ID: id}).
		Write(w)
}

func (s *Server) handlePatchExpense(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if id == "" {
		BadRequestError("missing expense id").Write(w)
		return
	}

	var p core.Patch
	if err := decodeJSON(w, r, &p); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if p.Empty() {
		BadRequestError(core.ErrEmptyPatch.Error()).Write(w)
		return
	}
	if p.Description != nil {
		d := sanitizeInput(*p.Description)
		p.Description = &d
	}

	if err := s.expenses.PatchRecord(r.Context(), id, p); err != nil {
		log.LogError(r.Context(), "Failed to update expense", err, log.OpUpdate,
			log.NewFields().With(log.FieldExpenseID, id))
		storeError(err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if id == "" {
		BadRequestError("missing expense id").Write(w)
		return
	}

	if err := s.expenses.RemoveRecord(r.Context(), id); err != nil {
		log.LogError(r.Context(), "Failed to delete expense", err, log.OpDelete,
			log.NewFields().With(log.FieldExpenseID, id))
		storeError(err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
