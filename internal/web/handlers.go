package web

import (
	"net/http"
	"strconv"

	"weekplanner/internal/model"
	"weekplanner/internal/store"
)

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Calendar(r.Context()))
}

func (s *Server) handleCalendarWeek(w http.ResponseWriter, r *http.Request) {
	offset, err := strconv.Atoi(r.PathValue("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "week offset must be a number")
		return
	}
	writeJSON(w, http.StatusOK, s.orch.CalendarWeek(r.Context(), offset))
}

func (s *Server) handleTodos(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Tasks(r.Context()))
}

func (s *Server) handleMeals(w http.ResponseWriter, r *http.Request) {
	view, err := s.orch.Meals(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type changeMealRequest struct {
	Meal     string `json:"meal"`
	Category string `json:"category"`
}

func (s *Server) handleChangeMeal(w http.ResponseWriter, r *http.Request) {
	var req changeMealRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	ch, err := s.orch.ChangeMeal(r.Context(), r.PathValue("date"), req.Meal, req.Category)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "date": ch.Date, "meal": ch.Meal, "category": ch.Category})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Categories())
}

type categoryRequest struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Emoji string   `json:"emoji"`
	Meals []string `json:"meals"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	info, err := s.orch.CreateCategory(r.Context(), req.ID, store.Category{Name: req.Name, Emoji: req.Emoji, Items: req.Meals})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	info, err := s.orch.UpdateCategory(r.Context(), r.PathValue("id"), req.Name, req.Emoji)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddMeal(w http.ResponseWriter, r *http.Request) {
	var req changeMealRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	info, err := s.orch.AddItem(r.Context(), r.PathValue("id"), req.Meal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleRemoveMeal(w http.ResponseWriter, r *http.Request) {
	info, err := s.orch.RemoveItem(r.Context(), r.PathValue("id"), r.PathValue("meal"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleWeekdays(w http.ResponseWriter, r *http.Request) {
	var mapping map[string]string
	if err := decodeJSON(w, r, &mapping); err != nil {
		writeDomainError(w, err)
		return
	}
	out, err := s.orch.SetWeekdayMapping(r.Context(), mapping)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistoryWeeks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HistoryWeeks *int `json:"historyWeeks"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.HistoryWeeks == nil {
		writeDomainError(w, model.NewValidationError("historyWeeks", "missing historyWeeks"))
		return
	}
	if err := s.orch.SetHistoryWeeks(r.Context(), *req.HistoryWeeks); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"historyWeeks": *req.HistoryWeeks})
}
