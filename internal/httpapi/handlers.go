package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mingle/matchd/internal/history"
	"github.com/mingle/matchd/internal/match"
	"github.com/mingle/matchd/internal/points"
	"github.com/mingle/matchd/internal/store"
)

// loadSettings returns the user's stored default settings, falling back to
// the standard defaults when none exist or the row is unreadable.
func (s *Server) loadSettings(r *http.Request, id int64) match.Settings {
	settings := match.DefaultSettings()
	raw, err := s.settings.GetSettings(r.Context(), id)
	if err != nil {
		log.Printf("[httpapi] load settings for %d: %v", id, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &settings); err != nil {
			settings = match.DefaultSettings()
		}
	}
	settings.Normalize()
	return settings
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.loadSettings(r, userID(r)))
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	settings := match.DefaultSettings()
	if err := readJSON(r, &settings); err != nil {
		errorJSON(w, http.StatusBadRequest, "malformed settings")
		return
	}
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, err := json.Marshal(settings)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "encode settings")
		return
	}
	if err := s.settings.PutSettings(r.Context(), userID(r), raw); err != nil {
		log.Printf("[httpapi] put settings: %v", err)
		errorJSON(w, http.StatusInternalServerError, "save settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleStart places the caller into the waiting pool. The body may carry
// per-attempt overrides of the stored settings plus an accelerate flag.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	settings := s.loadSettings(r, id)

	var accel struct {
		Accelerate bool `json:"accelerate"`
	}
	if r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			errorJSON(w, http.StatusBadRequest, "read request body")
			return
		}
		if len(body) > 0 {
			// Overlay: only the fields present in the body replace the
			// stored settings.
			if err := json.Unmarshal(body, &settings); err != nil {
				errorJSON(w, http.StatusBadRequest, "malformed request body")
				return
			}
			if err := json.Unmarshal(body, &accel); err != nil {
				errorJSON(w, http.StatusBadRequest, "malformed request body")
				return
			}
		}
	}

	res, err := s.svc.Start(r.Context(), id, settings, accel.Accelerate)
	if err != nil {
		switch {
		case errors.Is(err, points.ErrInsufficientPoints):
			errorJSON(w, http.StatusBadRequest, "insufficient points")
		case errors.Is(err, match.ErrInvalidSettings):
			errorJSON(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("[httpapi] start: %v", err)
			errorJSON(w, http.StatusInternalServerError, "start failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAccelerate(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Accelerate(r.Context(), userID(r))
	if err != nil {
		switch {
		case errors.Is(err, points.ErrInsufficientPoints):
			errorJSON(w, http.StatusBadRequest, "insufficient points")
		case errors.Is(err, match.ErrNotSeeking):
			errorJSON(w, http.StatusBadRequest, "not currently seeking")
		default:
			log.Printf("[httpapi] accelerate: %v", err)
			errorJSON(w, http.StatusInternalServerError, "accelerate failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	// Cancel never fails from the caller's point of view.
	_ = s.svc.Cancel(r.Context(), userID(r))
	writeJSON(w, http.StatusOK, envelope{"message": "cancelled"})
}

// resultResponse is the poll payload for a committed pairing. Every field
// is always emitted, a zero score included.
type resultResponse struct {
	Matched     bool               `json:"matched"`
	User        *store.MatchedUser `json:"user"`
	Score       int                `json:"score"`
	IsAnonymous bool               `json:"is_anonymous"`
	Status      string             `json:"status"`
	OtherStatus string             `json:"other_status"`
	MatchStats  store.MatchStats   `json:"match_stats"`
	RoomID      string             `json:"room_id"`
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res := s.svc.Result(r.Context(), userID(r))

	if !res.Matched {
		body := envelope{"matched": false}
		if res.Reason != "" {
			body["reason"] = res.Reason
		}
		writeJSON(w, http.StatusOK, body)
		return
	}

	writeJSON(w, http.StatusOK, resultResponse{
		Matched:     true,
		User:        res.MatchedUser,
		Score:       res.Score,
		IsAnonymous: res.IsAnonymous,
		Status:      res.Status,
		OtherStatus: res.OtherStatus,
		MatchStats:  res.Stats,
		RoomID:      res.RoomID,
	})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	both, err := s.svc.Accept(r.Context(), userID(r))
	if err != nil {
		if errors.Is(err, match.ErrNoActiveMatch) {
			errorJSON(w, http.StatusBadRequest, "no active match")
			return
		}
		log.Printf("[httpapi] accept: %v", err)
		errorJSON(w, http.StatusInternalServerError, "accept failed")
		return
	}
	writeJSON(w, http.StatusOK, envelope{"both_accepted": both})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	// Rejection is always reported as success.
	_ = s.svc.Reject(r.Context(), userID(r))
	writeJSON(w, http.StatusOK, envelope{"message": "rejected"})
}

func (s *Server) handleQueueCount(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	count, err := s.svc.QueueCount(r.Context(), id, s.loadSettings(r, id))
	if err != nil {
		log.Printf("[httpapi] queue count: %v", err)
		errorJSON(w, http.StatusInternalServerError, "queue count failed")
		return
	}
	writeJSON(w, http.StatusOK, envelope{"count": count})
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := s.histories.List(r.Context(), userID(r), limit)
	if err != nil {
		log.Printf("[httpapi] list history: %v", err)
		errorJSON(w, http.StatusInternalServerError, "list history failed")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, envelope{"history": records})
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	recordID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid history id")
		return
	}

	deleted, err := s.histories.Delete(r.Context(), userID(r), recordID)
	if err != nil {
		log.Printf("[httpapi] delete history: %v", err)
		errorJSON(w, http.StatusInternalServerError, "delete history failed")
		return
	}
	if !deleted {
		errorJSON(w, http.StatusNotFound, "history record not found")
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": "deleted"})
}

func (s *Server) handleHistoryDeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.histories.DeleteAll(r.Context(), userID(r))
	if err != nil {
		log.Printf("[httpapi] delete all history: %v", err)
		errorJSON(w, http.StatusInternalServerError, "delete history failed")
		return
	}
	writeJSON(w, http.StatusOK, envelope{"deleted": n})
}
