package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"nesugoshipanic/internal/service"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// ProgressHandler handles the game-facing progress API: stage completion
// notifications, ID verification and the leaderboard.
type ProgressHandler struct {
	game   *service.GameService
	logger zerolog.Logger
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(game *service.GameService, logger zerolog.Logger) *ProgressHandler {
	return &ProgressHandler{
		game:   game,
		logger: logger.With().Str("component", "ProgressHandler").Logger(),
	}
}

// CompletionRequest is the body of the stage completion notifications.
type CompletionRequest struct {
	GameID string `json:"gameId"`
	Score  int    `json:"score"`
}

// Stage2Completed handles POST /api/stage2-completed
func (h *ProgressHandler) Stage2Completed(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GameID == "" {
		writeFailure(w, http.StatusBadRequest, "gameIdが必要です")
		return
	}

	result, err := h.game.CompleteStage2(r.Context(), req.GameID, req.Score)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "STAGE2クリア処理完了",
		"stage3Id": result.Stage3ID,
	})
}

// Stage3Completed handles POST /api/stage3-completed
func (h *ProgressHandler) Stage3Completed(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GameID == "" {
		writeFailure(w, http.StatusBadRequest, "gameIdが必要です")
		return
	}

	result, err := h.game.CompleteStage3(r.Context(), req.GameID, req.Score)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"message":    "ゲーム完了処理完了",
		"totalScore": result.TotalScore,
	})
}

// UpdateProgressRequest is the body of POST /api/update-progress.
type UpdateProgressRequest struct {
	GameID    string `json:"gameId"`
	Stage     int    `json:"stage"`
	Score     *int   `json:"score,omitempty"`
	Completed bool   `json:"completed"`
}

// UpdateProgress handles POST /api/update-progress
func (h *ProgressHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	var req UpdateProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "必須パラメータが不足しています")
		return
	}

	err := h.game.UpdateProgress(r.Context(), req.GameID, req.Stage, req.Score, req.Completed)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "進捗が更新されました",
	})
}

// VerifyID handles GET /api/verify-id/{gameId}
func (h *ProgressHandler) VerifyID(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["gameId"]

	session, err := h.game.VerifyID(r.Context(), gameID)
	if err != nil {
		h.writeVerifyError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":   true,
		"message": "ID確認成功",
		"data": map[string]interface{}{
			"gameId": session.GameID,
			"status": session.State(),
		},
	})
}

// VerifyStage3ID handles GET /api/verify-stage3-id/{gameId}
func (h *ProgressHandler) VerifyStage3ID(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["gameId"]

	session, err := h.game.VerifyStage3ID(r.Context(), gameID)
	if err != nil {
		h.writeVerifyError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":   true,
		"message": "ID確認成功",
		"data": map[string]interface{}{
			"gameId":         session.GameID,
			"status":         session.State(),
			"originalGameId": session.OriginalGameID,
		},
	})
}

// Ranking handles GET /api/ranking
func (h *ProgressHandler) Ranking(w http.ResponseWriter, r *http.Request) {
	entries, err := h.game.Leaderboard(r.Context(), 0)
	if errors.Is(err, service.ErrNoRankings) {
		writeFailure(w, http.StatusNotFound, "まだランキングデータがありません")
		return
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"rankings": entries,
	})
}

// DebugRequest is the body of the operator shortcut.
type DebugRequest struct {
	LineUserID string `json:"lineUserId"`
}

// DebugAdvanceStage3 handles POST /api/debug/advance-stage3 (operator only)
func (h *ProgressHandler) DebugAdvanceStage3(w http.ResponseWriter, r *http.Request) {
	var req DebugRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LineUserID == "" {
		writeFailure(w, http.StatusBadRequest, "lineUserIdが必要です")
		return
	}

	derived, mailed, err := h.game.DebugAdvanceStage3(r.Context(), req.LineUserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"message":        "STAGE3用IDが生成されました",
		"stage3Id":       derived.GameID,
		"originalGameId": derived.OriginalGameID,
		"mailSent":       mailed,
	})
}

func (h *ProgressHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeFailure(w, http.StatusNotFound, "IDが見つかりません")
	case errors.Is(err, service.ErrValidation):
		writeFailure(w, http.StatusBadRequest, "必須パラメータが不足しています")
	default:
		h.logger.Error().Err(err).Msg("request failed")
		writeFailure(w, http.StatusInternalServerError, "サーバーエラーが発生しました")
	}
}

func (h *ProgressHandler) writeVerifyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeInvalid(w, http.StatusNotFound, "IDが見つかりません")
	case errors.Is(err, service.ErrNotStage3):
		writeInvalid(w, http.StatusBadRequest, "このIDはSTAGE3用ではありません")
	default:
		h.logger.Error().Err(err).Msg("verify failed")
		writeInvalid(w, http.StatusInternalServerError, "サーバーエラーが発生しました")
	}
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "message": message})
}

func writeInvalid(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"valid": false, "message": message})
}
