package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rallylog/backend/internal/middleware"
	"github.com/rallylog/backend/internal/models"
	"github.com/rallylog/backend/internal/ratings"
)

type recordMatchRequest struct {
	PlayerA models.PlayerRef `json:"player_a"`
	PlayerB models.PlayerRef `json:"player_b"`
	ScoreA  *int             `json:"score_a" binding:"required"`
	ScoreB  *int             `json:"score_b" binding:"required"`
	PlayTo  int              `json:"play_to"`
}

// RecordMatch records a finished match logged by the authenticated user
func RecordMatch(svc *ratings.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req recordMatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		res, err := svc.RecordMatch(c.Request.Context(), ratings.RecordMatchInput{
			PlayerA:  req.PlayerA,
			PlayerB:  req.PlayerB,
			ScoreA:   *req.ScoreA,
			ScoreB:   *req.ScoreB,
			PlayTo:   req.PlayTo,
			LoggedBy: c.GetInt64(middleware.UserIDKey),
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"match_id":     res.MatchID,
			"delta_a":      res.DeltaA,
			"delta_b":      res.DeltaB,
			"new_rating_a": res.NewRatingA,
			"new_rating_b": res.NewRatingB,
		})
	}
}

// GetMatch returns one ledger entry
func GetMatch(svc *ratings.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		m, err := svc.GetMatch(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"match": newMatchResponse(m)})
	}
}

// PlayerHistory returns a player's rating history rebuilt from the ledger
func PlayerHistory(svc *ratings.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref, ok := parsePlayerRef(c)
		if !ok {
			return
		}

		h, err := svc.History(c.Request.Context(), ref)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, h)
	}
}

type matchResponse struct {
	ID             int64             `json:"id"`
	PlayerA        models.PlayerRef  `json:"player_a"`
	PlayerB        models.PlayerRef  `json:"player_b"`
	ScoreA         int               `json:"score_a"`
	ScoreB         int               `json:"score_b"`
	PlayTo         int               `json:"play_to"`
	WinBy          int               `json:"win_by"`
	Winner         *models.PlayerRef `json:"winner"`
	RatingDeltaA   *float64          `json:"rating_delta_a"`
	RatingDeltaB   *float64          `json:"rating_delta_b"`
	LoggedByUserID *int64            `json:"logged_by_user_id"`
	PlayedAt       string            `json:"played_at"`
	UpdatedAt      string            `json:"updated_at"`
}

func newMatchResponse(m *models.Match) matchResponse {
	resp := matchResponse{
		ID:        m.ID,
		PlayerA:   m.PlayerA(),
		PlayerB:   m.PlayerB(),
		ScoreA:    m.ScoreA,
		ScoreB:    m.ScoreB,
		PlayTo:    m.PlayTo,
		WinBy:     m.WinBy,
		PlayedAt:  m.PlayedAt.UTC().Format(time.RFC3339),
		UpdatedAt: m.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if m.WinnerType.Valid && m.WinnerID.Valid {
		resp.Winner = &models.PlayerRef{Kind: models.PlayerKind(m.WinnerType.String), ID: m.WinnerID.Int64}
	}
	if m.RatingDeltaA.Valid {
		v := m.RatingDeltaA.Float64
		resp.RatingDeltaA = &v
	}
	if m.RatingDeltaB.Valid {
		v := m.RatingDeltaB.Float64
		resp.RatingDeltaB = &v
	}
	if m.LoggedByUserID.Valid {
		v := m.LoggedByUserID.Int64
		resp.LoggedByUserID = &v
	}
	return resp
}

func newMatchResponses(ms []models.Match) []matchResponse {
	out := make([]matchResponse, 0, len(ms))
	for i := range ms {
		out = append(out, newMatchResponse(&ms[i]))
	}
	return out
}
