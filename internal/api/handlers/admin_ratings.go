package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rallylog/backend/internal/models"
	"github.com/rallylog/backend/internal/ratings"
)

// RecalculateRatings replays the whole ledger from the baseline. The pass is
// detached from the admin's connection and bounded by timeout instead.
func RecalculateRatings(svc *ratings.Service, admins AdminStore, timeout time.Duration) gin.HandlerFunc {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return func(c *gin.Context) {
		adminUsername := c.GetString(adminUsernameKey)

		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), timeout)
		defer cancel()

		res, err := svc.RecalculateAll(ctx)
		if err != nil {
			admins.LogAdminAction(ctx, adminUsername, c.ClientIP(), c.FullPath(), "recalculate_ratings",
				map[string]interface{}{"error": err.Error()}, false)
			respondError(c, err)
			return
		}

		log.Printf("[ADMIN] %s recalculated ratings: %d entries processed, %d skipped", adminUsername, res.EntriesProcessed, res.EntriesSkipped)
		admins.LogAdminAction(ctx, adminUsername, c.ClientIP(), c.FullPath(), "recalculate_ratings", map[string]interface{}{
			"run_id":            res.RunID,
			"entries_processed": res.EntriesProcessed,
			"entries_skipped":   res.EntriesSkipped,
			"backfilled":        res.Backfilled,
		}, true)
		c.JSON(http.StatusOK, res)
	}
}

// RatingDrift reports where stored ratings disagree with the ledger
func RatingDrift(svc *ratings.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := svc.CheckDrift(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"consistent": report.Consistent(), "report": report})
	}
}

// MergeEntities folds one user or opponent into another
func MergeEntities(svc *ratings.Service, admins AdminStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminUsername := c.GetString(adminUsernameKey)

		var req struct {
			Kind     models.PlayerKind `json:"kind" binding:"required"`
			KeepID   int64             `json:"keep_id" binding:"required"`
			DeleteID int64             `json:"delete_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		details := map[string]interface{}{"kind": req.Kind, "keep_id": req.KeepID, "delete_id": req.DeleteID}

		res, err := svc.MergeEntities(c.Request.Context(), req.Kind, req.KeepID, req.DeleteID)
		if err != nil {
			details["error"] = err.Error()
			admins.LogAdminAction(c.Request.Context(), adminUsername, c.ClientIP(), c.FullPath(), "merge_entities", details, false)
			respondError(c, err)
			return
		}

		details["matches_rewritten"] = res.MatchesRewritten
		details["ownership_moved"] = res.OwnershipMoved
		admins.LogAdminAction(c.Request.Context(), adminUsername, c.ClientIP(), c.FullPath(), "merge_entities", details, true)
		c.JSON(http.StatusOK, gin.H{"merge": res, "recalculation_required": true})
	}
}

// ListAdminMatches pages through the ledger, newest first unless order=oldest
func ListAdminMatches(svc *ratings.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := pagination(c, 50, 200)
		f := models.MatchFilter{
			NewestFirst: c.DefaultQuery("order", "newest") != "oldest",
			Limit:       limit,
			Offset:      offset,
		}

		if kind := c.Query("player_kind"); kind != "" {
			id, err := strconv.ParseInt(c.Query("player_id"), 10, 64)
			if err != nil || id <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid player_id"})
				return
			}
			f.Player = &models.PlayerRef{Kind: models.PlayerKind(kind), ID: id}
		}

		matches, err := svc.ListMatches(c.Request.Context(), f)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"matches": newMatchResponses(matches), "limit": limit, "offset": offset})
	}
}

// UpdateMatchScores corrects a ledger entry's score
func UpdateMatchScores(svc *ratings.Service, admins AdminStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminUsername := c.GetString(adminUsernameKey)
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		var req struct {
			ScoreA *int `json:"score_a" binding:"required"`
			ScoreB *int `json:"score_b" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		details := map[string]interface{}{"match_id": id, "score_a": *req.ScoreA, "score_b": *req.ScoreB}

		m, err := svc.UpdateMatchScores(c.Request.Context(), id, *req.ScoreA, *req.ScoreB)
		if err != nil {
			details["error"] = err.Error()
			admins.LogAdminAction(c.Request.Context(), adminUsername, c.ClientIP(), c.FullPath(), "update_match_scores", details, false)
			respondError(c, err)
			return
		}

		admins.LogAdminAction(c.Request.Context(), adminUsername, c.ClientIP(), c.FullPath(), "update_match_scores", details, true)
		c.JSON(http.StatusOK, gin.H{"match": newMatchResponse(m), "recalculation_required": true})
	}
}

// DeleteMatch removes a ledger entry
func DeleteMatch(svc *ratings.Service, admins AdminStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminUsername := c.GetString(adminUsernameKey)
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		details := map[string]interface{}{"match_id": id}

		if err := svc.DeleteMatch(c.Request.Context(), id); err != nil {
			details["error"] = err.Error()
			admins.LogAdminAction(c.Request.Context(), adminUsername, c.ClientIP(), c.FullPath(), "delete_match", details, false)
			respondError(c, err)
			return
		}

		admins.LogAdminAction(c.Request.Context(), adminUsername, c.ClientIP(), c.FullPath(), "delete_match", details, true)
		c.JSON(http.StatusOK, gin.H{"ok": true, "recalculation_required": true})
	}
}
