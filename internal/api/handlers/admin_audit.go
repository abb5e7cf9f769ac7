package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetAdminAuditLogs returns paginated audit log entries
func GetAdminAuditLogs(admins AdminStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminUsername := c.DefaultQuery("admin_username", "")
		limit, offset := pagination(c, 25, 200)

		logs, total, err := admins.GetAdminAuditLogs(c.Request.Context(), adminUsername, limit, offset)
		if err != nil {
			log.Printf("[ADMIN] Failed to fetch audit logs: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch audit logs"})
			return
		}

		type auditRow struct {
			ID            int64       `json:"id"`
			AdminUsername string      `json:"admin_username"`
			IP            string      `json:"ip"`
			Route         string      `json:"route"`
			Action        string      `json:"action"`
			Details       interface{} `json:"details"`
			Success       bool        `json:"success"`
			CreatedAt     string      `json:"created_at"`
		}

		rows := make([]auditRow, 0, len(logs))
		for _, l := range logs {
			var details interface{} = l.Details
			if len(l.Details) == 0 {
				details = map[string]interface{}{}
			}
			rows = append(rows, auditRow{
				ID:            l.ID,
				AdminUsername: l.AdminUsername,
				IP:            l.IP,
				Route:         l.Route,
				Action:        l.Action,
				Details:       details,
				Success:       l.Success,
				CreatedAt:     l.CreatedAt.UTC().Format(time.RFC3339),
			})
		}

		// viewing the audit log is not itself audited
		c.JSON(http.StatusOK, gin.H{"logs": rows, "total": total, "limit": limit, "offset": offset})
	}
}
