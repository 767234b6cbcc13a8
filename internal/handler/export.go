package handler

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/artdex/api/internal/model"
)

type ExportHandler struct {
	db *gorm.DB
}

func NewExportHandler(db *gorm.DB) *ExportHandler {
	return &ExportHandler{db: db}
}

// ExportHistory dumps the applied edit history for offline audits.
func (h *ExportHandler) ExportHistory(c *gin.Context) {
	format := c.DefaultQuery("format", "json")

	var suggestions []model.EditSuggestion
	result := h.db.Preload("Suggester").
		Preload("Approver").
		Where("status = ?", model.SuggestionStatusApplied).
		Order("applied_at ASC").
		Find(&suggestions)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	switch format {
	case "json":
		h.exportJSON(c, suggestions)
	case "csv":
		h.exportCSV(c, suggestions)
	case "md", "markdown":
		h.exportMarkdown(c, suggestions)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid format. Use json, csv, or md"})
	}
}

func (h *ExportHandler) exportJSON(c *gin.Context, suggestions []model.EditSuggestion) {
	c.Header("Content-Disposition", "attachment; filename=edit-history.json")
	c.JSON(http.StatusOK, suggestions)
}

func (h *ExportHandler) exportCSV(c *gin.Context, suggestions []model.EditSuggestion) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	// Header
	writer.Write([]string{"ID", "Condition Field", "Pattern", "Action", "Action Field", "Action Value", "Suggested By", "Approved By", "Applied At"})

	for _, sug := range suggestions {
		appliedAt := ""
		if sug.AppliedAt != nil {
			appliedAt = sug.AppliedAt.Format("2006-01-02 15:04:05")
		}

		writer.Write([]string{
			fmt.Sprintf("%d", sug.ID),
			sug.ConditionField,
			sug.Pattern,
			sug.Action,
			sug.ActionField,
			stringValue(sug.ActionValue),
			userName(sug.Suggester),
			userName(sug.Approver),
			appliedAt,
		})
	}

	writer.Flush()

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=edit-history.csv")
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

func (h *ExportHandler) exportMarkdown(c *gin.Context, suggestions []model.EditSuggestion) {
	var buf bytes.Buffer

	buf.WriteString("# Edit History\n\n")

	for _, sug := range suggestions {
		buf.WriteString(fmt.Sprintf("### %d. %s on %s\n\n", sug.ID, sug.Action, sug.ConditionField))
		buf.WriteString(fmt.Sprintf("**Pattern:** `%s`\n\n", sug.Pattern))
		if sug.Action == model.ActionAdd {
			buf.WriteString(fmt.Sprintf("**Added to %s:** %s\n\n", sug.ActionField, stringValue(sug.ActionValue)))
		}
		if name := userName(sug.Suggester); name != "" {
			buf.WriteString(fmt.Sprintf("**Suggested by:** %s\n\n", name))
		}
		if name := userName(sug.Approver); name != "" {
			buf.WriteString(fmt.Sprintf("**Approved by:** %s\n\n", name))
		}
		if sug.AppliedAt != nil {
			buf.WriteString(fmt.Sprintf("**Applied:** %s\n\n", sug.AppliedAt.Format("2006-01-02 15:04:05")))
		}
		buf.WriteString("---\n\n")
	}

	c.Header("Content-Type", "text/markdown")
	c.Header("Content-Disposition", "attachment; filename=edit-history.md")
	c.Data(http.StatusOK, "text/markdown", buf.Bytes())
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func userName(u *model.User) string {
	if u == nil {
		return ""
	}
	return u.Username
}
