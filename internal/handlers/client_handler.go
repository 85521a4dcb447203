package handlers

import (
	"errors"
	"log"
	"net/http"

	"shipping-metrics-api/internal/database"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ClientHandler serves client documents from the main database.
type ClientHandler struct {
	db *database.DBManager
}

func NewClientHandler(db *database.DBManager) *ClientHandler {
	return &ClientHandler{db: db}
}

// GetClientByID looks up one client record.
// @Summary Get client by id
// @Produce json
// @Param id path string true "Client identifier"
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/clients/{id} [get]
func (h *ClientHandler) GetClientByID(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Client ID is required"})
		return
	}

	var client bson.M
	err := h.db.Database(false).
		Collection("clients").
		FindOne(c.Request.Context(), bson.M{"client_id": id}).
		Decode(&client)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Client not found"})
			return
		}
		log.Printf("client lookup failed for %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to fetch client"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": client})
}
