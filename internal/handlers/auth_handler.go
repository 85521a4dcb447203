package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"shipping-metrics-api/internal/services"
	"shipping-metrics-api/internal/validation"

	"github.com/gin-gonic/gin"
)

// AuthHandler proxies registration and authentication to the identity
// provider and the downstream shipping API.
type AuthHandler struct {
	identity   services.IdentityProvider
	downstream services.DownstreamAPI
}

func NewAuthHandler(identity services.IdentityProvider, downstream services.DownstreamAPI) *AuthHandler {
	return &AuthHandler{
		identity:   identity,
		downstream: downstream,
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"fullName" binding:"required"`
	Company  string `json:"company" binding:"required"`
	Position string `json:"position" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UpdateMetadataRequest struct {
	UserID   string                 `json:"userId" binding:"required"`
	Metadata map[string]interface{} `json:"metadata" binding:"required"`
}

type ResendVerificationRequest struct {
	Email string `json:"email" binding:"required"`
}

// Register creates the identity-provider account, the downstream client
// record, and writes the client id back into user metadata. The steps
// are not transactional: each successful step pushes a compensating
// action, and any later failure unwinds the stack in reverse. A failed
// compensation is logged but does not change the client-visible error,
// so an orphaned identity account is a possible (accepted) residue.
// @Summary Register a new user
// @Accept json
// @Produce json
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Missing required fields"})
		return
	}

	email := strings.ToLower(validation.SanitizeString(req.Email))
	fullName := validation.SanitizeString(req.FullName)
	company := validation.SanitizeString(req.Company)
	position := validation.SanitizeString(req.Position)
	phone := validation.SanitizeString(req.Phone)

	if !validation.ValidateEmail(email) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid email format"})
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if !validation.ValidateName(fullName) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid name format"})
		return
	}
	if !validation.ValidateCompany(company) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid company name"})
		return
	}
	if !validation.ValidateName(position) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid position format"})
		return
	}
	if !validation.ValidatePhone(phone) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid phone number format"})
		return
	}

	ctx := c.Request.Context()

	// Duplicate phone is rejected before any account exists.
	taken, err := h.identity.IsPhoneNumberTaken(ctx, phone)
	if err != nil {
		log.Printf("phone lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Registration failed. Please try again."})
		return
	}
	if taken {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "This phone number is already registered"})
		return
	}

	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	// Step 1: identity-provider account.
	user, err := h.identity.CreateUser(ctx, email, req.Password, map[string]interface{}{
		"company":  company,
		"fullName": fullName,
		"position": position,
		"phone":    phone,
	})
	if err != nil {
		if errors.Is(err, services.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": "An account with this email already exists"})
			return
		}
		log.Printf("identity user creation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Registration failed. Please try again."})
		return
	}
	undo = append(undo, func() {
		if err := h.identity.DeleteUser(context.WithoutCancel(ctx), user.UserID); err != nil {
			log.Printf("failed to roll back identity user %s: %v", user.UserID, err)
		}
	})

	// Step 2: downstream client record.
	clientID, err := h.downstream.CreateClient(ctx, services.ClientPayload{
		Name: company,
		Contact: services.ClientContact{
			FullName: fullName,
			Email:    email,
			Position: position,
			Phone:    phone,
		},
		CarrierAccounts: []string{},
	})
	if err != nil {
		log.Printf("downstream client creation failed: %v", err)
		rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to create client account. Please try again."})
		return
	}

	// Step 3: write the client id back into user metadata.
	if err := h.identity.UpdateUserMetadata(ctx, user.UserID, map[string]interface{}{"client_id": clientID}); err != nil {
		log.Printf("metadata write-back failed for %s: %v", user.UserID, err)
		rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to create client account. Please try again."})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":   true,
		"message":   "Registration successful! Please check your email to verify your account.",
		"userId":    user.UserID,
		"client_id": clientID,
	})
}

// Login proxies the provider's password grant.
// @Summary Log in
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Email and password are required"})
		return
	}

	tokens, err := h.identity.PasswordGrant(c.Request.Context(), strings.ToLower(req.Email), req.Password)
	if err != nil {
		log.Printf("login failed for %s: %v", req.Email, err)
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid email or password"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"accessToken": tokens.AccessToken,
		"idToken":     tokens.IDToken,
		"expiresIn":   tokens.ExpiresIn,
	})
}

// UpdateMetadata writes user metadata, guarding against phone takeover.
func (h *AuthHandler) UpdateMetadata(c *gin.Context) {
	var req UpdateMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "User ID and metadata required"})
		return
	}

	ctx := c.Request.Context()

	if phone, ok := req.Metadata["phone"].(string); ok && phone != "" {
		existing, err := h.identity.GetUserByPhone(ctx, phone)
		if err == nil && existing.UserID != req.UserID {
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": "This phone number is already registered"})
			return
		}
	}

	if err := h.identity.UpdateUserMetadata(ctx, req.UserID, req.Metadata); err != nil {
		log.Printf("metadata update failed for %s: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to update user metadata"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "User metadata updated"})
}

// ResendVerification triggers a fresh verification email.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req ResendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Email is required"})
		return
	}

	email := strings.ToLower(validation.SanitizeString(req.Email))
	if !validation.ValidateEmail(email) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid email format"})
		return
	}

	ctx := c.Request.Context()

	user, err := h.identity.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "No account found with this email address."})
			return
		}
		log.Printf("user lookup failed for %s: %v", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to resend verification email. Please try again later."})
		return
	}

	if user.EmailVerified {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Email is already verified. Please try logging in."})
		return
	}

	if err := h.identity.SendVerificationEmail(ctx, user.UserID); err != nil {
		log.Printf("verification email failed for %s: %v", user.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to resend verification email. Please try again later."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Verification email sent! Please check your inbox."})
}

// Health reports liveness.
// @Summary Health check
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/auth/health [get]
func (h *AuthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
