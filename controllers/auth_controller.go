package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quillworks/quill/config"
	"github.com/quillworks/quill/middleware"
	"github.com/quillworks/quill/models"
	"github.com/quillworks/quill/utils"
)

// AuthController handles registration, login, and session lifecycle.
type AuthController struct {
	db *gorm.DB
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

// Register creates an account with a bcrypt-hashed password and logs the
// new user straight in. The very first account registered becomes the
// administrator; every later one is a member.
func (a *AuthController) Register(ctx *gin.Context) {
	type request struct {
		Name     string `json:"name" binding:"required,min=1,max=250"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6,max=72"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" {
		utils.Error(ctx, http.StatusBadRequest, 40002, "name cannot be empty")
		return
	}

	var existing models.User
	if err := a.db.Where("email = ?", email).First(&existing).Error; err == nil {
		utils.Error(ctx, http.StatusConflict, 40901, "user already exists")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to check existing users")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to hash password")
		return
	}

	user := models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleMember,
	}

	// the count and create run in one transaction so concurrent first
	// registrations cannot both claim the admin role
	err = a.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			user.Role = models.RoleAdmin
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		// the unique index on email closes the check-then-create race
		if utils.IsUniqueViolation(err) {
			utils.Error(ctx, http.StatusConflict, 40901, "user already exists")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to create user")
		return
	}

	token, err := a.issueSession(ctx, user)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50005, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token": token,
		"user":  sanitizeUserResponse(user),
	})
}

// Login verifies credentials and opens a session. The error messages
// distinguish an unknown email from a wrong password, matching what the
// login form displays.
func (a *AuthController) Login(ctx *gin.Context) {
	type request struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	if err := a.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusUnauthorized, 40106, "User Not Found!")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to look up user")
		return
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "Password is Incorrect!")
		return
	}

	token, err := a.issueSession(ctx, user)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50007, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token": token,
		"user":  sanitizeUserResponse(user),
	})
}

// Logout revokes the current session token and clears the cookie. It is
// idempotent: logging out while already anonymous still succeeds.
func (a *AuthController) Logout(ctx *gin.Context) {
	if token := currentSessionToken(ctx); token != "" {
		expiresAt := time.Now().Add(sessionTTL())
		if claims, err := utils.ParseToken(token); err == nil && claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
		utils.BlacklistToken(token, expiresAt)
	}

	clearSessionCookie(ctx)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the authenticated user's full record.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50008, "failed to load user")
		return
	}

	utils.Success(ctx, gin.H{"user": sanitizeUserResponse(user)})
}

// issueSession generates a token for the user and installs it as the
// HttpOnly session cookie.
func (a *AuthController) issueSession(ctx *gin.Context, user models.User) (string, error) {
	ttl := sessionTTL()
	token, err := utils.GenerateToken(user.ID, user.Name, user.Role, ttl)
	if err != nil {
		return "", err
	}

	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(middleware.SessionCookieName, token, int(ttl.Seconds()), "/", "", false, true)
	return token, nil
}

func clearSessionCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(middleware.SessionCookieName, "", -1, "/", "", false, true)
}

func sessionTTL() time.Duration {
	return time.Duration(config.Get().SessionTTLHours) * time.Hour
}

// currentSessionToken mirrors the middleware's token extraction so logout
// can revoke whatever credential the request arrived with.
func currentSessionToken(ctx *gin.Context) string {
	if cookie, err := ctx.Cookie(middleware.SessionCookieName); err == nil && cookie != "" {
		return cookie
	}
	authHeader := ctx.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// sanitizeUserResponse shapes a user record for API output, leaving the
// password hash behind.
func sanitizeUserResponse(user models.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"name":       user.Name,
		"email":      user.Email,
		"role":       user.Role,
		"is_admin":   user.IsAdmin(),
		"created_at": user.CreatedAt,
	}
}
