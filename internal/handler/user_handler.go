package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"taskboard/internal/auth"
	"taskboard/internal/model"
	"taskboard/internal/permission"
	"taskboard/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type UserHandler struct {
	repo   repository.UserRepositoryInterface
	secret string
	ttl    time.Duration
	log    *logrus.Entry
}

func NewUserHandler(repo repository.UserRepositoryInterface, secret string, ttl time.Duration, log *logrus.Entry) *UserHandler {
	return &UserHandler{repo: repo, secret: secret, ttl: ttl, log: log}
}

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"first_name" binding:"required,min=2"`
	LastName  string `json:"last_name" binding:"required"`
	Password  string `json:"password" binding:"required,min=6"`
}

type CreateUserRequest struct {
	RegisterRequest
	Role string `json:"role" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// Register godoc
// @Summary      Register a user
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        body  body      RegisterRequest  true  "New user"
// @Success      201   {object}  AuthResponse
// @Failure      409   {object}  map[string]string
// @Router       /register [post]
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	h.create(c, req, permission.RoleUser)
}

// CreateUser lets admins create accounts with an explicit role.
func (h *UserHandler) CreateUser(c *gin.Context) {
	gate, ok := actor(c)
	if !ok {
		return
	}
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	role := permission.ParseRole(req.Role)
	if !role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown role"})
		return
	}
	if !gate.CanCreateRole(role) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You don't have permission to create users with this role"})
		return
	}
	h.create(c, req.RegisterRequest, role)
}

func (h *UserHandler) create(c *gin.Context, req RegisterRequest, role permission.Role) {
	ctx := c.Request.Context()
	req.Email = strings.ToLower(req.Email)

	existing, err := h.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB error"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "User with this email already exists"})
		return
	}

	roleRow, err := h.repo.RoleByName(ctx, string(role))
	if err != nil {
		h.log.WithError(err).WithField("role", role).Error("role lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Role lookup failed"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Hash error"})
		return
	}

	user := &model.User{
		ID:             uuid.New(),
		Email:          req.Email,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		HashedPassword: string(hash),
		RoleID:         roleRow.ID,
		Status:         true,
		Role:           *roleRow,
	}
	if err := h.repo.Create(ctx, user); err != nil {
		h.log.WithError(err).Error("user create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Create failed"})
		return
	}
	h.log.WithFields(logrus.Fields{"user_id": user.ID, "role": role}).Info("user created")

	resp, err := h.authResponse(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token error"})
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Login godoc
// @Summary      Log in
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        body  body      LoginRequest  true  "Credentials"
// @Success      200   {object}  AuthResponse
// @Failure      401   {object}  map[string]string
// @Router       /login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	user, err := h.repo.FindByEmail(c.Request.Context(), strings.ToLower(req.Email))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB error"})
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if !user.Status {
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
		return
	}

	resp, err := h.authResponse(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Me returns the authenticated user.
func (h *UserHandler) Me(c *gin.Context) {
	gate, ok := actor(c)
	if !ok {
		return
	}
	user, err := h.repo.GetByID(c.Request.Context(), gate.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB error"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *UserHandler) authResponse(user *model.User) (AuthResponse, error) {
	token, err := auth.GenerateToken(h.secret, auth.Subject{
		UserID:    user.ID,
		Role:      user.Role.Name,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}, h.ttl)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("token generation failed: %w", err)
	}
	return AuthResponse{Token: token, User: toUserResponse(user)}, nil
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:        u.ID.String(),
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role.Name,
	}
}
