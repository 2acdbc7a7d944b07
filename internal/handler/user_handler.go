// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"layla-insight-go/internal/service"
	"layla-insight-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UserHandler 负责处理用户注册、登录、资料等 API 请求。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// CredentialsRequest 是注册和登录共用的请求体。
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

// Register 处理用户注册请求。
func (h *UserHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：用户名和密码（至少 6 位）不能为空")
		return
	}

	user, err := h.userService.Register(req.Username, req.Password)
	if err != nil {
		log.Warnf("Register: 用户注册失败, username: %s, error: %v", req.Username, err)
		badRequest(c, err.Error())
		return
	}

	log.Infof("用户注册成功: %s", user.Username)
	ok(c, "注册成功", user)
}

// Login 处理用户登录请求，签发 access token 和 refresh token。
func (h *UserHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载")
		return
	}

	accessToken, refreshToken, err := h.userService.Login(req.Username, req.Password)
	if err != nil {
		log.Warnf("Login: 登录失败, username: %s, error: %v", req.Username, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "用户名或密码错误"})
		return
	}

	ok(c, "登录成功", gin.H{
		"token":        accessToken,
		"refreshToken": refreshToken,
	})
}

// Profile 返回当前登录用户的资料。
func (h *UserHandler) Profile(c *gin.Context) {
	user, exists := currentUser(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未登录"})
		return
	}
	ok(c, "success", user)
}

// Logout 处理登出请求，将当前 token 加入黑名单。
func (h *UserHandler) Logout(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == "" {
		badRequest(c, "缺少授权头")
		return
	}

	if err := h.userService.Logout(tokenString); err != nil {
		log.Errorf("Logout: 登出失败, error: %v", err)
		serverError(c, "登出失败")
		return
	}
	ok(c, "登出成功", nil)
}

// ListUsers 分页返回用户列表，仅管理员可用。
func (h *UserHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	users, total, err := h.userService.ListUsers(page, size)
	if err != nil {
		log.Errorf("ListUsers: 查询用户列表失败, error: %v", err)
		serverError(c, "查询用户列表失败")
		return
	}
	ok(c, "success", gin.H{
		"users": users,
		"total": total,
		"page":  page,
		"size":  size,
	})
}
