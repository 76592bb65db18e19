package handlers

import (
	"errors"
	"log"
	"net/http"

	"chainvote-backend/service"

	"github.com/gin-gonic/gin"
)

// ErrorResponse 统一的错误响应
type ErrorResponse struct {
	Error    string `json:"error"`
	Field    string `json:"field,omitempty"`
	State    string `json:"state,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// respondError 把服务层错误映射为HTTP状态码
func respondError(c *gin.Context, err error) {
	var (
		verr *service.ValidationError
		aerr *service.AuthError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: verr.Message, Field: verr.Field})
	case errors.As(err, &aerr):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: aerr.Reason})
	case errors.Is(err, service.ErrDuplicateVote):
		c.JSON(http.StatusConflict, ErrorResponse{Error: service.DuplicateVoteMessage})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "election not found"})
	case errors.Is(err, service.ErrWriteFailed):
		// 存储层的错误信息原样返回
		log.Printf("写入失败: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	default:
		log.Printf("请求处理失败 %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// respondBindError 请求体格式错误
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error()})
}
