package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/d60-Lab/followgraph/internal/followtype"
	"github.com/d60-Lab/followgraph/internal/model"
	"github.com/d60-Lab/followgraph/internal/service"
	"github.com/d60-Lab/followgraph/pkg/response"
)

// Handler HTTP 入口，只做参数绑定和错误映射
type Handler struct {
	followService service.FollowService
	registry      *followtype.Registry
}

func NewHandler(svc service.FollowService, registry *followtype.Registry) *Handler {
	return &Handler{followService: svc, registry: registry}
}

var errUnknownType = errors.New("unknown follow_type")

// module 解析 follow_type；"users" 与空串等价
func (h *Handler) module(raw string) (followtype.Module, error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, model.TypeUsers.String()) {
		raw = ""
	}
	m, ok := h.registry.Lookup(model.FollowType(raw))
	if !ok {
		return followtype.Module{}, errors.WithMessage(errUnknownType, raw)
	}
	return m, nil
}

func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidArgument),
		errors.Is(err, errUnknownType),
		errors.Is(err, followtype.ErrUnknownKind):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrAlreadyFollowing):
		response.Conflict(c, service.ErrAlreadyFollowing.Error())
	case errors.Is(err, service.ErrNotFollowing):
		response.Conflict(c, service.ErrNotFollowing.Error())
	default:
		response.InternalError(c, err)
	}
}
