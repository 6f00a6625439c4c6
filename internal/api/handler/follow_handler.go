package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/followgraph/internal/api/middleware"
	"github.com/d60-Lab/followgraph/internal/model"
	"github.com/d60-Lab/followgraph/pkg/response"
)

type followRequest struct {
	LeaderID   int64  `json:"leader_id" binding:"required,gt=0"`
	FollowType string `json:"follow_type"`
}

type buttonsRequest struct {
	LeaderIDs  []int64 `json:"leader_ids" binding:"required,min=1,max=500,dive,gt=0"`
	FollowType string  `json:"follow_type"`
}

type listQuery struct {
	FollowType string `form:"follow_type"`
	Page       int    `form:"page"`
	PerPage    int    `form:"per_page"`
	OrderBy    string `form:"order_by"`
	Order      string `form:"order"`
	After      string `form:"after"`
	Before     string `form:"before"`
	Inclusive  bool   `form:"inclusive"`
}

func (q listQuery) options() model.QueryOptions {
	opts := model.QueryOptions{Page: q.Page, PerPage: q.PerPage, OrderBy: q.OrderBy, Order: q.Order}
	if q.After != "" || q.Before != "" {
		opts.Date = &model.DateQuery{After: q.After, Before: q.Before, Inclusive: q.Inclusive}
	}
	return opts
}

// Follow 当前用户关注 leader
// @Summary 关注
// @Tags 关注
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body followRequest true "关注对象"
// @Success 201 {object} response.Response{data=model.Follow}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/follows [post]
func (h *Handler) Follow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.module(req.FollowType)
	if err != nil {
		fail(c, err)
		return
	}
	uid, _ := middleware.UserID(c)
	edge, err := h.followService.StartFollowing(c.Request.Context(), req.LeaderID, uid, m.Type)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, edge)
}

// Unfollow 取消关注
// @Summary 取消关注
// @Tags 关注
// @Accept json
// @Security BearerAuth
// @Param request body followRequest true "关注对象"
// @Success 204
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/follows [delete]
func (h *Handler) Unfollow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.module(req.FollowType)
	if err != nil {
		fail(c, err)
		return
	}
	uid, _ := middleware.UserID(c)
	if err := h.followService.StopFollowing(c.Request.Context(), req.LeaderID, uid, m.Type); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Status 当前用户是否关注 leader
// @Summary 关注状态
// @Tags 关注
// @Produce json
// @Security BearerAuth
// @Param leader_id query int true "leader id"
// @Param follow_type query string false "关注类型" default()
// @Success 200 {object} response.Response{data=map[string]bool}
// @Router /api/v1/follows/status [get]
func (h *Handler) Status(c *gin.Context) {
	leaderID, err := strconv.ParseInt(c.Query("leader_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "leader_id must be an integer")
		return
	}
	m, err := h.module(c.Query("follow_type"))
	if err != nil {
		fail(c, err)
		return
	}
	uid, _ := middleware.UserID(c)
	following, err := h.followService.IsFollowing(c.Request.Context(), leaderID, uid, m.Type)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"following": following})
}

// Buttons 批量渲染关注按钮，一次查询
// @Summary 批量关注按钮
// @Tags 关注
// @Accept json
// @Produce json
// @Param request body buttonsRequest true "leader 列表"
// @Success 200 {object} response.Response{data=[]followtype.Button}
// @Router /api/v1/follows/buttons [post]
func (h *Handler) Buttons(c *gin.Context) {
	var req buttonsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.module(req.FollowType)
	if err != nil {
		fail(c, err)
		return
	}
	viewer, _ := middleware.UserID(c)
	buttons, err := m.Buttons(c.Request.Context(), h.followService, req.LeaderIDs, viewer)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, buttons)
}

// Followers 查询对象的粉丝
// @Summary 粉丝列表
// @Tags 对象
// @Produce json
// @Param id path int true "对象 id"
// @Param follow_type query string false "关注类型"
// @Param page query int false "页码"
// @Param per_page query int false "每页数量，0 表示不分页"
// @Param order_by query string false "id|date_recorded|leader_id|follower_id"
// @Param order query string false "ASC|DESC"
// @Param after query string false "起始时间，支持 '1 day ago'"
// @Param before query string false "截止时间"
// @Param inclusive query bool false "包含边界"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/objects/{id}/followers [get]
func (h *Handler) Followers(c *gin.Context) {
	h.list(c, true)
}

// Following 查询对象关注的 leader
// @Summary 关注列表
// @Tags 对象
// @Produce json
// @Param id path int true "对象 id"
// @Param follow_type query string false "关注类型"
// @Param page query int false "页码"
// @Param per_page query int false "每页数量，0 表示不分页"
// @Param order_by query string false "id|date_recorded|leader_id|follower_id"
// @Param order query string false "ASC|DESC"
// @Param after query string false "起始时间"
// @Param before query string false "截止时间"
// @Param inclusive query bool false "包含边界"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/objects/{id}/following [get]
func (h *Handler) Following(c *gin.Context) {
	h.list(c, false)
}

func (h *Handler) list(c *gin.Context, followers bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "id must be an integer")
		return
	}
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.module(q.FollowType)
	if err != nil {
		fail(c, err)
		return
	}
	opts := q.options()
	var ids []int64
	if followers {
		ids, err = h.followService.GetFollowers(c.Request.Context(), id, m.Type, opts)
	} else {
		ids, err = h.followService.GetFollowing(c.Request.Context(), id, m.Type, opts)
	}
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"page": opts.Page, "per_page": opts.PerPage, "list": ids})
}

// Counts 粉丝数与关注数
// @Summary 计数
// @Tags 对象
// @Produce json
// @Param id path int true "对象 id"
// @Param follow_type query string false "关注类型"
// @Success 200 {object} response.Response{data=model.Counts}
// @Router /api/v1/objects/{id}/counts [get]
func (h *Handler) Counts(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "id must be an integer")
		return
	}
	m, err := h.module(c.Query("follow_type"))
	if err != nil {
		fail(c, err)
		return
	}
	counts, err := h.followService.GetCounts(c.Request.Context(), id, m.Type)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, counts)
}

type entityRemovedRequest struct {
	Entity string `json:"entity" binding:"required"`
	ID     int64  `json:"id" binding:"required,gt=0"`
}

// EntityRemoved 宿主系统删除实体后的回调
// @Summary 实体删除通知
// @Tags 宿主
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body entityRemovedRequest true "被删除的实体"
// @Success 200 {object} response.Response{data=map[string]int}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /api/v1/entities/removed [post]
func (h *Handler) EntityRemoved(c *gin.Context) {
	var req entityRemovedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	n, err := h.registry.EntityRemoved(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Entity)), req.ID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"removed": n})
}
