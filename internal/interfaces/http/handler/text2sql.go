package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/marshnicholas123/nlq-demo/internal/application/agent"
	"github.com/marshnicholas123/nlq-demo/internal/application/text2sql"
	"github.com/marshnicholas123/nlq-demo/internal/application/tools"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
	"github.com/marshnicholas123/nlq-demo/internal/interfaces/http/response"
)

// 错误码
const (
	codeInvalidRequest = 400001
	codeGenerateFailed = 500001
	codeAgentFailed    = 500002
	codeStorageFailed  = 500003
	codeRunNotFound    = 404001
)

// Text2SQLHandler 自然语言转 SQL 处理器
type Text2SQLHandler struct {
	service      *text2sql.Service
	orchestrator *agent.Orchestrator
	registry     *tools.Registry
	answer       bool
	logger       *slog.Logger
}

// NewText2SQLHandler 创建处理器
func NewText2SQLHandler(
	service *text2sql.Service,
	orchestrator *agent.Orchestrator,
	registry *tools.Registry,
	cfg *config.AgentConfig,
) *Text2SQLHandler {
	return &Text2SQLHandler{
		service:      service,
		orchestrator: orchestrator,
		registry:     registry,
		answer:       cfg.AnswerWithSummary,
		logger:       log.NewModuleLogger("text2sql", "handler"),
	}
}

// GenerateRequest simple / advanced 请求
type GenerateRequest struct {
	Query   string `json:"query" binding:"required"`
	Execute bool   `json:"execute,omitempty"` // 生成后立即执行
	Answer  bool   `json:"answer,omitempty"`  // 执行后生成自然语言回答
}

// ChatRequest 对话请求
type ChatRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
	Execute   bool   `json:"execute,omitempty"`
	Answer    bool   `json:"answer,omitempty"`
}

// AgenticRequest 智能体请求
type AgenticRequest struct {
	Query         string `json:"query" binding:"required"`
	SessionID     string `json:"session_id,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
	Answer        *bool  `json:"answer,omitempty"` // 为空时使用配置
}

// ExecuteRequest 执行请求
type ExecuteRequest struct {
	SQL string `json:"sql" binding:"required"`
}

// Simple 仅基于表结构生成 SQL
// @Summary 简单生成
// @Tags text2sql
// @Accept json
// @Produce json
// @Param body body GenerateRequest true "请求"
// @Success 200 {object} response.Response{data=text2sql.Result}
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /text2sql/simple [post]
func (h *Text2SQLHandler) Simple(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, codeInvalidRequest, "invalid request: "+err.Error())
		return
	}
	res, err := h.service.GenerateSimple(c.Request.Context(), req.Query)
	h.finish(c, res, err, req.Execute, req.Answer)
}

// Advanced 基于业务规则、表结构与样例数据生成 SQL
// @Summary 增强生成
// @Tags text2sql
// @Accept json
// @Produce json
// @Param body body GenerateRequest true "请求"
// @Success 200 {object} response.Response{data=text2sql.Result}
// @Router /text2sql/advanced [post]
func (h *Text2SQLHandler) Advanced(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, codeInvalidRequest, "invalid request: "+err.Error())
		return
	}
	res, err := h.service.GenerateAdvanced(c.Request.Context(), req.Query)
	h.finish(c, res, err, req.Execute, req.Answer)
}

// Chat 带会话上下文生成 SQL
// @Summary 对话生成
// @Tags text2sql
// @Accept json
// @Produce json
// @Param body body ChatRequest true "请求"
// @Success 200 {object} response.Response{data=text2sql.Result}
// @Router /text2sql/chat [post]
func (h *Text2SQLHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, codeInvalidRequest, "invalid request: "+err.Error())
		return
	}
	res, err := h.service.GenerateChat(c.Request.Context(), req.Query, req.SessionID)
	h.finish(c, res, err, req.Execute, req.Answer)
}

// ClearChat 清空会话历史，未知会话同样成功
// @Summary 清空会话
// @Tags text2sql
// @Param session_id path string true "会话 ID"
// @Success 200 {object} response.Response
// @Router /text2sql/chat/{session_id} [delete]
func (h *Text2SQLHandler) ClearChat(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := h.service.ClearSession(c.Request.Context(), sessionID); err != nil {
		response.Error(c, http.StatusInternalServerError, codeStorageFailed, "failed to clear session: "+err.Error())
		return
	}
	response.Success(c, gin.H{"session_id": sessionID, "cleared": true})
}

// Agentic 智能体生成
// @Summary 智能体生成
// @Tags text2sql
// @Accept json
// @Produce json
// @Param body body AgenticRequest true "请求"
// @Success 200 {object} response.Response{data=agent.Response}
// @Router /text2sql/agentic [post]
func (h *Text2SQLHandler) Agentic(c *gin.Context) {
	var req AgenticRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, codeInvalidRequest, "invalid request: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	resp, err := h.orchestrator.Run(ctx, agent.Request{
		Query:         req.Query,
		SessionID:     req.SessionID,
		MaxIterations: req.MaxIterations,
	})
	if err != nil {
		if errors.Is(err, text2sql.ErrEmptyQuery) {
			response.Error(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, codeAgentFailed, "agent run failed: "+err.Error())
		return
	}

	answer := h.answer
	if req.Answer != nil {
		answer = *req.Answer
	}
	if answer && resp.Success {
		resp.Answer = h.service.Summarize(ctx, req.Query, resp.SQL, resp.ExecutionResult)
	}
	response.Success(c, resp)
}

// Tools 列出工具
// @Summary 工具列表
// @Tags text2sql
// @Success 200 {object} response.Response{data=[]tools.Info}
// @Router /text2sql/tools [get]
func (h *Text2SQLHandler) Tools(c *gin.Context) {
	response.Success(c, h.registry.List())
}

// Execute 执行 SQL，执行失败以结果返回
// @Summary 执行 SQL
// @Tags text2sql
// @Accept json
// @Produce json
// @Param body body ExecuteRequest true "请求"
// @Success 200 {object} response.Response
// @Router /text2sql/execute [post]
func (h *Text2SQLHandler) Execute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, codeInvalidRequest, "invalid request: "+err.Error())
		return
	}
	response.Success(c, h.service.Execute(c.Request.Context(), req.SQL))
}

// ListRuns 最近的智能体运行记录
// @Summary 运行记录
// @Tags text2sql
// @Param limit query int false "条数，默认 50"
// @Success 200 {object} response.Response
// @Router /text2sql/runs [get]
func (h *Text2SQLHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := h.service.ListRuns(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, codeStorageFailed, "failed to list runs: "+err.Error())
		return
	}
	response.Success(c, runs)
}

// GetRun 查询单条运行记录
// @Summary 运行详情
// @Tags text2sql
// @Param id path string true "运行 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /text2sql/runs/{id} [get]
func (h *Text2SQLHandler) GetRun(c *gin.Context) {
	id := c.Param("id")
	run, err := h.service.GetRun(c.Request.Context(), id)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, codeStorageFailed, "failed to load run: "+err.Error())
		return
	}
	if run == nil {
		response.ErrorWithDetail(c, http.StatusNotFound, codeRunNotFound, "run not found", id)
		return
	}
	response.Success(c, run)
}

// finish 生成结果的公共收尾：可选执行与回答
func (h *Text2SQLHandler) finish(c *gin.Context, res *text2sql.Result, err error, execute, answer bool) {
	if err != nil {
		if errors.Is(err, text2sql.ErrEmptyQuery) {
			response.Error(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
			return
		}
		log.FromContext(c.Request.Context(), h.logger).Error("SQL generation failed", "error", err)
		response.Error(c, http.StatusInternalServerError, codeGenerateFailed, "sql generation failed: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	if execute || answer {
		res.ExecutionResult = h.service.Execute(ctx, res.SQL)
	}
	if answer {
		res.Answer = h.service.Summarize(ctx, res.Query, res.SQL, res.ExecutionResult)
	}
	response.Success(c, res)
}
