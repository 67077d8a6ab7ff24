package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/user/llm-proxy-go/internal/apierr"
	"github.com/user/llm-proxy-go/internal/api/middleware"
	"github.com/user/llm-proxy-go/internal/models"
	"github.com/user/llm-proxy-go/internal/repository"
	"github.com/user/llm-proxy-go/internal/service"
	"go.uber.org/zap"
)

// ProxyHandler renders spec.md §6's ingress endpoint table: OpenAI-
// compatible chat/completions/embeddings, the Anthropic messages endpoint,
// and a synthesized models listing. All five share the same
// authenticate-parse-forward shape and differ only in wire protocol and
// path.
type ProxyHandler struct {
	proxyService *service.ProxyService
	mappingRepo  repository.ModelMappingRepository
	logger       *zap.Logger
}

func NewProxyHandler(ps *service.ProxyService, mappingRepo repository.ModelMappingRepository, logger *zap.Logger) *ProxyHandler {
	return &ProxyHandler{proxyService: ps, mappingRepo: mappingRepo, logger: logger}
}

// ChatCompletions handles POST /v1/chat/completions.
func (h *ProxyHandler) ChatCompletions(c *gin.Context) {
	h.forward(c, models.ProtocolOpenAI)
}

// Completions handles POST /v1/completions.
func (h *ProxyHandler) Completions(c *gin.Context) {
	h.forward(c, models.ProtocolOpenAI)
}

// Embeddings handles POST /v1/embeddings.
func (h *ProxyHandler) Embeddings(c *gin.Context) {
	h.forward(c, models.ProtocolOpenAI)
}

// Messages handles POST /v1/messages.
func (h *ProxyHandler) Messages(c *gin.Context) {
	h.forward(c, models.ProtocolAnthropic)
}

// Models handles GET /v1/models: a non-proxied, synthesized listing of the
// requested_model names this gateway is configured for.
func (h *ProxyHandler) Models(c *gin.Context) {
	mappings, err := h.mappingRepo.FindAll(c.Request.Context())
	if err != nil {
		writeAppError(c, apierr.Internal("failed to load configured models", "model_list_failed"))
		return
	}

	data := make([]gin.H, 0, len(mappings))
	for _, m := range mappings {
		if !m.IsActive {
			continue
		}
		data = append(data, gin.H{
			"id":       m.RequestedModel,
			"object":   "model",
			"owned_by": "llm-proxy-go",
		})
	}

	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

// forward parses the request body and runs it through ProxyService,
// streaming the response when the client requested it.
func (h *ProxyHandler) forward(c *gin.Context, protocol models.Protocol) {
	apiKey := middleware.AuthenticatedAPIKey(c)

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeAppError(c, apierr.ValidationError("failed to read request body", "invalid_body"))
		return
	}

	var body map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			writeAppError(c, apierr.ValidationError("request body is not valid JSON", "invalid_json"))
			return
		}
	}

	req := service.ProxyRequest{
		APIKeyName:      apiKeyName(apiKey),
		RequestProtocol: protocol,
		Path:            c.Request.URL.Path,
		Method:          c.Request.Method,
		Headers:         c.Request.Header,
		Body:            body,
	}
	if apiKey != nil {
		req.APIKeyID = &apiKey.ID
	}

	streaming, _ := body["stream"].(bool)
	if streaming {
		h.forwardStream(c, req)
		return
	}

	resp, err := h.proxyService.ProcessRequest(c.Request.Context(), req)
	if err != nil {
		if appErr, ok := err.(*apierr.AppError); ok {
			writeAppError(c, appErr)
			return
		}
		writeAppError(c, apierr.Internal(err.Error(), "proxy_failed"))
		return
	}

	writeProxyHeaders(c, resp)
	c.Data(resp.StatusCode, "application/json", resp.Body)
}

func (h *ProxyHandler) forwardStream(c *gin.Context, req service.ProxyRequest) {
	resp, chunks, err := h.proxyService.ProcessRequestStream(c.Request.Context(), req)
	if err != nil {
		if appErr, ok := err.(*apierr.AppError); ok {
			writeAppError(c, appErr)
			return
		}
		writeAppError(c, apierr.Internal(err.Error(), "proxy_stream_failed"))
		return
	}
	if chunks == nil {
		// Candidates were exhausted before any stream connection succeeded;
		// resp carries a synthesized error body.
		c.Data(resp.StatusCode, "application/json", resp.Body)
		return
	}

	writeProxyHeaders(c, resp)
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(resp.StatusCode)
	c.Writer.Flush()

	for chunk := range chunks {
		if chunk.Err != nil {
			h.logger.Warn("stream relay error", zap.Error(chunk.Err))
			return
		}
		if len(chunk.Data) > 0 {
			if _, err := c.Writer.Write(chunk.Data); err != nil {
				h.logger.Warn("failed to write stream chunk", zap.Error(err))
				return
			}
			c.Writer.Flush()
		}
		if chunk.Done {
			return
		}
	}
}

// writeProxyHeaders sets spec.md §6's downstream response headers: trace
// id, target model, provider, plus the sanitized upstream header copy.
func writeProxyHeaders(c *gin.Context, resp service.ProxyResponse) {
	c.Header("X-Trace-ID", resp.TraceID)
	c.Header("X-Target-Model", resp.TargetModel)
	c.Header("X-Provider", resp.ProviderName)
	for k, vs := range resp.Headers {
		for _, v := range vs {
			c.Writer.Header().Add(k, v)
		}
	}
}

func apiKeyName(k *models.APIKey) string {
	if k == nil {
		return ""
	}
	return k.KeyName
}
