package provider

import (
	"time"

	"github.com/user/llm-proxy-go/internal/apierr"
	"github.com/user/llm-proxy-go/internal/models"
)

// Factory builds and caches one Client per wire protocol, all sharing the
// same configured timeout.
type Factory struct {
	timeout time.Duration
	clients map[models.Protocol]Client
}

func NewFactory(timeout time.Duration) *Factory {
	f := &Factory{timeout: timeout, clients: make(map[models.Protocol]Client)}
	f.clients[models.ProtocolOpenAI] = NewOpenAIClient(timeout)
	f.clients[models.ProtocolOpenAIResponses] = NewOpenAIClient(timeout)
	f.clients[models.ProtocolAnthropic] = NewAnthropicClient(timeout)
	f.clients[models.ProtocolGemini] = NewGeminiClient(timeout)
	return f
}

// For returns the Client that speaks protocol, or a ServiceError if it's
// unrecognized — this should only happen for a malformed Provider row,
// since GetFrontendProtocolConfig already validates the alias at config
// time.
func (f *Factory) For(protocol models.Protocol) (Client, error) {
	c, ok := f.clients[protocol]
	if !ok {
		return nil, apierr.ServiceError("no provider client for protocol '"+string(protocol)+"'", "unsupported_protocol")
	}
	return c, nil
}
