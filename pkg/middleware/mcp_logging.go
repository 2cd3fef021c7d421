package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/logging"
)

// maxLoggedArgLength caps tool argument values in logs. Questions can be long.
const maxLoggedArgLength = 200

// MCPRequestLogger returns middleware that logs MCP JSON-RPC tool calls with
// their outcome. Request bodies are restored before the MCP server reads
// them. Pass nil logger to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var call toolCall
			if err := json.Unmarshal(body, &call); err != nil {
				logger.Debug("MCP request is not JSON-RPC", zap.Error(err))
			}

			recorder := &bodyRecorder{responseWriter: wrap(w), body: &bytes.Buffer{}}
			start := time.Now()
			next.ServeHTTP(recorder, r)

			fields := []zap.Field{
				zap.String("method", call.Method),
				zap.String("tool", call.Params.Name),
				zap.Any("arguments", redactArguments(call.Params.Arguments)),
				zap.Int("status", recorder.statusCode),
				zap.Duration("duration", time.Since(start)),
			}

			var reply toolReply
			if err := json.Unmarshal(recorder.body.Bytes(), &reply); err == nil {
				if reply.Error != nil {
					fields = append(fields,
						zap.Int("error_code", reply.Error.Code),
						zap.String("error_message", reply.Error.Message))
					logger.Debug("MCP call failed", fields...)
					return
				}
				if reply.Result.IsError {
					fields = append(fields, zap.Bool("tool_error", true))
				}
			}
			logger.Debug("MCP call", fields...)
		})
	}
}

type toolCall struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type toolReply struct {
	Result struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// bodyRecorder tees the response body for inspection after the call.
type bodyRecorder struct {
	*responseWriter
	body *bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.responseWriter.Write(b)
}

// redactArguments hides credential-looking arguments and truncates the rest.
func redactArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	out := make(map[string]any, len(args))
	for k, v := range args {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "password") || strings.Contains(lower, "secret") ||
			strings.Contains(lower, "token") || strings.Contains(lower, "key") {
			out[k] = logging.RedactedText
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = logging.TruncateString(s, maxLoggedArgLength)
			continue
		}
		out[k] = v
	}
	return out
}
