package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/clibridge/internal/argv"
	"github.com/mattjoyce/clibridge/internal/history"
	"github.com/mattjoyce/clibridge/internal/invoke"
	"github.com/mattjoyce/clibridge/internal/response"
	"github.com/mattjoyce/clibridge/internal/spec"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		Program:       s.config.Title,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Operations:    len(s.invoker.Table().Operations()),
	})
}

// handleListOperations handles GET /operations.
func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	ops := s.invoker.Table().Operations()
	resp := OperationListResponse{Operations: make([]OperationSummary, 0, len(ops))}
	for _, op := range ops {
		params := op.Parameters()
		if params == nil {
			params = []invoke.Parameter{}
		}
		resp.Operations = append(resp.Operations, OperationSummary{
			Name:        op.Name,
			Description: op.Command.Description,
			Parameters:  params,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.config.Title, s.invoker.Table()))
}

// handleInvoke handles POST /invoke/{name...}. A process that ran and failed
// is still a 200; the envelope carries the failure.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name, in, ok := s.readInvocation(w, r)
	if !ok {
		return
	}

	resp, err := s.invoker.Run(r.Context(), name, in)
	if err != nil {
		s.writeInputError(w, name, err)
		return
	}

	setInvocationHeader(w, resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := response.Encode(w, resp); err != nil {
		s.logger.Error("failed to write response", "operation", name, "error", err)
	}
}

// handleCall handles POST /call/{name...}: the captured output as text on
// success, 502 with the error text otherwise.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	name, in, ok := s.readInvocation(w, r)
	if !ok {
		return
	}

	out, err := s.invoker.Call(r.Context(), name, in)
	var callErr *invoke.CallError
	switch {
	case errors.As(err, &callErr):
		setInvocationHeader(w, callErr.Response)
		w.Header().Set("X-Exit-Code", strconv.Itoa(callErr.Response.ExitCode))
		writeText(w, http.StatusBadGateway, callErr.Error())
	case err != nil:
		s.writeInputError(w, name, err)
	default:
		writeText(w, http.StatusOK, out)
	}
}

// handleListInvocations handles GET /invocations?limit=N.
func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list invocations", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list invocations")
		return
	}
	if entries == nil {
		entries = []*history.Entry{}
	}
	respondJSON(w, http.StatusOK, InvocationListResponse{Invocations: entries})
}

// handleGetInvocation handles GET /invocations/{id}.
func (s *Server) handleGetInvocation(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	id := chi.URLParam(r, "id")
	entry, err := s.history.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "invocation not found")
			return
		}
		s.logger.Error("failed to retrieve invocation", "invocation_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve invocation")
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// readInvocation extracts the operation name and input. Query parameters
// supply string values; the JSON body, when present, takes precedence.
func (s *Server) readInvocation(w http.ResponseWriter, r *http.Request) (string, invoke.Input, bool) {
	name, err := operationName(r)
	if err != nil || name == "" {
		s.writeError(w, http.StatusNotFound, "operation not found")
		return "", invoke.Input{}, false
	}

	in := invoke.Input{Values: make(map[string]any)}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			in.Values[k] = vs[len(vs)-1]
		}
	}

	if r.ContentLength != 0 {
		var req InvokeRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
		dec.UseNumber()
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return "", invoke.Input{}, false
		}
		for k, v := range req.Params {
			in.Values[k] = v
		}
		in.Args = req.Args
		if req.Timeout != "" {
			d, err := time.ParseDuration(req.Timeout)
			if err != nil || d < 0 {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid timeout %q", req.Timeout))
				return "", invoke.Input{}, false
			}
			in.Timeout = d
		}
	}
	return name, in, true
}

// operationName maps the wildcard path to an operation name. Both
// /invoke/task/add and /invoke/task%20add name "task add".
func operationName(r *http.Request) (string, error) {
	raw, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(strings.ReplaceAll(raw, "/", " ")), " "), nil
}

func (s *Server) writeInputError(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, spec.ErrUnknownCommand):
		s.writeError(w, http.StatusNotFound, "operation not found: "+name)
	case errors.Is(err, argv.ErrMissingArgument), errors.Is(err, argv.ErrInvalidParams):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("invocation failed before start", "operation", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func setInvocationHeader(w http.ResponseWriter, resp response.CliResponse) {
	if id := resp.Metadata[invoke.MetaInvocationID]; id != "" {
		w.Header().Set("X-Invocation-Id", id)
	}
}

func writeText(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = io.WriteString(w, body)
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
