package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/perfettosql/internal/registry"
	"github.com/leapstack-labs/perfettosql/pkg/source"
)

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	SQL  string `json:"sql"`
	Name string `json:"name,omitempty"`
}

// QueryResponse is the result of the last statement of a query.
type QueryResponse struct {
	Statements           int      `json:"statements"`
	StatementsWithOutput int      `json:"statements_with_output"`
	Columns              []string `json:"columns"`
	Rows                 [][]any  `json:"rows"`
}

// ErrorResponse describes a failed request.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the error kind and, for query errors, the traceback.
type ErrorBody struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Traceback string `json:"traceback,omitempty"`
}

// MacroInfo describes a registered macro.
type MacroInfo struct {
	Name    string      `json:"name"`
	Params  []ParamInfo `json:"params"`
	Returns string      `json:"returns"`
	Body    string      `json:"body,omitempty"`
}

// ParamInfo is a macro parameter.
type ParamInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ObjectInfo describes a schema object.
type ObjectInfo struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Module string `json:"module,omitempty"`
}

// ModuleInfo describes an includable module.
type ModuleInfo struct {
	Key      string `json:"key"`
	Path     string `json:"path"`
	Included bool   `json:"included"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "request", err.Error(), "")
		return
	}
	var req QueryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "request", "invalid JSON body: "+err.Error(), "")
		return
	}
	if req.SQL == "" {
		writeError(w, http.StatusBadRequest, "request", "sql is required", "")
		return
	}
	if req.Name == "" {
		req.Name = "query"
	}

	s.mu.Lock()
	res, err := s.engine.ExecuteString(r.Context(), req.Name, req.SQL)
	s.mu.Unlock()

	if err != nil {
		var se *source.Error
		if errors.As(err, &se) {
			writeError(w, http.StatusBadRequest, se.Kind.String(), se.Msg, se.Traceback)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), "")
		return
	}

	resp := QueryResponse{
		Statements:           res.Stats.StatementCount,
		StatementsWithOutput: res.Stats.StatementCountWithOutput,
		Columns:              res.Columns,
		Rows:                 make([][]any, len(res.Rows)),
	}
	if resp.Columns == nil {
		resp.Columns = []string{}
	}
	for i, row := range res.Rows {
		out := make([]any, len(row))
		for j, v := range row {
			out[j] = v.Any()
		}
		resp.Rows[i] = out
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMacros(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	macros := s.engine.Macros()
	out := make([]MacroInfo, 0, macros.Len())
	for _, name := range macros.Names() {
		if info, ok := s.macroInfo(name, false); ok {
			out = append(out, info)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMacro(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	info, ok := s.macroInfo(name, true)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "request", "macro "+name+" not found", "")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) macroInfo(name string, withBody bool) (MacroInfo, bool) {
	m, ok := s.engine.Macros().Lookup(name)
	if !ok {
		return MacroInfo{}, false
	}
	info := MacroInfo{Name: m.Name, Returns: m.Returns, Params: make([]ParamInfo, len(m.Params))}
	for i, p := range m.Params {
		info.Params[i] = ParamInfo{Name: p.Name, Type: p.Type}
	}
	if withBody && m.Body != nil {
		info.Body = m.Body.Rewritten()
	}
	return info, true
}

func (s *Server) handleObjects(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := s.engine.Registry()
	out := []ObjectInfo{}
	for _, k := range []registry.Kind{registry.KindTable, registry.KindView, registry.KindFunction, registry.KindIndex} {
		for _, obj := range reg.Objects(k) {
			out = append(out, ObjectInfo{Kind: k.String(), Name: obj.Name, Module: obj.Module})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleModules(w http.ResponseWriter, _ *http.Request) {
	set := s.engine.Modules()
	out := []ModuleInfo{}
	for _, m := range set.Modules() {
		out = append(out, ModuleInfo{Key: m.Key, Path: m.Path, Included: set.Included(m.Key)})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg, traceback string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Kind: kind, Message: msg, Traceback: traceback}})
}
