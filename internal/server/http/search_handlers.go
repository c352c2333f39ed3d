package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/paperscope/discovery-service/internal/domain"
	"github.com/paperscope/discovery-service/internal/engine"
)

// maxRequestBodySize bounds search request bodies.
const maxRequestBodySize = 1 << 20 // 1 MB

// searchRequest is the JSON request body for the unified search endpoint.
type searchRequest struct {
	Query    string `json:"query" validate:"required,min=2,max=500"`
	Category string `json:"category" validate:"omitempty,oneof=ai_cs biomed physics math social_sciences general"`
	Mode     string `json:"mode" validate:"omitempty,oneof=auto quick ai"`
	Limit    int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

// searchPapers handles POST /api/v1/search. It runs the unified search
// pipeline and returns the merged, deduplicated result set.
func (s *Server) searchPapers(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req searchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	resp, err := s.search.Search(r.Context(), engine.SearchRequest{
		Query:    req.Query,
		Category: domain.Category(req.Category),
		Mode:     domain.SearchMode(req.Mode),
		Limit:    req.Limit,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, engineResponseToSearchResponse(resp))
}

// validationMessage renders the first field failure of a validator error.
// Request field values are never echoed back.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
