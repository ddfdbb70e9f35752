// Package server exposes the board over HTTP. Handlers stay thin: decode,
// call the engine, map errors into the envelope.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"taskboard/internal/app"
	"taskboard/internal/board"
	"taskboard/internal/engine"
)

// ExportFileName is the download name offered for board snapshots.
const ExportFileName = "kanban-board.json"

// Config for the HTTP API handler.
type Config struct {
	App      *app.App
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"capacity_exceeded"`
	Message string         `json:"message" example:"column in-progress is at its WIP limit of 3"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"column\":\"in-progress\",\"limit\":3}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the board API.
func New(cfg Config) (http.Handler, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("[%s] %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Taskboard API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerBoard(group, cfg.App.Engine)
	registerColumns(group, cfg.App.Engine)
	registerCards(group, cfg.App)
	registerUndo(group, cfg.App.Engine)
	registerSnapshots(group, cfg.App.Engine)
	registerTheme(group, cfg.App)
	registerActivity(group, cfg.App.Engine)
	registerOpenAPI(router, api, basePath, cfg.Auth)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var capErr board.CapacityError
	if errors.As(err, &capErr) {
		return newAPIError(http.StatusConflict, "capacity_exceeded", err.Error(), map[string]any{
			"column": capErr.Column,
			"limit":  capErr.Limit,
		})
	}
	var malformed board.MalformedError
	if errors.As(err, &malformed) {
		return newAPIError(http.StatusBadRequest, "malformed_board", err.Error(), nil)
	}
	switch {
	case errors.Is(err, board.ErrCardNotFound), errors.Is(err, board.ErrColumnNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, board.ErrEmptyText), errors.Is(err, board.ErrInvalidPriority):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "capacity_exceeded"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string, authCfg AuthConfig) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			if authCfg.Secret != "" {
				applyAuthSecurity(oas, basePath)
			}
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Taskboard API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerBoard(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-board",
		Method:      http.MethodGet,
		Path:        "/board",
		Summary:     "Full board snapshot",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body BoardResponse `json:"body"`
	}, error) {
		return &struct {
			Body BoardResponse `json:"body"`
		}{Body: boardResponse(e.Board(), e.Columns())}, nil
	})
}

func registerColumns(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-columns",
		Method:      http.MethodGet,
		Path:        "/columns",
		Summary:     "Column occupancy and admission",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ColumnStatusResponse `json:"body"`
	}, error) {
		infos := e.Columns()
		out := make([]ColumnStatusResponse, 0, len(infos))
		for _, info := range infos {
			out = append(out, ColumnStatusResponse{
				ID:        info.ID,
				Title:     info.Title,
				Limit:     info.Limit,
				Count:     info.Count,
				CanAccept: e.CanAccept(info.ID),
			})
		}
		return &struct {
			Body []ColumnStatusResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerCards(api huma.API, a *app.App) {
	e := a.Engine

	huma.Register(api, huma.Operation{
		OperationID:   "create-card",
		Method:        http.MethodPost,
		Path:          "/cards",
		Summary:       "Create card",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateCardRequest `json:"body"`
	}) (*struct {
		Body CardResponse `json:"body"`
	}, error) {
		card, err := e.AddCard(ctx, input.Body.Text, input.Body.Column)
		if err != nil {
			return nil, handleError(err)
		}
		column := input.Body.Column
		if column == "" {
			column = a.Config.DefaultColumnID()
		}
		return &struct {
			Body CardResponse `json:"body"`
		}{Body: cardResponse(card, column)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-card",
		Method:      http.MethodPatch,
		Path:        "/cards/{id}",
		Summary:     "Edit card text or priority",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateCardRequest `json:"body"`
	}) (*struct {
		Body CardResponse `json:"body"`
	}, error) {
		upd := engine.CardUpdate{Text: input.Body.Text}
		if input.Body.Priority != nil {
			p, err := board.ParsePriority(*input.Body.Priority)
			if err != nil {
				return nil, handleError(err)
			}
			upd.Priority = &p
		}
		card, err := e.UpdateCard(ctx, input.ID, upd)
		if err != nil {
			return nil, handleError(err)
		}
		_, column, _ := e.Board().Find(card.ID)
		return &struct {
			Body CardResponse `json:"body"`
		}{Body: cardResponse(card, column)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-card",
		Method:      http.MethodPost,
		Path:        "/cards/{id}/move",
		Summary:     "Move card to another column",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body MoveCardRequest `json:"body"`
	}) (*struct {
		Body CardResponse `json:"body"`
	}, error) {
		card, err := e.MoveCard(ctx, input.ID, input.Body.Column)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CardResponse `json:"body"`
		}{Body: cardResponse(card, input.Body.Column)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-card",
		Method:        http.MethodDelete,
		Path:          "/cards/{id}",
		Summary:       "Delete card",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if _, err := e.RemoveCard(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerUndo(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "undo",
		Method:      http.MethodPost,
		Path:        "/undo",
		Summary:     "Undo the most recent change",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UndoResponse `json:"body"`
	}, error) {
		undone, err := e.Undo(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UndoResponse `json:"body"`
		}{Body: UndoResponse{Undone: undone}}, nil
	})
}

func registerSnapshots(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "export-board",
		Method:      http.MethodGet,
		Path:        "/export",
		Summary:     "Download the board as a snapshot file",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		data, err := e.Export()
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{
			ContentType:        "application/json",
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", ExportFileName),
			Body:               data,
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "import-board",
		Method:        http.MethodPost,
		Path:          "/import",
		Summary:       "Replace the board from a snapshot",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		RawBody []byte
	}) (*struct{}, error) {
		if err := e.Import(ctx, input.RawBody); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTheme(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "get-theme",
		Method:      http.MethodGet,
		Path:        "/theme",
		Summary:     "Current UI theme",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ThemeResponse `json:"body"`
	}, error) {
		name, err := a.Theme(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ThemeResponse `json:"body"`
		}{Body: ThemeResponse{Theme: name}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-theme",
		Method:      http.MethodPut,
		Path:        "/theme",
		Summary:     "Persist the UI theme",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body SetThemeRequest `json:"body"`
	}) (*struct {
		Body ThemeResponse `json:"body"`
	}, error) {
		if err := a.SetTheme(ctx, input.Body.Theme); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &struct {
			Body ThemeResponse `json:"body"`
		}{Body: ThemeResponse{Theme: input.Body.Theme}}, nil
	})
}

func registerActivity(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "activity",
		Method:      http.MethodGet,
		Path:        "/activity",
		Summary:     "Recent operations, oldest first",
	}, func(ctx context.Context, input *struct {
		N int `query:"n" default:"20" minimum:"1" maximum:"1000"`
	}) (*struct {
		Body []ActivityEntryResponse `json:"body"`
	}, error) {
		entries, err := e.Activity(input.N)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]ActivityEntryResponse, 0, len(entries))
		for _, entry := range entries {
			out = append(out, ActivityEntryResponse{
				TS:     entry.TS,
				Op:     entry.Op,
				CardID: entry.CardID,
				Column: entry.Column,
				Detail: entry.Detail,
			})
		}
		return &struct {
			Body []ActivityEntryResponse `json:"body"`
		}{Body: out}, nil
	})
}
