package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/chunkforge/chunkforge/engine/chunking"
	"github.com/chunkforge/chunkforge/engine/domain"
	"github.com/chunkforge/chunkforge/engine/extract"
	"github.com/chunkforge/chunkforge/engine/ingest"
	"github.com/chunkforge/chunkforge/engine/search"
	"github.com/chunkforge/chunkforge/engine/semantic"
	"github.com/chunkforge/chunkforge/engine/store"
	"github.com/chunkforge/chunkforge/engine/vectorize"
	"github.com/chunkforge/chunkforge/pkg/metrics"
)

// maxUploadBytes bounds multipart uploads held in memory.
const maxUploadBytes = 32 << 20

type apiServer struct {
	store     *store.Store
	extractor *extract.Extractor
	writer    *ingest.Writer
	preparer  *ingest.Preparer
	pipeline  *vectorize.Pipeline
	searcher  *search.Engine
	vectors   *semantic.VectorStore
	nats      *nats.Conn
	metrics   *metrics.Registry
	log       *slog.Logger
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context(), ownerID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *apiServer) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	project, err := s.store.GetProject(r.Context(), id, ownerID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	chunks, err := s.store.ListChunks(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if chunks == nil {
		chunks = []domain.Chunk{}
	}
	writeJSON(w, http.StatusOK, struct {
		domain.Project
		Chunks []domain.Chunk `json:"chunks"`
	}{Project: *project, Chunks: chunks})
}

func (s *apiServer) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.store.DeleteProject(r.Context(), id, ownerID(r)); err != nil {
		s.respondError(w, err)
		return
	}
	if s.vectors != nil {
		if err := s.vectors.DeleteByProject(r.Context(), id); err != nil {
			s.log.Warn("vector index cleanup failed", "project", id, "err", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleVectorize(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	project, err := s.store.GetProject(r.Context(), id, ownerID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	res, err := s.pipeline.VectorizeProject(r.Context(), project)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.metrics.Counter("vectorize_chunks_total", "Chunks vectorized").Add(int64(res.Processed))
	writeJSON(w, http.StatusOK, res)
}

// SearchRequest is the JSON body for POST /api/search. Clients send
// projectId as a JSON number; the string form the project listing emits
// is accepted too.
type SearchRequest struct {
	Query      string `json:"query"`
	ProjectID  jsonID `json:"projectId"`
	MatchCount int    `json:"matchCount"`
}

// jsonID is an int64 that unmarshals from both numeric and quoted JSON.
type jsonID int64

func (id *jsonID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*id = jsonID(n)
	return nil
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := s.searcher.Search(r.Context(), ownerID(r), int64(req.ProjectID), req.Query, req.MatchCount)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.metrics.Counter("search_requests_total", "Similarity searches served").Inc()
	if results == nil {
		results = []domain.SearchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *apiServer) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	name := r.FormValue("projectName")
	model := domain.EmbeddingModel(r.FormValue("model"))
	strategy := r.FormValue("strategy")
	sourceURL := r.FormValue("sourceUrl")
	wantVectorize := r.FormValue("vectorize") == "true"

	fileData, contentType, hasFile, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if name == "" || model == "" || (!hasFile && sourceURL == "") {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if strategy == chunking.StrategyContextual && sourceURL == "" {
		writeError(w, http.StatusBadRequest, "Contextual chunking requires a source document URL")
		return
	}

	project := &domain.Project{Name: name, EmbeddingModel: model, OwnerID: ownerID(r)}
	if err := s.store.CreateProject(r.Context(), project); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			writeError(w, http.StatusConflict, "A project with this name already exists.")
			return
		}
		s.respondError(w, err)
		return
	}

	// From here on the stream is committed; failures become error events.
	ctx := r.Context()
	stream := newEventStream(w, s.nats, project.ID, s.log)

	rows, bulk, err := s.prepareRows(r, stream, project, strategy, sourceURL, fileData, contentType, hasFile)
	if err != nil {
		stream.fail(ctx, err.Error())
		return
	}

	for event := range s.writer.Run(ctx, project, rows, ingest.RunOpts{Bulk: bulk}) {
		if event.Type == ingest.EventChunk {
			s.metrics.Counter("ingest_chunks_total", "Chunks persisted").Inc()
		}
		if event.Type == ingest.EventDone && wantVectorize {
			if err := stream.status(ctx, "Vectorizing chunks..."); err != nil {
				return
			}
			res, err := s.pipeline.VectorizeChunks(ctx, project)
			if err != nil {
				stream.fail(ctx, "Vectorization failed: "+err.Error())
				return
			}
			s.metrics.Counter("vectorize_chunks_total", "Chunks vectorized").Add(int64(res.Processed))
			if err := stream.status(ctx, res.Message); err != nil {
				return
			}
		}
		if err := stream.send(ctx, event); err != nil {
			return
		}
	}
}

// prepareRows turns the upload into writer rows, emitting phase updates
// along the way. CSV uploads (no strategy) return bulk mode.
func (s *apiServer) prepareRows(r *http.Request, stream *eventStream, project *domain.Project, strategy, sourceURL string, fileData []byte, contentType string, hasFile bool) ([]ingest.Row, bool, error) {
	ctx := r.Context()

	if strategy == "" {
		if !hasFile {
			return nil, false, errors.New("CSV ingestion requires a file upload")
		}
		if err := stream.status(ctx, "Parsing CSV..."); err != nil {
			return nil, false, err
		}
		rows, err := ingest.RowsFromCSV(strings.NewReader(string(fileData)))
		if err != nil {
			return nil, false, err
		}
		return rows, true, nil
	}

	var (
		text string
		opts = chunking.Options{
			Size:    formInt(r, "chunkSize"),
			Overlap: formInt(r, "overlap"),
		}
	)

	if strategy == chunking.StrategyContextual {
		if err := stream.status(ctx, "Running OCR over source document..."); err != nil {
			return nil, false, err
		}
		prepared, ann, err := s.preparer.PrepareContextual(ctx, sourceURL, formInt(r, "pageCount"))
		if err != nil {
			return nil, false, err
		}
		text = prepared
		opts.Annotation = ann
	} else {
		if err := stream.status(ctx, "Extracting text..."); err != nil {
			return nil, false, err
		}
		var err error
		if hasFile {
			text, err = s.extractor.FromBytes(fileData, contentType)
		} else {
			text, err = s.extractor.FromURL(ctx, sourceURL)
		}
		if err != nil {
			return nil, false, err
		}
	}

	if err := stream.status(ctx, "Chunking document... This may take a moment."); err != nil {
		return nil, false, err
	}
	strat, err := chunking.New(strategy, opts)
	if err != nil {
		return nil, false, err
	}
	return ingest.RowsFromPieces(strat.Split(text)), false, nil
}

// --- Helpers ---

func readUpload(r *http.Request) (data []byte, contentType string, ok bool, err error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("read upload: %w", err)
	}
	defer file.Close()
	data, err = io.ReadAll(file)
	if err != nil {
		return nil, "", false, fmt.Errorf("read upload: %w", err)
	}
	return data, header.Header.Get("Content-Type"), true, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, domain.NewValidationError("id", "must be numeric")
	}
	return id, nil
}

func formInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.FormValue(key))
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// respondError maps domain errors onto HTTP statuses.
func (s *apiServer) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "Not authenticated")
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrExtraction):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrProvider):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}
